// Command feedtail prints change-feed inserts from the NATS stream as they arrive.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime-chat-be/pkg/changefeed"
	pktNats "realtime-chat-be/pkg/nats"
	"realtime-chat-be/pkg/pgnotify"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	natsURL string
	column  string
	value   string
)

var rootCmd = &cobra.Command{
	Use:   "feedtail",
	Short: "Inspect the chat change feed",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if natsURL == "" {
			natsURL = os.Getenv("NATS_URL")
		}
		if natsURL == "" {
			natsURL = "nats://localhost:4222"
		}
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail <table>",
	Short: "Stream inserts for a table until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sub, err := pktNats.NewSubscriber(natsURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		filter := changefeed.Filter{}
		if column != "" {
			filter = changefeed.Eq(column, value)
		}

		failed := make(chan error, 1)
		handle, err := sub.Subscribe(ctx, args[0], filter, printEvent, func(err error) {
			select {
			case failed <- err:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer handle.Unsubscribe()

		color.Cyan("Tailing %s (%s) on %s", args[0], filter, natsURL)
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		}
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <table> <json-row>",
	Short: "Publish a synthetic insert event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var row json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &row); err != nil {
			return fmt.Errorf("row is not valid JSON: %w", err)
		}

		pub, err := pktNats.NewPublisher(natsURL)
		if err != nil {
			return err
		}
		defer pub.Close()

		event, err := changefeed.NewInsertEvent(args[0], row, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := pub.Publish(cmd.Context(), event); err != nil {
			return err
		}
		color.Green("Published %s insert (partition %q)", event.Table, event.Partition)
		return nil
	},
}

var triggersCmd = &cobra.Command{
	Use:   "triggers [table...]",
	Short: "Print the SQL that installs insert notification triggers",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			args = []string{changefeed.TableMessages, changefeed.TableParticipants}
		}
		for _, stmt := range pgnotify.TriggerSQL(args...) {
			fmt.Println(stmt)
		}
	},
}

func printEvent(event changefeed.InsertEvent) {
	fmt.Printf("%s %s %s\n",
		color.HiBlackString(event.CommittedAt.Format(time.RFC3339Nano)),
		color.YellowString("%s/%s", event.Table, event.Partition),
		string(event.NewRow),
	)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats", "", "NATS URL (defaults to $NATS_URL)")
	tailCmd.Flags().StringVar(&column, "column", "", "filter column")
	tailCmd.Flags().StringVar(&value, "value", "", "filter value")

	rootCmd.AddCommand(tailCmd, publishCmd, triggersCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
