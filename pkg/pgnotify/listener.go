// Package pgnotify bridges Postgres LISTEN/NOTIFY row-insert notifications into a change feed.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"realtime-chat-be/pkg/changefeed"

	"github.com/jackc/pgx/v5"
)

const Channel = "row_inserts"

// keyColumns identify a row of each feed table. Notifications carry only these
// columns because a NOTIFY payload is limited to 8000 bytes.
var keyColumns = map[string][]string{
	changefeed.TableMessages:     {"id"},
	changefeed.TableParticipants: {"conversation_id", "user_id"},
}

// KeyColumns returns the columns a notification for table carries.
func KeyColumns(table string) []string {
	if cols, ok := keyColumns[table]; ok {
		return cols
	}
	return []string{"id"}
}

// TriggerSQL installs the row_inserts trigger on the given tables.
func TriggerSQL(tables ...string) []string {
	stmts := []string{
		`CREATE OR REPLACE FUNCTION notify_row_insert() RETURNS trigger AS $$
DECLARE
	rec jsonb := to_jsonb(NEW);
	row_key jsonb := '{}'::jsonb;
	col text;
BEGIN
	FOREACH col IN ARRAY TG_ARGV LOOP
		row_key := row_key || jsonb_build_object(col, rec -> col);
	END LOOP;
	PERFORM pg_notify('` + Channel + `', jsonb_build_object('table', TG_TABLE_NAME, 'key', row_key)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
	}
	for _, t := range tables {
		name := pgx.Identifier{t}.Sanitize()
		trigger := pgx.Identifier{t + "_notify_insert"}.Sanitize()
		args := make([]string, 0, len(KeyColumns(t)))
		for _, col := range KeyColumns(t) {
			args = append(args, "'"+strings.ReplaceAll(col, "'", "''")+"'")
		}
		stmts = append(stmts,
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, name),
			fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT ON %s FOR EACH ROW EXECUTE FUNCTION notify_row_insert(%s)",
				trigger, name, strings.Join(args, ", ")),
		)
	}
	return stmts
}

type notification struct {
	Table string                 `json:"table"`
	Key   map[string]interface{} `json:"key"`
}

// selectSQL loads the notified row as JSON. Columns are ordered by name so the
// statement text is stable.
func (n notification) selectSQL() (string, []interface{}) {
	cols := make([]string, 0, len(n.Key))
	for col := range n.Key {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	conds := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for i, col := range cols {
		conds = append(conds, fmt.Sprintf("t.%s = $%d", pgx.Identifier{col}.Sanitize(), i+1))
		args = append(args, fmt.Sprint(n.Key[col]))
	}
	query := fmt.Sprintf("SELECT row_to_json(t)::text FROM %s t WHERE %s",
		pgx.Identifier{n.Table}.Sanitize(), strings.Join(conds, " AND "))
	return query, args
}

// Bridge listens on the row_inserts channel and republishes every notification.
type Bridge struct {
	dsn       string
	publisher changefeed.Publisher
	retry     time.Duration
}

func NewBridge(dsn string, publisher changefeed.Publisher) *Bridge {
	return &Bridge{dsn: dsn, publisher: publisher, retry: 2 * time.Second}
}

// Run blocks until ctx is cancelled, reconnecting after connection loss.
// Notifications raised while disconnected are lost; subscribers see that as a feed gap.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[WARN] pgnotify: listener stopped: %v, reconnecting in %s", err, b.retry)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.retry):
		}
	}
}

func (b *Bridge) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	log.Printf("[INFO] pgnotify: listening on %s", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		note, err := decode([]byte(n.Payload))
		if err != nil {
			log.Printf("[WARN] pgnotify: %v", err)
			continue
		}
		ev, err := b.load(ctx, conn, note)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[WARN] pgnotify: %v", err)
			continue
		}
		if err := b.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[WARN] pgnotify: failed to publish %s insert: %v", ev.Table, err)
		}
	}
}

func decode(payload []byte) (notification, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return notification{}, fmt.Errorf("malformed notification: %w", err)
	}
	if n.Table == "" || len(n.Key) == 0 {
		return notification{}, fmt.Errorf("notification without table or key")
	}
	return n, nil
}

// load reads the full row behind a notification. The simple protocol sends the key
// values as literals so Postgres coerces them to the column types.
func (b *Bridge) load(ctx context.Context, conn *pgx.Conn, n notification) (changefeed.InsertEvent, error) {
	query, args := n.selectSQL()
	var row string
	err := conn.QueryRow(ctx, query, append([]interface{}{pgx.QueryExecModeSimpleProtocol}, args...)...).Scan(&row)
	if errors.Is(err, pgx.ErrNoRows) {
		return changefeed.InsertEvent{}, fmt.Errorf("%s row %v no longer exists", n.Table, n.Key)
	}
	if err != nil {
		return changefeed.InsertEvent{}, fmt.Errorf("failed to load %s row: %w", n.Table, err)
	}
	return changefeed.NewInsertEvent(n.Table, json.RawMessage(row), time.Now().UTC())
}
