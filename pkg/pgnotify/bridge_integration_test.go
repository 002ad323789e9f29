package pgnotify

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"realtime-chat-be/pkg/changefeed"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	events chan changefeed.InsertEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev changefeed.InsertEvent) error {
	p.events <- ev
	return nil
}

func TestBridge_RelaysRowsLargerThanNotifyLimit(t *testing.T) {
	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(context.Background())

	const table = "pgnotify_bridge_rows"
	_, err = conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+table+" (id uuid PRIMARY KEY, content text NOT NULL)")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
	})
	for _, stmt := range TriggerSQL(table) {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	pub := &capturePublisher{events: make(chan changefeed.InsertEvent, 16)}
	bridge := NewBridge(dsn, pub)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Run(ctx)
	}()

	// About 12 KB of UTF-8, above the 8000 byte NOTIFY limit.
	content := strings.Repeat("訊", 4000)

	var got changefeed.InsertEvent
	require.Eventually(t, func() bool {
		if _, err := conn.Exec(ctx, "INSERT INTO "+table+" (id, content) VALUES ($1, $2)", uuid.NewString(), content); err != nil {
			t.Errorf("insert failed: %v", err)
			return false
		}
		select {
		case got = <-pub.events:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	var row struct {
		Id      string `json:"id"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(got.NewRow, &row))
	assert.Equal(t, table, got.Table)
	assert.Equal(t, content, row.Content)

	cancel()
	<-done
}
