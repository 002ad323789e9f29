// Package changefeed delivers row-insert notifications scoped to a table and an equality filter.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TableMessages     = "messages"
	TableParticipants = "participants"
)

// PartitionColumn returns the column a table's events are routed by, or "" for unpartitioned tables.
func PartitionColumn(table string) string {
	switch table {
	case TableMessages:
		return "conversation_id"
	case TableParticipants:
		return "user_id"
	default:
		return ""
	}
}

// Filter is the predicate `Column = Value` evaluated against the inserted row.
type Filter struct {
	Column string
	Value  string
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

func (f Filter) String() string {
	if f.Column == "" {
		return "*"
	}
	return fmt.Sprintf("%s=eq.%s", f.Column, f.Value)
}

// Matches reports whether row carries Column with a value equal to Value.
// An empty filter matches everything.
func (f Filter) Matches(row json.RawMessage) bool {
	if f.Column == "" {
		return true
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	v, ok := fields[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

type InsertEvent struct {
	Table       string          `json:"table"`
	Partition   string          `json:"partition,omitempty"`
	NewRow      json.RawMessage `json:"new_row"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewInsertEvent encodes row and derives the partition from the table's partition column.
func NewInsertEvent(table string, row interface{}, at time.Time) (InsertEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return InsertEvent{}, fmt.Errorf("failed to encode %s row: %w", table, err)
	}
	ev := InsertEvent{Table: table, NewRow: raw, CommittedAt: at}
	if col := PartitionColumn(table); col != "" {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err == nil {
			if v, ok := fields[col]; ok && v != nil {
				ev.Partition = fmt.Sprint(v)
			}
		}
	}
	return ev, nil
}

// Handle releases a subscription. Unsubscribe is idempotent and does not wait for in-flight callbacks.
type Handle interface {
	Unsubscribe() error
}

// Feed subscribes to inserts. Subscribe returns once the subscription is established;
// onInsert receives every matching insert committed afterwards, onError reports a
// mid-stream failure after which no further events are delivered.
type Feed interface {
	Subscribe(ctx context.Context, table string, filter Filter, onInsert func(InsertEvent), onError func(error)) (Handle, error)
}

type Publisher interface {
	Publish(ctx context.Context, event InsertEvent) error
}

// HandleFunc adapts a function to Handle.
type HandleFunc func() error

func (f HandleFunc) Unsubscribe() error {
	return f()
}
