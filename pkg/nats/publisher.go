package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"realtime-chat-be/pkg/changefeed"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher handles sending insert events to the NATS bus.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher creates a new NATS publisher and ensures the CHANGES stream exists.
func NewPublisher(url string) (*Publisher, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	ensureStream(js)
	return &Publisher{nc: nc, js: js}, nil
}

// Publish sends an event to changes.<table>.<partition>.
func (p *Publisher) Publish(ctx context.Context, event changefeed.InsertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal insert event: %w", err)
	}

	subj := subject(event.Table, event.Partition)
	if _, err := p.js.Publish(ctx, subj, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subj, err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
