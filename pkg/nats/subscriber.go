package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"realtime-chat-be/pkg/changefeed"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber is a changefeed.Feed over the CHANGES stream.
// Every subscription is an ordered consumer that starts at new messages, so it is
// gap-free for as long as it stays open.
type Subscriber struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	ensureStream(js)
	return &Subscriber{nc: nc, js: js}, nil
}

// filterSubject routes on the partition column when the filter targets it.
// Other filters read the whole table and match client-side.
func filterSubject(table string, filter changefeed.Filter) (string, bool) {
	if col := changefeed.PartitionColumn(table); col != "" && filter.Column == col && validToken(filter.Value) {
		return subject(table, filter.Value), true
	}
	return fmt.Sprintf("%s.%s.*", subjectPrefix, table), false
}

func (s *Subscriber) Subscribe(ctx context.Context, table string, filter changefeed.Filter, onInsert func(changefeed.InsertEvent), onError func(error)) (changefeed.Handle, error) {
	subj, routed := filterSubject(table, filter)

	consumer, err := s.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subj},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ordered consumer on %s: %w", subj, err)
	}

	var stopped atomic.Bool
	var failOnce sync.Once

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if stopped.Load() {
			return
		}
		var ev changefeed.InsertEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			log.Printf("[WARN] Dropping malformed insert event on %s: %v", msg.Subject(), err)
			return
		}
		if !routed && !filter.Matches(ev.NewRow) {
			return
		}
		onInsert(ev)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		// Ordered consumers recreate themselves after missed heartbeats without losing position.
		if errors.Is(err, jetstream.ErrNoHeartbeat) {
			log.Printf("[WARN] Missed heartbeat on %s, consumer resetting", subj)
			return
		}
		if stopped.Load() || onError == nil {
			return
		}
		failOnce.Do(func() {
			onError(fmt.Errorf("consumer on %s failed: %w", subj, err))
		})
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", subj, err)
	}

	var once sync.Once
	return changefeed.HandleFunc(func() error {
		once.Do(func() {
			stopped.Store(true)
			cc.Stop()
		})
		return nil
	}), nil
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
