package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// MemoryFeed is an in-process Feed and Publisher backed by a watermill go channel.
// Publish blocks until every current subscriber has handled the event, which keeps
// per-publisher ordering intact.
type MemoryFeed struct {
	pubSub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu          sync.Mutex
	subscribers int
	closed      bool
}

func NewMemoryFeed(logger watermill.LoggerAdapter) *MemoryFeed {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &MemoryFeed{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				BlockPublishUntilSubscriberAck: true,
			},
			logger,
		),
		logger: logger,
	}
}

func topic(table string) string {
	return "changes." + table
}

func (f *MemoryFeed) Publish(_ context.Context, event InsertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal insert event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := f.pubSub.Publish(topic(event.Table), msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic(event.Table), err)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, table string, filter Filter, onInsert func(InsertEvent), onError func(error)) (Handle, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("memory feed closed")
	}
	f.mu.Unlock()

	// The subscription outlives the caller's context; it ends on Unsubscribe.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	messages, err := f.pubSub.Subscribe(subCtx, topic(table))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic(table), err)
	}

	f.mu.Lock()
	f.subscribers++
	f.mu.Unlock()

	var stopped atomic.Bool
	go func() {
		for msg := range messages {
			var ev InsertEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				f.logger.Error("Dropping malformed insert event", err, watermill.LogFields{"topic": topic(table)})
				msg.Ack()
				continue
			}
			if !stopped.Load() && filter.Matches(ev.NewRow) {
				onInsert(ev)
			}
			msg.Ack()
		}
		// Channel closed without Unsubscribe means the pub/sub went away underneath us.
		if !stopped.Load() && onError != nil {
			onError(fmt.Errorf("memory feed subscription to %s ended", topic(table)))
		}
	}()

	var once sync.Once
	return HandleFunc(func() error {
		once.Do(func() {
			stopped.Store(true)
			cancel()
			f.mu.Lock()
			f.subscribers--
			f.mu.Unlock()
		})
		return nil
	}), nil
}

// Subscribers returns the number of open subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.pubSub.Close()
}
