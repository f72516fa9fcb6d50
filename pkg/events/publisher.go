package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshield-labs/coordengine/pkg/database"
)

// Publisher broadcasts analysis events over Redis pub/sub.
//
// Each public method accepts a typed payload struct from types.go. Payloads
// are marshaled to JSON and published to the channel derived from the
// analysis id.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a publisher over the shared Redis client.
func NewPublisher(client *database.Client) *Publisher {
	if client == nil {
		panic("events.NewPublisher: client must not be nil")
	}
	return &Publisher{rdb: client.Redis()}
}

// PublishStatus broadcasts a lifecycle transition to the analysis channel
// and the global channel. Returns the first error encountered; the global
// publish is still attempted when the per-analysis one fails.
func (p *Publisher) PublishStatus(ctx context.Context, ev StatusEvent) error {
	ev.Type = EventTypeStatus
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling status event: %w", err)
	}

	firstErr := p.publish(ctx, AnalysisChannel(ev.AnalysisID), payload)
	if err := p.publish(ctx, GlobalChannel, payload); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishProgress broadcasts a milestone update to the analysis channel.
func (p *Publisher) PublishProgress(ctx context.Context, ev ProgressEvent) error {
	ev.Type = EventTypeProgress
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling progress event: %w", err)
	}
	return p.publish(ctx, AnalysisChannel(ev.AnalysisID), payload)
}

// Subscribe opens a pub/sub subscription on the given channels. The caller
// owns the returned subscription and must Close it.
func (p *Publisher) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, channels...)
}

func (p *Publisher) publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}
