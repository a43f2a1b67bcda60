package inbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	glog "github.com/goliatone/go-logger/glog"
	redis "github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "featurehooks:change_events"

// RedisSubscriber consumes change events published on a Redis pub/sub
// channel. Pub/sub has no redelivery, so a failed ingest is logged and the
// event source is expected to republish.
type RedisSubscriber struct {
	Client   redis.UniversalClient
	Channel  string
	Ingestor core.Ingestor
	Logger   core.Logger
}

func NewRedisSubscriber(client redis.UniversalClient, channel string, ingestor core.Ingestor) *RedisSubscriber {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSubscriber{
		Client:   client,
		Channel:  channel,
		Ingestor: ingestor,
		Logger:   glog.Nop(),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	if s == nil || s.Client == nil || s.Ingestor == nil {
		return fmt.Errorf("inbound: redis subscriber is not configured")
	}
	pubsub := s.Client.Subscribe(ctx, s.Channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("inbound: subscribe %s: %w", s.Channel, err)
	}
	core.LogWithLevel(ctx, s.Logger, "info", "redis change event subscriber started", map[string]any{
		"channel": s.Channel,
	})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("inbound: redis channel %s closed", s.Channel)
			}
			_ = s.HandleMessage(ctx, msg.Payload)
		}
	}
}

// HandleMessage ingests one published payload.
func (s *RedisSubscriber) HandleMessage(ctx context.Context, payload string) error {
	event, err := DecodeChangeEvent([]byte(payload))
	if err != nil {
		core.LogWithLevel(ctx, s.Logger, "warn", "dropping malformed change event", map[string]any{
			"channel": s.Channel,
			"error":   err.Error(),
		})
		return err
	}
	result, err := s.Ingestor.HandleChangeEvent(ctx, event)
	if err != nil {
		core.LogWithLevel(ctx, s.Logger, "error", "change event ingest failed", map[string]any{
			"channel":    s.Channel,
			"feature_id": event.FeatureID,
			"event_id":   result.EventID,
			"error":      err.Error(),
		})
		return err
	}
	core.LogWithLevel(ctx, s.Logger, "debug", "change event ingested", map[string]any{
		"channel":  s.Channel,
		"event_id": result.EventID,
		"inserted": len(result.Inserted),
	})
	return nil
}

// Publish sends an event on the subscriber's channel. Producers and tests use
// it to emit the same envelope the subscriber decodes.
func Publish(ctx context.Context, client redis.UniversalClient, channel string, event Envelope) error {
	if client == nil {
		return fmt.Errorf("inbound: redis client is required")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	payload, err := encodeEnvelope(event)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, payload).Err()
}
