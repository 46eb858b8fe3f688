package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/port"
)

const channelPrefix = "stockroom:"

var _ port.Sink = (*RedisAdapter)(nil)

// RedisAdapter relays fan-out envelopes over Redis Pub/Sub so that every
// server process sharing the instance feeds its own observers.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

type wireEnvelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"published_at"`
}

func (r *RedisAdapter) Deliver(ctx context.Context, env port.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, channelPrefix+env.Topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", env.Topic, err)
	}
	return nil
}

// Subscribe forwards envelopes published on topics to handle until ctx is done.
func (r *RedisAdapter) Subscribe(ctx context.Context, topics []string, handle func(port.Envelope)) error {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + t
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var wire wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				logging.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed relay message")
				continue
			}
			if wire.Topic == "" {
				wire.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			handle(port.Envelope{
				ID:          wire.ID,
				Topic:       wire.Topic,
				Payload:     wire.Payload,
				PublishedAt: wire.PublishedAt,
			})
		}
	}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
