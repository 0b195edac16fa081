package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
)

var _ Bus = (*RedisBus)(nil)

// RedisBus distributes events across server instances over Redis pub/sub,
// one channel per group. Pub/sub is fire-and-forget, which matches the Bus
// contract: missed events are recovered by the subscribers' polling path.
type RedisBus struct {
	client *redis.Client
	logger logging.Logger
}

func NewRedisBus(addr string, logger logging.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBus{client: client, logger: logger.With("module", "redis_bus")}, nil
}

func channelName(groupID string) string {
	return "teamcodes:events:" + groupID
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelName(ev.GroupID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, groupID string) (<-chan Event, func()) {
	sub := b.client.Subscribe(ctx, channelName(groupID))
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn(ctx, "dropping malformed event", "error", err)
				continue
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}()

	cancel := func() {
		_ = sub.Close() // closes sub.Channel(), which ends the goroutine
	}
	return ch, cancel
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
