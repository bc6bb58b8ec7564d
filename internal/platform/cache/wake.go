package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWakeSignal satisfies dispatcher.WakeSignal over Redis pub/sub, so a
// submit on one process can wake a dispatcher poll loop running on another.
// It keeps a long-lived subscription rather than subscribing per Wait call,
// matching how NewLock and the rest of this package hold one client open.
type RedisWakeSignal struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	msgs    <-chan *redis.Message
}

// NewRedisWakeSignal subscribes to channel on rc's client. Call Close when
// the owning dispatcher stops.
func NewRedisWakeSignal(rc *RedisCache, channel string) (*RedisWakeSignal, error) {
	fullChannel := rc.buildKey(channel)
	sub := rc.client.Subscribe(context.Background(), fullChannel)
	if _, err := sub.Receive(context.Background()); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing to wake channel: %w", err)
	}
	return &RedisWakeSignal{
		client:  rc.client,
		channel: fullChannel,
		sub:     sub,
		msgs:    sub.Channel(),
	}, nil
}

// Post publishes a wake notification. Errors are swallowed: a missed wake
// just means the next poll tick picks up the work instead.
func (w *RedisWakeSignal) Post() {
	w.client.Publish(context.Background(), w.channel, "wake")
}

// Wait blocks until a message arrives, the timeout elapses, or ctx is done.
func (w *RedisWakeSignal) Wait(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.msgs:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Close unsubscribes. It does not close the underlying Redis client, which
// the cache that created this signal still owns.
func (w *RedisWakeSignal) Close() error {
	return w.sub.Close()
}
