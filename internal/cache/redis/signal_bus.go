package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// historyMaxLen bounds the per-channel replay stream (XADD MAXLEN ~).
const historyMaxLen int64 = 1000

// SignalBus implements domain.SignalBus on Redis pub/sub. Every publish is
// also appended to a capped stream so late subscribers can replay recent
// link events.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload to channel and records it in the replay stream.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := sb.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, sb.c.key("ch", channel), payload)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: sb.c.key("stream", channel),
			MaxLen: historyMaxLen,
			Approx: true,
			Values: map[string]any{"payload": payload},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams payloads from channel until ctx is cancelled, at which
// point the returned channel is closed.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.c.rdb.Subscribe(ctx, sb.c.key("ch", channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// History returns up to n of the most recent payloads on channel, oldest
// first.
func (sb *SignalBus) History(ctx context.Context, channel string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := sb.c.rdb.XRevRangeN(ctx, sb.c.key("stream", channel), "+", "-", int64(n)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: history %s: %w", channel, err)
	}

	out := make([][]byte, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		switch v := msgs[i].Values["payload"].(type) {
		case string:
			out = append(out, []byte(v))
		case []byte:
			out = append(out, v)
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
