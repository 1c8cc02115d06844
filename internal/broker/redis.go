package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/pool"
)

// RedisBroker publishes through the shared connection pool and subscribes
// on a connection of its own.
type RedisBroker struct {
	client *redis.Client
	pool   *pool.Pool[*redis.Conn]
}

func NewRedisBroker(client *redis.Client, p *pool.Pool[*redis.Conn]) *RedisBroker {
	return &RedisBroker{client: client, pool: p}
}

func (b *RedisBroker) Publish(ctx context.Context, payload []byte) error {
	return b.pool.With(func(conn *redis.Conn) error {
		if err := conn.Publish(ctx, Channel, payload).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", Channel, err)
		}
		return nil
	})
}

func (b *RedisBroker) Subscribe(ctx context.Context) (interfaces.Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel)
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel, err)
	}
	return &redisSubscription{ps: ps}, nil
}

// Close is a no-op; the pool and client are owned by the caller.
func (b *RedisBroker) Close() error { return nil }

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrSubscriptionClosed
		}
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
