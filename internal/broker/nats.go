package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
)

type NATSBroker struct {
	nc *nats.Conn
}

func NewNATSBroker(url string) (*NATSBroker, error) {
	nc, err := nats.Connect(url, nats.Name("intake-gateway"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSBroker{nc: nc}, nil
}

func (b *NATSBroker) Publish(_ context.Context, payload []byte) error {
	if err := b.nc.Publish(Channel, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(_ context.Context) (interfaces.Subscription, error) {
	sub, err := b.nc.SubscribeSync(Channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Channel, err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBroker) Close() error {
	b.nc.Close()
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil, ErrSubscriptionClosed
		}
		return nil, err
	}
	return msg.Data, nil
}

func (s *natsSubscription) Close() error {
	return s.sub.Unsubscribe()
}
