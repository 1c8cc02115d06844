package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
)

const kafkaGroupID = "payment-workers"

type KafkaBroker struct {
	brokers []string
	writer  *kafka.Writer
}

func NewKafkaBroker(brokers string) *KafkaBroker {
	addrs := strings.Split(brokers, ",")
	return &KafkaBroker{
		brokers: addrs,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(addrs...),
			Topic:    Channel,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (b *KafkaBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.writer.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel, err)
	}
	return nil
}

// Subscribe joins the worker consumer group, so each job reaches one worker
// process.
func (b *KafkaBroker) Subscribe(_ context.Context) (interfaces.Subscription, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    Channel,
		GroupID:  kafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &kafkaSubscription{reader: reader}, nil
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

type kafkaSubscription struct {
	reader *kafka.Reader
}

func (s *kafkaSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrSubscriptionClosed
		}
		return nil, err
	}
	return msg.Value, nil
}

func (s *kafkaSubscription) Close() error {
	return s.reader.Close()
}
