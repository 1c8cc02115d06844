package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
)

// JobPublisher puts an encoded payment job on the payments channel
type JobPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Subscription yields payloads from the payments channel
type Subscription interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

type Broker interface {
	JobPublisher
	Subscribe(ctx context.Context) (Subscription, error)
	Close() error
}

// PaymentProcessor submits a job to one processor, bounded by that
// processor's timeout
type PaymentProcessor interface {
	Pay(ctx context.Context, processor models.Processor, job models.Job) error
}
