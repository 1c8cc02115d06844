package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
)

// PaymentStore defines the contract for the shared payments store
type PaymentStore interface {
	// Save records a processed payment once per correlation id. It returns
	// false when the payment was already recorded.
	Save(ctx context.Context, correlationID string, processor models.Processor, amount decimal.Decimal, at time.Time) (bool, error)
	Summary(ctx context.Context, r models.TimeRange) (models.Summary, error)
	PurgeAll(ctx context.Context) error
	IsProcessed(ctx context.Context, correlationID string) (bool, error)
}
