package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is how requestedAt travels on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Processor string

const (
	ProcessorDefault  Processor = "default"
	ProcessorFallback Processor = "fallback"
)

// Processors lists every processor in summary order.
var Processors = []Processor{ProcessorDefault, ProcessorFallback}

// Job is a payment in transit between ingress and a payment worker.
type Job struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   time.Time       `json:"requestedAt"`
	RetryCount    int             `json:"retryCount"`
}

// Retried returns a copy with the retry count bumped, keeping identity,
// amount and acceptance time.
func (j Job) Retried() Job {
	j.RetryCount++
	return j
}

// PaymentRecord is one entry of the processed payments log.
type PaymentRecord struct {
	Processor     Processor       `json:"processor"`
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

type CreatePaymentRequest struct {
	CorrelationID string           `json:"correlationId" binding:"required"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
}

// ProcessorPayment is the body sent to a payment processor.
type ProcessorPayment struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

func NewProcessorPayment(job Job) ProcessorPayment {
	return ProcessorPayment{
		CorrelationID: job.CorrelationID,
		Amount:        job.Amount.InexactFloat64(),
		RequestedAt:   job.RequestedAt.UTC().Format(TimestampLayout),
	}
}
