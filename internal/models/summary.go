package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeRange bounds a summary query. A zero From or To is unbounded on that
// side. Filtered selects the log scan instead of the lifetime counters.
type TimeRange struct {
	From     time.Time
	To       time.Time
	Filtered bool
}

// ProcessorTotals are the running totals for one processor.
type ProcessorTotals struct {
	TotalRequests int64
	TotalAmount   decimal.Decimal
}

func (t *ProcessorTotals) Add(amount decimal.Decimal) {
	t.TotalRequests++
	t.TotalAmount = t.TotalAmount.Add(amount)
}

type Summary struct {
	Default  ProcessorTotals
	Fallback ProcessorTotals
}

// Totals returns the bucket for p, or nil for an unknown processor.
func (s *Summary) Totals(p Processor) *ProcessorTotals {
	switch p {
	case ProcessorDefault:
		return &s.Default
	case ProcessorFallback:
		return &s.Fallback
	default:
		return nil
	}
}

// SummarizeRecords folds a log scan into per-processor totals.
func SummarizeRecords(records []PaymentRecord) Summary {
	var s Summary
	for _, r := range records {
		if t := s.Totals(r.Processor); t != nil {
			t.Add(r.Amount)
		}
	}
	return s
}

type ProcessorSummaryResponse struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

type SummaryResponse struct {
	Default  ProcessorSummaryResponse `json:"default"`
	Fallback ProcessorSummaryResponse `json:"fallback"`
}

// Response rounds amounts to cents for output.
func (s Summary) Response() SummaryResponse {
	return SummaryResponse{
		Default:  s.Default.response(),
		Fallback: s.Fallback.response(),
	}
}

func (t ProcessorTotals) response() ProcessorSummaryResponse {
	return ProcessorSummaryResponse{
		TotalRequests: t.TotalRequests,
		TotalAmount:   t.TotalAmount.Round(2).InexactFloat64(),
	}
}

// Score maps a timestamp onto the payments log ordering: epoch seconds with
// millisecond fraction.
func Score(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}
