// Package worker runs the payment dispatch state machine on a fixed pool of
// goroutines fed from the payments channel.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

type PaymentState string

const (
	StateReceived           PaymentState = "RECEIVED"
	StateAttemptingDefault  PaymentState = "ATTEMPTING_DEFAULT"
	StateAttemptingFallback PaymentState = "ATTEMPTING_FALLBACK"
	StateSaved              PaymentState = "SAVED"
	StateRequeued           PaymentState = "REQUEUED"
	StatePermanentlyFailed  PaymentState = "PERMANENTLY_FAILED"
)

type Settings struct {
	// MaxAttempts is how many times the default processor is tried per
	// delivery.
	MaxAttempts int
	// BackoffBase is multiplied by the 1-based number of the attempt that
	// just failed.
	BackoffBase time.Duration
	// MaxRetries is how many times a job may be republished.
	MaxRetries int
}

// PaymentWorker drives one job at a time to a terminal state. It is safe to
// share between goroutines.
type PaymentWorker struct {
	store      interfaces.PaymentStore
	processors interfaces.PaymentProcessor
	publisher  interfaces.JobPublisher
	settings   Settings
	logger     *zap.Logger
	sleep      func(time.Duration)
}

type Option func(*PaymentWorker)

// WithSleep replaces time.Sleep for the backoff between default attempts.
func WithSleep(sleep func(time.Duration)) Option {
	return func(w *PaymentWorker) { w.sleep = sleep }
}

func NewPaymentWorker(store interfaces.PaymentStore, processors interfaces.PaymentProcessor, publisher interfaces.JobPublisher, settings Settings, logger *zap.Logger, opts ...Option) *PaymentWorker {
	w := &PaymentWorker{
		store:      store,
		processors: processors,
		publisher:  publisher,
		settings:   settings,
		logger:     logger,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process runs job through default attempts, the fallback and the retry
// budget, and returns the terminal state reached.
func (w *PaymentWorker) Process(ctx context.Context, job models.Job) PaymentState {
	ctx, span := telemetry.Tracer().Start(ctx, "payment.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.correlation_id", job.CorrelationID),
		attribute.Int("payment.retry_count", job.RetryCount),
	)

	state := w.dispatch(ctx, job)

	span.SetAttributes(attribute.String("payment.state", string(state)))
	if state == StatePermanentlyFailed {
		span.SetStatus(codes.Error, "payment permanently failed")
	}
	telemetry.PaymentOutcomes.WithLabelValues(string(state)).Inc()
	return state
}

func (w *PaymentWorker) dispatch(ctx context.Context, job models.Job) PaymentState {
	log := w.logger.With(
		zap.String("correlation_id", job.CorrelationID),
		zap.Int("retry_count", job.RetryCount),
	)

	// Only retried jobs pay for the extra round trip; Save stays the
	// authority either way.
	if job.RetryCount > 0 {
		processed, err := w.store.IsProcessed(ctx, job.CorrelationID)
		if err != nil {
			log.Warn("Processed check failed, dispatching anyway", zap.Error(err))
		}
		if processed {
			log.Info("Payment already processed, skipping")
			return w.transition(log, StateReceived, StateSaved)
		}
	}

	w.transition(log, StateReceived, StateAttemptingDefault)
	for attempt := 1; attempt <= w.settings.MaxAttempts; attempt++ {
		err := w.processors.Pay(ctx, models.ProcessorDefault, job)
		if err == nil {
			w.record(ctx, log, job, models.ProcessorDefault)
			return w.transition(log, StateAttemptingDefault, StateSaved)
		}
		log.Debug("Default processor attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < w.settings.MaxAttempts {
			w.sleep(w.settings.BackoffBase * time.Duration(attempt))
		}
	}

	w.transition(log, StateAttemptingDefault, StateAttemptingFallback)
	err := w.processors.Pay(ctx, models.ProcessorFallback, job)
	if err == nil {
		w.record(ctx, log, job, models.ProcessorFallback)
		return w.transition(log, StateAttemptingFallback, StateSaved)
	}
	log.Debug("Fallback processor attempt failed", zap.Error(err))

	if job.RetryCount >= w.settings.MaxRetries {
		log.Error("Payment permanently failed", zap.Int("max_retries", w.settings.MaxRetries))
		return w.transition(log, StateAttemptingFallback, StatePermanentlyFailed)
	}

	if err := w.requeue(ctx, job.Retried()); err != nil {
		log.Error("Failed to requeue payment, dropping it", zap.Error(err))
		return w.transition(log, StateAttemptingFallback, StatePermanentlyFailed)
	}
	log.Info("Both processors failed, payment requeued",
		zap.Int("next_retry", job.RetryCount+1),
		zap.Int("max_retries", w.settings.MaxRetries),
	)
	return w.transition(log, StateAttemptingFallback, StateRequeued)
}

// record stores a payment the processor has already accepted. A false or
// failed save still ends the job: the processor must not be charged twice.
func (w *PaymentWorker) record(ctx context.Context, log *zap.Logger, job models.Job, processor models.Processor) {
	saved, err := w.store.Save(ctx, job.CorrelationID, processor, job.Amount, job.RequestedAt)
	switch {
	case err != nil:
		telemetry.StoreSaveFailures.Inc()
		log.Error("Failed to save payment", zap.String("processor", string(processor)), zap.Error(err))
	case saved:
		log.Info("Payment processed", zap.String("processor", string(processor)))
	default:
		log.Info("Payment already saved by another worker", zap.String("processor", string(processor)))
	}
}

func (w *PaymentWorker) requeue(ctx context.Context, job models.Job) error {
	payload, err := models.EncodeJob(job)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, payload)
}

func (w *PaymentWorker) transition(log *zap.Logger, from, to PaymentState) PaymentState {
	log.Debug("Payment state transition",
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
	return to
}
