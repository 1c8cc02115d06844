package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/broker"
	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/queue"
)

const relayErrorPause = 100 * time.Millisecond

// Runner relays the payments channel into an internal job queue and drains
// it with a fixed number of payment workers.
type Runner struct {
	broker  interfaces.Broker
	worker  *PaymentWorker
	workers int
	jobs    *queue.BlockingQueue[models.Job]
	logger  *zap.Logger

	cancel  context.CancelFunc
	sub     interfaces.Subscription
	relayWG sync.WaitGroup
	poolWG  sync.WaitGroup
}

func NewRunner(b interfaces.Broker, worker *PaymentWorker, workers int, logger *zap.Logger) *Runner {
	return &Runner{
		broker:  b,
		worker:  worker,
		workers: workers,
		jobs:    queue.New[models.Job](),
		logger:  logger,
	}
}

// Start subscribes and launches the relay and the workers. It returns once
// the subscription is live.
func (r *Runner) Start(ctx context.Context) error {
	relayCtx, cancel := context.WithCancel(ctx)

	sub, err := r.broker.Subscribe(relayCtx)
	if err != nil {
		cancel()
		return err
	}
	r.sub = sub
	r.cancel = cancel

	r.relayWG.Add(1)
	go r.relay(relayCtx)

	// Jobs run on a context detached from shutdown so a dispatched job
	// always reaches a terminal state.
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.poolWG.Add(1)
		go r.work(jobCtx, i)
	}

	r.logger.Info("Payment workers started", zap.Int("workers", r.workers))
	return nil
}

// Stop ends the subscription, lets the workers finish every queued job and
// waits for them.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.sub != nil {
		_ = r.sub.Close()
	}
	r.relayWG.Wait()

	r.jobs.Close()
	r.poolWG.Wait()
	r.logger.Info("Payment workers stopped")
}

// Pending reports jobs waiting for a free worker.
func (r *Runner) Pending() int { return r.jobs.Len() }

func (r *Runner) relay(ctx context.Context) {
	defer r.relayWG.Done()

	for {
		payload, err := r.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrSubscriptionClosed) {
				return
			}
			r.logger.Error("Error reading from payments channel", zap.Error(err))
			time.Sleep(relayErrorPause)
			continue
		}

		job, err := models.DecodeJob(payload)
		if err != nil {
			r.logger.Warn("Dropping malformed payment job", zap.Error(err))
			continue
		}
		r.jobs.Push(job)
	}
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.poolWG.Done()
	r.logger.Debug("Payment worker started", zap.Int("worker", id))

	for {
		job, ok := r.jobs.Pop()
		if !ok {
			return
		}
		r.worker.Process(ctx, job)
	}
}
