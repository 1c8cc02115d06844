package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
)

var testSettings = Settings{MaxAttempts: 3, BackoffBase: 2 * time.Millisecond, MaxRetries: 3}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
}

func newTestWorker(store *mockStore, procs *mockProcessors, pub *mockPublisher, settings Settings) (*PaymentWorker, *sleepRecorder) {
	rec := &sleepRecorder{}
	w := NewPaymentWorker(store, procs, pub, settings, zap.NewNop(), WithSleep(rec.sleep))
	return w, rec
}

func newJob(retry int) models.Job {
	return models.Job{
		CorrelationID: "4a7901b8-7d26-4d9d-aa19-4dc1c7cf60b3",
		Amount:        decimal.RequireFromString("19.90"),
		RequestedAt:   time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		RetryCount:    retry,
	}
}

func alwaysFailing() *mockProcessors {
	return &mockProcessors{scripts: map[models.Processor][]error{
		models.ProcessorDefault:  {errProcessorDown},
		models.ProcessorFallback: {errProcessorDown},
	}}
}

func TestProcess_DefaultSucceedsFirstTry(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	procs := &mockProcessors{scripts: map[models.Processor][]error{}}
	w, rec := newTestWorker(store, procs, pub, testSettings)
	job := newJob(0)

	state := w.Process(context.Background(), job)

	assert.Equal(t, StateSaved, state)
	assert.Equal(t, []models.Processor{models.ProcessorDefault}, procs.calls)
	assert.Empty(t, rec.slept)
	assert.Empty(t, pub.published)

	saves := store.saveCalls()
	require.Len(t, saves, 1)
	assert.Equal(t, models.ProcessorDefault, saves[0].processor)
	assert.True(t, job.Amount.Equal(saves[0].amount))
	assert.Equal(t, job.RequestedAt, saves[0].at)
}

func TestProcess_DefaultSucceedsAfterBackoff(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	procs := &mockProcessors{scripts: map[models.Processor][]error{
		models.ProcessorDefault: {errProcessorDown, errProcessorDown, nil},
	}}
	w, rec := newTestWorker(store, procs, pub, testSettings)

	state := w.Process(context.Background(), newJob(0))

	assert.Equal(t, StateSaved, state)
	assert.Equal(t, 3, procs.count(models.ProcessorDefault))
	assert.Equal(t, 0, procs.count(models.ProcessorFallback))
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, rec.slept)
	assert.Equal(t, models.ProcessorDefault, store.saveCalls()[0].processor)
}

func TestProcess_FallbackAfterDefaultExhausted(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	procs := &mockProcessors{scripts: map[models.Processor][]error{
		models.ProcessorDefault: {errProcessorDown},
	}}
	w, rec := newTestWorker(store, procs, pub, testSettings)

	state := w.Process(context.Background(), newJob(0))

	assert.Equal(t, StateSaved, state)
	assert.Equal(t, []models.Processor{
		models.ProcessorDefault, models.ProcessorDefault, models.ProcessorDefault, models.ProcessorFallback,
	}, procs.calls)
	// no sleep after the last default attempt
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, rec.slept)

	saves := store.saveCalls()
	require.Len(t, saves, 1)
	assert.Equal(t, models.ProcessorFallback, saves[0].processor)
}

func TestProcess_BackoffIsLinear(t *testing.T) {
	settings := Settings{MaxAttempts: 5, BackoffBase: 3 * time.Millisecond, MaxRetries: 0}
	w, rec := newTestWorker(newMockStore(), alwaysFailing(), &mockPublisher{}, settings)

	w.Process(context.Background(), newJob(0))

	require.Len(t, rec.slept, settings.MaxAttempts-1)
	for i, d := range rec.slept {
		assert.Equal(t, settings.BackoffBase*time.Duration(i+1), d)
	}
}

func TestProcess_BackoffObservedBetweenAttempts(t *testing.T) {
	settings := Settings{MaxAttempts: 3, BackoffBase: 20 * time.Millisecond, MaxRetries: 0}
	procs := alwaysFailing()
	w := NewPaymentWorker(newMockStore(), procs, &mockPublisher{}, settings, zap.NewNop())

	w.Process(context.Background(), newJob(0))

	require.Len(t, procs.callAt, 4)
	const jitter = 40 * time.Millisecond
	for k := 1; k < settings.MaxAttempts; k++ {
		gap := procs.callAt[k].Sub(procs.callAt[k-1])
		want := settings.BackoffBase * time.Duration(k)
		assert.GreaterOrEqual(t, gap, want, "gap after attempt %d", k)
		assert.Less(t, gap, want+jitter, "gap after attempt %d", k)
	}
	assert.Less(t, procs.callAt[3].Sub(procs.callAt[2]), jitter, "fallback follows the last default attempt without backoff")
}

func TestProcess_RequeuesWhenBothFail(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	w, _ := newTestWorker(store, alwaysFailing(), pub, testSettings)
	job := newJob(1)

	state := w.Process(context.Background(), job)

	assert.Equal(t, StateRequeued, state)
	assert.Empty(t, store.saveCalls())

	requeued := pub.jobs()
	require.Len(t, requeued, 1)
	assert.Equal(t, 2, requeued[0].RetryCount)
	assert.Equal(t, job.CorrelationID, requeued[0].CorrelationID)
	assert.True(t, job.Amount.Equal(requeued[0].Amount))
	assert.True(t, job.RequestedAt.Equal(requeued[0].RequestedAt))
}

func TestProcess_PermanentlyFailsAtRetryBudget(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	w, _ := newTestWorker(store, alwaysFailing(), pub, testSettings)

	state := w.Process(context.Background(), newJob(testSettings.MaxRetries))

	assert.Equal(t, StatePermanentlyFailed, state)
	assert.Empty(t, pub.published)
	assert.Empty(t, store.saveCalls())
}

func TestProcess_RetryBound(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	w, _ := newTestWorker(store, alwaysFailing(), pub, testSettings)

	job := newJob(0)
	var states []PaymentState
	for {
		state := w.Process(context.Background(), job)
		states = append(states, state)
		if state != StateRequeued {
			break
		}
		jobs := pub.jobs()
		job = jobs[len(jobs)-1]
	}

	assert.Len(t, pub.published, testSettings.MaxRetries)
	assert.Len(t, states, testSettings.MaxRetries+1)
	assert.Equal(t, StatePermanentlyFailed, states[len(states)-1])
	assert.Empty(t, store.saveCalls())
}

func TestProcess_ZeroRetryBudgetDropsImmediately(t *testing.T) {
	pub := &mockPublisher{}
	w, _ := newTestWorker(newMockStore(), alwaysFailing(), pub, Settings{MaxAttempts: 1, MaxRetries: 0})

	assert.Equal(t, StatePermanentlyFailed, w.Process(context.Background(), newJob(0)))
	assert.Empty(t, pub.published)
}

func TestProcess_SkipsProcessedRetry(t *testing.T) {
	store := newMockStore()
	store.processed["4a7901b8-7d26-4d9d-aa19-4dc1c7cf60b3"] = true
	procs := &mockProcessors{scripts: map[models.Processor][]error{}}
	w, _ := newTestWorker(store, procs, &mockPublisher{}, testSettings)

	state := w.Process(context.Background(), newJob(1))

	assert.Equal(t, StateSaved, state)
	assert.Empty(t, procs.calls)
	assert.Empty(t, store.saveCalls())
}

func TestProcess_FirstDeliveryDoesNotCheckProcessed(t *testing.T) {
	store := newMockStore()
	procs := &mockProcessors{scripts: map[models.Processor][]error{}}
	w, _ := newTestWorker(store, procs, &mockPublisher{}, testSettings)

	w.Process(context.Background(), newJob(0))

	assert.Equal(t, 0, store.isProcessedCalls)
	assert.Len(t, procs.calls, 1)
}

func TestProcess_SavedWhenAnotherWorkerWon(t *testing.T) {
	store := newMockStore()
	store.processed["4a7901b8-7d26-4d9d-aa19-4dc1c7cf60b3"] = true
	w, _ := newTestWorker(store, &mockProcessors{scripts: map[models.Processor][]error{}}, &mockPublisher{}, testSettings)

	assert.Equal(t, StateSaved, w.Process(context.Background(), newJob(0)))
	assert.Len(t, store.saveCalls(), 1)
}

func TestProcess_SaveErrorDoesNotRequeue(t *testing.T) {
	store, pub := newMockStore(), &mockPublisher{}
	store.saveErr = errors.New("store unavailable")
	w, _ := newTestWorker(store, &mockProcessors{scripts: map[models.Processor][]error{}}, pub, testSettings)

	assert.Equal(t, StateSaved, w.Process(context.Background(), newJob(0)))
	assert.Empty(t, pub.published)
}

func TestProcess_RequeuePublishFailure(t *testing.T) {
	pub := &mockPublisher{err: errors.New("channel unavailable")}
	w, _ := newTestWorker(newMockStore(), alwaysFailing(), pub, testSettings)

	assert.Equal(t, StatePermanentlyFailed, w.Process(context.Background(), newJob(0)))
}
