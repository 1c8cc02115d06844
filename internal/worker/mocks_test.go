package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/intake-gateway/internal/broker"
	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/models"
)

var errProcessorDown = errors.New("processor down")

type saveCall struct {
	correlationID string
	processor     models.Processor
	amount        decimal.Decimal
	at            time.Time
}

type mockStore struct {
	mu               sync.Mutex
	processed        map[string]bool
	saves            []saveCall
	saveErr          error
	isProcessedCalls int
}

func newMockStore() *mockStore {
	return &mockStore{processed: make(map[string]bool)}
}

func (m *mockStore) Save(_ context.Context, id string, p models.Processor, amount decimal.Decimal, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, saveCall{id, p, amount, at})
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if m.processed[id] {
		return false, nil
	}
	m.processed[id] = true
	return true, nil
}

func (m *mockStore) Summary(context.Context, models.TimeRange) (models.Summary, error) {
	return models.Summary{}, nil
}

func (m *mockStore) PurgeAll(context.Context) error { return nil }

func (m *mockStore) IsProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isProcessedCalls++
	return m.processed[id], nil
}

func (m *mockStore) saveCalls() []saveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]saveCall(nil), m.saves...)
}

// mockProcessors answers from a per-processor script; once a script runs
// out the last entry repeats.
type mockProcessors struct {
	mu      sync.Mutex
	scripts map[models.Processor][]error
	calls   []models.Processor
	callAt  []time.Time
}

func (m *mockProcessors) Pay(_ context.Context, p models.Processor, _ models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, p)
	m.callAt = append(m.callAt, time.Now())

	script := m.scripts[p]
	if len(script) == 0 {
		return nil
	}
	err := script[0]
	if len(script) > 1 {
		m.scripts[p] = script[1:]
	}
	return err
}

func (m *mockProcessors) count(p models.Processor) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == p {
			n++
		}
	}
	return n
}

type mockPublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, payload)
	return nil
}

func (m *mockPublisher) jobs() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []models.Job
	for _, p := range m.published {
		job, err := models.DecodeJob(p)
		if err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// mockBroker delivers published payloads to its single subscription.
type mockBroker struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newMockBroker() *mockBroker {
	return &mockBroker{ch: make(chan []byte, 64), closed: make(chan struct{})}
}

func (m *mockBroker) Publish(_ context.Context, payload []byte) error {
	m.ch <- payload
	return nil
}

func (m *mockBroker) Subscribe(context.Context) (interfaces.Subscription, error) {
	return m, nil
}

func (m *mockBroker) Next(ctx context.Context) ([]byte, error) {
	select {
	case p := <-m.ch:
		return p, nil
	case <-m.closed:
		return nil, broker.ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockBroker) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
