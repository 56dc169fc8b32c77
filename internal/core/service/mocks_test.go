package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	idempotencySet map[string]bool
	cleared        []string
	setErr         error
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return false, m.setErr
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	m.cleared = append(m.cleared, key)
	return nil
}

// Mock EventPublisher
type mockPublisher struct {
	events []domain.StockEvent
	err    error
	mu     sync.Mutex
}

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockPublisher) types() []domain.StockEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StockEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// Mock Metrics
type mockMetrics struct {
	outcomes  map[string]int
	loads     map[int64]int
	forgotten []int64
	mu        sync.Mutex
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{outcomes: map[string]int{}, loads: map[int64]int{}}
}

func (m *mockMetrics) ObserveOperation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[operation+"/"+outcome]++
}

func (m *mockMetrics) ObserveLoad(facilityID int64, load, maxCapacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[facilityID] = load
}

func (m *mockMetrics) ForgetFacility(facilityID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loads, facilityID)
	m.forgotten = append(m.forgotten, facilityID)
}

var errInjected = errors.New("injected storage failure")

// flakyRepo fails the nth SaveLine call. Embedding the interface hides any
// Transactor implementation of the wrapped store.
type flakyRepo struct {
	port.DatabaseRepository
	failOnSave int
	saves      int
}

func (f *flakyRepo) SaveLine(ctx context.Context, line *domain.StockLine) error {
	f.saves++
	if f.saves == f.failOnSave {
		return errInjected
	}
	return f.DatabaseRepository.SaveLine(ctx, line)
}

// flakyTxStore runs units on a memory store but fails the nth SaveLine inside
// each unit.
type flakyTxStore struct {
	*storage.MemoryStore
	failOnSave int
}

func (f *flakyTxStore) WithinTx(ctx context.Context, fn func(repo port.DatabaseRepository) error) error {
	return f.MemoryStore.WithinTx(ctx, func(repo port.DatabaseRepository) error {
		return fn(&flakyRepo{DatabaseRepository: repo, failOnSave: f.failOnSave})
	})
}

// seed creates a facility holding the given inline lines.
func seed(t interface{ Fatalf(string, ...any) }, store port.DatabaseRepository, capacity int, lines map[string]int) (domain.Facility, map[string]domain.StockLine) {
	ctx := context.Background()
	f := domain.Facility{Name: "seeded", MaxCapacity: capacity}
	if err := store.SaveFacility(ctx, &f); err != nil {
		t.Fatalf("seed facility: %v", err)
	}
	out := make(map[string]domain.StockLine, len(lines))
	for sku, qty := range lines {
		l := domain.StockLine{FacilityID: f.ID, Key: domain.InlineKey(sku), Name: sku, Quantity: qty}
		if err := store.SaveLine(ctx, &l); err != nil {
			t.Fatalf("seed line: %v", err)
		}
		out[sku] = l
	}
	return f, out
}
