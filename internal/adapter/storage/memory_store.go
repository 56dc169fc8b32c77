package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var (
	_ port.DatabaseRepository = (*MemoryStore)(nil)
	_ port.Transactor         = (*MemoryStore)(nil)
)

// MemoryStore keeps all records in process. Units of work run against a copy of
// the state and replace it on success, so they are serialized and all-or-nothing.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

type memoryState struct {
	facilities map[int64]domain.Facility
	products   map[int64]domain.Product
	lines      map[int64]domain.StockLine
	lastID     int64
}

func newMemoryState() memoryState {
	return memoryState{
		facilities: make(map[int64]domain.Facility),
		products:   make(map[int64]domain.Product),
		lines:      make(map[int64]domain.StockLine),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		facilities: make(map[int64]domain.Facility, len(s.facilities)),
		products:   make(map[int64]domain.Product, len(s.products)),
		lines:      make(map[int64]domain.StockLine, len(s.lines)),
		lastID:     s.lastID,
	}
	for id, f := range s.facilities {
		cp.facilities[id] = f
	}
	for id, p := range s.products {
		cp.products[id] = p
	}
	for id, l := range s.lines {
		cp.lines[id] = cloneLine(l)
	}
	return cp
}

func cloneLine(l domain.StockLine) domain.StockLine {
	if l.StorageLocation != nil {
		l.StorageLocation = domain.StringPtr(*l.StorageLocation)
	}
	return l
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(repo port.DatabaseRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&stateRepo{state: &working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *MemoryStore) read() *stateRepo {
	return &stateRepo{state: &s.state}
}

func (s *MemoryStore) GetFacility(ctx context.Context, id int64) (*domain.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetFacility(ctx, id)
}

func (s *MemoryStore) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListFacilities(ctx)
}

func (s *MemoryStore) SaveFacility(ctx context.Context, facility *domain.Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveFacility(ctx, facility)
}

func (s *MemoryStore) DeleteFacility(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteFacility(ctx, id)
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetProduct(ctx, id)
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListProducts(ctx)
}

func (s *MemoryStore) FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindProductBySKU(ctx, sku)
}

func (s *MemoryStore) SaveProduct(ctx context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveProduct(ctx, product)
}

func (s *MemoryStore) GetLine(ctx context.Context, id int64) (*domain.StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetLine(ctx, id)
}

func (s *MemoryStore) ListLines(ctx context.Context) ([]domain.StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListLines(ctx)
}

func (s *MemoryStore) LinesByFacility(ctx context.Context, facilityID int64) ([]domain.StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LinesByFacility(ctx, facilityID)
}

func (s *MemoryStore) LinesBySKU(ctx context.Context, sku string) ([]domain.StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LinesBySKU(ctx, sku)
}

func (s *MemoryStore) FindLine(ctx context.Context, facilityID int64, key domain.CatalogKey) (*domain.StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindLine(ctx, facilityID, key)
}

func (s *MemoryStore) SaveLine(ctx context.Context, line *domain.StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveLine(ctx, line)
}

func (s *MemoryStore) DeleteLine(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteLine(ctx, id)
}

func (s *MemoryStore) DeleteLinesByFacility(ctx context.Context, facilityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteLinesByFacility(ctx, facilityID)
}

// stateRepo implements the repository over a state value without locking.
type stateRepo struct {
	state *memoryState
}

func (r *stateRepo) nextID() int64 {
	r.state.lastID++
	return r.state.lastID
}

func (r *stateRepo) GetFacility(_ context.Context, id int64) (*domain.Facility, error) {
	f, ok := r.state.facilities[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r *stateRepo) ListFacilities(_ context.Context) ([]domain.Facility, error) {
	out := make([]domain.Facility, 0, len(r.state.facilities))
	for _, f := range r.state.facilities {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b domain.Facility) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *stateRepo) SaveFacility(_ context.Context, facility *domain.Facility) error {
	if facility.ID == 0 {
		facility.ID = r.nextID()
	}
	r.state.facilities[facility.ID] = *facility
	return nil
}

func (r *stateRepo) DeleteFacility(_ context.Context, id int64) error {
	delete(r.state.facilities, id)
	return nil
}

func (r *stateRepo) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := r.state.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *stateRepo) ListProducts(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(r.state.products))
	for _, p := range r.state.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *stateRepo) FindProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	sku = strings.TrimSpace(sku)
	var found *domain.Product
	for _, p := range r.state.products {
		if strings.EqualFold(p.SKU, sku) && (found == nil || p.ID < found.ID) {
			found = &p
		}
	}
	return found, nil
}

func (r *stateRepo) SaveProduct(_ context.Context, product *domain.Product) error {
	for _, p := range r.state.products {
		if p.ID != product.ID && strings.EqualFold(p.SKU, strings.TrimSpace(product.SKU)) {
			return fmt.Errorf("%w: product sku %q already exists", domain.ErrStateConflict, product.SKU)
		}
	}
	if product.ID == 0 {
		product.ID = r.nextID()
	}
	r.state.products[product.ID] = *product
	return nil
}

func (r *stateRepo) GetLine(_ context.Context, id int64) (*domain.StockLine, error) {
	l, ok := r.state.lines[id]
	if !ok {
		return nil, nil
	}
	l = cloneLine(l)
	return &l, nil
}

func (r *stateRepo) ListLines(_ context.Context) ([]domain.StockLine, error) {
	return r.filterLines(func(domain.StockLine) bool { return true }), nil
}

func (r *stateRepo) LinesByFacility(_ context.Context, facilityID int64) ([]domain.StockLine, error) {
	return r.filterLines(func(l domain.StockLine) bool { return l.FacilityID == facilityID }), nil
}

func (r *stateRepo) LinesBySKU(_ context.Context, sku string) ([]domain.StockLine, error) {
	sku = strings.TrimSpace(sku)
	return r.filterLines(func(l domain.StockLine) bool { return strings.EqualFold(l.Key.SKU, sku) }), nil
}

func (r *stateRepo) FindLine(_ context.Context, facilityID int64, key domain.CatalogKey) (*domain.StockLine, error) {
	lines := r.filterLines(func(l domain.StockLine) bool {
		return l.FacilityID == facilityID && l.Key.Equal(key)
	})
	if len(lines) == 0 {
		return nil, nil
	}
	return &lines[0], nil
}

func (r *stateRepo) SaveLine(_ context.Context, line *domain.StockLine) error {
	if line.ID == 0 {
		line.ID = r.nextID()
	}
	r.state.lines[line.ID] = cloneLine(*line)
	return nil
}

func (r *stateRepo) DeleteLine(_ context.Context, id int64) error {
	delete(r.state.lines, id)
	return nil
}

func (r *stateRepo) DeleteLinesByFacility(_ context.Context, facilityID int64) error {
	for id, l := range r.state.lines {
		if l.FacilityID == facilityID {
			delete(r.state.lines, id)
		}
	}
	return nil
}

func (r *stateRepo) filterLines(keep func(domain.StockLine) bool) []domain.StockLine {
	out := make([]domain.StockLine, 0)
	for _, l := range r.state.lines {
		if keep(l) {
			out = append(out, cloneLine(l))
		}
	}
	slices.SortFunc(out, func(a, b domain.StockLine) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
