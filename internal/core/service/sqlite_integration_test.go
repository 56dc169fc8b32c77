package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

func openSQLite(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.OpenSQLStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var errCreditFailed = errors.New("credit write failed")

// creditFailingStore fails the second SaveLine of every unit, which is the
// credit write of a transfer.
type creditFailingStore struct {
	*storage.SQLStore
}

func (s creditFailingStore) WithinTx(ctx context.Context, fn func(repo port.DatabaseRepository) error) error {
	return s.SQLStore.WithinTx(ctx, func(repo port.DatabaseRepository) error {
		return fn(&countingRepo{DatabaseRepository: repo})
	})
}

type countingRepo struct {
	port.DatabaseRepository
	saves int
}

func (r *countingRepo) SaveLine(ctx context.Context, line *domain.StockLine) error {
	r.saves++
	if r.saves == 2 {
		return errCreditFailed
	}
	return r.DatabaseRepository.SaveLine(ctx, line)
}

func TestSQLiteEngine_TransferConservesStock(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	facilities := service.NewFacilityService(store, domain.DeleteOrphan, service.Options{})
	inventory := service.NewInventoryService(store, service.Options{})

	a, _ := facilities.Create(ctx, domain.Facility{Name: "A", MaxCapacity: 40})
	b, _ := facilities.Create(ctx, domain.Facility{Name: "B", MaxCapacity: 40})
	line, err := inventory.AddStock(ctx, service.AddStockRequest{FacilityID: a.ID, SKU: "SQ-1", Name: "Square", Quantity: 30})
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	back, err := inventory.AddStock(ctx, service.AddStockRequest{FacilityID: b.ID, SKU: "sq-1", Name: "Square", Quantity: 10})
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := service.TransferRequest{LineID: line.ID, FromFacilityID: a.ID, ToFacilityID: b.ID, Quantity: 3}
			if i%2 == 1 {
				req = service.TransferRequest{LineID: back.ID, FromFacilityID: b.ID, ToFacilityID: a.ID, Quantity: 2}
			}
			if _, err := inventory.Transfer(ctx, req); err != nil && domain.KindOf(err) == nil {
				t.Errorf("unexpected internal error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	loadA, _ := facilities.CurrentLoad(ctx, a.ID)
	loadB, _ := facilities.CurrentLoad(ctx, b.ID)
	if loadA+loadB != 40 {
		t.Errorf("expected 40 units in total, got %d + %d", loadA, loadB)
	}
	if loadA > 40 || loadB > 40 {
		t.Errorf("facility over capacity: %d, %d", loadA, loadB)
	}
	total, _ := inventory.TotalQuantityBySKU(ctx, "SQ-1")
	if total != 40 {
		t.Errorf("expected sku total 40, got %d", total)
	}
}

func TestSQLiteEngine_FailedCreditRollsBack(t *testing.T) {
	sqlStore := openSQLite(t)
	ctx := context.Background()
	facilities := service.NewFacilityService(sqlStore, domain.DeleteOrphan, service.Options{})
	src, _ := facilities.Create(ctx, domain.Facility{Name: "Src", MaxCapacity: 100})
	dst, _ := facilities.Create(ctx, domain.Facility{Name: "Dst", MaxCapacity: 100})
	line, err := service.NewInventoryService(sqlStore, service.Options{}).
		AddStock(ctx, service.AddStockRequest{FacilityID: src.ID, SKU: "RB-1", Name: "Rollback", Quantity: 10, Inline: true})
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}

	inventory := service.NewInventoryService(creditFailingStore{sqlStore}, service.Options{})
	result, err := inventory.Transfer(ctx, service.TransferRequest{LineID: line.ID, FromFacilityID: src.ID, ToFacilityID: dst.ID, Quantity: 4})
	if !errors.Is(err, errCreditFailed) {
		t.Fatalf("expected credit failure, got %v", err)
	}
	if result.FailedStep != service.StepCredit || result.Debited {
		t.Errorf("expected rolled back credit failure, got %+v", result)
	}

	source, _ := sqlStore.GetLine(ctx, line.ID)
	if source == nil || source.Quantity != 10 {
		t.Errorf("expected source untouched at 10, got %+v", source)
	}
	dstLines, _ := sqlStore.LinesByFacility(ctx, dst.ID)
	if len(dstLines) != 0 {
		t.Errorf("expected no destination line, got %v", dstLines)
	}
}

func TestSQLiteEngine_RejectedAddLeavesNoProduct(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	facilities := service.NewFacilityService(store, domain.DeleteOrphan, service.Options{})
	inventory := service.NewInventoryService(store, service.Options{})
	catalog := service.NewCatalogService(store, service.Options{})

	f, _ := facilities.Create(ctx, domain.Facility{Name: "Tiny", MaxCapacity: 5})
	_, err := inventory.AddStock(ctx, service.AddStockRequest{FacilityID: f.ID, SKU: "BIG", Name: "Big", Quantity: 6})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if _, err := catalog.FindBySKU(ctx, "BIG"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected no product for a rejected add, got %v", err)
	}
}
