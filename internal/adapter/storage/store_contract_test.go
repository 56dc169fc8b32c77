package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

type txStore interface {
	port.DatabaseRepository
	port.Transactor
}

// runStoreContract checks the repository behavior every backend must share.
// Backends may hold rows from earlier runs, so every case uses fresh ids and SKUs.
func runStoreContract(t *testing.T, newStore func(t *testing.T) txStore) {
	t.Run("facility lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		f := domain.Facility{Name: "North", Location: "Oslo", MaxCapacity: 100}
		if err := store.SaveFacility(ctx, &f); err != nil {
			t.Fatalf("SaveFacility failed: %v", err)
		}
		if f.ID == 0 {
			t.Fatal("expected generated id")
		}

		f.MaxCapacity = 250
		if err := store.SaveFacility(ctx, &f); err != nil {
			t.Fatalf("SaveFacility update failed: %v", err)
		}
		got, err := store.GetFacility(ctx, f.ID)
		if err != nil {
			t.Fatalf("GetFacility failed: %v", err)
		}
		if got == nil || got.MaxCapacity != 250 || got.Location != "Oslo" {
			t.Fatalf("unexpected facility %+v", got)
		}

		all, err := store.ListFacilities(ctx)
		if err != nil {
			t.Fatalf("ListFacilities failed: %v", err)
		}
		if !containsFacility(all, f.ID) {
			t.Errorf("facility %d missing from list", f.ID)
		}

		if err := store.DeleteFacility(ctx, f.ID); err != nil {
			t.Fatalf("DeleteFacility failed: %v", err)
		}
		got, err = store.GetFacility(ctx, f.ID)
		if err != nil {
			t.Fatalf("GetFacility failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected deleted facility to be absent, got %+v", got)
		}
	})

	t.Run("product lookup ignores sku case", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sku := "sku-" + uuid.NewString()[:8]
		p := domain.Product{SKU: sku, Name: "Bolt", Category: "hardware"}
		if err := store.SaveProduct(ctx, &p); err != nil {
			t.Fatalf("SaveProduct failed: %v", err)
		}

		found, err := store.FindProductBySKU(ctx, "  "+strings.ToUpper(sku)+" ")
		if err != nil {
			t.Fatalf("FindProductBySKU failed: %v", err)
		}
		if found == nil || found.ID != p.ID {
			t.Fatalf("expected product %d, got %+v", p.ID, found)
		}

		missing, err := store.FindProductBySKU(ctx, "nope-"+uuid.NewString())
		if err != nil {
			t.Fatalf("FindProductBySKU failed: %v", err)
		}
		if missing != nil {
			t.Errorf("expected nil, got %+v", missing)
		}

		dup := domain.Product{SKU: strings.ToUpper(sku), Name: "Other bolt"}
		if err := store.SaveProduct(ctx, &dup); !errors.Is(err, domain.ErrStateConflict) {
			t.Fatalf("expected a second product with sku %s to conflict, got %v", dup.SKU, err)
		}
		all, err := store.ListProducts(ctx)
		if err != nil {
			t.Fatalf("ListProducts failed: %v", err)
		}
		matches := 0
		for _, other := range all {
			if strings.EqualFold(other.SKU, sku) {
				matches++
			}
		}
		if matches != 1 {
			t.Errorf("expected one product for sku %s, got %d", sku, matches)
		}
	})

	t.Run("stock lines keep variants apart", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		f := domain.Facility{Name: "Lines", MaxCapacity: 1000}
		if err := store.SaveFacility(ctx, &f); err != nil {
			t.Fatalf("SaveFacility failed: %v", err)
		}
		sku := "line-" + uuid.NewString()[:8]
		p := domain.Product{SKU: sku, Name: "Widget"}
		if err := store.SaveProduct(ctx, &p); err != nil {
			t.Fatalf("SaveProduct failed: %v", err)
		}

		normalized := domain.StockLine{FacilityID: f.ID, Key: domain.ProductKey(p), Name: p.Name, Quantity: 5,
			StorageLocation: domain.StringPtr("A-1")}
		inline := domain.StockLine{FacilityID: f.ID, Key: domain.InlineKey(sku), Name: "Widget", Quantity: 7}
		for _, l := range []*domain.StockLine{&normalized, &inline} {
			if err := store.SaveLine(ctx, l); err != nil {
				t.Fatalf("SaveLine failed: %v", err)
			}
		}

		byProduct, err := store.FindLine(ctx, f.ID, domain.ProductKey(p))
		if err != nil {
			t.Fatalf("FindLine failed: %v", err)
		}
		if byProduct == nil || byProduct.ID != normalized.ID || byProduct.Location() != "A-1" {
			t.Fatalf("unexpected normalized line %+v", byProduct)
		}

		bySKU, err := store.FindLine(ctx, f.ID, domain.InlineKey(strings.ToUpper(sku)))
		if err != nil {
			t.Fatalf("FindLine failed: %v", err)
		}
		if bySKU == nil || bySKU.ID != inline.ID || bySKU.StorageLocation != nil {
			t.Fatalf("unexpected inline line %+v", bySKU)
		}

		lines, err := store.LinesByFacility(ctx, f.ID)
		if err != nil {
			t.Fatalf("LinesByFacility failed: %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}

		matching, err := store.LinesBySKU(ctx, strings.ToUpper(sku))
		if err != nil {
			t.Fatalf("LinesBySKU failed: %v", err)
		}
		if len(matching) != 2 {
			t.Errorf("expected 2 lines for sku, got %d", len(matching))
		}

		all, err := store.ListLines(ctx)
		if err != nil {
			t.Fatalf("ListLines failed: %v", err)
		}
		seen := map[int64]bool{}
		for _, l := range all {
			seen[l.ID] = true
		}
		if !seen[normalized.ID] || !seen[inline.ID] {
			t.Errorf("expected ListLines to include lines %d and %d", normalized.ID, inline.ID)
		}

		inline.Quantity = 0
		inline.StorageLocation = domain.StringPtr("B-2")
		if err := store.SaveLine(ctx, &inline); err != nil {
			t.Fatalf("SaveLine update failed: %v", err)
		}
		got, err := store.GetLine(ctx, inline.ID)
		if err != nil {
			t.Fatalf("GetLine failed: %v", err)
		}
		if got == nil || got.Quantity != 0 || got.Location() != "B-2" {
			t.Fatalf("unexpected line after update %+v", got)
		}

		if err := store.DeleteLine(ctx, normalized.ID); err != nil {
			t.Fatalf("DeleteLine failed: %v", err)
		}
		if err := store.DeleteLinesByFacility(ctx, f.ID); err != nil {
			t.Fatalf("DeleteLinesByFacility failed: %v", err)
		}
		lines, _ = store.LinesByFacility(ctx, f.ID)
		if len(lines) != 0 {
			t.Errorf("expected no lines left, got %d", len(lines))
		}
	})

	t.Run("unit of work rolls back on error", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var created int64
		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(repo port.DatabaseRepository) error {
			f := domain.Facility{Name: "Ghost", MaxCapacity: 1}
			if err := repo.SaveFacility(ctx, &f); err != nil {
				return err
			}
			created = f.ID
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		got, err := store.GetFacility(ctx, created)
		if err != nil {
			t.Fatalf("GetFacility failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected rolled back facility to be absent, got %+v", got)
		}
	})

	t.Run("unit of work commits", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var f domain.Facility
		err := store.WithinTx(ctx, func(repo port.DatabaseRepository) error {
			f = domain.Facility{Name: "Kept", MaxCapacity: 10}
			if err := repo.SaveFacility(ctx, &f); err != nil {
				return err
			}
			line := domain.StockLine{FacilityID: f.ID, Key: domain.InlineKey("kept"), Name: "Kept", Quantity: 3}
			return repo.SaveLine(ctx, &line)
		})
		if err != nil {
			t.Fatalf("WithinTx failed: %v", err)
		}
		lines, err := store.LinesByFacility(ctx, f.ID)
		if err != nil {
			t.Fatalf("LinesByFacility failed: %v", err)
		}
		if len(lines) != 1 || lines[0].Quantity != 3 {
			t.Errorf("expected committed line, got %+v", lines)
		}
	})
}

func containsFacility(all []domain.Facility, id int64) bool {
	for _, f := range all {
		if f.ID == id {
			return true
		}
	}
	return false
}
