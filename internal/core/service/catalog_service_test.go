package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/core/domain"
)

func TestCatalogService(t *testing.T) {
	svc := NewCatalogService(storage.NewMemoryStore(), Options{})
	ctx := context.Background()

	p, err := svc.ResolveOrCreate(ctx, "  cb-1 ", "Cable", "USB-C", "electronics")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.SKU != "cb-1" {
		t.Errorf("expected trimmed sku, got %q", p.SKU)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil || got != p {
		t.Errorf("expected %+v, got %+v %v", p, got, err)
	}
	bySKU, err := svc.FindBySKU(ctx, "CB-1")
	if err != nil || bySKU.ID != p.ID {
		t.Errorf("expected case-insensitive lookup, got %+v %v", bySKU, err)
	}

	if _, err := svc.Get(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.FindBySKU(ctx, " "); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected blank sku to be not found, got %v", err)
	}
	if _, err := svc.FindBySKU(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	all, _ := svc.List(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 product, got %d", len(all))
	}
}
