package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

type CatalogService struct {
	base
}

func NewCatalogService(store port.DatabaseRepository, opts Options) *CatalogService {
	return &CatalogService{base: newBase(store, opts)}
}

func (s *CatalogService) ResolveOrCreate(ctx context.Context, sku, name, description, category string) (product domain.Product, err error) {
	ctx, span := s.start(ctx, "catalog.resolve_or_create")
	defer func() {
		s.finish(span, "resolve_product", err, zap.String("sku", sku), zap.Int64("product_id", product.ID))
	}()

	err = s.unit(ctx, func(e engine) error {
		var err error
		product, err = e.resolver.ResolveOrCreate(ctx, sku, name, description, category)
		return err
	})
	return product, err
}

func (s *CatalogService) List(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return domain.Product{}, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	return *product, nil
}

func (s *CatalogService) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, fmt.Errorf("%w: product with blank sku", domain.ErrNotFound)
	}
	product, err := s.store.FindProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	if product == nil {
		return domain.Product{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, sku)
	}
	return *product, nil
}
