package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// ProductResolver converges repeated creates of one SKU onto a single catalog entry.
type ProductResolver struct {
	repo port.DatabaseRepository
}

func NewProductResolver(repo port.DatabaseRepository) *ProductResolver {
	return &ProductResolver{repo: repo}
}

// ResolveOrCreate returns the entry for sku, creating it when none exists. The first
// writer's metadata wins: description and category of later calls are discarded.
func (r *ProductResolver) ResolveOrCreate(ctx context.Context, sku, name, description, category string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	name = strings.TrimSpace(name)
	if sku == "" {
		return domain.Product{}, fmt.Errorf("%w: sku is required", domain.ErrInvalidArgument)
	}
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", domain.ErrInvalidArgument)
	}

	existing, err := r.repo.FindProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	product := domain.Product{
		SKU:         sku,
		Name:        name,
		Description: description,
		Category:    category,
	}
	if err := r.repo.SaveProduct(ctx, &product); err != nil {
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return product, nil
}
