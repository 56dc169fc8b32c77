package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Lookups by ID return (nil, nil) when the record does not exist.
type FacilityRepository interface {
	GetFacility(ctx context.Context, id int64) (*domain.Facility, error)
	ListFacilities(ctx context.Context) ([]domain.Facility, error)
	// SaveFacility inserts when ID is zero (assigning it) and updates otherwise
	SaveFacility(ctx context.Context, facility *domain.Facility) error
	DeleteFacility(ctx context.Context, id int64) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// FindProductBySKU matches case-insensitively
	FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	SaveProduct(ctx context.Context, product *domain.Product) error
}

type StockLineRepository interface {
	GetLine(ctx context.Context, id int64) (*domain.StockLine, error)
	ListLines(ctx context.Context) ([]domain.StockLine, error)
	LinesByFacility(ctx context.Context, facilityID int64) ([]domain.StockLine, error)
	// LinesBySKU returns lines of both ledgers whose SKU matches case-insensitively
	LinesBySKU(ctx context.Context, sku string) ([]domain.StockLine, error)
	// FindLine returns the line holding key in the facility, using CatalogKey equality
	FindLine(ctx context.Context, facilityID int64, key domain.CatalogKey) (*domain.StockLine, error)
	SaveLine(ctx context.Context, line *domain.StockLine) error
	DeleteLine(ctx context.Context, id int64) error
	DeleteLinesByFacility(ctx context.Context, facilityID int64) error
}

// DatabaseRepository is the durable store. Each call is independently durable.
type DatabaseRepository interface {
	FacilityRepository
	ProductRepository
	StockLineRepository
}

// Transactor is implemented by stores that can run several calls as one unit of work.
// fn receives a repository bound to the unit; returning an error discards all of its writes.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repo DatabaseRepository) error) error
}
