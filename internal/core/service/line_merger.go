package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// LineMerger is the only path that creates stock lines. Merging on write keeps one
// line per (facility, catalog key).
type LineMerger struct {
	repo port.DatabaseRepository
}

func NewLineMerger(repo port.DatabaseRepository) *LineMerger {
	return &LineMerger{repo: repo}
}

// Upsert adds delta to the facility's line for key, creating it when absent. A nil
// location leaves an existing line's location untouched.
func (m *LineMerger) Upsert(ctx context.Context, facilityID int64, key domain.CatalogKey, name string, delta int, location *string) (domain.StockLine, error) {
	line, err := m.repo.FindLine(ctx, facilityID, key)
	if err != nil {
		return domain.StockLine{}, fmt.Errorf("find line: %w", err)
	}

	if line != nil {
		line.Quantity += delta
		if location != nil {
			line.StorageLocation = location
		}
	} else {
		line = &domain.StockLine{
			FacilityID:      facilityID,
			Key:             key,
			Name:            name,
			Quantity:        delta,
			StorageLocation: location,
		}
	}

	if err := m.repo.SaveLine(ctx, line); err != nil {
		return domain.StockLine{}, fmt.Errorf("save line: %w", err)
	}
	return *line, nil
}

// Replace overwrites a line's quantity and location. Unlike Upsert, a nil location
// clears it.
func (m *LineMerger) Replace(ctx context.Context, lineID int64, newQuantity int, newLocation *string) (domain.StockLine, error) {
	line, err := m.repo.GetLine(ctx, lineID)
	if err != nil {
		return domain.StockLine{}, fmt.Errorf("get line: %w", err)
	}
	if line == nil {
		return domain.StockLine{}, fmt.Errorf("%w: stock line %d", domain.ErrNotFound, lineID)
	}
	if newQuantity < 0 {
		return domain.StockLine{}, fmt.Errorf("%w: quantity cannot be negative", domain.ErrInvalidArgument)
	}

	line.Quantity = newQuantity
	line.StorageLocation = newLocation
	if err := m.repo.SaveLine(ctx, line); err != nil {
		return domain.StockLine{}, fmt.Errorf("save line: %w", err)
	}
	return *line, nil
}
