package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stockroom/internal/port"
)

// CapacityLedger derives a facility's load from its stock lines.
type CapacityLedger struct {
	repo port.DatabaseRepository
}

func NewCapacityLedger(repo port.DatabaseRepository) *CapacityLedger {
	return &CapacityLedger{repo: repo}
}

// CurrentLoad sums the quantity of every line in the facility. Unknown facilities
// have a load of zero.
func (l *CapacityLedger) CurrentLoad(ctx context.Context, facilityID int64) (int, error) {
	facility, err := l.repo.GetFacility(ctx, facilityID)
	if err != nil {
		return 0, fmt.Errorf("get facility: %w", err)
	}
	if facility == nil {
		return 0, nil
	}
	return l.sumLines(ctx, facilityID)
}

// RemainingCapacity is max(0, max_capacity - load), and zero for unknown facilities.
func (l *CapacityLedger) RemainingCapacity(ctx context.Context, facilityID int64) (int, error) {
	facility, err := l.repo.GetFacility(ctx, facilityID)
	if err != nil {
		return 0, fmt.Errorf("get facility: %w", err)
	}
	if facility == nil {
		return 0, nil
	}
	load, err := l.sumLines(ctx, facilityID)
	if err != nil {
		return 0, err
	}
	return max(0, facility.MaxCapacity-load), nil
}

func (l *CapacityLedger) sumLines(ctx context.Context, facilityID int64) (int, error) {
	lines, err := l.repo.LinesByFacility(ctx, facilityID)
	if err != nil {
		return 0, fmt.Errorf("list lines: %w", err)
	}
	load := 0
	for _, line := range lines {
		load += line.Quantity
	}
	return load, nil
}
