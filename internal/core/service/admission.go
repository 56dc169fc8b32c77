package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// AdmissionControl gates quantity-increasing mutations against facility capacity.
type AdmissionControl struct {
	ledger *CapacityLedger
}

func NewAdmissionControl(ledger *CapacityLedger) *AdmissionControl {
	return &AdmissionControl{ledger: ledger}
}

// HasCapacityFor reports whether additional units fit in the remaining capacity.
func (a *AdmissionControl) HasCapacityFor(ctx context.Context, facilityID int64, additional int) (bool, error) {
	if additional < 0 {
		return false, fmt.Errorf("%w: additional quantity cannot be negative", domain.ErrInvalidArgument)
	}
	remaining, err := a.ledger.RemainingCapacity(ctx, facilityID)
	if err != nil {
		return false, err
	}
	return additional <= remaining, nil
}

// CheckProjectedLoad validates replacing a line's quantity: the facility load without
// the line's current contribution plus newQuantity must stay within max capacity.
func (a *AdmissionControl) CheckProjectedLoad(ctx context.Context, facility domain.Facility, existingQuantity, newQuantity int) error {
	load, err := a.ledger.CurrentLoad(ctx, facility.ID)
	if err != nil {
		return err
	}
	projected := load - existingQuantity + newQuantity
	if projected > facility.MaxCapacity {
		return fmt.Errorf("%w: projected load %d exceeds capacity %d of facility %d",
			domain.ErrCapacityExceeded, projected, facility.MaxCapacity, facility.ID)
	}
	return nil
}
