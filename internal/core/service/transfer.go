package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// TransferStep names a stage of the transfer state machine.
type TransferStep string

const (
	StepValidate    TransferStep = "validate"
	StepMembership  TransferStep = "source_membership"
	StepSufficiency TransferStep = "sufficiency"
	StepAdmission   TransferStep = "destination_admission"
	StepDebit       TransferStep = "debit"
	StepCredit      TransferStep = "credit"
)

type TransferRequest struct {
	// RequestID deduplicates retries when an idempotency cache is configured.
	RequestID      string
	LineID         int64
	FromFacilityID int64
	ToFacilityID   int64
	Quantity       int
}

// TransferResult is the outcome of one transfer. FailedStep is empty on success.
// Debited reports that the debit was persisted; on a non-transactional store a
// credit failure leaves it in place.
type TransferResult struct {
	Source      domain.StockLine
	Destination domain.StockLine
	FailedStep  TransferStep
	Debited     bool
}

func (r TransferResult) Completed() bool {
	return r.FailedStep == ""
}

// TransferCoordinator moves quantity of one stock line to another facility as a
// debit followed by a credit. All checks run before the first write.
type TransferCoordinator struct {
	repo      port.DatabaseRepository
	admission *AdmissionControl
	merger    *LineMerger
}

func NewTransferCoordinator(repo port.DatabaseRepository, admission *AdmissionControl, merger *LineMerger) *TransferCoordinator {
	return &TransferCoordinator{repo: repo, admission: admission, merger: merger}
}

func (c *TransferCoordinator) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	var result TransferResult
	fail := func(step TransferStep, err error) (TransferResult, error) {
		result.FailedStep = step
		return result, err
	}

	if req.Quantity <= 0 {
		return fail(StepValidate, fmt.Errorf("%w: transfer quantity must be positive", domain.ErrInvalidArgument))
	}
	source, err := c.repo.GetLine(ctx, req.LineID)
	if err != nil {
		return fail(StepValidate, fmt.Errorf("get line: %w", err))
	}
	if source == nil {
		return fail(StepValidate, fmt.Errorf("%w: stock line %d", domain.ErrNotFound, req.LineID))
	}
	result.Source = *source

	from, err := c.repo.GetFacility(ctx, req.FromFacilityID)
	if err != nil {
		return fail(StepValidate, fmt.Errorf("get facility: %w", err))
	}
	to, err := c.repo.GetFacility(ctx, req.ToFacilityID)
	if err != nil {
		return fail(StepValidate, fmt.Errorf("get facility: %w", err))
	}
	if from == nil || to == nil {
		return fail(StepValidate, fmt.Errorf("%w: source or destination facility", domain.ErrNotFound))
	}

	if source.FacilityID != from.ID {
		return fail(StepMembership, fmt.Errorf("%w: line %d is not in source facility %d",
			domain.ErrStateConflict, source.ID, from.ID))
	}
	if source.Quantity < req.Quantity {
		return fail(StepSufficiency, fmt.Errorf("%w: insufficient quantity: have %d, requested %d",
			domain.ErrStateConflict, source.Quantity, req.Quantity))
	}

	ok, err := c.admission.HasCapacityFor(ctx, to.ID, req.Quantity)
	if err != nil {
		return fail(StepAdmission, err)
	}
	if !ok {
		return fail(StepAdmission, fmt.Errorf("%w: destination facility %d cannot hold %d more",
			domain.ErrCapacityExceeded, to.ID, req.Quantity))
	}

	// Lines are kept at zero so the location stays on record.
	source.Quantity -= req.Quantity
	if err := c.repo.SaveLine(ctx, source); err != nil {
		return fail(StepDebit, fmt.Errorf("save debit: %w", err))
	}
	result.Source = *source
	result.Debited = true

	existing, err := c.repo.FindLine(ctx, to.ID, source.Key)
	if err != nil {
		return fail(StepCredit, fmt.Errorf("find line: %w", err))
	}
	var location *string
	if existing == nil && source.StorageLocation != nil {
		location = domain.StringPtr(*source.StorageLocation)
	}
	dest, err := c.merger.Upsert(ctx, to.ID, source.Key, source.Name, req.Quantity, location)
	if err != nil {
		return fail(StepCredit, err)
	}
	result.Destination = dest
	return result, nil
}
