package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// CapacityReport summarizes a facility's load.
type CapacityReport struct {
	FacilityID  int64
	MaxCapacity int
	Load        int
	Remaining   int
	// Utilization is load as a percentage of max capacity, two decimal places.
	Utilization decimal.Decimal
}

type FacilityService struct {
	base
	policy domain.DeletePolicy
}

func NewFacilityService(store port.DatabaseRepository, policy domain.DeletePolicy, opts Options) *FacilityService {
	if !policy.Valid() {
		policy = domain.DeleteOrphan
	}
	return &FacilityService{base: newBase(store, opts), policy: policy}
}

func (s *FacilityService) List(ctx context.Context) ([]domain.Facility, error) {
	facilities, err := s.store.ListFacilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	return facilities, nil
}

func (s *FacilityService) Get(ctx context.Context, id int64) (domain.Facility, error) {
	facility, err := s.store.GetFacility(ctx, id)
	if err != nil {
		return domain.Facility{}, fmt.Errorf("get facility: %w", err)
	}
	if facility == nil {
		return domain.Facility{}, fmt.Errorf("%w: facility %d", domain.ErrNotFound, id)
	}
	return *facility, nil
}

func (s *FacilityService) Create(ctx context.Context, facility domain.Facility) (created domain.Facility, err error) {
	ctx, span := s.start(ctx, "facility.create")
	defer func() { s.finish(span, "create_facility", err, zap.Int64("facility_id", created.ID)) }()

	facility.ID = 0
	if err := validateFacility(facility); err != nil {
		return domain.Facility{}, err
	}
	if err := s.store.SaveFacility(ctx, &facility); err != nil {
		return domain.Facility{}, fmt.Errorf("save facility: %w", err)
	}
	s.observeLoad(ctx, facility.ID)
	return facility, nil
}

// Update replaces a facility's attributes. Lowering max capacity below the current
// load is allowed; remaining capacity then reads zero.
func (s *FacilityService) Update(ctx context.Context, id int64, facility domain.Facility) (updated domain.Facility, err error) {
	ctx, span := s.start(ctx, "facility.update")
	span.SetAttributes(attribute.Int64("facility.id", id))
	defer func() { s.finish(span, "update_facility", err, zap.Int64("facility_id", id)) }()

	if err := validateFacility(facility); err != nil {
		return domain.Facility{}, err
	}
	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetFacility(ctx, id)
		if err != nil {
			return fmt.Errorf("get facility: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("%w: facility %d", domain.ErrNotFound, id)
		}
		facility.ID = id
		if err := e.repo.SaveFacility(ctx, &facility); err != nil {
			return fmt.Errorf("save facility: %w", err)
		}
		updated = facility
		return nil
	})
	if err != nil {
		return domain.Facility{}, err
	}
	s.observeLoad(ctx, id)
	return updated, nil
}

// Delete removes a facility according to the configured policy. Deleting a
// missing facility is a no-op.
func (s *FacilityService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := s.start(ctx, "facility.delete")
	span.SetAttributes(attribute.Int64("facility.id", id), attribute.String("facility.delete_policy", string(s.policy)))
	defer func() {
		s.finish(span, "delete_facility", err, zap.Int64("facility_id", id), zap.String("policy", string(s.policy)))
	}()

	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetFacility(ctx, id)
		if err != nil {
			return fmt.Errorf("get facility: %w", err)
		}
		if existing == nil {
			return nil
		}

		switch s.policy {
		case domain.DeleteBlock:
			lines, err := e.repo.LinesByFacility(ctx, id)
			if err != nil {
				return fmt.Errorf("list lines: %w", err)
			}
			if len(lines) > 0 {
				return fmt.Errorf("%w: facility %d still holds %d stock lines", domain.ErrStateConflict, id, len(lines))
			}
		case domain.DeleteCascade:
			if err := e.repo.DeleteLinesByFacility(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
		}

		if err := e.repo.DeleteFacility(ctx, id); err != nil {
			return fmt.Errorf("delete facility: %w", err)
		}
		return nil
	})
	if err == nil && s.opts.Metrics != nil {
		s.opts.Metrics.ForgetFacility(id)
	}
	return err
}

func (s *FacilityService) CurrentLoad(ctx context.Context, id int64) (int, error) {
	return NewCapacityLedger(s.store).CurrentLoad(ctx, id)
}

func (s *FacilityService) RemainingCapacity(ctx context.Context, id int64) (int, error) {
	return NewCapacityLedger(s.store).RemainingCapacity(ctx, id)
}

func (s *FacilityService) HasCapacityFor(ctx context.Context, id int64, additional int) (bool, error) {
	return NewAdmissionControl(NewCapacityLedger(s.store)).HasCapacityFor(ctx, id, additional)
}

// Report returns the load summary of an existing facility.
func (s *FacilityService) Report(ctx context.Context, id int64) (CapacityReport, error) {
	var report CapacityReport
	err := s.unit(ctx, func(e engine) error {
		facility, err := e.repo.GetFacility(ctx, id)
		if err != nil {
			return fmt.Errorf("get facility: %w", err)
		}
		if facility == nil {
			return fmt.Errorf("%w: facility %d", domain.ErrNotFound, id)
		}
		load, err := e.ledger.CurrentLoad(ctx, id)
		if err != nil {
			return err
		}
		report = CapacityReport{
			FacilityID:  id,
			MaxCapacity: facility.MaxCapacity,
			Load:        load,
			Remaining:   max(0, facility.MaxCapacity-load),
			Utilization: utilization(load, facility.MaxCapacity),
		}
		return nil
	})
	return report, err
}

func utilization(load, maxCapacity int) decimal.Decimal {
	if maxCapacity == 0 {
		if load > 0 {
			return decimal.NewFromInt(100)
		}
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(load)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(maxCapacity))).
		Round(2)
}

func validateFacility(f domain.Facility) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: facility name is required", domain.ErrInvalidArgument)
	}
	if f.MaxCapacity < 0 {
		return fmt.Errorf("%w: max capacity cannot be negative", domain.ErrInvalidArgument)
	}
	return nil
}
