package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var ErrDuplicateRequest = fmt.Errorf("%w: duplicate request", domain.ErrStateConflict)

type AddStockRequest struct {
	FacilityID  int64
	SKU         string
	Name        string
	Description string
	Category    string
	Quantity    int
	// StorageLocation nil keeps the location of an existing line.
	StorageLocation *string
	// Inline stores SKU and name on the line instead of resolving a catalog entry.
	Inline bool
}

// LinePatch holds optional new values; nil fields keep the current value.
type LinePatch struct {
	Name            *string
	SKU             *string
	Quantity        *int
	StorageLocation *string
}

// LineReplacement is a full update of a stock line. A zero FacilityID keeps the
// line where it is; a nil StorageLocation clears it.
type LineReplacement struct {
	FacilityID      int64
	Name            string
	SKU             string
	Quantity        *int
	StorageLocation *string
}

type InventoryService struct {
	base
}

func NewInventoryService(store port.DatabaseRepository, opts Options) *InventoryService {
	return &InventoryService{base: newBase(store, opts)}
}

// AddStock merges quantity into the facility's line for the requested catalog key,
// creating the line (and, for catalog-backed stock, the product) when needed.
func (s *InventoryService) AddStock(ctx context.Context, req AddStockRequest) (line domain.StockLine, err error) {
	ctx, span := s.start(ctx, "inventory.add_stock")
	span.SetAttributes(
		attribute.Int64("facility.id", req.FacilityID),
		attribute.String("stock.sku", req.SKU),
		attribute.Int("stock.quantity", req.Quantity),
	)
	defer func() {
		s.finish(span, "add_stock", err,
			zap.Int64("facility_id", req.FacilityID), zap.String("sku", req.SKU),
			zap.Int("quantity", req.Quantity), zap.Int64("line_id", line.ID))
	}()

	err = s.unit(ctx, func(e engine) error {
		facility, err := e.repo.GetFacility(ctx, req.FacilityID)
		if err != nil {
			return fmt.Errorf("get facility: %w", err)
		}
		if facility == nil {
			return fmt.Errorf("%w: facility %d", domain.ErrNotFound, req.FacilityID)
		}
		if req.Quantity < 0 {
			return fmt.Errorf("%w: quantity cannot be negative", domain.ErrInvalidArgument)
		}
		ok, err := e.admission.HasCapacityFor(ctx, facility.ID, req.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: facility %d cannot hold %d more", domain.ErrCapacityExceeded, facility.ID, req.Quantity)
		}

		key, name, err := s.catalogKey(ctx, e, req)
		if err != nil {
			return err
		}
		line, err = e.merger.Upsert(ctx, facility.ID, key, name, req.Quantity, req.StorageLocation)
		return err
	})
	if err != nil {
		return domain.StockLine{}, err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockAdded, LineID: line.ID, FacilityID: line.FacilityID,
		SKU: line.Key.SKU, Quantity: req.Quantity,
	})
	s.observeLoad(ctx, line.FacilityID)
	return line, nil
}

func (s *InventoryService) catalogKey(ctx context.Context, e engine, req AddStockRequest) (domain.CatalogKey, string, error) {
	if !req.Inline {
		product, err := e.resolver.ResolveOrCreate(ctx, req.SKU, req.Name, req.Description, req.Category)
		if err != nil {
			return domain.CatalogKey{}, "", err
		}
		return domain.ProductKey(product), product.Name, nil
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CatalogKey{}, "", fmt.Errorf("%w: item name is required", domain.ErrInvalidArgument)
	}
	key := domain.InlineKey(req.SKU)
	if key.SKU == "" {
		return domain.CatalogKey{}, "", fmt.Errorf("%w: item sku is required", domain.ErrInvalidArgument)
	}
	return key, name, nil
}

// UpdateLine sets a line's quantity and location. A nil location clears it.
func (s *InventoryService) UpdateLine(ctx context.Context, lineID int64, quantity int, location *string) (line domain.StockLine, err error) {
	ctx, span := s.start(ctx, "inventory.update_line")
	span.SetAttributes(attribute.Int64("line.id", lineID), attribute.Int("stock.quantity", quantity))
	defer func() {
		s.finish(span, "update_line", err, zap.Int64("line_id", lineID), zap.Int("quantity", quantity))
	}()

	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("%w: stock line %d", domain.ErrNotFound, lineID)
		}
		if quantity < 0 {
			return fmt.Errorf("%w: quantity cannot be negative", domain.ErrInvalidArgument)
		}
		if err := s.checkProjected(ctx, e, *existing, quantity); err != nil {
			return err
		}
		line, err = e.merger.Replace(ctx, lineID, quantity, location)
		return err
	})
	if err != nil {
		return domain.StockLine{}, err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockUpdated, LineID: line.ID, FacilityID: line.FacilityID,
		SKU: line.Key.SKU, Quantity: line.Quantity,
	})
	s.observeLoad(ctx, line.FacilityID)
	return line, nil
}

// checkProjected runs the replace-path capacity check. Lines whose facility was
// deleted have no capacity to check against.
func (s *InventoryService) checkProjected(ctx context.Context, e engine, line domain.StockLine, quantity int) error {
	facility, err := e.repo.GetFacility(ctx, line.FacilityID)
	if err != nil {
		return fmt.Errorf("get facility: %w", err)
	}
	if facility == nil {
		return nil
	}
	return e.admission.CheckProjectedLoad(ctx, *facility, line.Quantity, quantity)
}

// ReplaceLine overwrites every field of a line and may move it to another
// facility. The projected-load check runs against the facility the line ends up in.
func (s *InventoryService) ReplaceLine(ctx context.Context, lineID int64, req LineReplacement) (line domain.StockLine, err error) {
	ctx, span := s.start(ctx, "inventory.replace_line")
	span.SetAttributes(attribute.Int64("line.id", lineID), attribute.Int64("facility.id", req.FacilityID))
	defer func() {
		s.finish(span, "replace_line", err,
			zap.Int64("line_id", lineID), zap.Int64("facility_id", line.FacilityID))
	}()

	var from int64
	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("%w: stock line %d", domain.ErrNotFound, lineID)
		}
		from = existing.FacilityID

		name := strings.TrimSpace(req.Name)
		if name == "" {
			return fmt.Errorf("%w: item name is required", domain.ErrInvalidArgument)
		}
		key := domain.InlineKey(req.SKU)
		if key.SKU == "" {
			return fmt.Errorf("%w: item sku is required", domain.ErrInvalidArgument)
		}
		if req.Quantity == nil {
			return fmt.Errorf("%w: item quantity is required", domain.ErrInvalidArgument)
		}
		if *req.Quantity < 0 {
			return fmt.Errorf("%w: item quantity cannot be negative", domain.ErrInvalidArgument)
		}
		if !existing.Key.Inline() {
			if !strings.EqualFold(key.SKU, existing.Key.SKU) || name != existing.Name {
				return fmt.Errorf("%w: name and sku of a catalog-backed line are owned by its product", domain.ErrInvalidArgument)
			}
			key = existing.Key
		}

		target := existing.FacilityID
		if req.FacilityID != 0 {
			target = req.FacilityID
		}
		var facility *domain.Facility
		if target != existing.FacilityID {
			facility, err = e.repo.GetFacility(ctx, target)
			if err != nil {
				return fmt.Errorf("get facility: %w", err)
			}
			if facility == nil {
				return fmt.Errorf("%w: facility %d", domain.ErrNotFound, target)
			}
		}

		clash, err := e.repo.FindLine(ctx, target, key)
		if err != nil {
			return fmt.Errorf("find line: %w", err)
		}
		if clash != nil && clash.ID != existing.ID {
			return fmt.Errorf("%w: facility %d already holds sku %s in line %d",
				domain.ErrStateConflict, target, key.SKU, clash.ID)
		}

		// a moved line adds its whole quantity to the target
		if facility != nil {
			if err := e.admission.CheckProjectedLoad(ctx, *facility, 0, *req.Quantity); err != nil {
				return err
			}
		} else if err := s.checkProjected(ctx, e, *existing, *req.Quantity); err != nil {
			return err
		}

		updated := domain.StockLine{
			ID:              existing.ID,
			FacilityID:      target,
			Key:             key,
			Name:            name,
			Quantity:        *req.Quantity,
			StorageLocation: req.StorageLocation,
		}
		if err := e.repo.SaveLine(ctx, &updated); err != nil {
			return fmt.Errorf("save line: %w", err)
		}
		line = updated
		return nil
	})
	if err != nil {
		return domain.StockLine{}, err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockUpdated, LineID: line.ID, FacilityID: line.FacilityID,
		SKU: line.Key.SKU, Quantity: line.Quantity,
	})
	s.observeLoad(ctx, line.FacilityID)
	if from != line.FacilityID {
		s.observeLoad(ctx, from)
	}
	return line, nil
}

// PatchLine applies a partial update. Name and SKU can only be changed on inline
// lines; catalog-backed lines take them from their product.
func (s *InventoryService) PatchLine(ctx context.Context, lineID int64, patch LinePatch) (line domain.StockLine, err error) {
	ctx, span := s.start(ctx, "inventory.patch_line")
	span.SetAttributes(attribute.Int64("line.id", lineID))
	defer func() {
		s.finish(span, "patch_line", err, zap.Int64("line_id", lineID))
	}()

	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("%w: stock line %d", domain.ErrNotFound, lineID)
		}
		updated := *existing

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return fmt.Errorf("%w: item name cannot be blank", domain.ErrInvalidArgument)
			}
			if !existing.Key.Inline() {
				return fmt.Errorf("%w: name of a catalog-backed line is owned by its product", domain.ErrInvalidArgument)
			}
			updated.Name = name
		}
		if patch.SKU != nil {
			key := domain.InlineKey(*patch.SKU)
			if key.SKU == "" {
				return fmt.Errorf("%w: item sku cannot be blank", domain.ErrInvalidArgument)
			}
			if !existing.Key.Inline() {
				return fmt.Errorf("%w: sku of a catalog-backed line is owned by its product", domain.ErrInvalidArgument)
			}
			clash, err := e.repo.FindLine(ctx, existing.FacilityID, key)
			if err != nil {
				return fmt.Errorf("find line: %w", err)
			}
			if clash != nil && clash.ID != existing.ID {
				return fmt.Errorf("%w: facility %d already holds sku %s in line %d",
					domain.ErrStateConflict, existing.FacilityID, key.SKU, clash.ID)
			}
			updated.Key = key
		}
		if patch.Quantity != nil {
			if *patch.Quantity < 0 {
				return fmt.Errorf("%w: item quantity cannot be negative", domain.ErrInvalidArgument)
			}
			if *patch.Quantity != existing.Quantity {
				if err := s.checkProjected(ctx, e, *existing, *patch.Quantity); err != nil {
					return err
				}
			}
			updated.Quantity = *patch.Quantity
		}
		if patch.StorageLocation != nil {
			updated.StorageLocation = patch.StorageLocation
		}

		if err := e.repo.SaveLine(ctx, &updated); err != nil {
			return fmt.Errorf("save line: %w", err)
		}
		line = updated
		return nil
	})
	if err != nil {
		return domain.StockLine{}, err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockUpdated, LineID: line.ID, FacilityID: line.FacilityID,
		SKU: line.Key.SKU, Quantity: line.Quantity,
	})
	s.observeLoad(ctx, line.FacilityID)
	return line, nil
}

// DeleteLine removes a line. Deleting a missing line is a no-op.
func (s *InventoryService) DeleteLine(ctx context.Context, lineID int64) (err error) {
	ctx, span := s.start(ctx, "inventory.delete_line")
	span.SetAttributes(attribute.Int64("line.id", lineID))
	defer func() { s.finish(span, "delete_line", err, zap.Int64("line_id", lineID)) }()

	var deleted *domain.StockLine
	err = s.unit(ctx, func(e engine) error {
		existing, err := e.repo.GetLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get line: %w", err)
		}
		if existing == nil {
			return nil
		}
		if err := e.repo.DeleteLine(ctx, lineID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
		deleted = existing
		return nil
	})
	if err != nil || deleted == nil {
		return err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockDeleted, LineID: deleted.ID, FacilityID: deleted.FacilityID,
		SKU: deleted.Key.SKU, Quantity: deleted.Quantity,
	})
	s.observeLoad(ctx, deleted.FacilityID)
	return nil
}

// Transfer moves quantity of one line into another facility. With a transactional
// store the debit and credit commit together; otherwise they are two separate
// writes in debit-then-credit order and the result reports what was persisted.
func (s *InventoryService) Transfer(ctx context.Context, req TransferRequest) (result TransferResult, err error) {
	ctx, span := s.start(ctx, "inventory.transfer")
	span.SetAttributes(
		attribute.Int64("line.id", req.LineID),
		attribute.Int64("transfer.from", req.FromFacilityID),
		attribute.Int64("transfer.to", req.ToFacilityID),
		attribute.Int("transfer.quantity", req.Quantity),
	)
	defer func() {
		fields := []zap.Field{
			zap.Int64("line_id", req.LineID), zap.Int64("from_facility_id", req.FromFacilityID),
			zap.Int64("to_facility_id", req.ToFacilityID), zap.Int("quantity", req.Quantity),
		}
		if result.FailedStep != "" {
			fields = append(fields, zap.String("failed_step", string(result.FailedStep)), zap.Bool("debited", result.Debited))
		}
		s.finish(span, "transfer", err, fields...)
	}()

	idempotencyKey := ""
	if req.RequestID != "" && s.opts.Cache != nil {
		idempotencyKey = "transfer:" + req.RequestID
		ok, err := s.opts.Cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return TransferResult{FailedStep: StepValidate}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return TransferResult{FailedStep: StepValidate}, ErrDuplicateRequest
		}
	}

	err = s.unit(ctx, func(e engine) error {
		var err error
		result, err = e.transfers.Transfer(ctx, req)
		return err
	})
	if err != nil {
		if s.transactional() {
			// The unit rolled back, so the stored source is still the pre-debit line.
			result.Debited = false
			if result.Source.ID != 0 {
				if source, getErr := s.store.GetLine(ctx, result.Source.ID); getErr == nil && source != nil {
					result.Source = *source
				}
			}
		}
		if idempotencyKey != "" {
			if clearErr := s.opts.Cache.ClearIdempotency(ctx, idempotencyKey); clearErr != nil {
				s.logger.Error("release idempotency key", zap.String("key", idempotencyKey), zap.Error(clearErr))
			}
		}
		if result.FailedStep == StepCredit && result.Debited {
			s.logger.Error("transfer debited but not credited",
				zap.Int64("line_id", req.LineID), zap.Int("quantity", req.Quantity))
		}
		return result, err
	}

	s.publish(ctx, domain.StockEvent{
		Type: domain.StockTransferred, LineID: result.Destination.ID, FacilityID: req.ToFacilityID,
		SKU: result.Source.Key.SKU, Quantity: req.Quantity,
		FromFacilityID: req.FromFacilityID, ToFacilityID: req.ToFacilityID,
	})
	s.observeLoad(ctx, req.FromFacilityID)
	s.observeLoad(ctx, req.ToFacilityID)
	return result, nil
}

func (s *InventoryService) GetLine(ctx context.Context, lineID int64) (domain.StockLine, error) {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return domain.StockLine{}, fmt.Errorf("get line: %w", err)
	}
	if line == nil {
		return domain.StockLine{}, fmt.Errorf("%w: stock line %d", domain.ErrNotFound, lineID)
	}
	return *line, nil
}

// LinesByFacility lists a facility's lines; unknown facilities have none.
func (s *InventoryService) LinesByFacility(ctx context.Context, facilityID int64) ([]domain.StockLine, error) {
	facility, err := s.store.GetFacility(ctx, facilityID)
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	if facility == nil {
		return []domain.StockLine{}, nil
	}
	lines, err := s.store.LinesByFacility(ctx, facilityID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	return lines, nil
}

// ListLines returns every stock line in every facility.
func (s *InventoryService) ListLines(ctx context.Context) ([]domain.StockLine, error) {
	lines, err := s.store.ListLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	return lines, nil
}

// SearchAllByName matches line names across all facilities.
func (s *InventoryService) SearchAllByName(ctx context.Context, fragment string) ([]domain.StockLine, error) {
	lines, err := s.ListLines(ctx)
	if err != nil {
		return nil, err
	}
	return matchLines(lines, fragment, func(l domain.StockLine) string { return l.Name }), nil
}

func (s *InventoryService) SearchAllBySKU(ctx context.Context, fragment string) ([]domain.StockLine, error) {
	lines, err := s.ListLines(ctx)
	if err != nil {
		return nil, err
	}
	return matchLines(lines, fragment, func(l domain.StockLine) string { return l.Key.SKU }), nil
}

// SearchByName returns the facility's lines whose name contains fragment,
// ignoring case. A blank fragment matches every line.
func (s *InventoryService) SearchByName(ctx context.Context, facilityID int64, fragment string) ([]domain.StockLine, error) {
	return s.search(ctx, facilityID, fragment, func(l domain.StockLine) string { return l.Name })
}

func (s *InventoryService) SearchBySKU(ctx context.Context, facilityID int64, fragment string) ([]domain.StockLine, error) {
	return s.search(ctx, facilityID, fragment, func(l domain.StockLine) string { return l.Key.SKU })
}

func (s *InventoryService) search(ctx context.Context, facilityID int64, fragment string, field func(domain.StockLine) string) ([]domain.StockLine, error) {
	lines, err := s.LinesByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	return matchLines(lines, fragment, field), nil
}

func matchLines(lines []domain.StockLine, fragment string, field func(domain.StockLine) string) []domain.StockLine {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return lines
	}
	matches := make([]domain.StockLine, 0, len(lines))
	for _, l := range lines {
		if strings.Contains(strings.ToLower(field(l)), fragment) {
			matches = append(matches, l)
		}
	}
	return matches
}

// TotalQuantityBySKU sums a SKU's quantity across all facilities.
func (s *InventoryService) TotalQuantityBySKU(ctx context.Context, sku string) (int, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, fmt.Errorf("%w: sku is required", domain.ErrInvalidArgument)
	}
	lines, err := s.store.LinesBySKU(ctx, sku)
	if err != nil {
		return 0, fmt.Errorf("list lines: %w", err)
	}
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total, nil
}

// IsDuplicate reports whether err came from a repeated transfer request.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateRequest)
}
