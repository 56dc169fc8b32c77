package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

const tracerName = "github.com/rl1809/stockroom/internal/core/service"

// Options carries the optional collaborators shared by the services. Nil fields
// disable the matching concern.
type Options struct {
	Cache     port.CacheRepository
	Publisher port.EventPublisher
	Metrics   port.Metrics
	Logger    *zap.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
}

type base struct {
	store  port.DatabaseRepository
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func newBase(store port.DatabaseRepository, opts Options) base {
	b := base{store: store, opts: opts, logger: opts.Logger, tracer: opts.Tracer, now: opts.Now}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b
}

// engine bundles the capacity components over one repository view.
type engine struct {
	repo      port.DatabaseRepository
	ledger    *CapacityLedger
	admission *AdmissionControl
	merger    *LineMerger
	transfers *TransferCoordinator
	resolver  *ProductResolver
}

func newEngine(repo port.DatabaseRepository) engine {
	ledger := NewCapacityLedger(repo)
	admission := NewAdmissionControl(ledger)
	merger := NewLineMerger(repo)
	return engine{
		repo:      repo,
		ledger:    ledger,
		admission: admission,
		merger:    merger,
		transfers: NewTransferCoordinator(repo, admission, merger),
		resolver:  NewProductResolver(repo),
	}
}

func (b base) transactional() bool {
	_, ok := b.store.(port.Transactor)
	return ok
}

// unit runs fn inside one unit of work when the store supports it, and directly
// against the store otherwise.
func (b base) unit(ctx context.Context, fn func(e engine) error) error {
	if tx, ok := b.store.(port.Transactor); ok {
		return tx.WithinTx(ctx, func(repo port.DatabaseRepository) error {
			return fn(newEngine(repo))
		})
	}
	return fn(newEngine(b.store))
}

func (b base) start(ctx context.Context, operation string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, operation)
}

// finish closes the span and records the outcome in metrics and logs.
func (b base) finish(span trace.Span, operation string, err error, fields ...zap.Field) {
	defer span.End()
	outcome := domain.CodeOf(err)
	if b.opts.Metrics != nil {
		b.opts.Metrics.ObserveOperation(operation, outcome)
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
		b.logger.Info(operation, fields...)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fields = append(fields, zap.String("outcome", outcome), zap.Error(err))
	if outcome == "internal" {
		b.logger.Error(operation+" failed", fields...)
		return
	}
	b.logger.Debug(operation+" rejected", fields...)
}

func (b base) publish(ctx context.Context, events ...domain.StockEvent) {
	if b.opts.Publisher == nil || len(events) == 0 {
		return
	}
	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].OccurredAt = b.now()
	}
	if err := b.opts.Publisher.Publish(ctx, events...); err != nil {
		b.logger.Warn("publish stock events", zap.Int("count", len(events)), zap.Error(err))
	}
}

func (b base) observeLoad(ctx context.Context, facilityID int64) {
	if b.opts.Metrics == nil {
		return
	}
	facility, err := b.store.GetFacility(ctx, facilityID)
	if err != nil || facility == nil {
		return
	}
	load, err := NewCapacityLedger(b.store).CurrentLoad(ctx, facilityID)
	if err != nil {
		return
	}
	b.opts.Metrics.ObserveLoad(facilityID, load, facility.MaxCapacity)
}
