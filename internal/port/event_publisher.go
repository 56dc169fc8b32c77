package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

type EventPublisher interface {
	// Publish delivers committed stock events; it must not be called inside a unit of work
	Publish(ctx context.Context, events ...domain.StockEvent) error
}
