package domain

import "time"

type StockEventType string

const (
	StockAdded       StockEventType = "stock_added"
	StockUpdated     StockEventType = "stock_updated"
	StockDeleted     StockEventType = "stock_deleted"
	StockTransferred StockEventType = "stock_transferred"
)

// StockEvent is published after a stock mutation commits.
type StockEvent struct {
	ID             string         `json:"id"`
	Type           StockEventType `json:"type"`
	LineID         int64          `json:"line_id"`
	FacilityID     int64          `json:"facility_id"`
	SKU            string         `json:"sku"`
	Quantity       int            `json:"quantity"`
	FromFacilityID int64          `json:"from_facility_id,omitempty"`
	ToFacilityID   int64          `json:"to_facility_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}
