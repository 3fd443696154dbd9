package inventory

import (
	"github.com/google/uuid"
	"github.com/spacehub/core/internal/domain/shared"
)

// Event types emitted by inventory derivation
const (
	EventTypeStockBelowThreshold = "inventory.stock_below_threshold"
	EventTypeStockOut            = "inventory.stock_out"
)

// StockBelowThresholdEvent is published when an overview pass classifies an
// item as low on stock.
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	CurrentStock    int64     `json:"current_stock"`
	Threshold       int64     `json:"threshold"`
}

// NewStockBelowThresholdEvent creates a low-stock event for an item.
func NewStockBelowThresholdEvent(spaceID, itemID uuid.UUID, stock, threshold int64) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockBelowThreshold, "InventoryItem", itemID, spaceID),
		InventoryItemID: itemID,
		CurrentStock:    stock,
		Threshold:       threshold,
	}
}

// StockOutEvent is published when an overview pass finds an item with zero
// or negative derived stock.
type StockOutEvent struct {
	shared.BaseDomainEvent
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	CurrentStock    int64     `json:"current_stock"`
}

// NewStockOutEvent creates an out-of-stock event for an item.
func NewStockOutEvent(spaceID, itemID uuid.UUID, stock int64) *StockOutEvent {
	return &StockOutEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockOut, "InventoryItem", itemID, spaceID),
		InventoryItemID: itemID,
		CurrentStock:    stock,
	}
}
