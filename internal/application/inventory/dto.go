package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spacehub/core/internal/domain/inventory"
)

// RecordMovementInput is the request to append one stock movement.
type RecordMovementInput struct {
	SpaceID         uuid.UUID                `json:"space_id" validate:"required"`
	InventoryItemID uuid.UUID                `json:"inventory_item_id" validate:"required"`
	Quantity        int64                    `json:"quantity" validate:"required"`
	Source          inventory.MovementSource `json:"source" validate:"required"`
	UnitCost        decimal.Decimal          `json:"unit_cost"`
	Reference       string                   `json:"reference" validate:"max=200"`
	Note            string                   `json:"note" validate:"max=500"`
}

// OrderLine is one sold or received unit count against an inventory item.
type OrderLine struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id" validate:"required"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

// FulfillOrderInput records the inventory effect of a completed order:
// one negative movement per line.
type FulfillOrderInput struct {
	SpaceID     uuid.UUID   `json:"space_id" validate:"required"`
	OrderNumber string      `json:"order_number" validate:"required,max=100"`
	Lines       []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// ReceivePurchaseInput records received goods: one positive movement per line.
type ReceivePurchaseInput struct {
	SpaceID        uuid.UUID   `json:"space_id" validate:"required"`
	PurchaseNumber string      `json:"purchase_number" validate:"required,max=100"`
	Lines          []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// StockLevel is the derived stock position of one inventory item.
type StockLevel struct {
	InventoryItemID uuid.UUID             `json:"inventory_item_id"`
	ProductID       uuid.UUID             `json:"product_id"`
	Location        string                `json:"location,omitempty"`
	Stock           int64                 `json:"stock"`
	Value           decimal.Decimal       `json:"value"`
	Threshold       int64                 `json:"threshold"`
	Status          inventory.StockStatus `json:"status"`
}
