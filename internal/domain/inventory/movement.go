package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spacehub/core/internal/domain/shared"
)

// MovementSource identifies what produced a stock movement. Sources are
// informational only: the ledger sums every movement identically regardless
// of where it came from.
type MovementSource string

const (
	// SourceManualAdjustment is an explicit correction entered by a user.
	SourceManualAdjustment MovementSource = "manual_adjustment"
	// SourceOrderFulfillment is a negative movement recorded per sold unit.
	SourceOrderFulfillment MovementSource = "order_fulfillment"
	// SourcePurchaseReceipt is a positive movement recorded per received unit.
	SourcePurchaseReceipt MovementSource = "purchase_receipt"
)

// String returns the string representation of MovementSource
func (s MovementSource) String() string {
	return string(s)
}

// IsValid returns true if the movement source is valid
func (s MovementSource) IsValid() bool {
	switch s {
	case SourceManualAdjustment, SourceOrderFulfillment, SourcePurchaseReceipt:
		return true
	}
	return false
}

// StockMovement is one signed quantity delta against an inventory item: the
// atomic unit of the ledger. Movements are append-only: never updated or
// deleted once written; corrections are made by appending an offsetting
// movement.
type StockMovement struct {
	ID              uuid.UUID       `json:"id"`
	SpaceID         uuid.UUID       `json:"spaceId"`
	InventoryItemID uuid.UUID       `json:"inventoryItemId"`
	Quantity        int64           `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	Source          MovementSource  `json:"source"`
	Reference       string          `json:"reference,omitempty"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NewStockMovement creates a movement. Quantity may be any nonzero integer,
// positive for increases and negative for decreases; a zero quantity is
// rejected before anything is written.
func NewStockMovement(spaceID, itemID uuid.UUID, quantity int64, source MovementSource, note string) (*StockMovement, error) {
	if spaceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SPACE", "Space ID cannot be empty")
	}
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INVENTORY_ITEM", "Inventory item ID cannot be empty")
	}
	if quantity == 0 {
		return nil, shared.ErrZeroQuantity
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Invalid movement source")
	}

	return &StockMovement{
		ID:              uuid.New(),
		SpaceID:         spaceID,
		InventoryItemID: itemID,
		Quantity:        quantity,
		UnitCost:        decimal.Zero,
		Source:          source,
		Note:            note,
		CreatedAt:       time.Now(),
	}, nil
}

// WithUnitCost sets the per-unit cost carried by the movement, used for
// stock valuation.
func (m *StockMovement) WithUnitCost(cost decimal.Decimal) *StockMovement {
	m.UnitCost = cost
	return m
}

// WithReference sets the source document reference (order or purchase number).
func (m *StockMovement) WithReference(ref string) *StockMovement {
	m.Reference = ref
	return m
}

// IsIncrease reports whether the movement adds stock.
func (m *StockMovement) IsIncrease() bool {
	return m.Quantity > 0
}

// SignedValue returns the movement's contribution to stock value
// (quantity x unit cost, negative for decreases).
func (m *StockMovement) SignedValue() decimal.Decimal {
	return decimal.NewFromInt(m.Quantity).Mul(m.UnitCost)
}
