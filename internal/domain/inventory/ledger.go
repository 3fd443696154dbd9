package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockStatus classifies an item's derived stock against a threshold.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// String returns the string representation of StockStatus
func (s StockStatus) String() string {
	return string(s)
}

// ClassifyStock is the pure threshold classification. Stock may be negative
// (over-selling is not blocked); negative stock is simply out of stock, not
// an error. The threshold is a per-space configuration value.
func ClassifyStock(stock, threshold int64) StockStatus {
	switch {
	case stock <= 0:
		return StockStatusOutOfStock
	case stock <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Ledger derives stock from an append-only movement log. Movements are
// grouped by inventory item once at construction and the grouping is
// maintained incrementally on append, so an overview over N items costs one
// pass over the log instead of N.
//
// The ledger is a derived view, never ground truth: the movement log it was
// built from is. It is not safe for concurrent use.
type Ledger struct {
	byItem map[uuid.UUID][]StockMovement
}

// NewLedger groups the given movement log by inventory item.
func NewLedger(movements []StockMovement) *Ledger {
	byItem := make(map[uuid.UUID][]StockMovement)
	for _, m := range movements {
		byItem[m.InventoryItemID] = append(byItem[m.InventoryItemID], m)
	}
	return &Ledger{byItem: byItem}
}

// Append adds one movement to the grouping.
func (l *Ledger) Append(m StockMovement) {
	l.byItem[m.InventoryItemID] = append(l.byItem[m.InventoryItemID], m)
}

// CurrentStock returns the signed sum of all movement quantities for the
// item; zero if no movements exist.
func (l *Ledger) CurrentStock(itemID uuid.UUID) int64 {
	var stock int64
	for _, m := range l.byItem[itemID] {
		stock += m.Quantity
	}
	return stock
}

// StockValue returns the signed sum of quantity x unit cost over the item's
// movements.
func (l *Ledger) StockValue(itemID uuid.UUID) decimal.Decimal {
	value := decimal.Zero
	for _, m := range l.byItem[itemID] {
		value = value.Add(m.SignedValue())
	}
	return value
}

// Movements returns the movements recorded for the item, in append order.
func (l *Ledger) Movements(itemID uuid.UUID) []StockMovement {
	return l.byItem[itemID]
}

// ItemIDs returns every item that has at least one movement.
func (l *Ledger) ItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.byItem))
	for id := range l.byItem {
		ids = append(ids, id)
	}
	return ids
}

// Status classifies the item's current stock against the threshold.
func (l *Ledger) Status(itemID uuid.UUID, threshold int64) StockStatus {
	return ClassifyStock(l.CurrentStock(itemID), threshold)
}
