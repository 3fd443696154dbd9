// Package inventory holds the stock ledger: inventory items, the append-only
// movement log, and the derivation of current stock from it.
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/spacehub/core/internal/domain/shared"
)

// InventoryItem identifies stockable goods at a location. Its identity is
// (product, variant, location); it does not itself store a quantity, as stock
// is always derived from the movement log.
type InventoryItem struct {
	ID        uuid.UUID  `json:"id"`
	SpaceID   uuid.UUID  `json:"spaceId"`
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Location  string     `json:"location,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewInventoryItem creates an inventory item for a product (or variant) at a
// location. Items are created implicitly the first time a product is stocked.
func NewInventoryItem(spaceID, productID uuid.UUID, variantID *uuid.UUID, location string) (*InventoryItem, error) {
	if spaceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SPACE", "Space ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}

	return &InventoryItem{
		ID:        uuid.New(),
		SpaceID:   spaceID,
		ProductID: productID,
		VariantID: variantID,
		Location:  location,
		CreatedAt: time.Now(),
	}, nil
}
