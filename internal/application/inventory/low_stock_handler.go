package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacehub/core/internal/domain/inventory"
	"github.com/spacehub/core/internal/domain/shared"
)

// StockAlertNotifier is the interface for surfacing stock alerts to the user.
// Implementations can support different channels (in-app banner, email, etc.)
type StockAlertNotifier interface {
	// SendAlert surfaces one stock alert
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlert is one surfaced stock warning.
type StockAlert struct {
	SpaceID         string `json:"space_id"`
	InventoryItemID string `json:"inventory_item_id"`
	CurrentStock    int64  `json:"current_stock"`
	Threshold       int64  `json:"threshold,omitempty"`
	AlertType       string `json:"alert_type"` // "low_stock", "out_of_stock"
}

// StockAlertHandler reacts to stock health events from overview passes:
// it logs the alert and forwards it to the configured notifier.
type StockAlertHandler struct {
	logger   *zap.Logger
	notifier StockAlertNotifier
}

// NewStockAlertHandler creates a handler for stock health events
func NewStockAlertHandler(logger *zap.Logger) *StockAlertHandler {
	return &StockAlertHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier for surfacing alerts
func (h *StockAlertHandler) WithNotifier(notifier StockAlertNotifier) *StockAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *StockAlertHandler) EventTypes() []string {
	return []string{
		inventory.EventTypeStockBelowThreshold,
		inventory.EventTypeStockOut,
	}
}

// Handle processes one stock health event
func (h *StockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var alert StockAlert

	switch e := event.(type) {
	case *inventory.StockBelowThresholdEvent:
		alert = StockAlert{
			SpaceID:         e.SpaceID().String(),
			InventoryItemID: e.InventoryItemID.String(),
			CurrentStock:    e.CurrentStock,
			Threshold:       e.Threshold,
			AlertType:       "low_stock",
		}
		h.logger.Warn("inventory item below stock threshold",
			zap.String("space_id", alert.SpaceID),
			zap.String("item_id", alert.InventoryItemID),
			zap.Int64("current_stock", alert.CurrentStock),
			zap.Int64("threshold", alert.Threshold),
		)
	case *inventory.StockOutEvent:
		alert = StockAlert{
			SpaceID:         e.SpaceID().String(),
			InventoryItemID: e.InventoryItemID.String(),
			CurrentStock:    e.CurrentStock,
			AlertType:       "out_of_stock",
		}
		h.logger.Warn("inventory item out of stock",
			zap.String("space_id", alert.SpaceID),
			zap.String("item_id", alert.InventoryItemID),
			zap.Int64("current_stock", alert.CurrentStock),
		)
	default:
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	if h.notifier != nil {
		if err := h.notifier.SendAlert(ctx, alert); err != nil {
			// Alerting is best-effort; a failed notification must not fail
			// the overview pass that produced the event.
			h.logger.Error("failed to send stock alert",
				zap.String("item_id", alert.InventoryItemID),
				zap.Error(err),
			)
		}
	}

	return nil
}
