// Package inventory is the application service over the derived stock model:
// it reads items and movements through the resource cache, appends movements
// through the optimistic mutation protocol, and publishes stock health events.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spacehub/core/internal/application/mutation"
	"github.com/spacehub/core/internal/domain/inventory"
	"github.com/spacehub/core/internal/domain/resource"
	"github.com/spacehub/core/internal/domain/shared"
	"github.com/spacehub/core/internal/infrastructure/telemetry"
)

// Metrics receives inventory observations. Implemented by the telemetry layer.
type Metrics interface {
	RecordStockMovement(ctx context.Context, source inventory.MovementSource)
	RecordStockHealth(ctx context.Context, lowStock, outOfStock int64)
}

// Service derives stock levels from cached movements and records new
// movements optimistically.
type Service struct {
	cache            resource.Cache
	remote           resource.Remote
	mutator          *mutation.Mutator
	publisher        shared.EventPublisher
	validate         *validator.Validate
	logger           *zap.Logger
	metrics          Metrics
	defaultThreshold int64
}

// ServiceOption is a functional option for configuring the service
type ServiceOption func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink for the service
func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithEventPublisher sets the publisher for stock health events
func WithEventPublisher(publisher shared.EventPublisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithDefaultThreshold sets the low-stock threshold used when the space
// settings carry none.
func WithDefaultThreshold(threshold int64) ServiceOption {
	return func(s *Service) {
		s.defaultThreshold = threshold
	}
}

// NewService creates an inventory service over the given cache, remote
// collaborator, and mutator.
func NewService(cache resource.Cache, remote resource.Remote, mutator *mutation.Mutator, opts ...ServiceOption) *Service {
	s := &Service{
		cache:            cache,
		remote:           remote,
		mutator:          mutator,
		validate:         validator.New(),
		logger:           zap.NewNop(),
		defaultThreshold: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// movementsKey is the canonical list key for a space's movement log.
func movementsKey(spaceID uuid.UUID) resource.Key {
	return resource.ListKey(resource.TypeStockMovements, map[string]string{"space": spaceID.String()})
}

// itemsKey is the canonical list key for a space's inventory items.
func itemsKey(spaceID uuid.UUID) resource.Key {
	return resource.ListKey(resource.TypeInventoryItems, map[string]string{"space": spaceID.String()})
}

// StockOverview derives the current stock position of every inventory item
// in the space. The movement log is grouped once and reused for all items,
// so a full overview costs one pass over the movements regardless of item
// count. Items classified low or out of stock produce domain events.
func (s *Service) StockOverview(ctx context.Context, spaceID uuid.UUID) ([]StockLevel, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "stock_overview",
		telemetry.WithAttribute("space_id", spaceID.String()))
	defer span.End()

	items, err := s.loadItems(ctx, spaceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	movements, err := s.loadMovements(ctx, spaceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	threshold := s.Threshold(ctx, spaceID)
	ledger := inventory.NewLedger(movements)

	levels := make([]StockLevel, 0, len(items))
	var lowStock, outOfStock int64
	for _, item := range items {
		stock := ledger.CurrentStock(item.ID)
		status := inventory.ClassifyStock(stock, threshold)

		levels = append(levels, StockLevel{
			InventoryItemID: item.ID,
			ProductID:       item.ProductID,
			Location:        item.Location,
			Stock:           stock,
			Value:           ledger.StockValue(item.ID),
			Threshold:       threshold,
			Status:          status,
		})

		switch status {
		case inventory.StockStatusLowStock:
			lowStock++
			s.publish(ctx, inventory.NewStockBelowThresholdEvent(spaceID, item.ID, stock, threshold))
		case inventory.StockStatusOutOfStock:
			outOfStock++
			s.publish(ctx, inventory.NewStockOutEvent(spaceID, item.ID, stock))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordStockHealth(ctx, lowStock, outOfStock)
	}
	telemetry.SetAttributes(span,
		"items", len(items),
		"movements", len(movements),
		"low_stock", lowStock,
		"out_of_stock", outOfStock,
	)

	return levels, nil
}

// ItemStock derives the stock position of a single inventory item.
func (s *Service) ItemStock(ctx context.Context, spaceID, itemID uuid.UUID) (*StockLevel, error) {
	items, err := s.loadItems(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	var item *inventory.InventoryItem
	for i := range items {
		if items[i].ID == itemID {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return nil, shared.ErrUnknownItem
	}

	movements, err := s.loadMovements(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	threshold := s.Threshold(ctx, spaceID)
	ledger := inventory.NewLedger(movements)
	stock := ledger.CurrentStock(itemID)

	return &StockLevel{
		InventoryItemID: itemID,
		ProductID:       item.ProductID,
		Location:        item.Location,
		Stock:           stock,
		Value:           ledger.StockValue(itemID),
		Threshold:       threshold,
		Status:          inventory.ClassifyStock(stock, threshold),
	}, nil
}

// RecordMovement appends one stock movement through the optimistic mutation
// protocol: the movement is visible in the cached movement log immediately
// and reverted bit-for-bit if the server rejects it. Movements against
// unknown items are rejected before any cache write.
func (s *Service) RecordMovement(ctx context.Context, input RecordMovementInput) (*inventory.StockMovement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "record_movement",
		telemetry.WithAttribute("space_id", input.SpaceID.String()),
		telemetry.WithAttribute("source", string(input.Source)))
	defer span.End()

	if err := s.validate.Struct(input); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("invalid movement input: %w", err)
	}

	movement, err := inventory.NewStockMovement(input.SpaceID, input.InventoryItemID, input.Quantity, input.Source, input.Note)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !input.UnitCost.IsZero() {
		movement.WithUnitCost(input.UnitCost)
	}
	if input.Reference != "" {
		movement.WithReference(input.Reference)
	}

	items, err := s.loadItems(ctx, input.SpaceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !containsItem(items, input.InventoryItemID) {
		telemetry.RecordError(span, shared.ErrUnknownItem)
		return nil, shared.ErrUnknownItem
	}

	if err := s.appendMovements(ctx, input.SpaceID, []*inventory.StockMovement{movement}); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStockMovement(ctx, movement.Source)
	}
	s.logger.Info("stock movement recorded",
		zap.String("movement_id", movement.ID.String()),
		zap.String("item_id", movement.InventoryItemID.String()),
		zap.Int64("quantity", movement.Quantity),
		zap.String("source", movement.Source.String()))

	return movement, nil
}

// FulfillOrder records the inventory effect of a completed order: one
// negative movement per line, referencing the order number.
func (s *Service) FulfillOrder(ctx context.Context, input FulfillOrderInput) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "fulfill_order",
		telemetry.WithAttribute("space_id", input.SpaceID.String()),
		telemetry.WithAttribute("order_number", input.OrderNumber))
	defer span.End()

	if err := s.validate.Struct(input); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("invalid fulfillment input: %w", err)
	}

	movements, err := s.buildLineMovements(ctx, input.SpaceID, input.Lines, inventory.SourceOrderFulfillment, input.OrderNumber, true)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.appendMovements(ctx, input.SpaceID, movements); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.RecordStockMovement(ctx, m.Source)
		}
	}
	s.logger.Info("order fulfillment recorded",
		zap.String("order_number", input.OrderNumber),
		zap.Int("lines", len(movements)))
	return nil
}

// ReceivePurchase records received goods: one positive movement per line,
// referencing the purchase number.
func (s *Service) ReceivePurchase(ctx context.Context, input ReceivePurchaseInput) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "receive_purchase",
		telemetry.WithAttribute("space_id", input.SpaceID.String()),
		telemetry.WithAttribute("purchase_number", input.PurchaseNumber))
	defer span.End()

	if err := s.validate.Struct(input); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("invalid receipt input: %w", err)
	}

	movements, err := s.buildLineMovements(ctx, input.SpaceID, input.Lines, inventory.SourcePurchaseReceipt, input.PurchaseNumber, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.appendMovements(ctx, input.SpaceID, movements); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.RecordStockMovement(ctx, m.Source)
		}
	}
	s.logger.Info("purchase receipt recorded",
		zap.String("purchase_number", input.PurchaseNumber),
		zap.Int("lines", len(movements)))
	return nil
}

// Threshold resolves the low-stock threshold for a space: the space settings
// resource wins, the configured default backs it up. A missing or unreadable
// settings resource is not an error.
func (s *Service) Threshold(ctx context.Context, spaceID uuid.UUID) int64 {
	entry, err := s.cache.ReadWait(ctx, resource.DetailKey(resource.TypeSpaces, spaceID.String()))
	if err != nil || !entry.HasValue() {
		return s.defaultThreshold
	}

	var space struct {
		Settings struct {
			LowStockThreshold *int64 `json:"lowStockThreshold"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(entry.Value, &space); err != nil || space.Settings.LowStockThreshold == nil {
		return s.defaultThreshold
	}
	if *space.Settings.LowStockThreshold < 0 {
		return s.defaultThreshold
	}
	return *space.Settings.LowStockThreshold
}

// buildLineMovements turns order/receipt lines into validated movements,
// rejecting unknown items before any cache write.
func (s *Service) buildLineMovements(ctx context.Context, spaceID uuid.UUID, lines []OrderLine, source inventory.MovementSource, reference string, negate bool) ([]*inventory.StockMovement, error) {
	items, err := s.loadItems(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	movements := make([]*inventory.StockMovement, 0, len(lines))
	for _, line := range lines {
		if !containsItem(items, line.InventoryItemID) {
			return nil, shared.ErrUnknownItem
		}
		qty := line.Quantity
		if negate {
			qty = -qty
		}
		m, err := inventory.NewStockMovement(spaceID, line.InventoryItemID, qty, source, "")
		if err != nil {
			return nil, err
		}
		m.WithReference(reference)
		if !line.UnitCost.IsZero() {
			m.WithUnitCost(line.UnitCost)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// appendMovements runs one optimistic mutation that appends the movements to
// the space's cached movement log and creates them remotely.
func (s *Service) appendMovements(ctx context.Context, spaceID uuid.UUID, movements []*inventory.StockMovement) error {
	key := movementsKey(spaceID)

	predict := func(_ resource.Key, current json.RawMessage) (json.RawMessage, error) {
		list, err := resource.DecodeList(current)
		if err != nil {
			return nil, err
		}
		for _, m := range movements {
			encoded, err := json.Marshal(m)
			if err != nil {
				return nil, err
			}
			list.Append(encoded)
		}
		return list.Encode()
	}

	call := func(ctx context.Context) error {
		for _, m := range movements {
			if _, err := s.remote.Create(ctx, resource.TypeStockMovements, m); err != nil {
				return err
			}
		}
		return nil
	}

	return s.mutator.Mutate(ctx, []resource.Key{key}, predict, call)
}

// loadItems reads and decodes the space's inventory items through the cache.
func (s *Service) loadItems(ctx context.Context, spaceID uuid.UUID) ([]inventory.InventoryItem, error) {
	entry, err := s.cache.ReadWait(ctx, itemsKey(spaceID))
	if err != nil {
		return nil, fmt.Errorf("load inventory items: %w", err)
	}
	list, err := resource.DecodeList(entry.Value)
	if err != nil {
		return nil, err
	}

	items := make([]inventory.InventoryItem, 0, len(list.Items))
	for _, raw := range list.Items {
		var item inventory.InventoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, shared.NewDomainError("MALFORMED_ITEM", "Inventory item payload is malformed")
		}
		items = append(items, item)
	}
	return items, nil
}

// loadMovements reads and decodes the space's movement log through the cache.
func (s *Service) loadMovements(ctx context.Context, spaceID uuid.UUID) ([]inventory.StockMovement, error) {
	entry, err := s.cache.ReadWait(ctx, movementsKey(spaceID))
	if err != nil {
		return nil, fmt.Errorf("load stock movements: %w", err)
	}
	list, err := resource.DecodeList(entry.Value)
	if err != nil {
		return nil, err
	}

	movements := make([]inventory.StockMovement, 0, len(list.Items))
	for _, raw := range list.Items {
		var m inventory.StockMovement
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, shared.NewDomainError("MALFORMED_MOVEMENT", "Stock movement payload is malformed")
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (s *Service) publish(ctx context.Context, event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish stock event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}

func containsItem(items []inventory.InventoryItem, id uuid.UUID) bool {
	for i := range items {
		if items[i].ID == id {
			return true
		}
	}
	return false
}
