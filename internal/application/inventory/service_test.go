package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacehub/core/internal/application/mutation"
	"github.com/spacehub/core/internal/domain/inventory"
	"github.com/spacehub/core/internal/domain/resource"
	"github.com/spacehub/core/internal/domain/shared"
	"github.com/spacehub/core/internal/infrastructure/cache"
)

// fakeRemote serves canned lists and detail payloads and records creates.
type fakeRemote struct {
	mu         sync.Mutex
	lists      map[string]*resource.List
	details    map[string]json.RawMessage
	created    []json.RawMessage
	createErr  error
	createdCnt int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		lists:   make(map[string]*resource.List),
		details: make(map[string]json.RawMessage),
	}
}

func (r *fakeRemote) FetchList(ctx context.Context, t resource.Type, filters map[string]string) (*resource.List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.lists[resource.ListKey(t, filters).String()]; ok {
		return l, nil
	}
	return &resource.List{Items: []json.RawMessage{}}, nil
}

func (r *fakeRemote) FetchOne(ctx context.Context, t resource.Type, id string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if raw, ok := r.details[string(t)+"/"+id]; ok {
		return raw, nil
	}
	return nil, resource.NewRemoteError(404, "NOT_FOUND", "no such resource")
}

func (r *fakeRemote) Create(ctx context.Context, t resource.Type, input any) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createdCnt++
	if r.createErr != nil {
		return nil, r.createErr
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	r.created = append(r.created, raw)
	return raw, nil
}

func (r *fakeRemote) Update(ctx context.Context, t resource.Type, id string, patch any) (json.RawMessage, error) {
	return nil, resource.NewRemoteError(501, "", "unused")
}

func (r *fakeRemote) Delete(ctx context.Context, t resource.Type, id string) error {
	return resource.NewRemoteError(501, "", "unused")
}

func (r *fakeRemote) creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createdCnt
}

// recordingPublisher collects published domain events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// world wires a real store and mutator over the fake remote with two
// seeded inventory items.
type world struct {
	spaceID uuid.UUID
	itemA   uuid.UUID
	itemB   uuid.UUID
	remote  *fakeRemote
	store   *cache.Store
	pub     *recordingPublisher
	svc     *Service
}

func newWorld(t *testing.T) *world {
	t.Helper()

	w := &world{
		spaceID: uuid.New(),
		itemA:   uuid.New(),
		itemB:   uuid.New(),
		remote:  newFakeRemote(),
		pub:     &recordingPublisher{},
	}

	items := &resource.List{Items: []json.RawMessage{
		itemJSON(w.itemA, w.spaceID, "shelf-1"),
		itemJSON(w.itemB, w.spaceID, "shelf-2"),
	}}
	w.remote.lists[itemsKey(w.spaceID).String()] = items

	w.store = cache.NewStore(w.remote)
	mutator := mutation.NewMutator(w.store)
	w.svc = NewService(w.store, w.remote, mutator,
		WithEventPublisher(w.pub),
		WithDefaultThreshold(5),
	)
	return w
}

// seedMovements writes a movement log for the space directly into the cache.
func (w *world) seedMovements(t *testing.T, movements ...*inventory.StockMovement) {
	t.Helper()
	l := &resource.List{Items: []json.RawMessage{}}
	for _, m := range movements {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		l.Append(raw)
	}
	raw, err := l.Encode()
	require.NoError(t, err)
	w.store.Write(movementsKey(w.spaceID), raw)
}

func (w *world) cachedMovements(t *testing.T) []inventory.StockMovement {
	t.Helper()
	entry := w.store.Read(movementsKey(w.spaceID))
	list, err := resource.DecodeList(entry.Value)
	require.NoError(t, err)
	out := make([]inventory.StockMovement, 0, len(list.Items))
	for _, raw := range list.Items {
		var m inventory.StockMovement
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func itemJSON(id, spaceID uuid.UUID, location string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"spaceId":%q,"productId":%q,"location":%q}`,
		id, spaceID, uuid.New(), location))
}

func mustMovement(t *testing.T, spaceID, itemID uuid.UUID, qty int64) *inventory.StockMovement {
	t.Helper()
	m, err := inventory.NewStockMovement(spaceID, itemID, qty, inventory.SourceManualAdjustment, "")
	require.NoError(t, err)
	return m
}

func TestService_StockOverview(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t,
		mustMovement(t, w.spaceID, w.itemA, 10),
		mustMovement(t, w.spaceID, w.itemA, -3),
		mustMovement(t, w.spaceID, w.itemB, -2),
	)

	levels, err := w.svc.StockOverview(context.Background(), w.spaceID)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	byItem := make(map[uuid.UUID]StockLevel, len(levels))
	for _, lvl := range levels {
		byItem[lvl.InventoryItemID] = lvl
	}

	assert.Equal(t, int64(7), byItem[w.itemA].Stock)
	assert.Equal(t, inventory.StockStatusInStock, byItem[w.itemA].Status)
	assert.Equal(t, int64(-2), byItem[w.itemB].Stock)
	assert.Equal(t, inventory.StockStatusOutOfStock, byItem[w.itemB].Status)

	// Only the out-of-stock item produced an event.
	assert.Empty(t, w.pub.byType(inventory.EventTypeStockBelowThreshold))
	outEvents := w.pub.byType(inventory.EventTypeStockOut)
	require.Len(t, outEvents, 1)
	out := outEvents[0].(*inventory.StockOutEvent)
	assert.Equal(t, w.itemB, out.InventoryItemID)
	assert.Equal(t, int64(-2), out.CurrentStock)
}

func TestService_StockOverview_LowStockEvent(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t,
		mustMovement(t, w.spaceID, w.itemA, 4),
		mustMovement(t, w.spaceID, w.itemB, 20),
	)

	levels, err := w.svc.StockOverview(context.Background(), w.spaceID)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	lowEvents := w.pub.byType(inventory.EventTypeStockBelowThreshold)
	require.Len(t, lowEvents, 1)
	low := lowEvents[0].(*inventory.StockBelowThresholdEvent)
	assert.Equal(t, w.itemA, low.InventoryItemID)
	assert.Equal(t, int64(4), low.CurrentStock)
	assert.Equal(t, int64(5), low.Threshold)
}

func TestService_Threshold(t *testing.T) {
	t.Run("falls back to default when space settings absent", func(t *testing.T) {
		w := newWorld(t)
		assert.Equal(t, int64(5), w.svc.Threshold(context.Background(), w.spaceID))
	})

	t.Run("uses space setting when present", func(t *testing.T) {
		w := newWorld(t)
		w.remote.details["spaces/"+w.spaceID.String()] = json.RawMessage(
			`{"id":"` + w.spaceID.String() + `","settings":{"lowStockThreshold":12}}`)
		assert.Equal(t, int64(12), w.svc.Threshold(context.Background(), w.spaceID))
	})

	t.Run("ignores negative space setting", func(t *testing.T) {
		w := newWorld(t)
		w.remote.details["spaces/"+w.spaceID.String()] = json.RawMessage(
			`{"settings":{"lowStockThreshold":-1}}`)
		assert.Equal(t, int64(5), w.svc.Threshold(context.Background(), w.spaceID))
	})
}

func TestService_RecordMovement(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t, mustMovement(t, w.spaceID, w.itemA, 10))

	movement, err := w.svc.RecordMovement(context.Background(), RecordMovementInput{
		SpaceID:         w.spaceID,
		InventoryItemID: w.itemA,
		Quantity:        -3,
		Source:          inventory.SourceManualAdjustment,
		Note:            "breakage",
	})
	require.NoError(t, err)
	require.NotNil(t, movement)
	assert.Equal(t, int64(-3), movement.Quantity)
	assert.Equal(t, 1, w.remote.creates())
}

func TestService_RecordMovement_UnknownItem(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t)

	_, err := w.svc.RecordMovement(context.Background(), RecordMovementInput{
		SpaceID:         w.spaceID,
		InventoryItemID: uuid.New(),
		Quantity:        1,
		Source:          inventory.SourceManualAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrUnknownItem)
	assert.Equal(t, 0, w.remote.creates())
	assert.Empty(t, w.cachedMovements(t))
}

func TestService_RecordMovement_ZeroQuantityRejected(t *testing.T) {
	w := newWorld(t)

	_, err := w.svc.RecordMovement(context.Background(), RecordMovementInput{
		SpaceID:         w.spaceID,
		InventoryItemID: w.itemA,
		Quantity:        0,
		Source:          inventory.SourceManualAdjustment,
	})
	require.Error(t, err)
	assert.Equal(t, 0, w.remote.creates())
}

func TestService_RecordMovement_RollsBackOnRejection(t *testing.T) {
	w := newWorld(t)
	prior := mustMovement(t, w.spaceID, w.itemA, 10)
	w.seedMovements(t, prior)
	w.remote.createErr = resource.NewRemoteError(422, "REJECTED", "insufficient permissions")

	_, err := w.svc.RecordMovement(context.Background(), RecordMovementInput{
		SpaceID:         w.spaceID,
		InventoryItemID: w.itemA,
		Quantity:        -3,
		Source:          inventory.SourceManualAdjustment,
	})
	require.Error(t, err)

	// The movement log is restored to exactly its prior contents.
	cached := w.cachedMovements(t)
	require.Len(t, cached, 1)
	assert.Equal(t, prior.ID, cached[0].ID)
	assert.Equal(t, int64(10), cached[0].Quantity)
}

func TestService_FulfillOrder(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t,
		mustMovement(t, w.spaceID, w.itemA, 10),
		mustMovement(t, w.spaceID, w.itemB, 4),
	)

	err := w.svc.FulfillOrder(context.Background(), FulfillOrderInput{
		SpaceID:     w.spaceID,
		OrderNumber: "SO-1001",
		Lines: []OrderLine{
			{InventoryItemID: w.itemA, Quantity: 2},
			{InventoryItemID: w.itemB, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, w.remote.creates())

	// Every line became a negative movement referencing the order.
	var fulfillments []inventory.StockMovement
	for _, m := range w.cachedMovements(t) {
		if m.Source == inventory.SourceOrderFulfillment {
			fulfillments = append(fulfillments, m)
		}
	}
	require.Len(t, fulfillments, 2)
	for _, m := range fulfillments {
		assert.Negative(t, m.Quantity)
		assert.Equal(t, "SO-1001", m.Reference)
	}
}

func TestService_FulfillOrder_RejectsNonPositiveLine(t *testing.T) {
	w := newWorld(t)

	err := w.svc.FulfillOrder(context.Background(), FulfillOrderInput{
		SpaceID:     w.spaceID,
		OrderNumber: "SO-1002",
		Lines:       []OrderLine{{InventoryItemID: w.itemA, Quantity: -1}},
	})
	require.Error(t, err)
	assert.Equal(t, 0, w.remote.creates())
}

func TestService_ReceivePurchase(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t)

	err := w.svc.ReceivePurchase(context.Background(), ReceivePurchaseInput{
		SpaceID:        w.spaceID,
		PurchaseNumber: "PO-77",
		Lines:          []OrderLine{{InventoryItemID: w.itemA, Quantity: 6}},
	})
	require.NoError(t, err)

	var receipts []inventory.StockMovement
	for _, m := range w.cachedMovements(t) {
		if m.Source == inventory.SourcePurchaseReceipt {
			receipts = append(receipts, m)
		}
	}
	require.Len(t, receipts, 1)
	assert.Equal(t, int64(6), receipts[0].Quantity)
	assert.Equal(t, "PO-77", receipts[0].Reference)
}

func TestService_ItemStock(t *testing.T) {
	w := newWorld(t)
	w.seedMovements(t,
		mustMovement(t, w.spaceID, w.itemA, 10),
		mustMovement(t, w.spaceID, w.itemA, -3),
	)

	level, err := w.svc.ItemStock(context.Background(), w.spaceID, w.itemA)
	require.NoError(t, err)
	assert.Equal(t, int64(7), level.Stock)
	assert.Equal(t, inventory.StockStatusInStock, level.Status)

	_, err = w.svc.ItemStock(context.Background(), w.spaceID, uuid.New())
	require.ErrorIs(t, err, shared.ErrUnknownItem)
}
