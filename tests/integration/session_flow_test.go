// Package integration provides end-to-end session flow tests: the full
// cache, mutator, service, and event bus wiring over an in-memory remote.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	inventoryapp "github.com/spacehub/core/internal/application/inventory"
	"github.com/spacehub/core/internal/application/mutation"
	"github.com/spacehub/core/internal/domain/inventory"
	"github.com/spacehub/core/internal/domain/resource"
	"github.com/spacehub/core/internal/domain/shared"
	"github.com/spacehub/core/internal/infrastructure/cache"
	"github.com/spacehub/core/internal/infrastructure/event"
	"github.com/spacehub/core/tests/testutil"
)

// SessionSetup wires the full client core the way the composition root does:
// store over a fake remote, mutator over the store, inventory service over
// both, and a synchronous event bus carrying stock health events.
type SessionSetup struct {
	Remote  *testutil.FakeRemote
	Store   *cache.Store
	Bus     *event.InMemoryEventBus
	Events  *testutil.MockEventHandler
	Service *inventoryapp.Service

	SpaceID uuid.UUID
	ItemA   uuid.UUID
	ItemB   uuid.UUID
}

// NewSessionSetup creates the full wiring with two inventory items seeded on
// the remote and an empty movement log.
func NewSessionSetup(t *testing.T) *SessionSetup {
	t.Helper()

	s := &SessionSetup{
		Remote:  testutil.NewFakeRemote(),
		SpaceID: uuid.New(),
		ItemA:   uuid.New(),
		ItemB:   uuid.New(),
	}

	filters := map[string]string{"space": s.SpaceID.String()}
	s.Remote.SeedList(resource.TypeInventoryItems, filters,
		s.itemJSON(t, s.ItemA, "main-floor"),
		s.itemJSON(t, s.ItemB, "back-room"),
	)
	s.Remote.SeedList(resource.TypeStockMovements, filters)

	s.Store = cache.NewStore(s.Remote,
		cache.WithFreshFor(time.Minute),
		cache.WithFetchTimeout(5*time.Second),
	)
	mutator := mutation.NewMutator(s.Store)

	s.Bus = event.NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, s.Bus.Start(context.Background()))
	t.Cleanup(func() {
		_ = s.Bus.Stop(context.Background())
	})

	s.Events = testutil.NewMockEventHandler(
		inventory.EventTypeStockBelowThreshold,
		inventory.EventTypeStockOut,
	)
	s.Bus.Subscribe(s.Events)

	s.Service = inventoryapp.NewService(s.Store, s.Remote, mutator,
		inventoryapp.WithEventPublisher(s.Bus),
		inventoryapp.WithDefaultThreshold(5),
	)
	return s
}

func (s *SessionSetup) itemJSON(t *testing.T, itemID uuid.UUID, location string) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(inventory.InventoryItem{
		ID:        itemID,
		SpaceID:   s.SpaceID,
		ProductID: uuid.New(),
		Location:  location,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return raw
}

// seedMovement records a movement directly on the remote, as if another
// session had written it before this one started.
func (s *SessionSetup) seedMovement(t *testing.T, itemID uuid.UUID, quantity int64, cost string) {
	t.Helper()

	m, err := inventory.NewStockMovement(s.SpaceID, itemID, quantity, inventory.SourceManualAdjustment, "")
	require.NoError(t, err)
	m.WithUnitCost(decimal.RequireFromString(cost))

	_, err = s.Remote.Create(context.Background(), resource.TypeStockMovements, m)
	require.NoError(t, err)
}

// levelFor finds the stock level of one item in an overview result.
func levelFor(t *testing.T, levels []inventoryapp.StockLevel, itemID uuid.UUID) inventoryapp.StockLevel {
	t.Helper()

	for _, l := range levels {
		if l.InventoryItemID == itemID {
			return l
		}
	}
	t.Fatalf("no stock level for item %s", itemID)
	return inventoryapp.StockLevel{}
}

// waitFresh blocks until the cached entry for key has settled back to fresh,
// i.e. the post-commit refetch has reconciled against the remote.
func (s *SessionSetup) waitFresh(t *testing.T, key resource.Key) {
	t.Helper()

	ok := testutil.WaitForCondition(t, func() bool {
		return s.Store.Read(key).Status == resource.StatusFresh
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, ok, "entry %s never settled to fresh", key.String())
}

func movementsKey(spaceID uuid.UUID) resource.Key {
	return resource.ListKey(resource.TypeStockMovements, map[string]string{"space": spaceID.String()})
}

func TestSessionFlow_StockDerivation(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	s.seedMovement(t, s.ItemA, 10, "2.50")
	s.seedMovement(t, s.ItemA, -4, "2.50")
	s.seedMovement(t, s.ItemB, -2, "1.00")

	levels, err := s.Service.StockOverview(ctx, s.SpaceID)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	a := levelFor(t, levels, s.ItemA)
	assert.Equal(t, int64(6), a.Stock)
	assert.Equal(t, inventory.StockStatusInStock, a.Status)
	assert.True(t, a.Value.Equal(decimal.RequireFromString("15")), "got %s", a.Value)

	b := levelFor(t, levels, s.ItemB)
	assert.Equal(t, int64(-2), b.Stock)
	assert.Equal(t, inventory.StockStatusOutOfStock, b.Status)

	// The bus dispatches synchronously, so the stock-out event for item B
	// has already reached the handler.
	require.Equal(t, 1, s.Events.HandledCount())
	out, ok := s.Events.Handled()[0].(*inventory.StockOutEvent)
	require.True(t, ok)
	assert.Equal(t, s.ItemB, out.InventoryItemID)
	assert.Equal(t, s.SpaceID, out.SpaceID())
}

func TestSessionFlow_CommitReconcilesWithRemote(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	s.seedMovement(t, s.ItemA, 10, "2.50")

	// Warm the movement log so the mutation snapshots a settled entry.
	_, err := s.Store.ReadWait(ctx, movementsKey(s.SpaceID))
	require.NoError(t, err)

	_, err = s.Service.RecordMovement(ctx, inventoryapp.RecordMovementInput{
		SpaceID:         s.SpaceID,
		InventoryItemID: s.ItemA,
		Quantity:        -7,
		Source:          inventory.SourceManualAdjustment,
		Note:            "shrinkage count",
	})
	require.NoError(t, err)

	// Commit invalidates the movement log, so the next read refetches from
	// the remote, which has accepted the created movement.
	s.waitFresh(t, movementsKey(s.SpaceID))

	remoteList, err := s.Remote.FetchList(ctx, resource.TypeStockMovements,
		map[string]string{"space": s.SpaceID.String()})
	require.NoError(t, err)
	assert.Len(t, remoteList.Items, 2)

	levels, err := s.Service.StockOverview(ctx, s.SpaceID)
	require.NoError(t, err)
	a := levelFor(t, levels, s.ItemA)
	assert.Equal(t, int64(3), a.Stock)
	assert.Equal(t, inventory.StockStatusLowStock, a.Status)
}

func TestSessionFlow_RejectedMutationRollsBack(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	s.seedMovement(t, s.ItemA, 10, "2.50")

	// Warm the cache and capture the movement log exactly as written.
	entry, err := s.Store.ReadWait(ctx, movementsKey(s.SpaceID))
	require.NoError(t, err)
	before := entry.Value

	s.Remote.FailCreates(resource.NewRemoteError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Quantity exceeds allowed adjustment"))

	_, err = s.Service.RecordMovement(ctx, inventoryapp.RecordMovementInput{
		SpaceID:         s.SpaceID,
		InventoryItemID: s.ItemA,
		Quantity:        -500,
		Source:          inventory.SourceManualAdjustment,
	})
	require.Error(t, err)

	var remoteErr *resource.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusUnprocessableEntity, remoteErr.StatusCode)

	// Rollback restores the pre-mutation payload bit for bit.
	after := s.Store.Read(movementsKey(s.SpaceID))
	assert.Equal(t, []byte(before), []byte(after.Value))

	levels, err := s.Service.StockOverview(ctx, s.SpaceID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), levelFor(t, levels, s.ItemA).Stock)
}

func TestSessionFlow_UnknownItemRejectedBeforeWrite(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	_, err := s.Service.RecordMovement(ctx, inventoryapp.RecordMovementInput{
		SpaceID:         s.SpaceID,
		InventoryItemID: uuid.New(),
		Quantity:        5,
		Source:          inventory.SourceManualAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrUnknownItem)
	assert.Equal(t, 0, s.Remote.CreateCalls())
}

func TestSessionFlow_SpaceThresholdOverride(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	s.Remote.SeedDetail(resource.TypeSpaces, s.SpaceID.String(),
		json.RawMessage(`{"id":"`+s.SpaceID.String()+`","settings":{"lowStockThreshold":12}}`))

	s.seedMovement(t, s.ItemA, 9, "1.00")

	levels, err := s.Service.StockOverview(ctx, s.SpaceID)
	require.NoError(t, err)

	a := levelFor(t, levels, s.ItemA)
	assert.Equal(t, int64(12), a.Threshold)
	assert.Equal(t, inventory.StockStatusLowStock, a.Status)
}

func TestSessionFlow_OrderFulfillmentAndReceipt(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	_, err := s.Store.ReadWait(ctx, movementsKey(s.SpaceID))
	require.NoError(t, err)

	err = s.Service.ReceivePurchase(ctx, inventoryapp.ReceivePurchaseInput{
		SpaceID:        s.SpaceID,
		PurchaseNumber: "PO-2044",
		Lines: []inventoryapp.OrderLine{
			{InventoryItemID: s.ItemA, Quantity: 8, UnitCost: decimal.RequireFromString("3.00")},
		},
	})
	require.NoError(t, err)
	s.waitFresh(t, movementsKey(s.SpaceID))

	err = s.Service.FulfillOrder(ctx, inventoryapp.FulfillOrderInput{
		SpaceID:     s.SpaceID,
		OrderNumber: "SO-3101",
		Lines: []inventoryapp.OrderLine{
			{InventoryItemID: s.ItemA, Quantity: 2, UnitCost: decimal.RequireFromString("3.00")},
		},
	})
	require.NoError(t, err)
	s.waitFresh(t, movementsKey(s.SpaceID))

	level, err := s.Service.ItemStock(ctx, s.SpaceID, s.ItemA)
	require.NoError(t, err)
	assert.Equal(t, int64(6), level.Stock)
	assert.True(t, level.Value.Equal(decimal.RequireFromString("18")), "got %s", level.Value)
}

// stubNotifier records alerts forwarded by the stock alert handler.
type stubNotifier struct {
	mu     sync.Mutex
	alerts []inventoryapp.StockAlert
}

func (n *stubNotifier) SendAlert(ctx context.Context, alert inventoryapp.StockAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *stubNotifier) Alerts() []inventoryapp.StockAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]inventoryapp.StockAlert{}, n.alerts...)
}

func TestSessionFlow_StockAlertNotification(t *testing.T) {
	s := NewSessionSetup(t)
	ctx := context.Background()

	notifier := &stubNotifier{}
	s.Bus.Subscribe(inventoryapp.NewStockAlertHandler(zap.NewNop()).WithNotifier(notifier))

	s.seedMovement(t, s.ItemA, 20, "1.00")
	s.seedMovement(t, s.ItemB, -3, "1.00")

	_, err := s.Service.StockOverview(ctx, s.SpaceID)
	require.NoError(t, err)

	alerts := notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "out_of_stock", alerts[0].AlertType)
	assert.Equal(t, s.ItemB.String(), alerts[0].InventoryItemID)
	assert.Equal(t, int64(-3), alerts[0].CurrentStock)
}
