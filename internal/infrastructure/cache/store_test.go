package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacehub/core/internal/domain/resource"
)

// fakeRemote is a scriptable remote collaborator for store tests.
type fakeRemote struct {
	mu         sync.Mutex
	listCalls  int64
	oneCalls   int64
	listFn     func(t resource.Type, filters map[string]string) (*resource.List, error)
	oneFn      func(t resource.Type, id string) (json.RawMessage, error)
	gate       chan struct{} // when set, fetches block until the gate closes
}

func (f *fakeRemote) FetchList(ctx context.Context, t resource.Type, filters map[string]string) (*resource.List, error) {
	atomic.AddInt64(&f.listCalls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	fn := f.listFn
	f.mu.Unlock()
	if fn == nil {
		return &resource.List{Items: []json.RawMessage{}}, nil
	}
	return fn(t, filters)
}

func (f *fakeRemote) FetchOne(ctx context.Context, t resource.Type, id string) (json.RawMessage, error) {
	atomic.AddInt64(&f.oneCalls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	fn := f.oneFn
	f.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`{"id":"` + id + `"}`), nil
	}
	return fn(t, id)
}

func (f *fakeRemote) Create(ctx context.Context, t resource.Type, input any) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) Update(ctx context.Context, t resource.Type, id string, patch any) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) Delete(ctx context.Context, t resource.Type, id string) error {
	return errors.New("not implemented")
}

func (f *fakeRemote) setListFn(fn func(t resource.Type, filters map[string]string) (*resource.List, error)) {
	f.mu.Lock()
	f.listFn = fn
	f.mu.Unlock()
}

func listOf(items ...string) *resource.List {
	l := &resource.List{Items: make([]json.RawMessage, 0, len(items))}
	for _, it := range items {
		l.Items = append(l.Items, json.RawMessage(it))
	}
	l.Pagination = resource.Pagination{Total: len(items), Page: 1, Limit: 20, TotalPages: 1}
	return l
}

func TestStore_ReadTriggersFetch(t *testing.T) {
	remote := &fakeRemote{}
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return listOf(`{"id":"p1"}`), nil
	})
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeProducts, map[string]string{"space": "s1"})

	first := store.Read(key)
	assert.Equal(t, resource.StatusFetching, first.Status)
	assert.False(t, first.HasValue())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	entry, err := store.ReadWait(ctx, key)

	require.NoError(t, err)
	assert.Equal(t, resource.StatusFresh, entry.Status)
	list, err := resource.DecodeList(entry.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Len())
	assert.False(t, entry.LastFetchedAt.IsZero())
}

func TestStore_FetchDeduplication(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1"})

	for i := 0; i < 10; i++ {
		store.Read(key)
	}
	close(remote.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := store.ReadWait(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&remote.listCalls))
}

func TestStore_FetchFailureRetainsLastGoodValue(t *testing.T) {
	remote := &fakeRemote{}
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return listOf(`{"id":"a"}`), nil
	})
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeCustomers, map[string]string{"space": "s1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	good, err := store.ReadWait(ctx, key)
	require.NoError(t, err)

	boom := errors.New("network down")
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return nil, boom
	})
	store.Invalidate(resource.TypeKey(resource.TypeCustomers))

	_, err = store.ReadWait(ctx, key)
	require.ErrorIs(t, err, boom)

	entry := store.Read(key)
	assert.Equal(t, resource.StatusError, entry.Status)
	assert.Equal(t, string(good.Value), string(entry.Value), "error must not clobber the last good value")

	// Errored entries do not refetch on their own.
	calls := atomic.LoadInt64(&remote.listCalls)
	store.Read(key)
	assert.Equal(t, calls, atomic.LoadInt64(&remote.listCalls))
}

func TestStore_InvalidatePropagates(t *testing.T) {
	remote := &fakeRemote{}
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return listOf(`{"id":"server"}`), nil
	})
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := store.ReadWait(ctx, key)
	require.NoError(t, err)

	// An optimistic value written in between must be replaced by the
	// authoritative refetch.
	store.Write(key, json.RawMessage(`{"items":[{"id":"optimistic"}],"pagination":{"total":1,"page":1,"limit":20,"totalPages":1}}`))

	var transitions []resource.Status
	var mu sync.Mutex
	cancelSub := store.Subscribe(key, func(e resource.Entry) {
		mu.Lock()
		transitions = append(transitions, e.Status)
		mu.Unlock()
	})
	defer cancelSub()

	marked := store.Invalidate(resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1"}))
	assert.Equal(t, 1, marked)

	stale := store.Read(key)
	assert.Contains(t, []resource.Status{resource.StatusStale, resource.StatusFetching}, stale.Status)
	assert.True(t, stale.HasValue(), "stale value stays visible until the refetch resolves")

	entry, err := store.ReadWait(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFresh, entry.Status)
	list, err := resource.DecodeList(entry.Value)
	require.NoError(t, err)
	assert.True(t, list.ContainsID("server"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, resource.StatusStale, transitions[0])
	assert.Contains(t, transitions, resource.StatusFetching)
	assert.Equal(t, resource.StatusFresh, transitions[len(transitions)-1])
}

func TestStore_InvalidateMatchesByPrefix(t *testing.T) {
	remote := &fakeRemote{}
	store := NewStore(remote)

	page1 := resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1", "page": "1"})
	page2 := resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1", "page": "2"})
	other := resource.ListKey(resource.TypeOrders, map[string]string{"space": "s2"})
	products := resource.ListKey(resource.TypeProducts, map[string]string{"space": "s1"})

	for _, k := range []resource.Key{page1, page2, other, products} {
		store.Write(k, json.RawMessage(`{"items":[],"pagination":{}}`))
	}

	marked := store.Invalidate(resource.ListKey(resource.TypeOrders, map[string]string{"space": "s1"}))

	assert.Equal(t, 2, marked)
	assert.Equal(t, resource.StatusStale, readStatusWithoutFetch(store, page1))
	assert.Equal(t, resource.StatusStale, readStatusWithoutFetch(store, page2))
	assert.Equal(t, resource.StatusFresh, readStatusWithoutFetch(store, other))
	assert.Equal(t, resource.StatusFresh, readStatusWithoutFetch(store, products))
}

// readStatusWithoutFetch inspects entry status via a throwaway subscription
// rather than Read, which would trigger a refetch of stale entries.
func readStatusWithoutFetch(s *Store, key resource.Key) resource.Status {
	var status resource.Status
	cancel := s.Subscribe(key, func(resource.Entry) {})
	defer cancel()
	s.mu.Lock()
	if sl := s.entries[key.String()]; sl != nil {
		status = sl.status
	}
	s.mu.Unlock()
	return status
}

func TestStore_SubscribeAndCancel(t *testing.T) {
	store := NewStore(&fakeRemote{})
	key := resource.DetailKey(resource.TypeProducts, "p1")

	var calls int
	var mu sync.Mutex
	cancel := store.Subscribe(key, func(resource.Entry) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	store.Write(key, json.RawMessage(`{"id":"p1"}`))
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	cancel()
	store.Write(key, json.RawMessage(`{"id":"p1","name":"x"}`))
	mu.Lock()
	assert.Equal(t, 1, calls, "cancelled subscription must not fire")
	mu.Unlock()
}

func TestStore_WriteAllIsObservedWhole(t *testing.T) {
	store := NewStore(&fakeRemote{})
	a := resource.DetailKey(resource.TypeProducts, "a")
	b := resource.DetailKey(resource.TypeProducts, "b")

	store.WriteAll([]resource.WritePair{
		{Key: a, Value: json.RawMessage(`{"id":"a"}`)},
		{Key: b, Value: json.RawMessage(`{"id":"b"}`)},
	})

	ea := store.Read(a)
	eb := store.Read(b)
	assert.Equal(t, resource.StatusFresh, ea.Status)
	assert.Equal(t, resource.StatusFresh, eb.Status)
}

func TestStore_Drop(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	defer close(remote.gate)
	store := NewStore(remote)
	key := resource.DetailKey(resource.TypeCustomers, "c1")

	store.Write(key, json.RawMessage(`{"id":"c1"}`))
	require.Equal(t, 1, store.Len())

	var last resource.Entry
	var mu sync.Mutex
	cancel := store.Subscribe(key, func(e resource.Entry) {
		mu.Lock()
		last = e
		mu.Unlock()
	})
	defer cancel()

	store.Drop(key)

	assert.Equal(t, 0, store.Len())
	mu.Lock()
	assert.Equal(t, resource.StatusIdle, last.Status)
	assert.False(t, last.HasValue())
	mu.Unlock()
}

func TestStore_DropReleasesWaitersMidFetch(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{gate: gate}
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return listOf(`{"id":"p1"}`), nil
	})
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeProducts, map[string]string{"space": "s1"})

	first := store.Read(key)
	require.Equal(t, resource.StatusFetching, first.Status)

	waited := make(chan error, 1)
	go func() {
		_, err := store.ReadWait(context.Background(), key)
		waited <- err
	}()
	// Let the waiter park on the in-flight fetch before dropping the entry.
	time.Sleep(20 * time.Millisecond)

	store.Drop(key)
	close(gate)

	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadWait still blocked after the dropped entry's fetch settled")
	}
}

func TestStore_FreshForExpiry(t *testing.T) {
	remote := &fakeRemote{}
	remote.setListFn(func(resource.Type, map[string]string) (*resource.List, error) {
		return listOf(`{"id":"x"}`), nil
	})
	store := NewStore(remote, WithFreshFor(10*time.Millisecond))
	key := resource.ListKey(resource.TypeGroceries, map[string]string{"space": "s1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := store.ReadWait(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(1), atomic.LoadInt64(&remote.listCalls))

	time.Sleep(20 * time.Millisecond)

	_, err = store.ReadWait(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&remote.listCalls), "expired entry must refetch")
}

func TestStore_Stats(t *testing.T) {
	remote := &fakeRemote{}
	store := NewStore(remote)
	key := resource.ListKey(resource.TypeMeals, map[string]string{"space": "s1"})

	store.Read(key) // miss
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := store.ReadWait(ctx, key)
	require.NoError(t, err)
	store.Read(key) // hit

	hits, misses := store.Stats()
	assert.GreaterOrEqual(t, hits, int64(1))
	assert.GreaterOrEqual(t, misses, int64(1))
}
