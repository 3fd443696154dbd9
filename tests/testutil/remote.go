package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/spacehub/core/internal/domain/resource"
)

// FakeRemote is an in-memory implementation of resource.Remote. It holds
// collection and detail payloads like a server would, so a create followed by
// a refetch observes the created record. Failures are scripted per call.
type FakeRemote struct {
	mu      sync.Mutex
	lists   map[string]*resource.List
	details map[string]json.RawMessage

	createErr error
	updateErr error

	fetchListCalls int
	createCalls    int
}

// NewFakeRemote creates an empty fake remote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		lists:   make(map[string]*resource.List),
		details: make(map[string]json.RawMessage),
	}
}

// SeedList installs the server-side collection for a type and filter set.
func (f *FakeRemote) SeedList(t resource.Type, filters map[string]string, items ...json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l := &resource.List{Items: append([]json.RawMessage{}, items...)}
	l.Pagination.Total = len(items)
	f.lists[resource.ListKey(t, filters).String()] = l
}

// SeedDetail installs the server-side payload for a single resource.
func (f *FakeRemote) SeedDetail(t resource.Type, id string, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[string(t)+"/"+id] = bytes.Clone(payload)
}

// FailCreates makes every subsequent Create return err until cleared with nil.
func (f *FakeRemote) FailCreates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// FailUpdates makes every subsequent Update return err until cleared with nil.
func (f *FakeRemote) FailUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

// FetchListCalls returns how many list fetches the remote has served.
func (f *FakeRemote) FetchListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchListCalls
}

// CreateCalls returns how many creates the remote has accepted or rejected.
func (f *FakeRemote) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// FetchList retrieves a seeded collection. Unseeded keys return an empty list,
// matching a server with no records for the filter.
func (f *FakeRemote) FetchList(ctx context.Context, t resource.Type, filters map[string]string) (*resource.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchListCalls++
	l, ok := f.lists[resource.ListKey(t, filters).String()]
	if !ok {
		return &resource.List{Items: []json.RawMessage{}}, nil
	}
	out := &resource.List{
		Items:      make([]json.RawMessage, len(l.Items)),
		Pagination: l.Pagination,
	}
	for i, item := range l.Items {
		out.Items[i] = bytes.Clone(item)
	}
	return out, nil
}

// FetchOne retrieves a seeded detail payload or a 404.
func (f *FakeRemote) FetchOne(ctx context.Context, t resource.Type, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, ok := f.details[string(t)+"/"+id]
	if !ok {
		return nil, resource.NewRemoteError(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	return bytes.Clone(payload), nil
}

// Create appends the marshaled input to every seeded list of the type, so a
// later refetch reconciles against the accepted record.
func (f *FakeRemote) Create(ctx context.Context, t resource.Type, input any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	prefix := string(t) + "?"
	for key, l := range f.lists {
		if key == string(t) || strings.HasPrefix(key, prefix) {
			l.Append(bytes.Clone(raw))
		}
	}
	if id := payloadID(raw); id != "" {
		f.details[string(t)+"/"+id] = bytes.Clone(raw)
	}
	return raw, nil
}

// Update replaces the detail payload for the resource.
func (f *FakeRemote) Update(ctx context.Context, t resource.Type, id string, patch any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	f.details[string(t)+"/"+id] = bytes.Clone(raw)
	return raw, nil
}

// Delete removes the detail payload for the resource.
func (f *FakeRemote) Delete(ctx context.Context, t resource.Type, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.details, string(t)+"/"+id)
	return nil
}

func payloadID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}

var _ resource.Remote = (*FakeRemote)(nil)
