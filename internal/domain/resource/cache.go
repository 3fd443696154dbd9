package resource

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a point-in-time snapshot of one cache slot. Values are copies;
// holders can never reach into store-owned state.
type Entry struct {
	Key           Key
	Value         json.RawMessage
	Status        Status
	LastFetchedAt time.Time
	Err           error
}

// HasValue reports whether the entry carries a usable payload. Stale and
// errored entries keep their last good value (stale-while-revalidate), so
// status alone does not answer this.
func (e Entry) HasValue() bool {
	return len(e.Value) > 0
}

// WritePair couples a key with the value to write. Used for multi-key writes
// that must be applied atomically.
type WritePair struct {
	Key   Key
	Value json.RawMessage
}

// SubscriptionFunc receives entry snapshots on every status or value
// transition of the subscribed key.
type SubscriptionFunc func(Entry)

// CancelFunc releases a subscription. Callers must invoke it on teardown;
// the returned-cancel shape makes the acquisition/release pairing explicit.
type CancelFunc func()

// Cache is the process-wide resource cache consumed by views and application
// services. Implementations live in infrastructure.
type Cache interface {
	// Read returns the current entry snapshot synchronously. An absent or
	// stale entry triggers a single asynchronous fetch through the remote
	// collaborator; concurrent reads of the same key share that fetch.
	Read(key Key) Entry

	// ReadWait behaves like Read but blocks until the entry holds a usable
	// value or the in-flight fetch fails, honoring ctx cancellation.
	ReadWait(ctx context.Context, key Key) (Entry, error)

	// Write replaces the entry value and marks it fresh.
	Write(key Key, value json.RawMessage)

	// WriteAll applies every pair under a single lock so that no reader can
	// observe a partially applied multi-key write.
	WriteAll(pairs []WritePair)

	// Drop removes an entry outright. Used to roll back optimistic writes
	// against keys that had no entry before the mutation.
	Drop(key Key)

	// Invalidate marks every entry matching the pattern stale without
	// clearing values, and returns how many entries were marked.
	Invalidate(pattern Key) int

	// Subscribe registers a callback for entry transitions on one key and
	// returns the cancel function that releases it.
	Subscribe(key Key, fn SubscriptionFunc) CancelFunc
}
