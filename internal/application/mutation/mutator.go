// Package mutation implements the optimistic mutation protocol: a write-path
// wrapper that applies a predicted state change to the resource cache before
// the server confirms it, and deterministically reverts on failure.
package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spacehub/core/internal/domain/resource"
)

// MutationStatus is the lifecycle state of a pending mutation.
type MutationStatus string

const (
	// StatusApplying means the predicted value is in the cache and the
	// remote call has not settled.
	StatusApplying MutationStatus = "applying"
	// StatusCommitted means the remote call succeeded and affected keys
	// were invalidated for authoritative re-fetch.
	StatusCommitted MutationStatus = "committed"
	// StatusRolledBack means the remote call failed and every affected key
	// was restored to its pre-mutation snapshot.
	StatusRolledBack MutationStatus = "rolled_back"
)

// Predictor maps the current cache value of one affected key to the value
// the user should see immediately. It must be pure: no I/O, no writes.
// A nil current value means the key had not been fetched yet.
type Predictor func(key resource.Key, current json.RawMessage) (json.RawMessage, error)

// RemoteCall performs the server-side effect of the mutation.
type RemoteCall func(ctx context.Context) error

// PendingMutation tracks one in-flight mutation: its affected keys, the
// snapshots needed for rollback, and its outcome.
type PendingMutation struct {
	ID        uuid.UUID
	Keys      []resource.Key
	Status    MutationStatus
	StartedAt time.Time

	// snapshot of prior values; keys absent before the mutation map to a
	// false presence flag and are dropped on rollback rather than restored
	// as empty values.
	snapshots map[string]snapshot
}

type snapshot struct {
	key     resource.Key
	value   json.RawMessage
	existed bool
}

// Metrics receives mutation outcomes. Implemented by the telemetry layer.
type Metrics interface {
	RecordMutation(ctx context.Context, committed bool)
}

// Mutator coordinates optimistic mutations against a resource cache.
// Mutations on overlapping keys are deliberately not serialized: last write
// wins and invalidation-triggered re-fetch is the correctness backstop.
type Mutator struct {
	cache   resource.Cache
	logger  *zap.Logger
	metrics Metrics

	mu      sync.Mutex
	pending map[uuid.UUID]*PendingMutation
}

// MutatorOption is a functional option for configuring the mutator
type MutatorOption func(*Mutator)

// WithLogger sets the logger for the mutator
func WithLogger(logger *zap.Logger) MutatorOption {
	return func(m *Mutator) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics sink for the mutator
func WithMetrics(metrics Metrics) MutatorOption {
	return func(m *Mutator) {
		m.metrics = metrics
	}
}

// NewMutator creates a mutator bound to the given cache.
func NewMutator(cache resource.Cache, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		cache:   cache,
		logger:  zap.NewNop(),
		pending: make(map[uuid.UUID]*PendingMutation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mutate runs the optimistic protocol over the affected keys:
//
//  1. Snapshot current values for every affected key.
//  2. Apply the predictor output in a single atomic multi-key write; this
//     is what the user sees before any network round-trip completes.
//  3. Invoke the remote call.
//  4. On success, invalidate the affected keys (forcing an eventual
//     authoritative re-fetch that reconciles server-computed fields) and
//     discard the snapshots.
//  5. On failure, restore every affected key to its snapshot and surface
//     the error to the caller.
//
// A predictor error aborts before any cache write, leaving no partial state.
func (m *Mutator) Mutate(ctx context.Context, keys []resource.Key, predict Predictor, call RemoteCall) error {
	if len(keys) == 0 {
		return fmt.Errorf("mutation requires at least one affected key")
	}

	pm := &PendingMutation{
		ID:        uuid.New(),
		Keys:      keys,
		Status:    StatusApplying,
		StartedAt: time.Now(),
		snapshots: make(map[string]snapshot, len(keys)),
	}

	// Snapshot and predict before touching the cache. Entry values are
	// already caller-owned copies, so the snapshots cannot be mutated
	// underneath us.
	writes := make([]resource.WritePair, 0, len(keys))
	for _, key := range keys {
		entry := m.cache.Read(key)
		pm.snapshots[key.String()] = snapshot{
			key:     key,
			value:   entry.Value,
			existed: entry.HasValue(),
		}
		predicted, err := predict(key, entry.Value)
		if err != nil {
			return fmt.Errorf("predict %s: %w", key.String(), err)
		}
		writes = append(writes, resource.WritePair{Key: key, Value: predicted})
	}

	m.track(pm)
	m.cache.WriteAll(writes)

	err := call(ctx)
	if err != nil {
		m.rollback(pm)
		m.finish(ctx, pm, StatusRolledBack)
		m.logger.Warn("mutation rolled back",
			zap.String("mutation_id", pm.ID.String()),
			zap.Int("keys", len(keys)),
			zap.Error(err))
		return fmt.Errorf("mutation rejected: %w", err)
	}

	for _, key := range keys {
		m.cache.Invalidate(key)
	}
	m.finish(ctx, pm, StatusCommitted)
	m.logger.Debug("mutation committed",
		zap.String("mutation_id", pm.ID.String()),
		zap.Int("keys", len(keys)),
		zap.Duration("elapsed", time.Since(pm.StartedAt)))
	return nil
}

// Pending returns the number of mutations currently applying.
func (m *Mutator) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// rollback restores every affected key to its pre-mutation snapshot. Keys
// that had no value before the mutation are dropped outright so a failed
// create does not leave an empty entry behind.
func (m *Mutator) rollback(pm *PendingMutation) {
	restores := make([]resource.WritePair, 0, len(pm.snapshots))
	for _, snap := range pm.snapshots {
		if snap.existed {
			restores = append(restores, resource.WritePair{Key: snap.key, Value: snap.value})
		} else {
			m.cache.Drop(snap.key)
		}
	}
	if len(restores) > 0 {
		m.cache.WriteAll(restores)
	}
}

func (m *Mutator) track(pm *PendingMutation) {
	m.mu.Lock()
	m.pending[pm.ID] = pm
	m.mu.Unlock()
}

func (m *Mutator) finish(ctx context.Context, pm *PendingMutation, status MutationStatus) {
	m.mu.Lock()
	pm.Status = status
	pm.snapshots = nil
	delete(m.pending, pm.ID)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordMutation(ctx, status == StatusCommitted)
	}
}
