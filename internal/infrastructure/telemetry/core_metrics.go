package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/spacehub/core/internal/application/mutation"
	"github.com/spacehub/core/internal/domain/inventory"
	"github.com/spacehub/core/internal/domain/resource"
	"github.com/spacehub/core/internal/infrastructure/cache"
)

// CoreMetrics tracks cache activity, mutation outcomes, and derived stock
// health for the client core. It satisfies the metric sinks that the cache
// store and the mutator accept.
type CoreMetrics struct {
	logger *zap.Logger

	cacheHitTotal      *Counter
	cacheMissTotal     *Counter
	fetchTotal         *Counter
	fetchDuration      *Histogram
	mutationTotal      *Counter
	lowStockItemCount  *Gauge
	outOfStockItemCnt  *Gauge
	stockMovementTotal *Counter
}

var (
	_ cache.Metrics    = (*CoreMetrics)(nil)
	_ mutation.Metrics = (*CoreMetrics)(nil)
)

// NewCoreMetrics creates the client-core metric set on the given meter.
func NewCoreMetrics(meter metric.Meter, logger *zap.Logger) (*CoreMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &CoreMetrics{logger: logger}

	var err error
	cm.cacheHitTotal, err = NewCounter(meter,
		"spacehub_cache_hit_total",
		"Total number of cache reads served from a populated entry",
		"{reads}",
	)
	if err != nil {
		return nil, err
	}

	cm.cacheMissTotal, err = NewCounter(meter,
		"spacehub_cache_miss_total",
		"Total number of cache reads that found no usable value",
		"{reads}",
	)
	if err != nil {
		return nil, err
	}

	cm.fetchTotal, err = NewCounter(meter,
		"spacehub_fetch_total",
		"Total number of remote fetches, by outcome",
		"{fetches}",
	)
	if err != nil {
		return nil, err
	}

	cm.fetchDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "spacehub_fetch_duration_seconds",
		Description: "Remote fetch duration",
		Unit:        "s",
		Boundaries:  FetchDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	cm.mutationTotal, err = NewCounter(meter,
		"spacehub_mutation_total",
		"Total number of optimistic mutations, by outcome",
		"{mutations}",
	)
	if err != nil {
		return nil, err
	}

	cm.lowStockItemCount, err = NewGauge(meter,
		"spacehub_inventory_low_stock_items",
		"Number of inventory items at or below the low-stock threshold",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	cm.outOfStockItemCnt, err = NewGauge(meter,
		"spacehub_inventory_out_of_stock_items",
		"Number of inventory items with zero or negative derived stock",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	cm.stockMovementTotal, err = NewCounter(meter,
		"spacehub_stock_movement_total",
		"Total number of stock movements recorded through this client",
		"{movements}",
	)
	if err != nil {
		return nil, err
	}

	return cm, nil
}

// RecordCacheHit counts a read served from a populated entry.
func (cm *CoreMetrics) RecordCacheHit(ctx context.Context, t resource.Type) {
	cm.cacheHitTotal.Inc(ctx, AttrResourceType.String(string(t)))
}

// RecordCacheMiss counts a read that found no usable value.
func (cm *CoreMetrics) RecordCacheMiss(ctx context.Context, t resource.Type) {
	cm.cacheMissTotal.Inc(ctx, AttrResourceType.String(string(t)))
}

// RecordFetch records one remote fetch and its latency.
func (cm *CoreMetrics) RecordFetch(ctx context.Context, t resource.Type, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	cm.fetchTotal.Inc(ctx,
		AttrResourceType.String(string(t)),
		AttrFetchOutcome.String(outcome),
	)
	cm.fetchDuration.RecordDuration(ctx, d,
		AttrResourceType.String(string(t)),
		AttrFetchOutcome.String(outcome),
	)
}

// RecordMutation counts one optimistic mutation outcome.
func (cm *CoreMetrics) RecordMutation(ctx context.Context, committed bool) {
	outcome := "committed"
	if !committed {
		outcome = "rolled_back"
	}
	cm.mutationTotal.Inc(ctx, AttrMutationKind.String(outcome))
}

// RecordStockMovement counts a movement recorded through this client.
func (cm *CoreMetrics) RecordStockMovement(ctx context.Context, source inventory.MovementSource) {
	cm.stockMovementTotal.Inc(ctx, AttrMovementSource.String(source.String()))
}

// RecordStockHealth records the low-stock and out-of-stock item counts
// observed by one derivation pass.
func (cm *CoreMetrics) RecordStockHealth(ctx context.Context, lowStock, outOfStock int64) {
	cm.lowStockItemCount.Record(ctx, lowStock)
	cm.outOfStockItemCnt.Record(ctx, outOfStock)
}
