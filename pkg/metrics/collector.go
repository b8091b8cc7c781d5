package metrics

import (
	"context"
	"time"

	"github.com/migadu/hako/logger"
)

// BucketStats holds aggregate statistics gathered from the object store.
type BucketStats struct {
	Objects      int64
	SizeBytes    int64
	TrashedCount int64
	TrashedBytes int64
}

// StatsProvider is an interface for retrieving bucket statistics.
// It is satisfied by storage.BucketStore.
type StatsProvider interface {
	Stats(ctx context.Context) (BucketStats, error)
}

// Collector periodically refreshes the bucket statistics gauges. Each refresh
// performs a full bucket listing, so the interval should stay in the minutes
// range for large buckets.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new bucket statistics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 5 * time.Minute
	}

	return &Collector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the collection loop
func (c *Collector) Start(ctx context.Context) {
	// Collect immediately on start
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Info("MetricsCollector started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("MetricsCollector stopping due to context cancellation")
			return
		case <-c.stopCh:
			logger.Info("MetricsCollector stopping due to stop signal")
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// Stop signals the collector to stop
func (c *Collector) Stop() {
	close(c.stopCh)
}

// collect retrieves and updates the bucket statistics gauges
func (c *Collector) collect(ctx context.Context) {
	stats, err := c.provider.Stats(ctx)
	if err != nil {
		logger.Error("MetricsCollector: error collecting bucket stats", "error", err)
		return
	}

	ObjectsTotal.Set(float64(stats.Objects))
	BucketSizeBytes.Set(float64(stats.SizeBytes))
	TrashObjectsTotal.Set(float64(stats.TrashedCount))
	TrashSizeBytes.Set(float64(stats.TrashedBytes))

	logger.Debug("MetricsCollector: updated bucket stats", "objects", stats.Objects,
		"size_bytes", stats.SizeBytes, "trashed", stats.TrashedCount)
}
