// Package cleaner provides a worker that periodically purges trash entries
// whose retention has elapsed. A soft delete copies the object under the
// trash prefix, and the copy's modification time records when the deletion
// happened; the worker lists the prefix and permanently removes every entry
// older than the configured retention. The worker runs at a configurable
// interval, clamped to a minimum of one minute, and is designed to be
// started once from the composition root. It continues running until the
// context is done or Stop is called, logging its progress and any errors
// encountered along the way.
package cleaner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/pkg/metrics"
	"github.com/migadu/hako/storage"
)

// TrashStore defines the storage operations required by the purge worker.
// This allows for mocking in tests.
type TrashStore interface {
	List(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type PurgeWorker struct {
	store     TrashStore
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// New creates a new trash purge worker.
func New(store TrashStore, interval, retention time.Duration) *PurgeWorker {
	return &PurgeWorker{
		store:     store,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

func (w *PurgeWorker) Start(ctx context.Context) {
	log.Printf("[CLEANUP] worker starting with interval: %v, trash retention: %v", w.interval, w.retention)
	interval := w.interval

	const minAllowedInterval = time.Minute
	if interval < minAllowedInterval {
		log.Printf("[CLEANUP] WARNING: configured interval %v is less than minimum allowed %v. Using minimum.", interval, minAllowedInterval)
		interval = minAllowedInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[CLEANUP] worker stopped due to context cancellation")
				return
			case <-w.stopCh:
				log.Println("[CLEANUP] worker stopped due to stop signal")
				return
			case <-ticker.C:
				log.Println("[CLEANUP] running trash purge")
				purged, err := w.RunOnce(ctx)
				if err != nil {
					log.Printf("[CLEANUP] error: %v", err)
				} else if purged > 0 {
					log.Printf("[CLEANUP] purged %d trash entries older than %v", purged, w.retention)
				} else {
					log.Println("[CLEANUP] no trash entries past retention")
				}
			}
		}
	}()
}

// Stop signals the purge worker to stop
func (w *PurgeWorker) Stop() {
	close(w.stopCh)
}

// RunOnce performs a single purge pass and returns the number of entries
// removed. Per-entry failures are logged and skipped so one stuck object
// cannot block the rest; they will be retried on the next pass.
func (w *PurgeWorker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.store.List(ctx, consts.TrashPrefix, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list trash entries: %w", err)
	}

	cutoff := time.Now().Add(-w.retention)
	purged := 0
	for _, entry := range entries {
		// Check for context cancellation in the loop
		select {
		case <-ctx.Done():
			return purged, fmt.Errorf("purge aborted: %w", ctx.Err())
		default:
		}

		// The trash copy's modification time is the deletion time.
		if entry.ModifiedAt.After(cutoff) {
			continue
		}

		if err := w.store.Delete(ctx, entry.Key); err != nil {
			log.Printf("[CLEANUP] failed to purge %s: %v", entry.Key, err)
			metrics.TrashOperationsTotal.WithLabelValues("purge", "error").Inc()
			continue
		}
		purged++
	}

	if purged > 0 {
		metrics.TrashPurgedObjectsTotal.Add(float64(purged))
		metrics.TrashOperationsTotal.WithLabelValues("purge", "success").Add(float64(purged))
	}

	return purged, nil
}
