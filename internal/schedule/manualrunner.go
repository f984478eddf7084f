package schedule

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ManualFeedRunner drives manual-only feeds (schedule == "manual"):
// Trigger coalesces requests for the same feed into a single task while
// that task is still queued for a concurrency slot.
type ManualFeedRunner struct {
	sem     *semaphore.Weighted
	process ProcessFunc

	mu     sync.Mutex
	active map[string]bool
}

func NewManualFeedRunner(sem *semaphore.Weighted, process ProcessFunc) *ManualFeedRunner {
	return &ManualFeedRunner{sem: sem, process: process, active: make(map[string]bool)}
}

// Trigger queues feedID for processing unless a task for it is already
// queued (waiting for a concurrency slot), in which case it is a no-op.
// A task that is already running does not absorb the trigger.
func (r *ManualFeedRunner) Trigger(ctx context.Context, feedID string) {
	r.mu.Lock()
	if r.active[feedID] {
		r.mu.Unlock()
		slog.Debug("manual trigger coalesced", "feed_id", feedID)
		return
	}
	r.active[feedID] = true
	r.mu.Unlock()

	go func() {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.mu.Lock()
			delete(r.active, feedID)
			r.mu.Unlock()
			slog.Error("manual trigger failed to acquire concurrency slot", "feed_id", feedID, "error", err)
			return
		}

		// Remove from the queued-tasks map once the slot is acquired:
		// a trigger arriving while this task is already running starts
		// a fresh task rather than coalescing into the current run.
		r.mu.Lock()
		delete(r.active, feedID)
		r.mu.Unlock()

		defer r.sem.Release(1)

		if err := r.process(ctx, feedID); err != nil {
			slog.Error("manual feed processing failed", "feed_id", feedID, "error", err)
		}
	}()
}
