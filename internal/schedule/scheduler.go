package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// ProcessFunc runs the full per-feed pipeline; supplied by the
// coordinator so this package stays free of pipeline/db imports.
type ProcessFunc func(ctx context.Context, feedID string) error

// Scheduler holds a cron schedule per ready feed and dispatches
// ProcessFunc on each tick under a global concurrency cap. At most one
// task per feed runs at a time; overlapping ticks for a busy feed are
// dropped with a warning rather than queued.
type Scheduler struct {
	sem     *semaphore.Weighted
	process ProcessFunc

	mu      sync.Mutex
	running map[string]bool
	entries map[string]cron.EntryID
	cronner *cron.Cron

	wg sync.WaitGroup
}

// NewScheduler builds a scheduler dispatching under sem, the process-
// wide feed-concurrency semaphore shared with ManualFeedRunner.
func NewScheduler(sem *semaphore.Weighted, process ProcessFunc) *Scheduler {
	return &Scheduler{
		sem:     sem,
		process: process,
		running: make(map[string]bool),
		entries: make(map[string]cron.EntryID),
		cronner: cron.New(cron.WithParser(cronParser)),
	}
}

// Semaphore returns the shared feed-concurrency semaphore, for
// constructing a ManualFeedRunner against the same cap.
func (s *Scheduler) Semaphore() *semaphore.Weighted { return s.sem }

// AddFeed registers feedID on sched. Replacing an existing entry for the
// same feed is the caller's responsibility (remove then add).
func (s *Scheduler) AddFeed(feedID string, sched cron.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.cronner.Schedule(sched, cron.FuncJob(func() { s.dispatch(feedID) }))
	s.entries[feedID] = id
}

// RemoveFeed unregisters feedID, e.g. when reconciliation disables it.
func (s *Scheduler) RemoveFeed(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[feedID]; ok {
		s.cronner.Remove(id)
		delete(s.entries, feedID)
	}
}

func (s *Scheduler) dispatch(feedID string) {
	s.mu.Lock()
	if s.running[feedID] {
		s.mu.Unlock()
		slog.Warn("dropping overlapping tick, feed still running", "feed_id", feedID)
		return
	}
	s.running[feedID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, feedID)
			s.mu.Unlock()
		}()

		ctx := context.Background()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			slog.Error("failed to acquire feed concurrency slot", "feed_id", feedID, "error", err)
			return
		}
		defer s.sem.Release(1)

		if err := s.process(ctx, feedID); err != nil {
			slog.Error("scheduled feed processing failed", "feed_id", feedID, "error", err)
		}
	}()
}

// Start begins accepting ticks.
func (s *Scheduler) Start() {
	s.cronner.Start()
}

// Stop halts new ticks. If wait is true it blocks until all in-flight
// tasks complete; otherwise it returns immediately, leaving in-flight
// tasks to finish on their own (their context is not cancelled here —
// cancellation-on-stop is the caller's responsibility via a shared
// context if needed).
func (s *Scheduler) Stop(wait bool) {
	stopCtx := s.cronner.Stop()
	<-stopCtx.Done()
	if wait {
		s.wg.Wait()
	}
}

// WaitIdle blocks until no feed task is running, with a timeout.
func (s *Scheduler) WaitIdle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
