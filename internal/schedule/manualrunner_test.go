package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"
)

func TestManualFeedRunner_CoalescesOverlappingTriggers(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	if err := sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var calls int32
	done := make(chan struct{})
	r := NewManualFeedRunner(sem, func(ctx context.Context, feedID string) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(done)
		}
		return nil
	})

	ctx := context.Background()
	// The slot is held, so both triggers queue behind the same blocked
	// Acquire call; the second must coalesce into the first rather than
	// spawning a second pending task.
	r.Trigger(ctx, "feed-1")
	r.Trigger(ctx, "feed-1")

	sem.Release(1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process was never invoked")
	}
	// Give any errantly-coalesced second task a chance to run before asserting.
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (overlapping triggers must coalesce)", calls)
	}
}

func TestManualFeedRunner_SubsequentTriggerAfterCompletionRunsAgain(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	var calls int32
	allDone := make(chan struct{}, 2)
	r := NewManualFeedRunner(sem, func(ctx context.Context, feedID string) error {
		atomic.AddInt32(&calls, 1)
		allDone <- struct{}{}
		return nil
	})

	ctx := context.Background()
	r.Trigger(ctx, "feed-1")
	<-allDone

	r.Trigger(ctx, "feed-1")
	<-allDone

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2 (a trigger after the prior run finished must run again)", calls)
	}
}
