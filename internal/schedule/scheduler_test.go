package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"
)

func TestScheduler_DispatchesOnEveryTick(t *testing.T) {
	sched, err := ParseSchedule("@every 20ms")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	var calls int32
	done := make(chan struct{}, 1)
	s := NewScheduler(semaphore.NewWeighted(4), func(ctx context.Context, feedID string) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		return nil
	})

	s.AddFeed("feed-1", sched)
	s.Start()
	defer s.Stop(true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled process func was never invoked")
	}
}

func TestScheduler_DropsOverlappingTickForBusyFeed(t *testing.T) {
	sched, err := ParseSchedule("@every 10ms")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	var calls int32
	block := make(chan struct{})
	s := NewScheduler(semaphore.NewWeighted(4), func(ctx context.Context, feedID string) error {
		atomic.AddInt32(&calls, 1)
		<-block
		return nil
	})

	s.AddFeed("feed-1", sched)
	s.Start()

	// Let several ticks fire while the first invocation is still blocked.
	time.Sleep(150 * time.Millisecond)
	close(block)
	s.Stop(true)

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want exactly 1 (overlapping ticks for a busy feed must be dropped)", calls)
	}
}

func TestScheduler_RemoveFeedStopsFutureTicks(t *testing.T) {
	sched, err := ParseSchedule("@every 10ms")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	var calls int32
	s := NewScheduler(semaphore.NewWeighted(4), func(ctx context.Context, feedID string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	s.AddFeed("feed-1", sched)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.RemoveFeed("feed-1")
	afterRemoval := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	s.Stop(true)

	if atomic.LoadInt32(&calls) != afterRemoval {
		t.Errorf("calls grew from %d to %d after RemoveFeed, want no further ticks", afterRemoval, atomic.LoadInt32(&calls))
	}
}

func TestScheduler_WaitIdleTimesOutWhileTaskRuns(t *testing.T) {
	block := make(chan struct{})
	s := NewScheduler(semaphore.NewWeighted(4), func(ctx context.Context, feedID string) error {
		<-block
		return nil
	})

	sched, err := ParseSchedule("@every 5ms")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	s.AddFeed("feed-1", sched)
	s.Start()
	time.Sleep(20 * time.Millisecond)

	if s.WaitIdle(30 * time.Millisecond) {
		t.Error("WaitIdle returned true while a task was still running")
	}
	close(block)
	if !s.WaitIdle(2 * time.Second) {
		t.Error("WaitIdle returned false after the task completed")
	}
	s.Stop(true)
}
