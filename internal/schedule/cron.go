// Package schedule drives per-feed cron ticks and manual triggers under
// a global concurrency cap.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ManualScheduleToken is the literal schedule value marking a feed as
// manual-only (no cron ticks, only ManualFeedRunner.Trigger).
const ManualScheduleToken = "manual"

// cronParser accepts 5-field (minute precision) and 6-field (optional
// leading seconds) expressions plus the standard @hourly/@daily/...
// aliases. 7-field year expressions are rejected because
// cron.SecondOptional never matches a 7-token expression.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression, rejecting malformed or
// 7-field (year-qualified) expressions.
func ParseSchedule(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) > 6 && !strings.HasPrefix(expr, "@") {
		return nil, fmt.Errorf("cron expression %q: 7-field year expressions are not supported", expr)
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// IsManual reports whether expr is the literal manual-schedule token.
func IsManual(expr string) bool {
	return strings.EqualFold(strings.TrimSpace(expr), ManualScheduleToken)
}

// CalculateFetchUntilDate bounds a per-run fetch window: min(now,
// fetchSince + 2*cronInterval), where cronInterval is derived from the
// two most recent ticks of sched relative to now. This keeps a feed
// that has been idle for months from scanning its entire history in a
// single enqueue pass.
func CalculateFetchUntilDate(sched cron.Schedule, fetchSince, now time.Time) time.Time {
	mostRecent, previous := twoMostRecentTicks(sched, now)
	interval := mostRecent.Sub(previous)
	if interval <= 0 {
		return now
	}

	calculated := fetchSince.Add(2 * interval)
	if calculated.Before(now) {
		return calculated
	}
	return now
}

// twoMostRecentTicks finds the two most recent ticks of sched at or
// before now. robfig/cron/v3's Schedule only exposes Next, not a
// previous-tick query (unlike Python's croniter.get_prev), so this
// scans forward from a geometrically expanding anchor until it has
// collected at least two ticks.
func twoMostRecentTicks(sched cron.Schedule, now time.Time) (mostRecent, previous time.Time) {
	window := time.Minute
	const maxWindow = 366 * 24 * time.Hour

	for {
		anchor := now.Add(-window)
		var ticks []time.Time
		for t := sched.Next(anchor); !t.After(now); t = sched.Next(t) {
			ticks = append(ticks, t)
			if len(ticks) > 4 {
				// Enough to take the last two; avoid pathological
				// sub-second schedules spinning forever.
				break
			}
		}
		if len(ticks) >= 2 {
			return ticks[len(ticks)-1], ticks[len(ticks)-2]
		}
		if window >= maxWindow {
			if len(ticks) == 1 {
				return ticks[0], ticks[0]
			}
			return now, now
		}
		window *= 2
	}
}
