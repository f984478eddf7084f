package schedule

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "five_field", expr: "0 */6 * * *", wantErr: false},
		{name: "six_field_with_seconds", expr: "30 0 */6 * * *", wantErr: false},
		{name: "descriptor", expr: "@hourly", wantErr: false},
		{name: "seven_field_year_rejected", expr: "0 0 * * * * 2026", wantErr: true},
		{name: "garbage", expr: "not a cron expression", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestIsManual(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"manual", true},
		{"Manual", true},
		{"  manual  ", true},
		{"0 * * * *", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsManual(tt.expr); got != tt.want {
			t.Errorf("IsManual(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestCalculateFetchUntilDate_BoundsToTwiceTheInterval(t *testing.T) {
	sched, err := ParseSchedule("0 * * * *") // hourly, on the hour
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	fetchSince := now.Add(-30 * 24 * time.Hour) // a month stale

	got := CalculateFetchUntilDate(sched, fetchSince, now)

	// interval is 1 hour, so the window should be capped to
	// fetchSince + 2h, well before now.
	want := fetchSince.Add(2 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("CalculateFetchUntilDate() = %v, want %v", got, want)
	}
	if !got.Before(now) {
		t.Errorf("expected bounded date %v to be before now %v", got, now)
	}
}

func TestCalculateFetchUntilDate_NeverExceedsNow(t *testing.T) {
	sched, err := ParseSchedule("0 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	fetchSince := now.Add(-5 * time.Minute) // fresh feed, caught up recently

	got := CalculateFetchUntilDate(sched, fetchSince, now)
	if got.After(now) {
		t.Errorf("CalculateFetchUntilDate() = %v, must never exceed now %v", got, now)
	}
	if !got.Equal(now) {
		t.Errorf("CalculateFetchUntilDate() = %v, want now %v for a freshly-synced feed", got, now)
	}
}

func TestTwoMostRecentTicks_ExpandsWindowUntilFound(t *testing.T) {
	// A sparse monthly schedule forces the geometric window expansion
	// past its initial 1-minute anchor.
	sched, err := ParseSchedule("0 0 1 * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	mostRecent, previous := twoMostRecentTicks(sched, now)
	if !mostRecent.After(previous) {
		t.Errorf("expected mostRecent %v to be after previous %v", mostRecent, previous)
	}
	if mostRecent.After(now) {
		t.Errorf("mostRecent tick %v must not be after now %v", mostRecent, now)
	}
}
