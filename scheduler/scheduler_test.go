package scheduler

import (
	"testing"
	"time"
)

func TestNextCleanupRun(t *testing.T) {
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := NextCleanupRun(3, after)
	if err != nil {
		t.Fatalf("NextCleanupRun: %v", err)
	}
	want := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextCleanupRunSameDay(t *testing.T) {
	after := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	next, err := NextCleanupRun(3, after)
	if err != nil {
		t.Fatalf("NextCleanupRun: %v", err)
	}
	want := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}
