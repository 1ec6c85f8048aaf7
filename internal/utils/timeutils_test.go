package utils

import (
	"testing"
	"time"
)

func TestFormatWindow(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)

	got := FormatWindow(start, end)
	want := "Jan 02 - Jan 15 (14 days)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	// Order-insensitive.
	if swapped := FormatWindow(end, start); swapped != want {
		t.Fatalf("expected %q for swapped args, got %q", want, swapped)
	}

	if got := FormatWindow(time.Time{}, time.Time{}); got != "-" {
		t.Fatalf("expected placeholder for zero window, got %q", got)
	}
}

func TestDurationDays(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := DurationDays(start, start.Add(48*time.Hour)); got != 2 {
		t.Fatalf("expected 2 days, got %d", got)
	}
	if got := DurationDays(start, start.Add(49*time.Hour)); got != 3 {
		t.Fatalf("expected partial day to round up to 3, got %d", got)
	}
}
