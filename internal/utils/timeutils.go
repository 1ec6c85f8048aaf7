package utils

import (
	"fmt"
	"time"
)

// DurationDays converts a pair of timestamps into whole days, rounding up
// partial days so a two-week sprint ending at 23:59 still counts 14 days.
func DurationDays(start, end time.Time) int {
	if end.Before(start) {
		start, end = end, start
	}
	d := end.Sub(start)
	days := int(d.Hours() / 24)
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// FormatWindow renders a sprint window as "Jan 02 - Jan 15 (14 days)".
func FormatWindow(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "-"
	}
	if end.Before(start) {
		start, end = end, start
	}
	return fmt.Sprintf("%s - %s (%d days)",
		start.Format("Jan 02"), end.Format("Jan 02"), DurationDays(start, end))
}
