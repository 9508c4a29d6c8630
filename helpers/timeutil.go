package helpers

import (
	"strings"
	"time"
	// Embedded zone database so Europe/Warsaw resolves in minimal images
	_ "time/tzdata"
)

// naiveLayout renders a timestamp without any zone suffix
const naiveLayout = "2006-01-02T15:04:05.999999"

// Warsaw is the reference timezone of the Polish marketplaces
var Warsaw = mustLoadLocation("Europe/Warsaw")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// TimeWindow decides whether a bare HH:MM label posted today falls within a
// trailing window ending now. Labels are read as UTC wall-clock times on
// today's date; a label ahead of now is not recent.
type TimeWindow struct {
	Window time.Duration
	Now    func() time.Time
}

// NewTimeWindow creates a recency policy with the given window length
func NewTimeWindow(window time.Duration) *TimeWindow {
	return &TimeWindow{Window: window, Now: time.Now}
}

// WithinLastMinutes reports whether timeStr is at most Window old
func (w *TimeWindow) WithinLastMinutes(timeStr string) bool {
	parsed, err := time.Parse("15:04", strings.TrimSpace(timeStr))
	if err != nil {
		return false
	}

	now := w.Now().UTC()
	posted := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)

	// Labels are truncated to the minute
	if posted.After(now.Add(time.Minute)) {
		return false
	}
	return now.Sub(posted) <= w.Window
}

// NaiveISO renders t as ISO-8601 in its own location with the zone dropped
func NaiveISO(t time.Time) string {
	return t.Format(naiveLayout)
}
