package scheduling

import "time"

// Interval is a half-open time range [Start, End). Callers guarantee
// Start < End; malformed intervals are rejected at ingestion, not here.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether a and b share any instant. Touching intervals
// (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Contains reports whether point lies in [a.Start, a.End).
func Contains(point time.Time, a Interval) bool {
	return !point.Before(a.Start) && point.Before(a.End)
}
