package scheduling

import (
	"sort"
	"time"
)

// The functions in this file are pure reads: they never mutate their input
// and return an empty (non-nil) slice when nothing matches.

// ByDoctor returns the appointments of doctorID in their original order.
func ByDoctor(appts []Appointment, doctorID string) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range appts {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out
}

// ByDoctorAndDate returns the appointments of doctorID whose start falls on
// the same calendar day as date. Days are compared on local date components
// in date's location, so 00:10 and 23:50 of one day match.
func ByDoctorAndDate(appts []Appointment, doctorID string, date time.Time) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range appts {
		if a.DoctorID == doctorID && SameDay(a.StartTime, date) {
			out = append(out, a)
		}
	}
	return out
}

// ByDoctorAndDateRange returns the appointments of doctorID whose start lies
// in the closed range [start, end].
func ByDoctorAndDateRange(appts []Appointment, doctorID string, start, end time.Time) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range appts {
		if a.DoctorID != doctorID {
			continue
		}
		if a.StartTime.Before(start) || a.StartTime.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SortByStartTime returns a copy of appts ordered by ascending start time.
// Appointments with equal start keep their relative order.
func SortByStartTime(appts []Appointment) []Appointment {
	out := make([]Appointment, len(appts))
	copy(out, appts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// HasOverlap reports whether target overlaps any candidate. The target is
// not filtered out of candidates; use ExcludeID first when it may be present.
func HasOverlap(target Appointment, candidates []Appointment) bool {
	ti := target.Interval()
	for _, c := range candidates {
		if Overlaps(ti, c.Interval()) {
			return true
		}
	}
	return false
}

// ExcludeID returns appts without the appointment identified by id.
func ExcludeID(appts []Appointment, id string) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// OverlapPair is two appointments whose intervals overlap. First starts no
// later than Second.
type OverlapPair struct {
	First  Appointment `json:"first"`
	Second Appointment `json:"second"`
}

// FindOverlaps returns every overlapping pair in appts, ordered by the start
// time of the earlier appointment.
func FindOverlaps(appts []Appointment) []OverlapPair {
	sorted := SortByStartTime(appts)
	pairs := make([]OverlapPair, 0)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			// sorted by start: nothing later can overlap i once j starts at or after i ends
			if !sorted[j].StartTime.Before(sorted[i].EndTime) {
				break
			}
			if Overlaps(sorted[i].Interval(), sorted[j].Interval()) {
				pairs = append(pairs, OverlapPair{First: sorted[i], Second: sorted[j]})
			}
		}
	}
	return pairs
}

// SameDay reports whether a and b fall on the same calendar day, using the
// date components of both instants in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
