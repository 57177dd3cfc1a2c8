package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// SlotLabelLayout renders slot starts as "8:00 AM".
const SlotLabelLayout = "3:04 PM"

// SlotConfig describes how a business day is partitioned.
type SlotConfig struct {
	StartHour   int `json:"start_hour"`
	EndHour     int `json:"end_hour"`
	SlotMinutes int `json:"slot_minutes"`
}

// DefaultSlotConfig is 08:00-18:00 in 30 minute slots (20 slots a day).
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{StartHour: 8, EndHour: 18, SlotMinutes: 30}
}

// Validate rejects geometries that cannot produce at least one slot.
func (c SlotConfig) Validate() error {
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("start hour must be in 0..23, got %d", c.StartHour)
	}
	if c.EndHour < 1 || c.EndHour > 24 {
		return fmt.Errorf("end hour must be in 1..24, got %d", c.EndHour)
	}
	if c.EndHour <= c.StartHour {
		return fmt.Errorf("end hour %d must be after start hour %d", c.EndHour, c.StartHour)
	}
	if c.SlotMinutes <= 0 || c.SlotMinutes > (c.EndHour-c.StartHour)*60 {
		return fmt.Errorf("slot minutes must be in 1..%d, got %d", (c.EndHour-c.StartHour)*60, c.SlotMinutes)
	}
	return nil
}

// GenerateSlots partitions [startHour:00, endHour:00) of date's calendar day
// (in date's location) into contiguous slotMinutes-wide slots. A trailing
// remainder shorter than slotMinutes is not emitted. Invalid parameters
// yield an empty sequence.
func GenerateSlots(date time.Time, startHour, endHour, slotMinutes int) []TimeSlot {
	cfg := SlotConfig{StartHour: startHour, EndHour: endHour, SlotMinutes: slotMinutes}
	if cfg.Validate() != nil {
		return []TimeSlot{}
	}

	y, m, d := date.Date()
	loc := date.Location()
	n := (endHour - startHour) * 60 / slotMinutes

	slots := make([]TimeSlot, 0, n)
	for i := 0; i < n; i++ {
		start := time.Date(y, m, d, startHour, i*slotMinutes, 0, 0, loc)
		end := time.Date(y, m, d, startHour, (i+1)*slotMinutes, 0, 0, loc)
		slots = append(slots, TimeSlot{Start: start, End: end, Label: start.Format(SlotLabelLayout)})
	}
	return slots
}

// Assign returns the appointments that overlap slot under half-open
// semantics. That covers a start inside the slot, a start exactly at the
// slot start, and an appointment spanning into the slot from before it. An
// appointment starting exactly at slot.End is not assigned.
func Assign(slot TimeSlot, enriched []PopulatedAppointment) []PopulatedAppointment {
	si := slot.Interval()
	out := make([]PopulatedAppointment, 0)
	for _, p := range enriched {
		if Overlaps(p.Interval(), si) {
			out = append(out, p)
		}
	}
	return out
}

// SlotBucket is a slot together with the appointments assigned to it.
type SlotBucket struct {
	TimeSlot
	Appointments []PopulatedAppointment `json:"appointments"`
}

// DayView is the display-ready timeline of one doctor's day.
type DayView struct {
	Date         string                 `json:"date"`
	Doctor       *Doctor                `json:"doctor,omitempty"`
	WorkingHours *WorkingHours          `json:"working_hours,omitempty"`
	Slots        []SlotBucket           `json:"slots"`
	Appointments []PopulatedAppointment `json:"appointments"`
	Dropped      int                    `json:"dropped"`
	// Empty counts appointments before enrichment, so a day whose
	// appointments were all dropped is not empty.
	Empty bool `json:"empty"`
}

// BuildDayView sorts enriched by start time and buckets it into the slots of
// date described by cfg.
func BuildDayView(date time.Time, enriched []PopulatedAppointment, cfg SlotConfig) DayView {
	sorted := sortPopulated(enriched)
	slots := GenerateSlots(date, cfg.StartHour, cfg.EndHour, cfg.SlotMinutes)

	buckets := make([]SlotBucket, 0, len(slots))
	for _, s := range slots {
		buckets = append(buckets, SlotBucket{TimeSlot: s, Appointments: Assign(s, sorted)})
	}
	return DayView{
		Date:         date.Format(DateLayout),
		Slots:        buckets,
		Appointments: sorted,
		Empty:        len(sorted) == 0,
	}
}

func sortPopulated(in []PopulatedAppointment) []PopulatedAppointment {
	out := make([]PopulatedAppointment, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
