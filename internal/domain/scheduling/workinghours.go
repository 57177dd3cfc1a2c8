package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in query parameters and payloads.
const DateLayout = "2006-01-02"

var weekdayKeys = [7]DayOfWeek{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// DayOfWeekFrom maps a time.Weekday onto its working-hours key.
func DayOfWeekFrom(w time.Weekday) DayOfWeek {
	return weekdayKeys[int(w)%7]
}

// ParseDayOfWeek accepts a lower- or mixed-case English weekday name.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range weekdayKeys {
		if k == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid day of week %q", s)
}

// HoursOn returns the doctor's working hours for weekday, if any.
func (d Doctor) HoursOn(weekday time.Weekday) (WorkingHours, bool) {
	wh, ok := d.WorkingHours[DayOfWeekFrom(weekday)]
	return wh, ok
}

// Bounds resolves the clock strings against date's calendar day.
func (wh WorkingHours) Bounds(date time.Time) (Interval, error) {
	sh, sm, err := parseClock(wh.Start)
	if err != nil {
		return Interval{}, fmt.Errorf("working hours start: %w", err)
	}
	eh, em, err := parseClock(wh.End)
	if err != nil {
		return Interval{}, fmt.Errorf("working hours end: %w", err)
	}
	y, m, d := date.Date()
	iv := Interval{
		Start: time.Date(y, m, d, sh, sm, 0, 0, date.Location()),
		End:   time.Date(y, m, d, eh, em, 0, 0, date.Location()),
	}
	if !iv.Start.Before(iv.End) {
		return Interval{}, fmt.Errorf("working hours %s-%s: start must be before end", wh.Start, wh.End)
	}
	return iv, nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ParseDate parses a YYYY-MM-DD calendar date, or an RFC3339 instant, in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t.In(loc), nil
}
