package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/clinic/dayview/internal/domain/scheduling"
)

const clockLayout = "15:04"

// renderDayView prints view as a slot-by-slot timeline with appointment
// times in loc. An appointment that spans several slots is listed in each of
// them.
func renderDayView(w io.Writer, view *scheduling.DayView, loc *time.Location) error {
	if view.Doctor != nil {
		fmt.Fprintln(w, view.Doctor.DisplayName())
	}
	hours := "not working"
	if view.WorkingHours != nil {
		hours = view.WorkingHours.Start + "-" + view.WorkingHours.End
	}
	fmt.Fprintf(w, "%s  (working hours: %s)\n\n", view.Date, hours)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tTIME\tPATIENT\tTYPE")
	for _, slot := range view.Slots {
		if len(slot.Appointments) == 0 {
			fmt.Fprintf(tw, "%s\t\t-\t\n", slot.Label)
			continue
		}
		for i, a := range slot.Appointments {
			label := slot.Label
			if i > 0 {
				label = ""
			}
			fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%s\n", label,
				a.StartTime.In(loc).Format(clockLayout), a.EndTime.In(loc).Format(clockLayout), a.Patient.Name, a.Type)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if view.Empty {
		fmt.Fprintln(w, "\nNo appointments scheduled.")
	} else {
		fmt.Fprintf(w, "\n%d appointment(s)\n", len(view.Appointments))
	}
	if view.Dropped > 0 {
		fmt.Fprintf(w, "%d appointment(s) skipped: unknown doctor or patient\n", view.Dropped)
	}
	return nil
}
