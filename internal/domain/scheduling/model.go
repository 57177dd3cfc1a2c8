package scheduling

import (
	"fmt"
	"time"
)

// AppointmentType is the visit category of an appointment.
type AppointmentType string

const (
	TypeCheckup      AppointmentType = "checkup"
	TypeConsultation AppointmentType = "consultation"
	TypeFollowup     AppointmentType = "followup"
	TypeProcedure    AppointmentType = "procedure"
)

var validAppointmentTypes = map[AppointmentType]bool{
	TypeCheckup: true, TypeConsultation: true, TypeFollowup: true, TypeProcedure: true,
}

// Valid reports whether t is one of the known appointment types.
func (t AppointmentType) Valid() bool { return validAppointmentTypes[t] }

// Appointment maps to the appointment table. Records are read-only once loaded.
type Appointment struct {
	ID        string          `db:"id" json:"id"`
	DoctorID  string          `db:"doctor_id" json:"doctor_id"`
	PatientID string          `db:"patient_id" json:"patient_id"`
	StartTime time.Time       `db:"start_time" json:"start_time"`
	EndTime   time.Time       `db:"end_time" json:"end_time"`
	Type      AppointmentType `db:"type" json:"type"`
	Notes     *string         `db:"notes" json:"notes,omitempty"`
}

// Interval returns the half-open [StartTime, EndTime) range of the appointment.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Duration returns EndTime - StartTime.
func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Validate checks the ingestion invariants. Query functions assume records
// that passed it.
func (a Appointment) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAppointment)
	}
	if a.DoctorID == "" {
		return fmt.Errorf("%w: appointment %s: doctor_id is required", ErrInvalidAppointment, a.ID)
	}
	if a.PatientID == "" {
		return fmt.Errorf("%w: appointment %s: patient_id is required", ErrInvalidAppointment, a.ID)
	}
	if !a.StartTime.Before(a.EndTime) {
		return fmt.Errorf("%w: appointment %s: start_time must be before end_time", ErrInvalidAppointment, a.ID)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: appointment %s: invalid type %q", ErrInvalidAppointment, a.ID, a.Type)
	}
	return nil
}

// DayOfWeek is the lower-case English weekday name used as working-hours key.
type DayOfWeek string

const (
	Sunday    DayOfWeek = "sunday"
	Monday    DayOfWeek = "monday"
	Tuesday   DayOfWeek = "tuesday"
	Wednesday DayOfWeek = "wednesday"
	Thursday  DayOfWeek = "thursday"
	Friday    DayOfWeek = "friday"
	Saturday  DayOfWeek = "saturday"
)

// WorkingHours holds local clock times in "HH:MM" 24h format.
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Doctor maps to the doctor table plus its doctor_working_hours rows.
type Doctor struct {
	ID           string                     `db:"id" json:"id"`
	Name         string                     `db:"name" json:"name"`
	Specialty    string                     `db:"specialty" json:"specialty"`
	WorkingHours map[DayOfWeek]WorkingHours `db:"-" json:"working_hours,omitempty"`
}

// DisplayName renders the doctor the way the selector lists them.
func (d Doctor) DisplayName() string {
	return fmt.Sprintf("Dr. %s - %s", d.Name, d.Specialty)
}

// Patient maps to the patient table. Display fields are opaque to the core.
type Patient struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
}

// PopulatedAppointment is an Appointment joined with its Doctor and Patient.
// It is derived per query and never stored.
type PopulatedAppointment struct {
	Appointment
	Doctor          Doctor  `json:"doctor"`
	Patient         Patient `json:"patient"`
	DurationMinutes int     `json:"duration_minutes"`
}

// TimeSlot is a fixed half-open display bucket [Start, End).
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Interval returns the slot range.
func (s TimeSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Dataset is a materialized snapshot of the backing collections.
type Dataset struct {
	Doctors      []Doctor      `json:"doctors"`
	Patients     []Patient     `json:"patients"`
	Appointments []Appointment `json:"appointments"`
}

// Validate runs Appointment.Validate over every appointment and rejects
// duplicate identifiers in any collection.
func (d Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Doctors))
	for _, doc := range d.Doctors {
		if doc.ID == "" || seen[doc.ID] {
			return fmt.Errorf("%w: duplicate or empty doctor id %q", ErrInvalidDataset, doc.ID)
		}
		seen[doc.ID] = true
	}
	seen = make(map[string]bool, len(d.Patients))
	for _, p := range d.Patients {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("%w: duplicate or empty patient id %q", ErrInvalidDataset, p.ID)
		}
		seen[p.ID] = true
	}
	seen = make(map[string]bool, len(d.Appointments))
	for _, a := range d.Appointments {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate appointment id %q", ErrInvalidDataset, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}
