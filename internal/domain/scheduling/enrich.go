package scheduling

import "time"

// DoctorLookup resolves a doctor by identifier.
type DoctorLookup interface {
	DoctorByID(id string) (Doctor, bool)
}

// PatientLookup resolves a patient by identifier.
type PatientLookup interface {
	PatientByID(id string) (Patient, bool)
}

// Enrich joins a with its doctor and patient. It returns false, and no
// partial result, when either reference does not resolve.
func Enrich(a Appointment, doctors DoctorLookup, patients PatientLookup) (PopulatedAppointment, bool) {
	doc, ok := doctors.DoctorByID(a.DoctorID)
	if !ok {
		return PopulatedAppointment{}, false
	}
	pat, ok := patients.PatientByID(a.PatientID)
	if !ok {
		return PopulatedAppointment{}, false
	}
	return PopulatedAppointment{
		Appointment:     a,
		Doctor:          doc,
		Patient:         pat,
		DurationMinutes: int(a.Duration() / time.Minute),
	}, true
}

// EnrichAll enriches appts in order and drops the ones with dangling
// references. The dropped appointments are returned separately so callers
// can report them.
func EnrichAll(appts []Appointment, doctors DoctorLookup, patients PatientLookup) (populated []PopulatedAppointment, dropped []Appointment) {
	populated = make([]PopulatedAppointment, 0, len(appts))
	for _, a := range appts {
		p, ok := Enrich(a, doctors, patients)
		if !ok {
			dropped = append(dropped, a)
			continue
		}
		populated = append(populated, p)
	}
	return populated, dropped
}

// Directory is an in-memory index over a Dataset's doctors and patients.
// It is read-only after construction.
type Directory struct {
	doctors  []Doctor
	byDoctor map[string]Doctor
	patients map[string]Patient
}

// NewDirectory indexes doctors and patients by ID. When an ID repeats, the
// first record wins.
func NewDirectory(doctors []Doctor, patients []Patient) *Directory {
	d := &Directory{
		doctors:  make([]Doctor, 0, len(doctors)),
		byDoctor: make(map[string]Doctor, len(doctors)),
		patients: make(map[string]Patient, len(patients)),
	}
	for _, doc := range doctors {
		if _, dup := d.byDoctor[doc.ID]; dup {
			continue
		}
		d.byDoctor[doc.ID] = doc
		d.doctors = append(d.doctors, doc)
	}
	for _, p := range patients {
		if _, dup := d.patients[p.ID]; dup {
			continue
		}
		d.patients[p.ID] = p
	}
	return d
}

// DoctorByID implements DoctorLookup.
func (d *Directory) DoctorByID(id string) (Doctor, bool) {
	doc, ok := d.byDoctor[id]
	return doc, ok
}

// PatientByID implements PatientLookup.
func (d *Directory) PatientByID(id string) (Patient, bool) {
	p, ok := d.patients[id]
	return p, ok
}

// AllDoctors returns the indexed doctors in their original order.
func (d *Directory) AllDoctors() []Doctor {
	out := make([]Doctor, len(d.doctors))
	copy(out, d.doctors)
	return out
}
