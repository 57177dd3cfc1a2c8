package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// 2024-01-15 is a Monday.
var testDay = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

// -- Mock Repository --

type mockRepo struct {
	Repository
	err error
}

func (m *mockRepo) ListDoctors(ctx context.Context) ([]Doctor, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.Repository.ListDoctors(ctx)
}

func (m *mockRepo) ListAppointments(ctx context.Context, doctorID string) ([]Appointment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.Repository.ListAppointments(ctx, doctorID)
}

func (m *mockRepo) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.Repository.GetDoctor(ctx, id)
}

func newTestRepo(t *testing.T, ds Dataset) Repository {
	t.Helper()
	repo, err := NewMemoryRepo(ds)
	if err != nil {
		t.Fatalf("NewMemoryRepo() error: %v", err)
	}
	return repo
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newTestRepo(t, DemoDataset(testDay)), DefaultSlotConfig(), time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return testDay.Add(13 * time.Hour) }
	return svc
}

func TestService_Appointments_ByDate(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Appointments(context.Background(), AppointmentQuery{DoctorID: "d1", Date: testDay.Add(15 * time.Hour)})
	if err != nil {
		t.Fatalf("Appointments() error: %v", err)
	}
	equalIDs(t, res.Appointments, "a1", "a2", "a3", "a4")
	if res.Doctor == nil || res.Doctor.ID != "d1" {
		t.Errorf("expected doctor d1, got %+v", res.Doctor)
	}
}

func TestService_Appointments_DefaultsToToday(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Appointments(context.Background(), AppointmentQuery{DoctorID: "d2"})
	if err != nil {
		t.Fatalf("Appointments() error: %v", err)
	}
	equalIDs(t, res.Appointments, "a6", "a7")
}

func TestService_Appointments_RangeWinsOverDate(t *testing.T) {
	svc := newTestService(t)
	q := AppointmentQuery{
		DoctorID: "d1",
		Date:     testDay.AddDate(0, 0, 5),
		Start:    testDay,
		End:      testDay.AddDate(0, 0, 2),
	}
	res, err := svc.Appointments(context.Background(), q)
	if err != nil {
		t.Fatalf("Appointments() error: %v", err)
	}
	equalIDs(t, res.Appointments, "a1", "a2", "a3", "a4", "a5")
}

func TestService_Appointments_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Appointments(ctx, AppointmentQuery{}); !errors.Is(err, ErrMissingDoctorID) {
		t.Errorf("expected ErrMissingDoctorID, got %v", err)
	}
	inverted := AppointmentQuery{DoctorID: "d1", Start: testDay.AddDate(0, 0, 1), End: testDay}
	if _, err := svc.Appointments(ctx, inverted); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestService_Appointments_HalfRangeFallsBackToDate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    AppointmentQuery
	}{
		{"start only", AppointmentQuery{DoctorID: "d1", Date: testDay, Start: testDay}},
		{"end only", AppointmentQuery{DoctorID: "d1", Date: testDay, End: testDay.AddDate(0, 0, 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Appointments(ctx, tt.q)
			if err != nil {
				t.Fatalf("Appointments() error: %v", err)
			}
			// a5 on the following day is outside the date view
			equalIDs(t, res.Appointments, "a1", "a2", "a3", "a4")
		})
	}
}

func TestService_Appointments_UnknownDoctor(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Appointments(context.Background(), AppointmentQuery{DoctorID: "d404", Date: testDay})
	if err != nil {
		t.Fatalf("Appointments() error: %v", err)
	}
	if res.Doctor != nil {
		t.Errorf("expected nil doctor, got %+v", res.Doctor)
	}
	if res.Appointments == nil || len(res.Appointments) != 0 {
		t.Errorf("expected empty list, got %+v", res.Appointments)
	}
}

func TestService_Appointments_RepoError(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &mockRepo{Repository: newTestRepo(t, DemoDataset(testDay)), err: boom}
	svc := NewService(repo, DefaultSlotConfig(), time.UTC, zerolog.Nop())

	_, err := svc.Appointments(context.Background(), AppointmentQuery{DoctorID: "d1", Date: testDay})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestService_PopulatedAppointments_DropsDangling(t *testing.T) {
	ds := DemoDataset(testDay)
	ds.Appointments = append(ds.Appointments, Appointment{
		ID: "ghost", DoctorID: "d1", PatientID: "p404",
		StartTime: testDay.Add(12 * time.Hour), EndTime: testDay.Add(12*time.Hour + 30*time.Minute), Type: TypeCheckup,
	})
	svc := NewService(newTestRepo(t, ds), DefaultSlotConfig(), time.UTC, zerolog.Nop())

	res, err := svc.PopulatedAppointments(context.Background(), AppointmentQuery{DoctorID: "d1", Date: testDay})
	if err != nil {
		t.Fatalf("PopulatedAppointments() error: %v", err)
	}
	if res.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", res.Dropped)
	}
	if len(res.Appointments) != 4 {
		t.Fatalf("expected 4 populated, got %d", len(res.Appointments))
	}
	if res.Appointments[0].Patient.Name != "John Smith" || res.Appointments[0].Doctor.ID != "d1" {
		t.Errorf("unexpected enrichment: %+v", res.Appointments[0])
	}
	if res.Appointments[1].DurationMinutes != 60 {
		t.Errorf("expected a2 to last 60 minutes, got %d", res.Appointments[1].DurationMinutes)
	}
}

// patientErrRepo fails patient lookups with err.
type patientErrRepo struct {
	Repository
	err error
}

func (r *patientErrRepo) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return nil, r.err
}

func TestService_PopulatedAppointments_LookupError(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &patientErrRepo{Repository: newTestRepo(t, DemoDataset(testDay)), err: boom}
	svc := NewService(repo, DefaultSlotConfig(), time.UTC, zerolog.Nop())

	_, err := svc.PopulatedAppointments(context.Background(), AppointmentQuery{DoctorID: "d1", Date: testDay})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped patient lookup error, got %v", err)
	}
}

// countingRepo counts per-ID patient lookups.
type countingRepo struct {
	Repository
	patientCalls int
}

func (r *countingRepo) GetPatient(ctx context.Context, id string) (*Patient, error) {
	r.patientCalls++
	return r.Repository.GetPatient(ctx, id)
}

func TestService_PopulatedAppointments_LooksUpEachPatientOnce(t *testing.T) {
	ds := DemoDataset(testDay)
	// p1 twice on the same day
	ds.Appointments = append(ds.Appointments, Appointment{
		ID: "a9", DoctorID: "d1", PatientID: "p1",
		StartTime: testDay.Add(16 * time.Hour), EndTime: testDay.Add(16*time.Hour + 30*time.Minute), Type: TypeFollowup,
	})
	repo := &countingRepo{Repository: newTestRepo(t, ds)}
	svc := NewService(repo, DefaultSlotConfig(), time.UTC, zerolog.Nop())

	res, err := svc.PopulatedAppointments(context.Background(), AppointmentQuery{DoctorID: "d1", Date: testDay})
	if err != nil {
		t.Fatalf("PopulatedAppointments() error: %v", err)
	}
	if len(res.Appointments) != 5 {
		t.Fatalf("expected 5 populated, got %d", len(res.Appointments))
	}
	if repo.patientCalls != 4 {
		t.Errorf("expected one lookup per distinct patient (4), got %d", repo.patientCalls)
	}
}

func TestService_Patients(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	patients, err := svc.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients() error: %v", err)
	}
	if len(patients) != 4 {
		t.Errorf("expected 4 patients, got %d", len(patients))
	}
	p, err := svc.GetPatient(ctx, "p3")
	if err != nil || p.Name != "David Kim" {
		t.Errorf("expected David Kim, got %+v (%v)", p, err)
	}
	if _, err := svc.GetPatient(ctx, "p404"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestService_DayView(t *testing.T) {
	svc := newTestService(t)
	view, err := svc.DayView(context.Background(), "d1", testDay)
	if err != nil {
		t.Fatalf("DayView() error: %v", err)
	}
	if len(view.Slots) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(view.Slots))
	}
	if view.WorkingHours == nil || view.WorkingHours.Start != "09:00" {
		t.Errorf("expected monday hours, got %+v", view.WorkingHours)
	}
	if view.Doctor == nil || view.Doctor.ID != "d1" {
		t.Errorf("expected doctor d1, got %+v", view.Doctor)
	}
	// [10:30, 11:00) holds the double booking a2/a3
	slot := view.Slots[5]
	if slot.Label != "10:30 AM" || len(slot.Appointments) != 2 {
		t.Errorf("expected a2 and a3 in 10:30 slot, got %s with %d", slot.Label, len(slot.Appointments))
	}
	if view.Empty {
		t.Error("view should not be empty")
	}
}

func TestService_DayView_EmptyDay(t *testing.T) {
	svc := newTestService(t)
	view, err := svc.DayView(context.Background(), "d3", testDay.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("DayView() error: %v", err)
	}
	if !view.Empty || len(view.Slots) != 20 {
		t.Errorf("expected empty view with 20 slots, got empty=%v slots=%d", view.Empty, len(view.Slots))
	}
}

func TestService_DayView_AllDroppedIsNotEmpty(t *testing.T) {
	ds := DemoDataset(testDay)
	// a8 is d3's only appointment that day; point it at a missing patient
	for i := range ds.Appointments {
		if ds.Appointments[i].ID == "a8" {
			ds.Appointments[i].PatientID = "p404"
		}
	}
	svc := NewService(newTestRepo(t, ds), DefaultSlotConfig(), time.UTC, zerolog.Nop())

	view, err := svc.DayView(context.Background(), "d3", testDay)
	if err != nil {
		t.Fatalf("DayView() error: %v", err)
	}
	if len(view.Appointments) != 0 || view.Dropped != 1 {
		t.Fatalf("expected a8 dropped, got %d appointments and %d dropped", len(view.Appointments), view.Dropped)
	}
	if view.Empty {
		t.Error("a day with dropped appointments must not report empty")
	}
}

func TestService_DayViewWith_InvalidConfig(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.DayViewWith(context.Background(), "d1", testDay, SlotConfig{StartHour: 10, EndHour: 9, SlotMinutes: 30})
	if !errors.Is(err, ErrInvalidSlotConfig) {
		t.Errorf("expected ErrInvalidSlotConfig, got %v", err)
	}
}

func TestService_Conflicts(t *testing.T) {
	svc := newTestService(t)
	report, err := svc.Conflicts(context.Background(), "d1", testDay)
	if err != nil {
		t.Fatalf("Conflicts() error: %v", err)
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(report.Conflicts))
	}
	if report.Conflicts[0].First.ID != "a2" || report.Conflicts[0].Second.ID != "a3" {
		t.Errorf("unexpected pair %s/%s", report.Conflicts[0].First.ID, report.Conflicts[0].Second.ID)
	}
	if report.Date != "2024-01-15" {
		t.Errorf("unexpected date %s", report.Date)
	}
}

func TestService_CheckOverlap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CheckOverlap(ctx, "a3")
	if err != nil {
		t.Fatalf("CheckOverlap() error: %v", err)
	}
	if !res.Overlaps || len(res.With) != 1 || res.With[0].ID != "a2" {
		t.Errorf("expected a3 to overlap a2, got %+v", res)
	}

	res, err = svc.CheckOverlap(ctx, "a1")
	if err != nil {
		t.Fatalf("CheckOverlap() error: %v", err)
	}
	if res.Overlaps {
		t.Errorf("a1 should not overlap itself or others, got %+v", res.With)
	}

	// touching appointments of d2 (07:30-08:30 and 08:30-09:00)
	res, err = svc.CheckOverlap(ctx, "a7")
	if err != nil {
		t.Fatalf("CheckOverlap() error: %v", err)
	}
	if res.Overlaps {
		t.Error("touching appointments must not overlap")
	}

	if _, err := svc.CheckOverlap(ctx, "nope"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestService_GetDoctor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc, err := svc.GetDoctor(ctx, "d2")
	if err != nil {
		t.Fatalf("GetDoctor() error: %v", err)
	}
	if doc.DisplayName() != "Dr. Michael Rodriguez - Pediatrics" {
		t.Errorf("unexpected display name %q", doc.DisplayName())
	}
	if _, err := svc.GetDoctor(ctx, "d404"); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
	if _, err := svc.GetDoctor(ctx, ""); !errors.Is(err, ErrMissingDoctorID) {
		t.Errorf("expected ErrMissingDoctorID, got %v", err)
	}
}

func TestService_ListDoctors(t *testing.T) {
	svc := newTestService(t)
	docs, err := svc.ListDoctors(context.Background())
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if len(docs) != 3 || docs[0].ID != "d1" {
		t.Errorf("unexpected doctors %+v", docs)
	}
}
