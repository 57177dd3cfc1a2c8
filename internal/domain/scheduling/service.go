package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrMissingDoctorID     = errors.New("doctor_id is required")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrInvalidSlotConfig   = errors.New("invalid slot configuration")
)

var tracer = otel.Tracer("github.com/clinic/dayview/internal/domain/scheduling")

// AppointmentQuery selects a doctor's appointments either by calendar day or
// by a closed [Start, End] range. The range is used only when both Start and
// End are set, and then wins over Date. A half range falls back to Date; a
// zero Date means today.
type AppointmentQuery struct {
	DoctorID string
	Date     time.Time
	Start    time.Time
	End      time.Time
}

func (q AppointmentQuery) isRange() bool { return !q.Start.IsZero() && !q.End.IsZero() }

// AppointmentsResult is a sorted appointment list together with the doctor,
// which is nil when the identifier does not resolve.
type AppointmentsResult struct {
	Doctor       *Doctor       `json:"doctor,omitempty"`
	Appointments []Appointment `json:"appointments"`
}

// PopulatedResult is the enriched counterpart of AppointmentsResult.
type PopulatedResult struct {
	Doctor       *Doctor                `json:"doctor,omitempty"`
	Appointments []PopulatedAppointment `json:"appointments"`
	Dropped      int                    `json:"dropped"`
}

// ConflictReport lists the overlapping appointment pairs of a doctor's day.
type ConflictReport struct {
	DoctorID  string        `json:"doctor_id"`
	Date      string        `json:"date"`
	Conflicts []OverlapPair `json:"conflicts"`
}

// OverlapResult reports whether an appointment collides with another one of
// the same doctor.
type OverlapResult struct {
	AppointmentID string        `json:"appointment_id"`
	Overlaps      bool          `json:"overlaps"`
	With          []Appointment `json:"with"`
}

// Service runs the query, enrichment and bucketing functions over snapshots
// loaded from a Repository. It holds no mutable state.
type Service struct {
	repo  Repository
	slots SlotConfig
	loc   *time.Location
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(repo Repository, slots SlotConfig, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:  repo,
		slots: slots,
		loc:   loc,
		log:   logger.With().Str("component", "scheduling").Logger(),
		now:   time.Now,
	}
}

// Location is the time zone calendar dates are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// SlotConfig returns the default day geometry.
func (s *Service) SlotConfig() SlotConfig { return s.slots }

// Today returns midnight of the current day in the service location.
func (s *Service) Today() time.Time { return StartOfDay(s.now().In(s.loc)) }

// -- Doctors --

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	if id == "" {
		return nil, ErrMissingDoctorID
	}
	doc, err := s.repo.GetDoctor(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDoctorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return doc, nil
}

// lookupDoctor is GetDoctor with a miss reported as nil.
func (s *Service) lookupDoctor(ctx context.Context, id string) (*Doctor, error) {
	doc, err := s.GetDoctor(ctx, id)
	if errors.Is(err, ErrDoctorNotFound) {
		return nil, nil
	}
	return doc, err
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// -- Appointments --

// Appointments returns the doctor's appointments matching q, sorted by start time.
func (s *Service) Appointments(ctx context.Context, q AppointmentQuery) (*AppointmentsResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.Appointments", trace.WithAttributes(
		attribute.String("doctor.id", q.DoctorID),
		attribute.Bool("query.range", q.isRange()),
	))
	defer span.End()

	res, err := s.appointments(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("appointments.count", len(res.Appointments)))
	return res, nil
}

func (s *Service) appointments(ctx context.Context, q AppointmentQuery) (*AppointmentsResult, error) {
	if q.DoctorID == "" {
		return nil, ErrMissingDoctorID
	}
	if q.isRange() && q.End.Before(q.Start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}

	doc, err := s.lookupDoctor(ctx, q.DoctorID)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListAppointments(ctx, q.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	var matched []Appointment
	if q.isRange() {
		matched = ByDoctorAndDateRange(all, q.DoctorID, q.Start, q.End)
	} else {
		matched = ByDoctorAndDate(all, q.DoctorID, s.day(q.Date))
	}
	return &AppointmentsResult{Doctor: doc, Appointments: SortByStartTime(matched)}, nil
}

// PopulatedAppointments is Appointments joined with doctor and patient
// records. Appointments whose references do not resolve are dropped.
func (s *Service) PopulatedAppointments(ctx context.Context, q AppointmentQuery) (*PopulatedResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.PopulatedAppointments", trace.WithAttributes(
		attribute.String("doctor.id", q.DoctorID),
	))
	defer span.End()

	res, err := s.appointments(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	populated, dropped, err := s.enrich(ctx, res.Appointments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("appointments.count", len(populated)), attribute.Int("appointments.dropped", dropped))
	return &PopulatedResult{Doctor: res.Doctor, Appointments: populated, Dropped: dropped}, nil
}

func (s *Service) enrich(ctx context.Context, appts []Appointment) ([]PopulatedAppointment, int, error) {
	lookup := newRepoLookup(ctx, s.repo)
	populated, dropped := EnrichAll(appts, lookup, lookup)
	if lookup.err != nil {
		return nil, 0, lookup.err
	}
	for _, a := range dropped {
		s.log.Debug().
			Str("appointment_id", a.ID).
			Str("doctor_id", a.DoctorID).
			Str("patient_id", a.PatientID).
			Msg("dropping appointment with unresolved reference")
	}
	return populated, len(dropped), nil
}

// -- Day view --

// DayView buckets the doctor's appointments on date into the configured slots.
func (s *Service) DayView(ctx context.Context, doctorID string, date time.Time) (*DayView, error) {
	return s.DayViewWith(ctx, doctorID, date, s.slots)
}

// DayViewWith is DayView with an explicit slot geometry.
func (s *Service) DayViewWith(ctx context.Context, doctorID string, date time.Time, cfg SlotConfig) (*DayView, error) {
	ctx, span := tracer.Start(ctx, "scheduling.DayView", trace.WithAttributes(
		attribute.String("doctor.id", doctorID),
	))
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlotConfig, err)
	}
	day := s.day(date)
	res, err := s.PopulatedAppointments(ctx, AppointmentQuery{DoctorID: doctorID, Date: day})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	view := BuildDayView(day, res.Appointments, cfg)
	view.Doctor = res.Doctor
	view.Dropped = res.Dropped
	// a day whose appointments were all dropped is not an empty day
	view.Empty = len(res.Appointments) == 0 && res.Dropped == 0
	if res.Doctor != nil {
		if wh, ok := res.Doctor.HoursOn(day.Weekday()); ok {
			view.WorkingHours = &wh
		}
	}
	span.SetAttributes(attribute.Int("slots.count", len(view.Slots)))
	return &view, nil
}

// Conflicts reports every overlapping pair among the doctor's appointments on date.
func (s *Service) Conflicts(ctx context.Context, doctorID string, date time.Time) (*ConflictReport, error) {
	ctx, span := tracer.Start(ctx, "scheduling.Conflicts", trace.WithAttributes(
		attribute.String("doctor.id", doctorID),
	))
	defer span.End()

	day := s.day(date)
	res, err := s.appointments(ctx, AppointmentQuery{DoctorID: doctorID, Date: day})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &ConflictReport{
		DoctorID:  doctorID,
		Date:      day.Format(DateLayout),
		Conflicts: FindOverlaps(res.Appointments),
	}, nil
}

// CheckOverlap reports whether the appointment overlaps any other appointment
// of the same doctor. The appointment itself is excluded by ID.
func (s *Service) CheckOverlap(ctx context.Context, appointmentID string) (*OverlapResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.CheckOverlap", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	target, err := s.repo.GetAppointment(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get appointment %s: %w", appointmentID, err)
	}
	all, err := s.repo.ListAppointments(ctx, target.DoctorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	others := ExcludeID(ByDoctor(all, target.DoctorID), target.ID)
	with := make([]Appointment, 0)
	ti := target.Interval()
	for _, o := range SortByStartTime(others) {
		if Overlaps(ti, o.Interval()) {
			with = append(with, o)
		}
	}
	return &OverlapResult{
		AppointmentID: target.ID,
		Overlaps:      HasOverlap(*target, others),
		With:          with,
	}, nil
}

// day pins date to the service location, defaulting to today.
func (s *Service) day(date time.Time) time.Time {
	if date.IsZero() {
		return s.Today()
	}
	return date.In(s.loc)
}

// repoLookup resolves references one identifier at a time through the
// repository and remembers each answer, misses included, for the rest of the
// query. The first repository failure other than a miss is kept in err and
// turns every later lookup into a miss.
type repoLookup struct {
	ctx      context.Context
	repo     Repository
	doctors  map[string]*Doctor
	patients map[string]*Patient
	err      error
}

func newRepoLookup(ctx context.Context, repo Repository) *repoLookup {
	return &repoLookup{
		ctx:      ctx,
		repo:     repo,
		doctors:  make(map[string]*Doctor),
		patients: make(map[string]*Patient),
	}
}

func (l *repoLookup) DoctorByID(id string) (Doctor, bool) {
	d, seen := l.doctors[id]
	if !seen && l.err == nil {
		var err error
		d, err = l.repo.GetDoctor(l.ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			l.err = fmt.Errorf("get doctor %s: %w", id, err)
		}
		if err != nil {
			d = nil
		}
		l.doctors[id] = d
	}
	if d == nil {
		return Doctor{}, false
	}
	return *d, true
}

func (l *repoLookup) PatientByID(id string) (Patient, bool) {
	p, seen := l.patients[id]
	if !seen && l.err == nil {
		var err error
		p, err = l.repo.GetPatient(l.ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			l.err = fmt.Errorf("get patient %s: %w", id, err)
		}
		if err != nil {
			p = nil
		}
		l.patients[id] = p
	}
	if p == nil {
		return Patient{}, false
	}
	return *p, true
}
