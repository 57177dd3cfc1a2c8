package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/dayview/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/appointments", h.ListAppointments)
	api.GET("/doctors/:id/day-view", h.GetDayView)
	api.GET("/doctors/:id/conflicts", h.GetConflicts)
	api.GET("/appointments/:id/overlap", h.CheckOverlap)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
}

// DoctorSummary is a doctor as listed by the selector, with the working
// hours of the current weekday when the doctor works that day.
type DoctorSummary struct {
	Doctor
	DisplayName string        `json:"display_name"`
	TodaysHours *WorkingHours `json:"todays_hours,omitempty"`
}

func (h *Handler) summarize(d Doctor) DoctorSummary {
	s := DoctorSummary{Doctor: d, DisplayName: d.DisplayName()}
	if wh, ok := d.HoursOn(h.svc.Today().Weekday()); ok {
		s.TodaysHours = &wh
	}
	return s
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	page := pagination.Slice(doctors, pg)
	items := make([]DoctorSummary, 0, len(page))
	for _, d := range page {
		items = append(items, h.summarize(d))
	}
	resp := pagination.NewResponse(items, len(doctors), pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	doc, err := h.svc.GetDoctor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.summarize(*doc))
}

// -- Patient Handlers --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, err := h.svc.ListPatients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	page := pagination.Slice(patients, pg)
	resp := pagination.NewResponse(page, len(patients), pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Appointment Handlers --

func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	if err := h.requireDoctor(c, q.DoctorID); err != nil {
		return err
	}

	if populated, _ := strconv.ParseBool(c.QueryParam("populated")); populated {
		res, err := h.svc.PopulatedAppointments(ctx, q)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
	res, err := h.svc.Appointments(ctx, q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetDayView(c echo.Context) error {
	doctorID := c.Param("id")
	if err := h.requireDoctor(c, doctorID); err != nil {
		return err
	}
	date, err := h.dateParam(c, "date")
	if err != nil {
		return err
	}
	cfg, err := h.slotParams(c)
	if err != nil {
		return err
	}
	view, err := h.svc.DayViewWith(c.Request().Context(), doctorID, date, cfg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetConflicts(c echo.Context) error {
	doctorID := c.Param("id")
	if err := h.requireDoctor(c, doctorID); err != nil {
		return err
	}
	date, err := h.dateParam(c, "date")
	if err != nil {
		return err
	}
	report, err := h.svc.Conflicts(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) CheckOverlap(c echo.Context) error {
	res, err := h.svc.CheckOverlap(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- helpers --

func (h *Handler) requireDoctor(c echo.Context, id string) error {
	if _, err := h.svc.GetDoctor(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return nil
}

func (h *Handler) parseQuery(c echo.Context) (AppointmentQuery, error) {
	q := AppointmentQuery{DoctorID: c.Param("id")}
	var err error
	if q.Date, err = h.dateParam(c, "date"); err != nil {
		return q, err
	}
	if q.Start, err = h.dateParam(c, "start"); err != nil {
		return q, err
	}
	if q.End, err = h.dateParam(c, "end"); err != nil {
		return q, err
	}
	// a bare end date covers that whole calendar day
	if s := c.QueryParam("end"); s != "" && len(s) == len(DateLayout) {
		q.End = q.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return q, nil
}

// dateParam parses an optional date query parameter. Missing values yield
// the zero time.
func (h *Handler) dateParam(c echo.Context, name string) (time.Time, error) {
	s := c.QueryParam(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(s, h.svc.Location())
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+": "+err.Error())
	}
	return t, nil
}

func (h *Handler) slotParams(c echo.Context) (SlotConfig, error) {
	cfg := h.svc.SlotConfig()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"start_hour", &cfg.StartHour},
		{"end_hour", &cfg.EndHour},
		{"slot_minutes", &cfg.SlotMinutes},
	} {
		s := c.QueryParam(p.name)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return cfg, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
		}
		*p.dst = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return cfg, nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMissingDoctorID), errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidSlotConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
