package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/service/scheduling"
	"glowdesk/backend/internal/store"
)

const tenantHeader = "X-Tenant-ID"

// schedulingService is the slice of the orchestrator the transport needs.
type schedulingService interface {
	CreateAppointment(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error)
	CreateRecurringSeries(ctx context.Context, in scheduling.RecurringInput) (scheduling.SeriesResult, error)
	RescheduleAppointment(ctx context.Context, in scheduling.RescheduleInput) (scheduling.BookingResult, error)
	CancelAppointment(ctx context.Context, in scheduling.CancelInput) (scheduling.BookingResult, error)
	ConfirmAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	CheckInAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	StartAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	CompleteAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	MarkNoShow(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	Availability(ctx context.Context, q scheduling.AvailabilityQuery) (domain.DayAvailability, error)
	AvailabilityRange(ctx context.Context, q scheduling.AvailabilityRangeQuery) ([]domain.DayAvailability, error)
	GetAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error)
}

type Server struct {
	svc schedulingService
	log *slog.Logger
}

func NewServer(svc schedulingService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc: svc,
		log: log.With(slog.String("component", "http")),
	}
}

func (s *Server) Routes(e *echo.Echo) {
	e.Use(middleware.Recover())

	v1 := e.Group("/v1")
	v1.GET("/availability", s.GetAvailability)
	v1.POST("/appointments", s.CreateAppointment)
	v1.POST("/appointments/recurring", s.CreateRecurringSeries)
	v1.GET("/appointments/:id", s.GetAppointment)
	v1.POST("/appointments/:id/reschedule", s.RescheduleAppointment)
	v1.POST("/appointments/:id/cancel", s.CancelAppointment)
	v1.POST("/appointments/:id/confirm", s.transitionHandler(s.svc.ConfirmAppointment))
	v1.POST("/appointments/:id/check-in", s.transitionHandler(s.svc.CheckInAppointment))
	v1.POST("/appointments/:id/start", s.transitionHandler(s.svc.StartAppointment))
	v1.POST("/appointments/:id/complete", s.transitionHandler(s.svc.CompleteAppointment))
	v1.POST("/appointments/:id/no-show", s.transitionHandler(s.svc.MarkNoShow))
}

// GetAvailability handles GET /v1/availability for one date or a date range.
func (s *Server) GetAvailability(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}

	durationMinutes, err := positiveIntParam(c, "duration_minutes")
	if err != nil {
		return err
	}
	duration := time.Duration(durationMinutes) * time.Minute

	if from := c.QueryParam("from"); from != "" {
		fromDate, err := dateParam(c, "from")
		if err != nil {
			return err
		}
		toDate, err := dateParam(c, "to")
		if err != nil {
			return err
		}
		professionalIDs := c.QueryParams()["professional_id"]
		days, err := s.svc.AvailabilityRange(c.Request().Context(), scheduling.AvailabilityRangeQuery{
			TenantID:        tenantID,
			ProfessionalIDs: professionalIDs,
			From:            fromDate,
			To:              toDate,
			Duration:        duration,
		})
		if err != nil {
			return s.mapError(c, err)
		}
		return c.JSON(http.StatusOK, days)
	}

	date, err := dateParam(c, "date")
	if err != nil {
		return err
	}
	day, err := s.svc.Availability(c.Request().Context(), scheduling.AvailabilityQuery{
		TenantID:       tenantID,
		ProfessionalID: c.QueryParam("professional_id"),
		Date:           date,
		Duration:       duration,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, day)
}

type createAppointmentRequest struct {
	ClientID          string                        `json:"client_id"`
	ProfessionalID    string                        `json:"professional_id"`
	Services          []scheduling.ServiceSelection `json:"services"`
	ScheduledAt       time.Time                     `json:"scheduled_at"`
	SkipConflictCheck bool                          `json:"skip_conflict_check,omitempty"`
	OverrideWarnings  bool                          `json:"override_warnings,omitempty"`
	IdempotencyKey    string                        `json:"idempotency_key,omitempty"`
	Pattern           *domain.RecurrencePattern     `json:"recurrence_pattern,omitempty"`
	CommitPolicy      scheduling.CommitPolicy       `json:"commit_policy,omitempty"`
}

func (s *Server) CreateAppointment(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}

	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.svc.CreateAppointment(c.Request().Context(), scheduling.CreateInput{
		TenantID:          tenantID,
		ClientID:          req.ClientID,
		ProfessionalID:    req.ProfessionalID,
		Services:          req.Services,
		ScheduledAt:       req.ScheduledAt,
		SkipConflictCheck: req.SkipConflictCheck,
		OverrideWarnings:  req.OverrideWarnings,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	s.log.Info("appointment created",
		slog.String("appointment_id", result.Appointment.ID.String()),
		slog.String("tenant_id", tenantID),
		slog.Time("start_time", result.Appointment.StartTime),
	)
	return c.JSON(http.StatusCreated, bookingResponse(result))
}

func (s *Server) CreateRecurringSeries(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}

	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Pattern == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "recurrence_pattern is required")
	}

	result, err := s.svc.CreateRecurringSeries(c.Request().Context(), scheduling.RecurringInput{
		CreateInput: scheduling.CreateInput{
			TenantID:          tenantID,
			ClientID:          req.ClientID,
			ProfessionalID:    req.ProfessionalID,
			Services:          req.Services,
			ScheduledAt:       req.ScheduledAt,
			SkipConflictCheck: req.SkipConflictCheck,
			OverrideWarnings:  req.OverrideWarnings,
		},
		Pattern:      *req.Pattern,
		CommitPolicy: req.CommitPolicy,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	s.log.Info("recurring series created",
		slog.String("group_id", result.GroupID.String()),
		slog.String("tenant_id", tenantID),
		slog.Int("created", result.CreatedCount),
	)
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) GetAppointment(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}

	appt, err := s.svc.GetAppointment(c.Request().Context(), tenantID, id)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

type rescheduleRequest struct {
	NewScheduledAt   time.Time `json:"new_scheduled_at"`
	Reason           string    `json:"reason,omitempty"`
	OverrideWarnings bool      `json:"override_warnings,omitempty"`
}

func (s *Server) RescheduleAppointment(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}

	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.svc.RescheduleAppointment(c.Request().Context(), scheduling.RescheduleInput{
		TenantID:         tenantID,
		AppointmentID:    id,
		NewScheduledAt:   req.NewScheduledAt,
		Reason:           req.Reason,
		OverrideWarnings: req.OverrideWarnings,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResponse(result))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelAppointment(c echo.Context) error {
	tenantID, err := tenantID(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}

	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.svc.CancelAppointment(c.Request().Context(), scheduling.CancelInput{
		TenantID:      tenantID,
		AppointmentID: id,
		Reason:        req.Reason,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResponse(result))
}

func (s *Server) transitionHandler(op func(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, err := tenantID(c)
		if err != nil {
			return err
		}
		id, err := appointmentID(c)
		if err != nil {
			return err
		}

		result, err := op(c.Request().Context(), tenantID, id)
		if err != nil {
			return s.mapError(c, err)
		}
		return c.JSON(http.StatusOK, bookingResponse(result))
	}
}

type bookingResponseBody struct {
	Appointment domain.Appointment `json:"appointment"`
	Warnings    []string           `json:"warnings,omitempty"`
}

func bookingResponse(result scheduling.BookingResult) bookingResponseBody {
	return bookingResponseBody{Appointment: result.Appointment, Warnings: result.Warnings}
}

type conflictResponseBody struct {
	Message   string                `json:"message"`
	Conflicts domain.ConflictResult `json:"conflicts"`
}

// mapError translates core failures into HTTP responses carrying enough
// structure for a client to render an actionable message.
func (s *Server) mapError(c echo.Context, err error) error {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Error())
	}

	var conflictErr *scheduling.BookingConflictError
	if errors.As(err, &conflictErr) {
		return c.JSON(http.StatusConflict, conflictResponseBody{
			Message:   conflictErr.Error(),
			Conflicts: conflictErr.Result,
		})
	}

	var transitionErr *domain.InvalidStatusTransitionError
	if errors.As(err, &transitionErr) {
		return echo.NewHTTPError(http.StatusConflict, transitionErr.Error())
	}

	var quotaErr *scheduling.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, quotaErr.Error())
	}

	var tooLarge *domain.RecurrenceTooLargeError
	if errors.As(err, &tooLarge) {
		return echo.NewHTTPError(http.StatusBadRequest, tooLarge.Error())
	}

	if errors.Is(err, domain.ErrCancellationReasonRequired) || errors.Is(err, domain.ErrNoShowBeforeStart) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if errors.Is(err, store.ErrIdempotencyConflict) {
		return echo.NewHTTPError(http.StatusConflict, "idempotency key was already used for a different appointment")
	}

	s.log.Error("request failed", slog.Any("err", err), slog.String("path", c.Path()))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func tenantID(c echo.Context) (string, error) {
	tenant := c.Request().Header.Get(tenantHeader)
	if tenant == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, tenantHeader+" header is required")
	}
	return tenant, nil
}

func appointmentID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

func dateParam(c echo.Context, name string) (time.Time, error) {
	value := c.QueryParam(name)
	if value == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" query parameter is required")
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" date format")
	}
	return t, nil
}

func positiveIntParam(c echo.Context, name string) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" query parameter is required")
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return n, nil
}
