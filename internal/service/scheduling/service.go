package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// BookingConflictError carries the full conflict result so the caller can
// render specifics. OccurrenceIndex is -1 for single bookings and names the
// failing occurrence for recurring series.
type BookingConflictError struct {
	Result          domain.ConflictResult
	OccurrenceIndex int
}

func (e *BookingConflictError) Error() string {
	if e.OccurrenceIndex >= 0 {
		return fmt.Sprintf("booking conflict on occurrence %d: %d conflict(s)", e.OccurrenceIndex, len(e.Result.Conflicts))
	}
	return fmt.Sprintf("booking conflict: %d conflict(s)", len(e.Result.Conflicts))
}

type CommitPolicy string

const (
	AllOrNothing CommitPolicy = "all_or_nothing"
	BestEffort   CommitPolicy = "best_effort"
)

// Config carries tenant scheduling policy.
type Config struct {
	AutoConfirm    bool
	SlotInterval   time.Duration
	BufferBefore   time.Duration
	BufferAfter    time.Duration
	MinAdvance     time.Duration
	MaxAdvance     time.Duration
	MaxOccurrences int
	// ConflictRetryBackoff is the pause before the single internal retry
	// after a storage-level write collision.
	ConflictRetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlotInterval <= 0 {
		c.SlotInterval = 30 * time.Minute
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = 52
	}
	if c.ConflictRetryBackoff <= 0 {
		c.ConflictRetryBackoff = 100 * time.Millisecond
	}
	return c
}

func (c Config) availability() domain.AvailabilityConfig {
	return domain.AvailabilityConfig{
		SlotInterval: c.SlotInterval,
		BufferBefore: c.BufferBefore,
		BufferAfter:  c.BufferAfter,
		MinAdvance:   c.MinAdvance,
		MaxAdvance:   c.MaxAdvance,
	}
}

const quotaAppointmentsPerMonth = "appointments_per_month"

// Deps are the orchestrator's collaborators. Appointments, Schedules and
// Catalog are required; the rest default to no-op implementations.
type Deps struct {
	Appointments store.AppointmentStore
	Schedules    store.ScheduleStore
	Catalog      ServiceCatalog
	Quota        TenantQuota
	Reminders    ReminderScheduler
	Events       EventPublisher
}

type Service struct {
	appointments store.AppointmentStore
	schedules    store.ScheduleStore
	catalog      ServiceCatalog
	quota        TenantQuota
	reminders    ReminderScheduler
	events       EventPublisher
	cfg          Config
	log          *slog.Logger
	now          func() time.Time
}

func NewService(deps Deps, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduling"))

	if deps.Quota == nil {
		deps.Quota = UnlimitedQuota{}
	}
	if deps.Reminders == nil {
		deps.Reminders = NewLogReminderScheduler(log)
	}
	if deps.Events == nil {
		deps.Events = NewLogEventPublisher(log)
	}

	return &Service{
		appointments: deps.Appointments,
		schedules:    deps.Schedules,
		catalog:      deps.Catalog,
		quota:        deps.Quota,
		reminders:    deps.Reminders,
		events:       deps.Events,
		cfg:          cfg.withDefaults(),
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	TenantID       string
	ClientID       string
	ProfessionalID string
	Services       []ServiceSelection
	ScheduledAt    time.Time
	// SkipConflictCheck bypasses validation entirely; administrative data
	// correction only, always logged.
	SkipConflictCheck bool
	// OverrideWarnings books through warning-severity conflicts.
	OverrideWarnings bool
	AllowPastDate    bool
	IdempotencyKey   string
}

// BookingResult carries the committed appointment plus non-fatal warnings
// from side-effect hooks that failed after the commit.
type BookingResult struct {
	Appointment domain.Appointment
	Warnings    []string
}

func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (BookingResult, error) {
	if err := validateBookingIdentity(in.TenantID, in.ClientID, in.ProfessionalID); err != nil {
		return BookingResult{}, err
	}
	if len(in.Services) == 0 {
		return BookingResult{}, validationError("at least one service is required")
	}
	if in.ScheduledAt.IsZero() {
		return BookingResult{}, validationError("scheduled_at is required")
	}

	// A quota failure short-circuits before any availability work.
	if err := s.quota.EnforceLimit(ctx, in.TenantID, quotaAppointmentsPerMonth); err != nil {
		return BookingResult{}, err
	}

	services, err := s.catalog.ResolveServices(ctx, in.TenantID, in.Services)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return BookingResult{}, validationError(err.Error())
		}
		return BookingResult{}, err
	}
	totalDuration := domain.TotalDuration(services)
	if totalDuration <= 0 {
		return BookingResult{}, validationError("total service duration must be positive")
	}

	rng, err := domain.NewTimeRange(in.ScheduledAt, in.ScheduledAt.Add(totalDuration))
	if err != nil {
		return BookingResult{}, validationError(err.Error())
	}

	appt := domain.Appointment{
		TenantID:       in.TenantID,
		ClientID:       in.ClientID,
		ProfessionalID: in.ProfessionalID,
		StartTime:      rng.Start,
		EndTime:        rng.End,
		Services:       services,
		Status:         s.initialStatus(),
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if len(key) > 256 {
			return BookingResult{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("glowdesk:create_appointment:"+in.TenantID+":"+key))
	}

	created, err := s.persistChecked(ctx, appt, conflictOptions{
		overrideWarnings: in.OverrideWarnings,
		allowPastDate:    in.AllowPastDate,
		skipCheck:        in.SkipConflictCheck,
	})
	if err != nil {
		return BookingResult{}, err
	}

	result := BookingResult{Appointment: created}
	s.afterCreate(ctx, &result)
	return result, nil
}

type conflictOptions struct {
	overrideWarnings bool
	allowPastDate    bool
	skipCheck        bool
	excludeID        uuid.UUID
}

// persistChecked runs the conflict check and the write as one logical unit:
// the definitive guard is the storage layer's overlap constraint, and a
// write collision is retried once after backoff in case a fresh check
// resolves against the competing booking.
func (s *Service) persistChecked(ctx context.Context, appt domain.Appointment, opts conflictOptions) (domain.Appointment, error) {
	if opts.skipCheck {
		s.log.Warn("conflict check skipped by privileged caller",
			slog.String("tenant_id", appt.TenantID),
			slog.String("professional_id", appt.ProfessionalID),
			slog.Time("start_time", appt.StartTime),
		)
	}

	var out domain.Appointment
	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.cfg.ConflictRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !opts.skipCheck {
			result, err := s.checkProposed(ctx, appt.TenantID, appt.ProfessionalID, appt.Range(), opts)
			if err != nil {
				return err
			}
			if result.HasConflict && !(result.CanOverride && opts.overrideWarnings) {
				return &BookingConflictError{Result: result, OccurrenceIndex: -1}
			}
		}

		created, err := s.appointments.Create(ctx, appt)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Appointment{}, storageConflictError(appt.Range())
		}
		return domain.Appointment{}, err
	}
	return out, nil
}

// storageConflictError stands in when the exclusion constraint rejected a
// write that the advisory check had accepted: the competing row is unknown,
// but the failure is still a booking conflict to the caller.
func storageConflictError(rng domain.TimeRange) error {
	return &BookingConflictError{
		OccurrenceIndex: -1,
		Result: domain.ConflictResult{
			HasConflict: true,
			Conflicts: []domain.Conflict{{
				Type:     domain.ConflictOverlap,
				Severity: domain.SeverityError,
				Range:    rng,
				Detail:   "a concurrent booking took this time range",
			}},
		},
	}
}

func (s *Service) checkProposed(ctx context.Context, tenantID, professionalID string, rng domain.TimeRange, opts conflictOptions) (domain.ConflictResult, error) {
	cal, err := s.fetchCalendar(ctx, tenantID, professionalID, dayWindow(rng))
	if err != nil {
		return domain.ConflictResult{}, err
	}
	return domain.CheckConflicts(domain.ConflictCheckInput{
		ProfessionalID:       professionalID,
		Range:                rng,
		ExcludeAppointmentID: opts.excludeID,
		Now:                  s.now(),
		Hours:                cal.hours,
		Blocked:              cal.blocked,
		Existing:             cal.existing,
		BufferBefore:         s.cfg.BufferBefore,
		BufferAfter:          s.cfg.BufferAfter,
		AllowPastDate:        opts.allowPastDate,
	}), nil
}

func (s *Service) initialStatus() domain.AppointmentStatus {
	if s.cfg.AutoConfirm {
		return domain.StatusConfirmed
	}
	return domain.StatusPending
}

// afterCreate fires side-effect hooks; their failure never rolls back the
// committed appointment.
func (s *Service) afterCreate(ctx context.Context, result *BookingResult) {
	appt := result.Appointment
	if err := s.reminders.ScheduleReminders(ctx, appt.ID, appt.StartTime); err != nil {
		s.hookWarning(ctx, result, "reminder scheduling failed", err, appt.ID)
	}
	if err := s.events.Emit(ctx, EventAppointmentCreated, appt); err != nil {
		s.hookWarning(ctx, result, "event emission failed", err, appt.ID)
	}
}

func (s *Service) hookWarning(ctx context.Context, result *BookingResult, msg string, err error, apptID uuid.UUID) {
	s.log.Warn(msg, slog.Any("err", err), slog.String("appointment_id", apptID.String()))
	result.Warnings = append(result.Warnings, msg+": "+err.Error())
}

type RescheduleInput struct {
	TenantID         string
	AppointmentID    uuid.UUID
	NewScheduledAt   time.Time
	Reason           string
	OverrideWarnings bool
	AllowPastDate    bool
}

// RescheduleAppointment moves an appointment, keeping its duration and
// status. The appointment itself is excluded from overlap comparison so a
// no-op reschedule always succeeds.
func (s *Service) RescheduleAppointment(ctx context.Context, in RescheduleInput) (BookingResult, error) {
	if in.TenantID == "" {
		return BookingResult{}, validationError("tenant_id is required")
	}
	if in.AppointmentID == uuid.Nil {
		return BookingResult{}, validationError("appointment_id is required")
	}
	if in.NewScheduledAt.IsZero() {
		return BookingResult{}, validationError("new_scheduled_at is required")
	}

	appt, err := s.appointments.FindByID(ctx, in.TenantID, in.AppointmentID)
	if err != nil {
		return BookingResult{}, err
	}
	if appt.Status.Terminal() {
		return BookingResult{}, validationError(fmt.Sprintf("appointment in status %q cannot be rescheduled", appt.Status))
	}

	duration := appt.EndTime.Sub(appt.StartTime)
	newRange, err := domain.NewTimeRange(in.NewScheduledAt, in.NewScheduledAt.Add(duration))
	if err != nil {
		return BookingResult{}, validationError(err.Error())
	}

	previousStart := appt.StartTime
	opts := conflictOptions{
		overrideWarnings: in.OverrideWarnings,
		allowPastDate:    in.AllowPastDate,
		excludeID:        appt.ID,
	}

	var updated domain.Appointment
	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.cfg.ConflictRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := s.checkProposed(ctx, appt.TenantID, appt.ProfessionalID, newRange, opts)
		if err != nil {
			return err
		}
		if result.HasConflict && !(result.CanOverride && in.OverrideWarnings) {
			return &BookingConflictError{Result: result, OccurrenceIndex: -1}
		}

		appt.StartTime = newRange.Start
		appt.EndTime = newRange.End
		appt.RescheduledFrom = &previousStart

		u, err := s.appointments.Update(ctx, appt)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return BookingResult{}, storageConflictError(newRange)
		}
		return BookingResult{}, err
	}

	result := BookingResult{Appointment: updated}
	if err := s.reminders.RescheduleReminders(ctx, updated.ID, updated.StartTime); err != nil {
		s.hookWarning(ctx, &result, "reminder rescheduling failed", err, updated.ID)
	}
	if err := s.events.Emit(ctx, EventAppointmentRescheduled, updated); err != nil {
		s.hookWarning(ctx, &result, "event emission failed", err, updated.ID)
	}
	return result, nil
}

type CancelInput struct {
	TenantID      string
	AppointmentID uuid.UUID
	Reason        string
}

func (s *Service) CancelAppointment(ctx context.Context, in CancelInput) (BookingResult, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return BookingResult{}, validationError("cancellation reason is required")
	}

	result, err := s.transitionStatus(ctx, in.TenantID, in.AppointmentID, domain.StatusCancelled, in.Reason, EventAppointmentCancelled)
	if err != nil {
		return BookingResult{}, err
	}
	if err := s.reminders.CancelReminders(ctx, result.Appointment.ID); err != nil {
		s.hookWarning(ctx, &result, "reminder cancellation failed", err, result.Appointment.ID)
	}
	return result, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, tenantID string, id uuid.UUID) (BookingResult, error) {
	return s.transitionStatus(ctx, tenantID, id, domain.StatusConfirmed, "", EventAppointmentConfirmed)
}

func (s *Service) CheckInAppointment(ctx context.Context, tenantID string, id uuid.UUID) (BookingResult, error) {
	return s.transitionStatus(ctx, tenantID, id, domain.StatusWaiting, "", "")
}

func (s *Service) StartAppointment(ctx context.Context, tenantID string, id uuid.UUID) (BookingResult, error) {
	return s.transitionStatus(ctx, tenantID, id, domain.StatusInProgress, "", "")
}

func (s *Service) CompleteAppointment(ctx context.Context, tenantID string, id uuid.UUID) (BookingResult, error) {
	return s.transitionStatus(ctx, tenantID, id, domain.StatusCompleted, "", EventAppointmentCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, tenantID string, id uuid.UUID) (BookingResult, error) {
	return s.transitionStatus(ctx, tenantID, id, domain.StatusNoShow, "", "")
}

func (s *Service) GetAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	if tenantID == "" {
		return domain.Appointment{}, validationError("tenant_id is required")
	}
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.appointments.FindByID(ctx, tenantID, id)
}

// transitionStatus enforces lifecycle legality in the domain before touching
// storage, then persists and fires the event hook when one applies.
func (s *Service) transitionStatus(ctx context.Context, tenantID string, id uuid.UUID, to domain.AppointmentStatus, reason, event string) (BookingResult, error) {
	if tenantID == "" {
		return BookingResult{}, validationError("tenant_id is required")
	}
	if id == uuid.Nil {
		return BookingResult{}, validationError("appointment_id is required")
	}

	// The first read fails fast on missing rows and illegal transitions, and
	// identifies the calendar to lock.
	appt, err := s.appointments.FindByID(ctx, tenantID, id)
	if err != nil {
		return BookingResult{}, err
	}
	if err := domain.Transition(&appt, to, s.now(), reason); err != nil {
		return BookingResult{}, err
	}

	// Legality is decided on a fresh read under the calendar lock: a
	// concurrent transition may have moved the row since the read above, and a
	// terminal state must not be overwritten.
	var updated domain.Appointment
	err = s.appointments.InCalendarTx(ctx, tenantID, appt.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		fresh, err := tx.FindAppointment(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := domain.Transition(&fresh, to, s.now(), reason); err != nil {
			return err
		}
		u, err := tx.UpdateAppointment(ctx, fresh)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return BookingResult{}, err
	}

	s.log.Info("appointment status changed",
		slog.String("appointment_id", id.String()),
		slog.String("status", string(to)),
	)

	result := BookingResult{Appointment: updated}
	if event != "" {
		if err := s.events.Emit(ctx, event, updated); err != nil {
			s.hookWarning(ctx, &result, "event emission failed", err, updated.ID)
		}
	}
	return result, nil
}

func validateBookingIdentity(tenantID, clientID, professionalID string) error {
	if tenantID == "" {
		return validationError("tenant_id is required")
	}
	if clientID == "" {
		return validationError("client_id is required")
	}
	if professionalID == "" {
		return validationError("professional_id is required")
	}
	return nil
}

// dayWindow widens a range to full calendar days so working-hours and
// adjacency checks see the whole day's context.
func dayWindow(rng domain.TimeRange) domain.TimeRange {
	start := rng.Start.UTC()
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := rng.End.UTC()
	dayEnd := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return domain.TimeRange{Start: dayStart, End: dayEnd}
}
