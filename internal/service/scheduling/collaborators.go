package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"glowdesk/backend/internal/domain"
)

// ServiceSelection is one requested catalog item on a booking.
type ServiceSelection struct {
	ServiceID uuid.UUID `json:"service_id"`
	Quantity  int       `json:"quantity"`
}

// ServiceCatalog resolves requested services to their duration and price.
type ServiceCatalog interface {
	ResolveServices(ctx context.Context, tenantID string, selections []ServiceSelection) ([]domain.AppointmentService, error)
}

// QuotaExceededError is distinct from booking conflicts: the remedy is a plan
// change, not a different slot.
type QuotaExceededError struct {
	TenantID string
	Limit    string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tenant %s exceeded limit %q", e.TenantID, e.Limit)
}

// TenantQuota enforces tenant plan limits before any scheduling work is done.
type TenantQuota interface {
	EnforceLimit(ctx context.Context, tenantID, limitName string) error
}

// ReminderScheduler manages client reminders for an appointment. Failures are
// logged, never propagated: the committed booking must not depend on it.
type ReminderScheduler interface {
	ScheduleReminders(ctx context.Context, appointmentID uuid.UUID, startTime time.Time) error
	CancelReminders(ctx context.Context, appointmentID uuid.UUID) error
	RescheduleReminders(ctx context.Context, appointmentID uuid.UUID, newStartTime time.Time) error
}

// EventPublisher is the fire-and-forget notification of state changes.
type EventPublisher interface {
	Emit(ctx context.Context, event string, payload any) error
}

const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentConfirmed   = "appointment.confirmed"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentCompleted   = "appointment.completed"
)

// UnlimitedQuota never rejects. Default for deployments without plan limits.
type UnlimitedQuota struct{}

func (UnlimitedQuota) EnforceLimit(ctx context.Context, tenantID, limitName string) error {
	return nil
}

// LogEventPublisher writes events to the structured log. Stands in for a real
// broker in single-node deployments and tests.
type LogEventPublisher struct {
	log *slog.Logger
}

func NewLogEventPublisher(log *slog.Logger) *LogEventPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogEventPublisher{log: log.With(slog.String("component", "events"))}
}

func (p *LogEventPublisher) Emit(ctx context.Context, event string, payload any) error {
	p.log.Info("event emitted", slog.String("event", event), slog.Any("payload", payload))
	return nil
}

// LogReminderScheduler logs reminder intents without delivering anything.
type LogReminderScheduler struct {
	log *slog.Logger
}

func NewLogReminderScheduler(log *slog.Logger) *LogReminderScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &LogReminderScheduler{log: log.With(slog.String("component", "reminders"))}
}

func (r *LogReminderScheduler) ScheduleReminders(ctx context.Context, appointmentID uuid.UUID, startTime time.Time) error {
	r.log.Info("reminders scheduled", slog.String("appointment_id", appointmentID.String()), slog.Time("start_time", startTime))
	return nil
}

func (r *LogReminderScheduler) CancelReminders(ctx context.Context, appointmentID uuid.UUID) error {
	r.log.Info("reminders cancelled", slog.String("appointment_id", appointmentID.String()))
	return nil
}

func (r *LogReminderScheduler) RescheduleReminders(ctx context.Context, appointmentID uuid.UUID, newStartTime time.Time) error {
	r.log.Info("reminders rescheduled", slog.String("appointment_id", appointmentID.String()), slog.Time("start_time", newStartTime))
	return nil
}
