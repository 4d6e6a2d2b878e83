package store

import (
	"context"

	"github.com/google/uuid"

	"glowdesk/backend/internal/domain"
)

// AppointmentStore is the persistence boundary for the scheduling core. The
// core is agnostic to the storage engine as long as InCalendarTx gives
// read-then-write isolation per professional calendar.
type AppointmentStore interface {
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error)
	FindByProfessionalAndDateRange(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error)
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// InCalendarTx runs fn inside a transaction holding the professional's
	// calendar lock, making validate+write atomic against that calendar.
	InCalendarTx(ctx context.Context, tenantID, professionalID string, fn func(ctx context.Context, tx CalendarTx) error) error
}

// ScheduleStore reads the scheduling inputs owned elsewhere: working-hours
// templates and blocked time. Read-only from the core's point of view.
type ScheduleStore interface {
	WorkingHours(ctx context.Context, tenantID, professionalID string) (domain.WorkingHoursTemplate, error)
	BlockedTime(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.BlockedTimeEntry, error)
}
