package store

import (
	"context"

	"github.com/google/uuid"

	"glowdesk/backend/internal/domain"
)

// CalendarTx is the transactional view of one professional's calendar.
type CalendarTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	ListAppointments(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error)
	FindAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
