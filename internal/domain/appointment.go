package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusWaiting    AppointmentStatus = "waiting"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal statuses have no outgoing transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active statuses occupy the professional's calendar for conflict purposes.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// AppointmentService is one booked service line, stored denormalized on the
// appointment so duration and price survive later catalog edits.
type AppointmentService struct {
	ServiceID       uuid.UUID `json:"service_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Quantity        int       `json:"quantity"`
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID            `bun:"id,pk,type:uuid"`
	TenantID           string               `bun:"tenant_id,notnull"`
	ClientID           string               `bun:"client_id,notnull"`
	ProfessionalID     string               `bun:"professional_id,notnull"`
	StartTime          time.Time            `bun:"start_time,notnull"`
	EndTime            time.Time            `bun:"end_time,notnull"`
	Services           []AppointmentService `bun:"services,type:jsonb"`
	Status             AppointmentStatus    `bun:"status,notnull"`
	RecurrenceGroupID  *uuid.UUID           `bun:"recurrence_group_id,type:uuid"`
	CancellationReason string               `bun:"cancellation_reason"`
	RescheduledFrom    *time.Time           `bun:"rescheduled_from"`
	CreatedAt          time.Time            `bun:"created_at,notnull"`
	UpdatedAt          time.Time            `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a *Appointment) Range() TimeRange {
	return TimeRange{Start: a.StartTime.UTC(), End: a.EndTime.UTC()}
}

// TotalDuration sums service durations across quantities.
func TotalDuration(services []AppointmentService) time.Duration {
	var total time.Duration
	for _, s := range services {
		qty := s.Quantity
		if qty < 1 {
			qty = 1
		}
		total += time.Duration(s.DurationMinutes*qty) * time.Minute
	}
	return total
}

func TotalPriceCents(services []AppointmentService) int64 {
	var total int64
	for _, s := range services {
		qty := int64(s.Quantity)
		if qty < 1 {
			qty = 1
		}
		total += s.PriceCents * qty
	}
	return total
}
