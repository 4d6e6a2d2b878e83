package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/store"
)

const overlapConstraint = "appointments_no_overlap"

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type calendarTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) FindByProfessionalAndDateRange(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("professional_id = ?", professionalID).
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InCalendarTx(ctx, appt.TenantID, appt.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		a, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InCalendarTx(ctx, appt.TenantID, appt.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		a, err := tx.UpdateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) InCalendarTx(ctx context.Context, tenantID, professionalID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockCalendar(ctx, tx, tenantID, professionalID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx})
	})
}

// lockCalendar serializes writers on one professional's calendar for the
// duration of the surrounding transaction.
func lockCalendar(ctx context.Context, tx bun.Tx, tenantID, professionalID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", tenantID+":"+professionalID).Exec(ctx)
	return err
}

func (r calendarTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23P01" && pgErr.ConstraintName == overlapConstraint {
				return domain.Appointment{}, store.ErrConflict
			}
			if pgErr.Code == "23505" {
				existing, replayErr := r.idempotentReplay(ctx, appt, m.ID)
				if replayErr != nil {
					return domain.Appointment{}, replayErr
				}
				return existing, nil
			}
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

// idempotentReplay resolves a duplicate-key insert: the same deterministic id
// with an identical payload is a replay and returns the stored row, anything
// else is a key reuse.
func (r calendarTx) idempotentReplay(ctx context.Context, appt domain.Appointment, id uuid.UUID) (domain.Appointment, error) {
	var existing domain.Appointment
	err := r.tx.NewSelect().
		Model(&existing).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}

	if existing.TenantID != appt.TenantID ||
		existing.ClientID != appt.ClientID ||
		existing.ProfessionalID != appt.ProfessionalID ||
		!existing.StartTime.Equal(appt.StartTime) ||
		!existing.EndTime.Equal(appt.EndTime) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}

	return existing, nil
}

func (r calendarTx) ListAppointments(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("professional_id = ?", professionalID).
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) FindAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.tx.NewSelect().
		Model(&appt).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewUpdate().
		Model(&m).
		WherePK().
		Where("tenant_id = ?", appt.TenantID).
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == overlapConstraint {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}
