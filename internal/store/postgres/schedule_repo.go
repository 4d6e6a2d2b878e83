package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"glowdesk/backend/internal/domain"
)

// workingHoursRow is the storage shape of one weekday template entry.
type workingHoursRow struct {
	bun.BaseModel `bun:"table:working_hours"`

	TenantID       string `bun:"tenant_id,notnull"`
	ProfessionalID string `bun:"professional_id,notnull"`
	Weekday        int16  `bun:"weekday,notnull"`
	StartTime      string `bun:"start_time,notnull"`
	EndTime        string `bun:"end_time,notnull"`
	BreakStart     string `bun:"break_start"`
	BreakEnd       string `bun:"break_end"`
}

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) WorkingHours(ctx context.Context, tenantID, professionalID string) (domain.WorkingHoursTemplate, error) {
	var rows []workingHoursRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("professional_id = ?", professionalID).
		Scan(ctx)
	if err != nil {
		return domain.WorkingHoursTemplate{}, err
	}

	tpl := domain.WorkingHoursTemplate{
		ProfessionalID: professionalID,
		Days:           make(map[time.Weekday]domain.WorkingHoursDay, len(rows)),
	}
	for _, row := range rows {
		tpl.Days[time.Weekday(row.Weekday)] = domain.WorkingHoursDay{
			StartTime:  row.StartTime,
			EndTime:    row.EndTime,
			BreakStart: row.BreakStart,
			BreakEnd:   row.BreakEnd,
		}
	}
	return tpl, nil
}

func (r *ScheduleRepo) BlockedTime(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.BlockedTimeEntry, error) {
	var rows []domain.BlockedTimeEntry
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("professional_id = ?", professionalID).
		Where("(all_day AND start_time < ?) OR (start_time < ? AND end_time > ?)", window.End, window.End, window.Start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
