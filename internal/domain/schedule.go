package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkingHoursDay is one weekday entry of a professional's template. Times of
// day are "HH:MM" in the professional's local day; break fields are optional
// and empty when the day has no break.
type WorkingHoursDay struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
}

// WorkingHoursTemplate maps weekdays to working windows. A weekday without an
// entry means the professional does not work that day.
type WorkingHoursTemplate struct {
	ProfessionalID string
	Days           map[time.Weekday]WorkingHoursDay
}

// WindowsOn resolves the template against a concrete date, returning the
// bookable sub-windows in chronological order. A break splits the day into two
// windows. The second result is false when the professional is off that day.
func (t WorkingHoursTemplate) WindowsOn(date time.Time) ([]TimeRange, bool) {
	day, ok := t.Days[date.Weekday()]
	if !ok || day.StartTime == "" || day.EndTime == "" {
		return nil, false
	}

	start, err := atTimeOfDay(date, day.StartTime)
	if err != nil {
		return nil, false
	}
	end, err := atTimeOfDay(date, day.EndTime)
	if err != nil || !end.After(start) {
		return nil, false
	}

	if day.BreakStart != "" && day.BreakEnd != "" {
		breakStart, err1 := atTimeOfDay(date, day.BreakStart)
		breakEnd, err2 := atTimeOfDay(date, day.BreakEnd)
		if err1 == nil && err2 == nil && breakStart.After(start) && breakEnd.Before(end) && breakEnd.After(breakStart) {
			return []TimeRange{
				{Start: start, End: breakStart},
				{Start: breakEnd, End: end},
			}, true
		}
	}

	return []TimeRange{{Start: start, End: end}}, true
}

func atTimeOfDay(date time.Time, hm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time of day %q: %w", hm, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, date.Location()).UTC(), nil
}

// BlockedTimeEntry marks time a professional cannot take bookings: vacation,
// personal time, holidays.
type BlockedTimeEntry struct {
	bun.BaseModel `bun:"table:blocked_time"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID       string    `bun:"tenant_id,notnull"`
	ProfessionalID string    `bun:"professional_id,notnull"`
	StartTime      time.Time `bun:"start_time,notnull"`
	EndTime        time.Time `bun:"end_time,notnull"`
	AllDay         bool      `bun:"all_day,notnull"`
	Reason         string    `bun:"reason"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func (b *BlockedTimeEntry) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// BlockedRangeOn resolves the entry to a concrete range for one date. All-day
// entries cover the whole calendar day regardless of their stored times.
func (b *BlockedTimeEntry) BlockedRangeOn(date time.Time) TimeRange {
	if b.AllDay {
		dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).UTC()
		return TimeRange{Start: dayStart, End: dayStart.Add(24 * time.Hour)}
	}
	return TimeRange{Start: b.StartTime.UTC(), End: b.EndTime.UTC()}
}

// AvailabilityConfig carries the per-professional slot policy.
type AvailabilityConfig struct {
	SlotInterval time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	// MinAdvance is the shortest allowed lead time before a slot starts;
	// MaxAdvance is the booking horizon.
	MinAdvance time.Duration
	MaxAdvance time.Duration
}
