package scheduling

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"glowdesk/backend/internal/domain"
)

type calendarData struct {
	hours    domain.WorkingHoursTemplate
	blocked  []domain.BlockedTimeEntry
	existing []domain.Appointment
}

// fetchCalendar reads working hours, blocked time and existing appointments
// concurrently. Slightly stale reads are fine here: the definitive conflict
// check happens again, transactionally, at write time.
func (s *Service) fetchCalendar(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) (calendarData, error) {
	var data calendarData

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hours, err := s.schedules.WorkingHours(ctx, tenantID, professionalID)
		if err != nil {
			return err
		}
		data.hours = hours
		return nil
	})
	g.Go(func() error {
		blocked, err := s.schedules.BlockedTime(ctx, tenantID, professionalID, window)
		if err != nil {
			return err
		}
		data.blocked = blocked
		return nil
	})
	g.Go(func() error {
		existing, err := s.appointments.FindByProfessionalAndDateRange(ctx, tenantID, professionalID, window)
		if err != nil {
			return err
		}
		data.existing = existing
		return nil
	})

	if err := g.Wait(); err != nil {
		return calendarData{}, err
	}
	return data, nil
}

type AvailabilityQuery struct {
	TenantID       string
	ProfessionalID string
	Date           time.Time
	Duration       time.Duration
}

// Availability computes the bookable slots of one professional for one date.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (domain.DayAvailability, error) {
	if q.TenantID == "" {
		return domain.DayAvailability{}, validationError("tenant_id is required")
	}
	if q.ProfessionalID == "" {
		return domain.DayAvailability{}, validationError("professional_id is required")
	}
	if q.Duration <= 0 {
		return domain.DayAvailability{}, validationError("duration must be positive")
	}

	window := fullDays(q.Date, q.Date)
	cal, err := s.fetchCalendar(ctx, q.TenantID, q.ProfessionalID, window)
	if err != nil {
		return domain.DayAvailability{}, err
	}

	return domain.ComputeAvailability(domain.AvailabilityInput{
		ProfessionalID: q.ProfessionalID,
		Date:           q.Date,
		Duration:       q.Duration,
		Now:            s.now(),
		Hours:          cal.hours,
		Blocked:        cal.blocked,
		Existing:       cal.existing,
		Config:         s.cfg.availability(),
	})
}

type AvailabilityRangeQuery struct {
	TenantID        string
	ProfessionalIDs []string
	From            time.Time
	To              time.Time
	Duration        time.Duration
}

const maxAvailabilityRangeDays = 62

// AvailabilityRange applies the per-day computation across a date range and
// several professionals, one DayAvailability per professional per day.
// Professionals are fetched concurrently; each needs only one calendar read
// for the whole window.
func (s *Service) AvailabilityRange(ctx context.Context, q AvailabilityRangeQuery) ([]domain.DayAvailability, error) {
	if q.TenantID == "" {
		return nil, validationError("tenant_id is required")
	}
	if len(q.ProfessionalIDs) == 0 {
		return nil, validationError("at least one professional is required")
	}
	if q.Duration <= 0 {
		return nil, validationError("duration must be positive")
	}
	if q.To.Before(q.From) {
		return nil, validationError("range end must not be before range start")
	}
	days := int(fullDays(q.From, q.To).Duration() / (24 * time.Hour))
	if days > maxAvailabilityRangeDays {
		return nil, validationError("availability range is too large")
	}

	window := fullDays(q.From, q.To)
	now := s.now()
	cfg := s.cfg.availability()

	perProfessional := make([][]domain.DayAvailability, len(q.ProfessionalIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, professionalID := range q.ProfessionalIDs {
		g.Go(func() error {
			cal, err := s.fetchCalendar(gctx, q.TenantID, professionalID, window)
			if err != nil {
				return err
			}

			out := make([]domain.DayAvailability, 0, days)
			for date := window.Start; date.Before(window.End); date = date.Add(24 * time.Hour) {
				day, err := domain.ComputeAvailability(domain.AvailabilityInput{
					ProfessionalID: professionalID,
					Date:           date,
					Duration:       q.Duration,
					Now:            now,
					Hours:          cal.hours,
					Blocked:        cal.blocked,
					Existing:       cal.existing,
					Config:         cfg,
				})
				if err != nil {
					return err
				}
				out = append(out, day)
			}
			perProfessional[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.DayAvailability
	for _, days := range perProfessional {
		out = append(out, days...)
	}
	return out, nil
}

// fullDays returns the window covering every calendar day from the day of
// `from` through the day of `to`, inclusive.
func fullDays(from, to time.Time) domain.TimeRange {
	f := from.UTC()
	t := to.UTC()
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return domain.TimeRange{Start: start, End: end}
}
