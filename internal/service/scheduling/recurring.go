package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/store"
)

type RecurringInput struct {
	CreateInput
	Pattern      domain.RecurrencePattern
	CommitPolicy CommitPolicy
}

// OccurrenceOutcome reports what happened to one generated occurrence.
type OccurrenceOutcome struct {
	Index         int                    `json:"index"`
	Range         domain.TimeRange       `json:"range"`
	Created       bool                   `json:"created"`
	AppointmentID uuid.UUID              `json:"appointment_id,omitempty"`
	Conflicts     *domain.ConflictResult `json:"conflicts,omitempty"`
}

type SeriesResult struct {
	GroupID      uuid.UUID           `json:"group_id"`
	Outcomes     []OccurrenceOutcome `json:"outcomes"`
	CreatedCount int                 `json:"created_count"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// CreateRecurringSeries expands the pattern, validates every occurrence and
// commits per the chosen policy: ALL_OR_NOTHING inside one transaction,
// BEST_EFFORT one occurrence at a time with per-occurrence outcomes.
func (s *Service) CreateRecurringSeries(ctx context.Context, in RecurringInput) (SeriesResult, error) {
	if err := validateBookingIdentity(in.TenantID, in.ClientID, in.ProfessionalID); err != nil {
		return SeriesResult{}, err
	}
	if len(in.Services) == 0 {
		return SeriesResult{}, validationError("at least one service is required")
	}
	if in.ScheduledAt.IsZero() {
		return SeriesResult{}, validationError("scheduled_at is required")
	}
	if problems := in.Pattern.Validate(); len(problems) > 0 {
		return SeriesResult{}, validationError("invalid recurrence pattern: " + strings.Join(problems, "; "))
	}
	policy := in.CommitPolicy
	if policy == "" {
		policy = AllOrNothing
	}
	if policy != AllOrNothing && policy != BestEffort {
		return SeriesResult{}, validationError("unsupported commit policy")
	}

	if err := s.quota.EnforceLimit(ctx, in.TenantID, quotaAppointmentsPerMonth); err != nil {
		return SeriesResult{}, err
	}

	services, err := s.catalog.ResolveServices(ctx, in.TenantID, in.Services)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SeriesResult{}, validationError(err.Error())
		}
		return SeriesResult{}, err
	}
	totalDuration := domain.TotalDuration(services)
	if totalDuration <= 0 {
		return SeriesResult{}, validationError("total service duration must be positive")
	}

	first, err := domain.NewTimeRange(in.ScheduledAt, in.ScheduledAt.Add(totalDuration))
	if err != nil {
		return SeriesResult{}, validationError(err.Error())
	}

	occurrences, err := domain.GenerateOccurrences(in.Pattern, first, s.cfg.MaxOccurrences)
	if err != nil {
		var tooLarge *domain.RecurrenceTooLargeError
		if errors.As(err, &tooLarge) {
			return SeriesResult{}, err
		}
		return SeriesResult{}, validationError(err.Error())
	}
	if len(occurrences) == 0 {
		return SeriesResult{}, validationError("recurrence pattern produces no occurrences")
	}

	groupID := domain.NewRecurrenceGroupID()
	template := domain.Appointment{
		TenantID:          in.TenantID,
		ClientID:          in.ClientID,
		ProfessionalID:    in.ProfessionalID,
		Services:          services,
		Status:            s.initialStatus(),
		RecurrenceGroupID: &groupID,
	}
	opts := conflictOptions{
		overrideWarnings: in.OverrideWarnings,
		allowPastDate:    in.AllowPastDate,
		skipCheck:        in.SkipConflictCheck,
	}

	var result SeriesResult
	switch policy {
	case AllOrNothing:
		result, err = s.commitSeriesAtomic(ctx, template, occurrences, opts)
	default:
		result, err = s.commitSeriesBestEffort(ctx, template, occurrences, opts)
	}
	if err != nil {
		return SeriesResult{}, err
	}
	result.GroupID = groupID

	s.log.Info("recurring series created",
		slog.String("group_id", groupID.String()),
		slog.String("policy", string(policy)),
		slog.Int("created", result.CreatedCount),
		slog.Int("skipped", len(result.Outcomes)-result.CreatedCount),
	)
	return result, nil
}

// commitSeriesAtomic validates and writes every occurrence inside one
// calendar transaction; the first blocking conflict aborts the whole batch.
func (s *Service) commitSeriesAtomic(ctx context.Context, template domain.Appointment, occurrences []domain.TimeRange, opts conflictOptions) (SeriesResult, error) {
	span := domain.TimeRange{Start: occurrences[0].Start, End: occurrences[len(occurrences)-1].End}

	// Hours and blocked time are read outside the transaction; the
	// appointment list is read inside it, under the calendar lock.
	hours, err := s.schedules.WorkingHours(ctx, template.TenantID, template.ProfessionalID)
	if err != nil {
		return SeriesResult{}, err
	}
	blocked, err := s.schedules.BlockedTime(ctx, template.TenantID, template.ProfessionalID, span)
	if err != nil {
		return SeriesResult{}, err
	}

	var result SeriesResult
	err = s.appointments.InCalendarTx(ctx, template.TenantID, template.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		existing, err := tx.ListAppointments(ctx, template.TenantID, template.ProfessionalID, span)
		if err != nil {
			return err
		}

		for i, occ := range occurrences {
			if !opts.skipCheck {
				check := domain.CheckConflicts(domain.ConflictCheckInput{
					ProfessionalID: template.ProfessionalID,
					Range:          occ,
					Now:            s.now(),
					Hours:          hours,
					Blocked:        blocked,
					Existing:       existing,
					BufferBefore:   s.cfg.BufferBefore,
					BufferAfter:    s.cfg.BufferAfter,
					AllowPastDate:  opts.allowPastDate,
				})
				if check.HasConflict && !(check.CanOverride && opts.overrideWarnings) {
					return &BookingConflictError{Result: check, OccurrenceIndex: i}
				}
			}

			appt := template
			appt.ID = uuid.Nil
			appt.StartTime = occ.Start
			appt.EndTime = occ.End
			created, err := tx.CreateAppointment(ctx, appt)
			if err != nil {
				if errors.Is(err, store.ErrConflict) {
					return storageConflictError(occ)
				}
				return err
			}

			// Later occurrences must not collide with earlier ones.
			existing = append(existing, created)
			result.Outcomes = append(result.Outcomes, OccurrenceOutcome{
				Index:         i,
				Range:         occ,
				Created:       true,
				AppointmentID: created.ID,
			})
			result.CreatedCount++
		}
		return nil
	})
	if err != nil {
		return SeriesResult{}, err
	}

	s.afterSeriesCommit(ctx, &result)
	return result, nil
}

// commitSeriesBestEffort writes each occurrence through the same atomic
// validate+write path as a single booking; conflicting occurrences are
// skipped and reported, not fatal.
func (s *Service) commitSeriesBestEffort(ctx context.Context, template domain.Appointment, occurrences []domain.TimeRange, opts conflictOptions) (SeriesResult, error) {
	var result SeriesResult
	for i, occ := range occurrences {
		appt := template
		appt.ID = uuid.Nil
		appt.StartTime = occ.Start
		appt.EndTime = occ.End

		created, err := s.persistChecked(ctx, appt, opts)
		if err != nil {
			var conflictErr *BookingConflictError
			if errors.As(err, &conflictErr) {
				conflicts := conflictErr.Result
				result.Outcomes = append(result.Outcomes, OccurrenceOutcome{
					Index:     i,
					Range:     occ,
					Conflicts: &conflicts,
				})
				continue
			}
			return SeriesResult{}, err
		}

		result.Outcomes = append(result.Outcomes, OccurrenceOutcome{
			Index:         i,
			Range:         occ,
			Created:       true,
			AppointmentID: created.ID,
		})
		result.CreatedCount++
	}

	s.afterSeriesCommit(ctx, &result)
	return result, nil
}

func (s *Service) afterSeriesCommit(ctx context.Context, result *SeriesResult) {
	for _, outcome := range result.Outcomes {
		if !outcome.Created {
			continue
		}
		if err := s.reminders.ScheduleReminders(ctx, outcome.AppointmentID, outcome.Range.Start); err != nil {
			s.log.Warn("reminder scheduling failed",
				slog.Any("err", err),
				slog.String("appointment_id", outcome.AppointmentID.String()),
			)
			result.Warnings = append(result.Warnings, "reminder scheduling failed: "+err.Error())
		}
		if err := s.events.Emit(ctx, EventAppointmentCreated, outcome); err != nil {
			s.log.Warn("event emission failed",
				slog.Any("err", err),
				slog.String("appointment_id", outcome.AppointmentID.String()),
			)
			result.Warnings = append(result.Warnings, "event emission failed: "+err.Error())
		}
	}
}
