package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/store"
)

func weeklyPattern(count int) domain.RecurrencePattern {
	return domain.RecurrencePattern{
		Frequency: domain.FrequencyWeekly,
		Interval:  1,
		EndType:   domain.EndByCount,
		Count:     count,
	}
}

func validRecurringInput(pattern domain.RecurrencePattern, policy CommitPolicy) RecurringInput {
	return RecurringInput{
		CreateInput:  validCreateInput(),
		Pattern:      pattern,
		CommitPolicy: policy,
	}
}

// txAppointments wires InCalendarTx to a fakeCalendarTx over an in-memory
// appointment list, enough to exercise the atomic commit path.
func txAppointments(existing []domain.Appointment) (*fakeAppointments, *[]domain.Appointment) {
	rows := append([]domain.Appointment(nil), existing...)
	rowsRef := &rows
	fake := &fakeAppointments{
		inCalendarTxFn: func(ctx context.Context, tenantID, professionalID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
			tx := &fakeCalendarTx{
				listFn: func(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error) {
					return append([]domain.Appointment(nil), *rowsRef...), nil
				},
				createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
					appt.ID = uuid.New()
					*rowsRef = append(*rowsRef, appt)
					return appt, nil
				},
			}
			err := fn(ctx, tx)
			if err != nil {
				// Roll back.
				*rowsRef = append((*rowsRef)[:0], existing...)
			}
			return err
		},
	}
	return fake, rowsRef
}

func TestCreateRecurringSeries_AllOrNothingCommits(t *testing.T) {
	appointments, rows := txAppointments(nil)
	svc := newTestService(Deps{
		Appointments: appointments,
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	result, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(4), AllOrNothing))
	if err != nil {
		t.Fatalf("CreateRecurringSeries error: %v", err)
	}

	if result.CreatedCount != 4 || len(result.Outcomes) != 4 {
		t.Fatalf("created = %d outcomes = %d, want 4/4", result.CreatedCount, len(result.Outcomes))
	}
	if result.GroupID == uuid.Nil {
		t.Fatalf("expected a recurrence group id")
	}
	for i, row := range *rows {
		if row.RecurrenceGroupID == nil || *row.RecurrenceGroupID != result.GroupID {
			t.Fatalf("row %d group id = %v, want %v", i, row.RecurrenceGroupID, result.GroupID)
		}
		wantStart := testDate.Add(10*time.Hour).AddDate(0, 0, 7*i)
		if !row.StartTime.Equal(wantStart) {
			t.Fatalf("row %d start = %v, want %v", i, row.StartTime, wantStart)
		}
	}
}

func TestCreateRecurringSeries_AllOrNothingAbortsOnConflict(t *testing.T) {
	// The third weekly occurrence collides with a pre-existing booking.
	blockedStart := testDate.Add(10*time.Hour).AddDate(0, 0, 14)
	existing := []domain.Appointment{{
		ID:             uuid.New(),
		ProfessionalID: "p1",
		StartTime:      blockedStart,
		EndTime:        blockedStart.Add(time.Hour),
		Status:         domain.StatusConfirmed,
	}}

	appointments, rows := txAppointments(existing)
	svc := newTestService(Deps{
		Appointments: appointments,
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	_, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(4), AllOrNothing))

	var conflictErr *BookingConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("error type = %T, want *BookingConflictError", err)
	}
	if conflictErr.OccurrenceIndex != 2 {
		t.Fatalf("OccurrenceIndex = %d, want 2", conflictErr.OccurrenceIndex)
	}
	if len(*rows) != len(existing) {
		t.Fatalf("aborted series must leave no rows, got %d extra", len(*rows)-len(existing))
	}
}

func TestCreateRecurringSeries_AtomicUsesOneTransaction(t *testing.T) {
	appointments, _ := txAppointments(nil)
	var listCalls int
	inner := appointments.inCalendarTxFn
	appointments.inCalendarTxFn = func(ctx context.Context, tenantID, professionalID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
		listCalls++
		return inner(ctx, tenantID, professionalID, fn)
	}

	svc := newTestService(Deps{
		Appointments: appointments,
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	if _, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(3), AllOrNothing)); err != nil {
		t.Fatalf("CreateRecurringSeries error: %v", err)
	}
	// One transaction, one list read for the whole series.
	if listCalls != 1 {
		t.Fatalf("transactions = %d, want 1", listCalls)
	}
}

func TestCreateRecurringSeries_BestEffortSkipsConflicting(t *testing.T) {
	// The second of four weekly occurrences is already booked.
	blockedStart := testDate.Add(10*time.Hour).AddDate(0, 0, 7)
	existing := domain.Appointment{
		ID:             uuid.New(),
		ProfessionalID: "p1",
		StartTime:      blockedStart,
		EndTime:        blockedStart.Add(time.Hour),
		Status:         domain.StatusConfirmed,
	}

	var created []domain.Appointment
	svc := newTestService(Deps{
		Appointments: &fakeAppointments{
			findByRangeFn: func(ctx context.Context, tenantID, professionalID string, window domain.TimeRange) ([]domain.Appointment, error) {
				if existing.Range().Overlaps(window) {
					return []domain.Appointment{existing}, nil
				}
				return nil, nil
			},
			createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
				appt.ID = uuid.New()
				created = append(created, appt)
				return appt, nil
			},
		},
		Schedules: emptySchedules(),
		Catalog:   resolvedCatalog(oneHourService()),
	}, Config{})

	result, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(4), BestEffort))
	if err != nil {
		t.Fatalf("CreateRecurringSeries error: %v", err)
	}

	if result.CreatedCount != 3 {
		t.Fatalf("created = %d, want 3", result.CreatedCount)
	}
	if len(result.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(result.Outcomes))
	}

	skipped := result.Outcomes[1]
	if skipped.Created {
		t.Fatalf("occurrence 1 should be skipped")
	}
	if skipped.Conflicts == nil || len(skipped.Conflicts.Conflicts) == 0 {
		t.Fatalf("skipped occurrence should carry its conflicts, got %+v", skipped)
	}
	if skipped.Conflicts.Conflicts[0].Type != domain.ConflictOverlap {
		t.Fatalf("conflict type = %s, want overlap", skipped.Conflicts.Conflicts[0].Type)
	}
	if len(created) != 3 {
		t.Fatalf("created rows = %d, want 3", len(created))
	}
}

func TestCreateRecurringSeries_CeilingPassesThrough(t *testing.T) {
	svc := newTestService(Deps{
		Appointments: &fakeAppointments{},
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{MaxOccurrences: 10})

	in := validRecurringInput(domain.RecurrencePattern{
		Frequency: domain.FrequencyWeekly,
		Interval:  1,
		EndType:   domain.EndByDate,
		Until:     testDate.AddDate(10, 0, 0),
	}, AllOrNothing)

	_, err := svc.CreateRecurringSeries(context.Background(), in)
	var tooLarge *domain.RecurrenceTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error type = %T, want *RecurrenceTooLargeError", err)
	}
	if tooLarge.Limit != 10 {
		t.Fatalf("limit = %d, want the configured ceiling 10", tooLarge.Limit)
	}
}

func TestCreateRecurringSeries_InvalidPatternIsValidationError(t *testing.T) {
	svc := newTestService(Deps{
		Appointments: &fakeAppointments{},
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	in := validRecurringInput(domain.RecurrencePattern{
		Frequency: "yearly",
		Interval:  1,
		EndType:   domain.EndByCount,
		Count:     3,
	}, AllOrNothing)

	_, err := svc.CreateRecurringSeries(context.Background(), in)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestCreateRecurringSeries_UnknownPolicyRejected(t *testing.T) {
	svc := newTestService(Deps{
		Appointments: &fakeAppointments{},
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	_, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(2), CommitPolicy("half_hearted")))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestCreateRecurringSeries_DefaultsToAllOrNothing(t *testing.T) {
	appointments, _ := txAppointments(nil)
	svc := newTestService(Deps{
		Appointments: appointments,
		Schedules:    emptySchedules(),
		Catalog:      resolvedCatalog(oneHourService()),
	}, Config{})

	// The tx fake only serves the atomic path; an empty policy reaching
	// the best-effort path would panic on the unconfigured Create.
	result, err := svc.CreateRecurringSeries(context.Background(), validRecurringInput(weeklyPattern(2), ""))
	if err != nil {
		t.Fatalf("CreateRecurringSeries error: %v", err)
	}
	if result.CreatedCount != 2 {
		t.Fatalf("created = %d, want 2", result.CreatedCount)
	}
}
