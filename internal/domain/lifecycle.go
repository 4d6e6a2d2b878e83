package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCancellationReasonRequired = errors.New("cancellation reason is required")
	ErrNoShowBeforeStart          = errors.New("appointment cannot be marked no-show before its scheduled time")
)

// InvalidStatusTransitionError names the current state and the attempted
// target; illegal transitions are never coerced into legal ones.
type InvalidStatusTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

var legalTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusWaiting, StatusCancelled, StatusNoShow},
	StatusWaiting:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition mutates the appointment's status after enforcing transition
// legality, the cancellation-reason rule and the no-show timing rule.
func Transition(appt *Appointment, to AppointmentStatus, now time.Time, reason string) error {
	if !CanTransition(appt.Status, to) {
		return &InvalidStatusTransitionError{From: appt.Status, To: to}
	}

	switch to {
	case StatusCancelled:
		if reason == "" {
			return ErrCancellationReasonRequired
		}
		appt.CancellationReason = reason
	case StatusNoShow:
		if now.UTC().Before(appt.StartTime.UTC()) {
			return ErrNoShowBeforeStart
		}
	}

	appt.Status = to
	return nil
}
