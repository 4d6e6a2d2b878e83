package domain

import (
	"errors"
	"time"
)

var ErrInvalidDuration = errors.New("requested duration must be positive")

// SlotUnavailableReason explains why a listed slot cannot be booked.
type SlotUnavailableReason string

const (
	SlotReasonBooked  SlotUnavailableReason = "booked"
	SlotReasonBlocked SlotUnavailableReason = "blocked"
	SlotReasonTooSoon SlotUnavailableReason = "too_soon"
	SlotReasonTooFar  SlotUnavailableReason = "too_far"
)

type Slot struct {
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Available bool                  `json:"available"`
	Reason    SlotUnavailableReason `json:"reason,omitempty"`
}

type DayAvailability struct {
	ProfessionalID string    `json:"professional_id"`
	Date           time.Time `json:"date"`
	IsWorkingDay   bool      `json:"is_working_day"`
	PastDate       bool      `json:"past_date"`
	Slots          []Slot    `json:"slots"`
	AvailableCount int       `json:"available_count"`
}

type AvailabilityInput struct {
	ProfessionalID string
	Date           time.Time
	Duration       time.Duration
	Now            time.Time
	Hours          WorkingHoursTemplate
	Blocked        []BlockedTimeEntry
	Existing       []Appointment
	Config         AvailabilityConfig
}

// ComputeAvailability walks the professional's working windows for one date in
// slot-interval steps and tags each candidate start available or not. Slots
// whose service time cannot fit the window at all are omitted; slots excluded
// by lead-time, existing bookings or blocked time are listed as unavailable so
// callers can render them.
func ComputeAvailability(in AvailabilityInput) (DayAvailability, error) {
	if in.Duration <= 0 {
		return DayAvailability{}, ErrInvalidDuration
	}

	interval := in.Config.SlotInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	out := DayAvailability{
		ProfessionalID: in.ProfessionalID,
		Date:           dayStart(in.Date),
	}

	// A past date is rendered all-unavailable rather than rejected.
	out.PastDate = out.Date.Before(dayStart(in.Now))

	windows, working := in.Hours.WindowsOn(in.Date)
	out.IsWorkingDay = working
	if !working {
		return out, nil
	}

	earliest := in.Now.UTC().Add(in.Config.MinAdvance)
	var latest time.Time
	if in.Config.MaxAdvance > 0 {
		latest = in.Now.UTC().Add(in.Config.MaxAdvance)
	}

	for _, window := range windows {
		for start := window.Start; ; start = start.Add(interval) {
			serviceEnd := start.Add(in.Duration)
			if serviceEnd.After(window.End) {
				break
			}

			// The candidate occupies its buffers as well as the service time.
			candidate := TimeRange{
				Start: start.Add(-in.Config.BufferBefore),
				End:   serviceEnd.Add(in.Config.BufferAfter),
			}
			if candidate.End.After(window.End) {
				break
			}

			slot := Slot{Start: start, End: serviceEnd}
			switch {
			case start.Before(earliest):
				slot.Reason = SlotReasonTooSoon
			case !latest.IsZero() && start.After(latest):
				slot.Reason = SlotReasonTooFar
			case overlapsAppointment(candidate, in.Existing):
				slot.Reason = SlotReasonBooked
			case overlapsBlocked(candidate, in.Date, in.Blocked):
				slot.Reason = SlotReasonBlocked
			default:
				slot.Available = true
				out.AvailableCount++
			}
			out.Slots = append(out.Slots, slot)
		}
	}

	return out, nil
}

func overlapsAppointment(candidate TimeRange, existing []Appointment) bool {
	for i := range existing {
		if !existing[i].Status.Active() {
			continue
		}
		if candidate.Overlaps(existing[i].Range()) {
			return true
		}
	}
	return false
}

func overlapsBlocked(candidate TimeRange, date time.Time, blocked []BlockedTimeEntry) bool {
	for i := range blocked {
		if candidate.Overlaps(blocked[i].BlockedRangeOn(date)) {
			return true
		}
	}
	return false
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
