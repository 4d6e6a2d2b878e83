package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const (
	ConflictOverlap      ConflictType = "overlap"
	ConflictBlocked      ConflictType = "blocked"
	ConflictOutsideHours ConflictType = "outside_hours"
	ConflictTooClose     ConflictType = "too_close"
	ConflictPastDate     ConflictType = "past_date"
)

type ConflictSeverity string

const (
	SeverityWarning ConflictSeverity = "warning"
	SeverityError   ConflictSeverity = "error"
)

// Conflict is one detected collision, with enough structure for a caller to
// render an actionable message.
type Conflict struct {
	Type                ConflictType     `json:"type"`
	Severity            ConflictSeverity `json:"severity"`
	ConflictingEntityID string           `json:"conflicting_entity_id,omitempty"`
	Range               TimeRange        `json:"range"`
	Detail              string           `json:"detail"`
}

type ConflictResult struct {
	HasConflict bool       `json:"has_conflict"`
	Conflicts   []Conflict `json:"conflicts,omitempty"`
	CanOverride bool       `json:"can_override"`
}

// Blocking reports whether the result contains at least one error-severity
// conflict; warnings alone do not block a booking with an explicit override.
func (r ConflictResult) Blocking() bool {
	for _, c := range r.Conflicts {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}

type ConflictCheckInput struct {
	ProfessionalID string
	Range          TimeRange
	// ExcludeAppointmentID removes the appointment being rescheduled from
	// overlap and gap comparison, so a no-op reschedule never self-conflicts.
	ExcludeAppointmentID uuid.UUID
	Now                  time.Time
	Hours                WorkingHoursTemplate
	Blocked              []BlockedTimeEntry
	Existing             []Appointment
	BufferBefore         time.Duration
	BufferAfter          time.Duration
	// AllowPastDate downgrades the past-date check to a warning for
	// administrative corrections.
	AllowPastDate bool
}

// CheckConflicts runs every check independently and reports all collisions
// together instead of stopping at the first one.
func CheckConflicts(in ConflictCheckInput) ConflictResult {
	var conflicts []Conflict

	if c, ok := checkOutsideHours(in); ok {
		conflicts = append(conflicts, c)
	}
	conflicts = append(conflicts, checkBlocked(in)...)
	conflicts = append(conflicts, checkOverlaps(in)...)
	conflicts = append(conflicts, checkTooClose(in)...)
	if c, ok := checkPastDate(in); ok {
		conflicts = append(conflicts, c)
	}

	result := ConflictResult{
		HasConflict: len(conflicts) > 0,
		Conflicts:   conflicts,
	}
	result.CanOverride = result.HasConflict && !result.Blocking()
	return result
}

func checkOutsideHours(in ConflictCheckInput) (Conflict, bool) {
	windows, working := in.Hours.WindowsOn(in.Range.Start)
	if working {
		for _, w := range windows {
			if w.Contains(in.Range) {
				return Conflict{}, false
			}
		}
	}
	return Conflict{
		Type:     ConflictOutsideHours,
		Severity: SeverityError,
		Range:    in.Range,
		Detail:   "requested time is outside the professional's working hours",
	}, true
}

func checkBlocked(in ConflictCheckInput) []Conflict {
	var out []Conflict
	for i := range in.Blocked {
		blocked := in.Blocked[i].BlockedRangeOn(in.Range.Start)
		if in.Range.Overlaps(blocked) {
			out = append(out, Conflict{
				Type:                ConflictBlocked,
				Severity:            SeverityError,
				ConflictingEntityID: in.Blocked[i].ID.String(),
				Range:               blocked,
				Detail:              "requested time overlaps blocked time",
			})
		}
	}
	return out
}

func checkOverlaps(in ConflictCheckInput) []Conflict {
	var out []Conflict
	for i := range in.Existing {
		appt := &in.Existing[i]
		if appt.ID == in.ExcludeAppointmentID {
			continue
		}
		if !appt.Status.Active() {
			continue
		}
		if in.Range.Overlaps(appt.Range()) {
			out = append(out, Conflict{
				Type:                ConflictOverlap,
				Severity:            SeverityError,
				ConflictingEntityID: appt.ID.String(),
				Range:               appt.Range(),
				Detail:              "requested time overlaps an existing appointment",
			})
		}
	}
	return out
}

func checkTooClose(in ConflictCheckInput) []Conflict {
	var out []Conflict
	for i := range in.Existing {
		appt := &in.Existing[i]
		if appt.ID == in.ExcludeAppointmentID || !appt.Status.Active() {
			continue
		}
		r := appt.Range()
		if in.Range.Overlaps(r) {
			continue // already an overlap conflict
		}

		tooClose := false
		if !r.End.After(in.Range.Start) && in.BufferBefore > 0 {
			tooClose = in.Range.Start.Sub(r.End) < in.BufferBefore
		}
		if !tooClose && !in.Range.End.After(r.Start) && in.BufferAfter > 0 {
			tooClose = r.Start.Sub(in.Range.End) < in.BufferAfter
		}
		if tooClose {
			out = append(out, Conflict{
				Type:                ConflictTooClose,
				Severity:            SeverityWarning,
				ConflictingEntityID: appt.ID.String(),
				Range:               r,
				Detail:              "gap to the adjacent appointment is smaller than the configured buffer",
			})
		}
	}
	return out
}

func checkPastDate(in ConflictCheckInput) (Conflict, bool) {
	if !in.Range.Start.Before(in.Now.UTC()) {
		return Conflict{}, false
	}
	severity := SeverityError
	if in.AllowPastDate {
		severity = SeverityWarning
	}
	return Conflict{
		Type:     ConflictPastDate,
		Severity: severity,
		Range:    in.Range,
		Detail:   "requested time is in the past",
	}, true
}
