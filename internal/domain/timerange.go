package domain

import (
	"fmt"
	"time"
)

// InvalidRangeError reports a range whose start is not strictly before its end.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: start %s must be before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// TimeRange is a half-open interval [Start, End) in UTC.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewTimeRange(start, end time.Time) (TimeRange, error) {
	start = start.UTC()
	end = end.UTC()
	if !start.Before(end) {
		return TimeRange{}, &InvalidRangeError{Start: start, End: end}
	}
	return TimeRange{Start: start, End: end}, nil
}

// Overlaps uses half-open semantics: ranges that only touch do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r TimeRange) Contains(inner TimeRange) bool {
	return !inner.Start.Before(r.Start) && !inner.End.After(r.End)
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r TimeRange) DurationMinutes() int {
	return int(r.End.Sub(r.Start) / time.Minute)
}

func (r TimeRange) Shift(d time.Duration) TimeRange {
	return TimeRange{Start: r.Start.Add(d), End: r.End.Add(d)}
}

// RoundToSlot floors t to the previous slot boundary.
func RoundToSlot(t time.Time, slotInterval time.Duration) time.Time {
	if slotInterval <= 0 {
		return t
	}
	return t.Truncate(slotInterval)
}
