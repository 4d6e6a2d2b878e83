package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RecurrenceFrequency string

const (
	FrequencyDaily   RecurrenceFrequency = "daily"
	FrequencyWeekly  RecurrenceFrequency = "weekly"
	FrequencyMonthly RecurrenceFrequency = "monthly"
)

type RecurrenceEndType string

const (
	EndByCount RecurrenceEndType = "count"
	EndByDate  RecurrenceEndType = "until_date"
)

// RecurrencePattern describes how a series repeats. Exactly one end condition
// applies: Count when EndType is EndByCount, Until when EndType is EndByDate.
type RecurrencePattern struct {
	Frequency  RecurrenceFrequency `json:"frequency"`
	Interval   int                 `json:"interval"`
	DaysOfWeek []time.Weekday      `json:"days_of_week,omitempty"`
	EndType    RecurrenceEndType   `json:"end_type"`
	Count      int                 `json:"count,omitempty"`
	Until      time.Time           `json:"until,omitempty"`
}

// Validate checks the pattern structurally; booking feasibility of individual
// occurrences is the conflict checker's job.
func (p RecurrencePattern) Validate() []string {
	var problems []string

	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		problems = append(problems, fmt.Sprintf("unsupported frequency %q", p.Frequency))
	}

	if p.Interval < 1 {
		problems = append(problems, "interval must be at least 1")
	}

	for _, wd := range p.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			problems = append(problems, fmt.Sprintf("invalid weekday %d", wd))
		}
	}
	if p.Frequency != FrequencyWeekly && len(p.DaysOfWeek) > 0 {
		problems = append(problems, "days_of_week only applies to weekly patterns")
	}

	switch p.EndType {
	case EndByCount:
		if p.Count < 1 {
			problems = append(problems, "count must be at least 1")
		}
	case EndByDate:
		if p.Until.IsZero() {
			problems = append(problems, "until date is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported end condition %q", p.EndType))
	}

	return problems
}

// RecurrenceTooLargeError rejects patterns that would expand past the
// configured occurrence ceiling, so a pathological pattern can never silently
// create thousands of rows.
type RecurrenceTooLargeError struct {
	Limit int
}

func (e *RecurrenceTooLargeError) Error() string {
	return fmt.Sprintf("recurrence pattern would exceed the maximum of %d occurrences", e.Limit)
}

// NewRecurrenceGroupID returns the opaque identifier shared by all occurrences
// of one series. Random rather than time-ordered: it groups, it does not sort.
func NewRecurrenceGroupID() uuid.UUID {
	return uuid.New()
}

// GenerateOccurrences expands a pattern into concrete time ranges starting at
// firstOccurrence, bounded by the pattern's end condition and by
// maxOccurrences. The first occurrence is always included.
func GenerateOccurrences(p RecurrencePattern, firstOccurrence TimeRange, maxOccurrences int) ([]TimeRange, error) {
	if problems := p.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid recurrence pattern: %s", problems[0])
	}
	if maxOccurrences < 1 {
		maxOccurrences = 1
	}

	duration := firstOccurrence.Duration()
	if duration <= 0 {
		return nil, &InvalidRangeError{Start: firstOccurrence.Start, End: firstOccurrence.End}
	}

	var out []TimeRange
	emit := func(start time.Time) (done bool, err error) {
		if p.EndType == EndByDate && start.After(p.Until.UTC()) {
			return true, nil
		}
		if len(out) == maxOccurrences {
			return false, &RecurrenceTooLargeError{Limit: maxOccurrences}
		}
		out = append(out, TimeRange{Start: start, End: start.Add(duration)})
		if p.EndType == EndByCount && len(out) == p.Count {
			return true, nil
		}
		return false, nil
	}

	first := firstOccurrence.Start.UTC()

	switch p.Frequency {
	case FrequencyDaily, FrequencyMonthly:
		for i := 0; ; i++ {
			var start time.Time
			if p.Frequency == FrequencyDaily {
				start = first.AddDate(0, 0, i*p.Interval)
			} else {
				start = first.AddDate(0, i*p.Interval, 0)
			}
			done, err := emit(start)
			if err != nil {
				return nil, err
			}
			if done {
				return out, nil
			}
		}

	default: // weekly
		weekdays := p.DaysOfWeek
		if len(weekdays) == 0 {
			weekdays = []time.Weekday{first.Weekday()}
		}
		weekdays = sortedWeekdays(weekdays)
		firstWeekMonday := mondayOf(first)
		for week := 0; ; week++ {
			weekMonday := firstWeekMonday.AddDate(0, 0, week*p.Interval*7)
			for _, wd := range weekdays {
				day := weekMonday.AddDate(0, 0, offsetFromMonday(wd))
				start := time.Date(day.Year(), day.Month(), day.Day(),
					first.Hour(), first.Minute(), first.Second(), first.Nanosecond(), time.UTC)
				if start.Before(first) {
					continue
				}
				done, err := emit(start)
				if err != nil {
					return nil, err
				}
				if done {
					return out, nil
				}
			}
		}
	}
}

func mondayOf(t time.Time) time.Time {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -offset)
}

func offsetFromMonday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 6
	}
	return int(wd) - 1
}

// sortedWeekdays dedups and orders Monday-first, matching week iteration.
func sortedWeekdays(weekdays []time.Weekday) []time.Weekday {
	out := make([]time.Weekday, 0, len(weekdays))
	seen := make(map[time.Weekday]struct{}, len(weekdays))
	for _, wd := range weekdays {
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		out = append(out, wd)
	}
	for i := 1; i < len(out); i++ {
		key := out[i]
		j := i - 1
		for j >= 0 && offsetFromMonday(out[j]) > offsetFromMonday(key) {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = key
	}
	return out
}
