// Package daterange turns a user supplied start/end pair into the ordered list of
// days a load has to fetch.
package daterange

import (
	"fmt"
	"time"

	"econscour/internal/model"
)

// DefaultMaxSpanDays caps a single load; long ranges exhaust memory.
const DefaultMaxSpanDays = 60

// FirstDay is the first day the upstream published econ data.
var FirstDay = model.DateKey{Year: 2022, Month: time.November, Day: 23}

// InvalidRangeError reports a range that must be rejected before any fetch.
type InvalidRangeError struct {
	Start  model.DateKey
	End    model.DateKey
	Reason string
}

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range %s..%s: %s", e.Start, e.End, e.Reason)
}

// Expander validates and expands date ranges.
type Expander struct {
	MinDate     model.DateKey
	MaxSpanDays int // 0 disables the cap
	Now         func() time.Time // nil means the wall clock
}

// Default returns an expander bounded by FirstDay and DefaultMaxSpanDays.
func Default() *Expander {
	return &Expander{
		MinDate:     FirstDay,
		MaxSpanDays: DefaultMaxSpanDays,
	}
}

// New builds an expander from a YYYY-MM-DD minimum date string.
func New(minDate string, maxSpanDays int) (*Expander, error) {
	e := Default()
	if minDate != "" {
		d, err := model.ParseDateKey(minDate)
		if err != nil {
			return nil, fmt.Errorf("range min date: %w", err)
		}
		e.MinDate = d
	}
	if maxSpanDays < 0 {
		return nil, fmt.Errorf("range max span must not be negative, got %d", maxSpanDays)
	}
	e.MaxSpanDays = maxSpanDays
	return e, nil
}

// Today returns the upper bound of valid days.
func (e *Expander) Today() model.DateKey {
	if e.Now == nil {
		return model.Today()
	}
	return model.NewDateKey(e.Now())
}

// Validate checks a range without expanding it.
func (e *Expander) Validate(start, end model.DateKey) error {
	invalid := func(reason string) error {
		return &InvalidRangeError{Start: start, End: end, Reason: reason}
	}

	if start.IsZero() || end.IsZero() {
		return invalid("start and end are required")
	}
	if start.After(end) {
		return invalid("start is after end")
	}
	if start.Before(e.MinDate) {
		return invalid(fmt.Sprintf("start is before %s", e.MinDate))
	}
	if today := e.Today(); end.After(today) {
		return invalid(fmt.Sprintf("end is after %s", today))
	}
	if span := start.DaysUntil(end) + 1; e.MaxSpanDays > 0 && span > e.MaxSpanDays {
		return invalid(fmt.Sprintf("%d days exceeds the %d day limit", span, e.MaxSpanDays))
	}
	return nil
}

// Expand returns every day from start to end inclusive, in order.
func (e *Expander) Expand(start, end model.DateKey) ([]model.DateKey, error) {
	if err := e.Validate(start, end); err != nil {
		return nil, err
	}

	days := make([]model.DateKey, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days, nil
}
