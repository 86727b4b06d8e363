package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateKey identifies one UTC calendar day of econ data.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDateKey truncates t to its UTC calendar day.
func NewDateKey(t time.Time) DateKey {
	t = t.UTC()
	return DateKey{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Today returns the current UTC day.
func Today() DateKey {
	return NewDateKey(time.Now())
}

// Time returns midnight UTC of the day.
func (d DateKey) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero DateKey (used for static resources).
func (d DateKey) IsZero() bool {
	return d == DateKey{}
}

// AddDays returns the day n days after d.
func (d DateKey) AddDays(n int) DateKey {
	return NewDateKey(d.Time().AddDate(0, 0, n))
}

// Compare returns -1, 0 or 1.
func (d DateKey) Compare(o DateKey) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d DateKey) Before(o DateKey) bool { return d.Compare(o) < 0 }
func (d DateKey) After(o DateKey) bool  { return d.Compare(o) > 0 }

// DaysUntil returns the number of whole days from d to o (negative when o is earlier).
func (d DateKey) DaysUntil(o DateKey) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// String formats the day as YYYY-MM-DD.
func (d DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Path formats the day the way the upstream names its directories: YYYY_M_D, unpadded.
func (d DateKey) Path() string {
	return fmt.Sprintf("%d_%d_%d", d.Year, int(d.Month), d.Day)
}

// PaddedPath formats the day as YYYY_MM_DD.
func (d DateKey) PaddedPath() string {
	return fmt.Sprintf("%d_%02d_%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d DateKey) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DateKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = DateKey{}
		return nil
	}
	parsed, err := ParseDateKey(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDateKey accepts YYYY-MM-DD as well as the upstream YYYY_M_D form, padded or not.
func ParseDateKey(s string) (DateKey, error) {
	s = strings.TrimSpace(s)
	sep := "-"
	if strings.Contains(s, "_") {
		sep = "_"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return DateKey{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or YYYY_M_D", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return DateKey{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		nums[i] = n
	}

	d := DateKey{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}
	// time.Date normalizes out-of-range values; a round trip catches 2023-02-30.
	if NewDateKey(d.Time()) != d {
		return DateKey{}, fmt.Errorf("invalid date %q: no such day", s)
	}
	return d, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
