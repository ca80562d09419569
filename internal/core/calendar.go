package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthIndex is a zero-based calendar month, January=0 through December=11.
type MonthIndex int

const (
	January MonthIndex = iota
	February
	March
	April
	May
	June
	July
	August
	September
	October
	November
	December
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

func (m MonthIndex) Valid() bool {
	return m >= January && m <= December
}

// Name returns the full English month name, or "" when m is out of range.
func (m MonthIndex) Name() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m]
}

// Short returns the three letter abbreviation used on chart axes.
func (m MonthIndex) Short() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m][:3]
}

// Number returns the 1-12 month number.
func (m MonthIndex) Number() int {
	return int(m) + 1
}

func (m MonthIndex) String() string {
	return m.Name()
}

// Months returns January through December in order.
func Months() []MonthIndex {
	out := make([]MonthIndex, 12)
	for i := range out {
		out[i] = MonthIndex(i)
	}
	return out
}

// MonthOf returns the month index of t.
func MonthOf(t time.Time) MonthIndex {
	return MonthIndex(t.Month() - 1)
}

// ParseMonth accepts a zero-based index ("2"), a full name ("March") or a
// short name ("Mar"), case-insensitively.
func ParseMonth(s string) (MonthIndex, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMonth)
	}
	if i, err := strconv.Atoi(s); err == nil {
		m := MonthIndex(i)
		if !m.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidMonth, i)
		}
		return m, nil
	}
	for i, name := range monthNames {
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return MonthIndex(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

// DaysIn returns the number of days of month m in year, leap years included.
func DaysIn(year int, m MonthIndex) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(year, time.Month(m)+2, 0, 0, 0, 0, 0, time.UTC).Day()
}
