package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateValue carries the three free-text inputs of a day/month/year field.
// Values stay as entered until validated; Wire renders the canonical form.
type DateValue struct {
	Day   string `json:"day,omitempty"`
	Month string `json:"month,omitempty"`
	Year  string `json:"year,omitempty"`
}

// IsEmpty reports whether all three parts are blank.
func (d DateValue) IsEmpty() bool {
	return strings.TrimSpace(d.Day) == "" && strings.TrimSpace(d.Month) == "" && strings.TrimSpace(d.Year) == ""
}

// IsComplete reports whether all three parts are present.
func (d DateValue) IsComplete() bool {
	return strings.TrimSpace(d.Day) != "" && strings.TrimSpace(d.Month) != "" && strings.TrimSpace(d.Year) != ""
}

// Numeric returns the integer parts. ok is false when any part is missing
// or not a plain decimal number.
func (d DateValue) Numeric() (day, month, year int, ok bool) {
	if !d.IsComplete() {
		return 0, 0, 0, false
	}
	var err error
	if day, err = strconv.Atoi(strings.TrimSpace(d.Day)); err != nil {
		return 0, 0, 0, false
	}
	if month, err = strconv.Atoi(strings.TrimSpace(d.Month)); err != nil {
		return 0, 0, 0, false
	}
	if year, err = strconv.Atoi(strings.TrimSpace(d.Year)); err != nil {
		return 0, 0, 0, false
	}
	return day, month, year, true
}

// Time converts to a time.Time in UTC. ok is false for incomplete,
// non-numeric or impossible dates.
func (d DateValue) Time() (time.Time, bool) {
	day, month, year, ok := d.Numeric()
	if !ok {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > DaysInMonth(month, year) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// Wire renders the zero-padded YYYY-MM-DD form used on the API.
// Call only after validation; incomplete dates render as empty string.
func (d DateValue) Wire() string {
	day, month, year, ok := d.Numeric()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// ParseWire converts a YYYY-MM-DD string back into a DateValue.
func ParseWire(s string) (DateValue, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return DateValue{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateFromTime(t), nil
}

// DateFromTime builds a zero-padded DateValue from a time.
func DateFromTime(t time.Time) DateValue {
	return DateValue{
		Day:   fmt.Sprintf("%02d", t.Day()),
		Month: fmt.Sprintf("%02d", int(t.Month())),
		Year:  fmt.Sprintf("%04d", t.Year()),
	}
}

// DaysInMonth returns the number of days in the given month, honouring
// leap years for February.
func DaysInMonth(month, year int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	}
	return 0
}

// AddMonths shifts a calendar date forward by whole months, clamping the
// day to the target month's length so Nov 30 + 3 months is Feb 28/29.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	year += (m - 1) / 12
	m = (m-1)%12 + 1
	if max := DaysInMonth(m, year); day > max {
		day = max
	}
	return time.Date(year, time.Month(m), day, 0, 0, 0, 0, time.UTC)
}
