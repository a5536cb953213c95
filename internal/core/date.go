package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the wire and form format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time-of-day significance.
// The zero value means "missing or unparseable".
type Date struct {
	time.Time
}

// Timestamp is an informational instant sent by the backend.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts yyyy-MM-dd as well as full timestamps, keeping only the
// calendar part as written (no zone conversion).
func ParseDate(s string) (Date, error) {
	t, err := parseLenient(s)
	if err != nil {
		return Date{}, err
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func parseLenient(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// InMonthOf reports whether d falls in the calendar month and year of ref.
func (d Date) InMonthOf(ref time.Time) bool {
	if d.IsZero() {
		return false
	}
	return d.Year() == ref.Year() && d.Month() == ref.Month()
}

// String formats the date as yyyy-MM-dd, or "" when missing.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON never fails on malformed input; bad dates decode as zero.
func (d *Date) UnmarshalJSON(b []byte) error {
	*d = Date{}
	var s string
	if bytes.Equal(b, []byte("null")) || json.Unmarshal(b, &s) != nil {
		return nil
	}
	if parsed, err := ParseDate(s); err == nil {
		*d = parsed
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// UnmarshalJSON is lenient like Date.UnmarshalJSON.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	var s string
	if bytes.Equal(b, []byte("null")) || json.Unmarshal(b, &s) != nil {
		return nil
	}
	if parsed, err := parseLenient(s); err == nil {
		t.Time = parsed
	}
	return nil
}
