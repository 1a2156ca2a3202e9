package attendance

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidStatus  = errors.New("status must be Present or Absent")
	ErrInvalidDate    = errors.New("date must be YYYY-MM-DD")
	ErrMissingStudent = errors.New("student id required")
)

// Status is a student's attendance on one date.
type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
	// NotMarked is what StatusOf reports when no entry exists. It is never
	// stored.
	NotMarked Status = "NotMarked"
)

// Markable reports whether s may be stored.
func (s Status) Markable() bool {
	return s == Present || s == Absent
}

// ParseStatus accepts "present" or "absent" in any case.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "present":
		return Present, nil
	case "absent":
		return Absent, nil
	}
	return "", ErrInvalidStatus
}

// DateLayout is the calendar date format used as the records key.
const DateLayout = "2006-01-02"

// Today returns the local calendar date right now.
func Today() string {
	return DateOf(time.Now())
}

// DateOf formats t's local calendar day.
func DateOf(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// ValidDate reports whether d is a real calendar date in canonical
// YYYY-MM-DD form.
func ValidDate(d string) bool {
	t, err := time.Parse(DateLayout, d)
	return err == nil && t.Format(DateLayout) == d
}
