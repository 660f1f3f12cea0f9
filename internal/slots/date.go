package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted date form.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("slots: invalid date")
	// ErrPastDate is returned for dates before today in the clinic timezone.
	ErrPastDate = errors.New("slots: date is in the past")
)

// ParseDate parses a strict YYYY-MM-DD date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// Today returns midnight of now's calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}

// ValidateBookable parses raw and rejects dates before today.
// It returns the normalized YYYY-MM-DD form.
func ValidateBookable(raw string, now time.Time, loc *time.Location) (string, error) {
	d, err := ParseDate(raw, loc)
	if err != nil {
		return "", err
	}
	if d.Before(Today(now, loc)) {
		return "", fmt.Errorf("%w: %s", ErrPastDate, d.Format(DateLayout))
	}
	return d.Format(DateLayout), nil
}

// Tomorrow returns the ISO date after today.
func Tomorrow(now time.Time, loc *time.Location) string {
	return Today(now, loc).AddDate(0, 0, 1).Format(DateLayout)
}

// NextMonday returns the coming Monday; on a Monday it is a week out.
func NextMonday(now time.Time, loc *time.Location) string {
	today := Today(now, loc)
	days := (int(time.Monday) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days).Format(DateLayout)
}
