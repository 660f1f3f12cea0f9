package slots

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidClock is returned when a time label cannot be parsed.
var ErrInvalidClock = errors.New("slots: invalid time")

// Clock is a wall-clock time of day at minute precision.
// At rest it is stored as canonical "HH:MM"; users see "h:MM AM".
type Clock struct {
	hour   int
	minute int
}

// NewClock validates the hour and minute.
func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}
	return Clock{hour: hour, minute: minute}, nil
}

// MustClock panics on invalid input. Intended for static tables.
func MustClock(hour, minute int) Clock {
	c, err := NewClock(hour, minute)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClock accepts "13:00", "1:00 PM", "01:00pm" and similar forms.
func ParseClock(raw string) (Clock, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Clock{}, fmt.Errorf("%w: empty", ErrInvalidClock)
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(s, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(s, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		s = strings.TrimSpace(strings.TrimSuffix(s, meridiem))
	}

	hourPart, minutePart, ok := strings.Cut(s, ":")
	if !ok || len(minutePart) != 2 || hourPart == "" || len(hourPart) > 2 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	}
	c, err := NewClock(hour, minute)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return c, nil
}

// Hour returns the hour in 24-hour form.
func (c Clock) Hour() int { return c.hour }

// Minute returns the minute.
func (c Clock) Minute() int { return c.minute }

// Canonical renders the storage form "HH:MM".
func (c Clock) Canonical() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

// Display renders the user-facing form "h:MM AM".
func (c Clock) Display() string {
	meridiem := "AM"
	if c.hour >= 12 {
		meridiem = "PM"
	}
	h := c.hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.minute, meridiem)
}

func (c Clock) String() string { return c.Canonical() }

// Before reports whether c is earlier in the day than other.
func (c Clock) Before(other Clock) bool {
	if c.hour != other.hour {
		return c.hour < other.hour
	}
	return c.minute < other.minute
}

// ToDisplay converts any accepted label to display form.
func ToDisplay(raw string) (string, error) {
	c, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return c.Display(), nil
}

// ToCanonical converts any accepted label to canonical form.
func ToCanonical(raw string) (string, error) {
	c, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return c.Canonical(), nil
}
