// Package timeofday holds the minute-of-day arithmetic used by scheduling.
// Wall-clock strings ("HH:MM") are parsed once at the boundary; everything
// inside the scheduling code compares integer minutes.
package timeofday

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Minute is a minute offset from midnight, 0..1439 for valid wall-clock values.
type Minute int

const (
	// MinutesPerDay is the exclusive upper bound of a wall-clock Minute.
	MinutesPerDay = 24 * 60

	// DateLayout is the canonical calendar date format.
	DateLayout = "2006-01-02"
)

// Parse converts "HH:MM" (24h, zero padded or not) into a Minute.
func Parse(s string) (Minute, error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(hs) == 0 || len(hs) > 2 || len(ms) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return Minute(h*60 + m), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Minute {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromClock returns the minute of day of t in t's location.
func FromClock(t time.Time) Minute {
	return Minute(t.Hour()*60 + t.Minute())
}

// String formats the minute as zero padded "HH:MM". Booked-time matching
// compares these strings, so every caller must format through here.
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m Minute) Add(minutes int) Minute {
	return m + Minute(minutes)
}

// Sub returns m - o in minutes.
func (m Minute) Sub(o Minute) int {
	return int(m - o)
}

func (m Minute) Valid() bool {
	return m >= 0 && m < MinutesPerDay
}

// On returns the instant at minute m of the calendar day of date, in loc.
func (m Minute) On(date time.Time, loc *time.Location) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, loc)
}

func (m Minute) Value() (driver.Value, error) {
	return int64(m), nil
}

func (m *Minute) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*m = Minute(v)
	case int32:
		*m = Minute(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("scan minute: %w", err)
		}
		*m = Minute(n)
	default:
		return fmt.Errorf("scan minute: unsupported type %T", src)
	}
	return nil
}

// Window is the half-open interval [Start, End) in minutes of day.
type Window struct {
	Start Minute
	End   Minute
}

// Overlaps reports whether [w.Start, w.End) and [o.Start, o.End) intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Within reports whether w lies fully inside the closed bounds of o.
func (w Window) Within(o Window) bool {
	return w.Start >= o.Start && w.End <= o.End
}

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Date truncates t to its calendar day, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate formats the calendar day of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
