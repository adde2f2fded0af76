package timeutil

import (
	"fmt"
	"time"
)

// Wire formats used in callback data and user-facing texts.
const (
	DateWire    = "2006-01-02" // callback data
	DateDisplay = "02-01-2006" // messages and buttons
	ClockFormat = "15:04"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// Overlaps reports whether two half-open intervals intersect. Touching
// intervals do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) String() string {
	return iv.Start.Format(ClockFormat) + "-" + iv.End.Format(ClockFormat)
}

// Midnight returns the start of t's calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At combines a calendar day with an offset from midnight.
func At(day time.Time, offset time.Duration) time.Time {
	return Midnight(day).Add(offset)
}

// QuantizeUp rounds t up to the next multiple of step past local midnight.
// A time already on the grid is returned unchanged.
func QuantizeUp(t time.Time, step time.Duration) time.Time {
	midnight := Midnight(t)
	off := t.Sub(midnight)
	rem := off % step
	if rem == 0 {
		return t
	}
	return midnight.Add(off - rem + step)
}

// QuantizeDown rounds t down to the previous multiple of step past local
// midnight.
func QuantizeDown(t time.Time, step time.Duration) time.Time {
	midnight := Midnight(t)
	off := t.Sub(midnight)
	return midnight.Add(off - off%step)
}

// AlignDuration validates that d is a positive multiple of step.
func AlignDuration(d, step time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration %v is not positive", d)
	}
	if d%step != 0 {
		return fmt.Errorf("duration %v is not a multiple of %v", d, step)
	}
	return nil
}

// ClampToWindow clips iv to the window. An empty result is an error.
func ClampToWindow(iv, window Interval) (Interval, error) {
	out := iv
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	if !out.Start.Before(out.End) {
		return Interval{}, fmt.Errorf("interval %v outside window %v", iv, window)
	}
	return out, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockFormat, s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatOffset renders an offset from midnight (or a duration) as "HH:MM".
func FormatOffset(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseDateWire parses a callback-data date in the given location.
func ParseDateWire(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateWire, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
