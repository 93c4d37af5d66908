package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (nights are counted between dates, never between instants)
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return NewDate(lt.Year(), lt.Month(), lt.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// Comparison
func (d Date) Before(o Date) bool       { return d.t.Before(o.t) }
func (d Date) After(o Date) bool        { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool        { return d.t.Equal(o.t) }
func (d Date) AfterOrEqual(o Date) bool { return !d.Before(o) }
func (d Date) IsZero() bool             { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Start returns midnight of the day in loc.
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Nights counts the nights between two calendar days. Negative when to is
// before from.
func Nights(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// DATE RANGE - Half-open [From, To): the nights a room is occupied
// =============================================================================

type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Nights() int { return Nights(r.From, r.To) }

// EachNight returns every night in the range, in order.
func (r DateRange) EachNight() []Date {
	var nights []Date
	for d := r.From; d.Before(r.To); d = d.AddDays(1) {
		nights = append(nights, d)
	}
	return nights
}

// Contains reports whether the night of d is in the range.
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.From) && d.Before(r.To)
}

// Overlaps reports whether two ranges share at least one night.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.From.Before(o.To) && o.From.Before(r.To)
}

func (r DateRange) String() string { return fmt.Sprintf("[%s, %s)", r.From, r.To) }
