// Package slot builds the fixed daily grid of bookable vaccination windows.
package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	StrideMinutes      = 30
	DefaultDurationMin = 30
	WindowStartHour    = 9
	WindowEndHour      = 18

	DateLayout = "2006-01-02"
)

var (
	ErrOutOfWindow = errors.New("slot falls outside the daily service window")
	ErrMisaligned  = errors.New("slot start is not on the booking grid")
)

// Slot is one candidate booking window. EndAt is exclusive.
type Slot struct {
	StartAt     time.Time
	EndAt       time.Time
	DurationMin int
}

// Overlaps reports whether two half-open spans [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (s Slot) Overlaps(o Slot) bool {
	return Overlaps(s.StartAt, s.EndAt, o.StartAt, o.EndAt)
}

// Grid describes the service day in a single civic time zone.
// The zero value is not usable; use NewGrid.
type Grid struct {
	loc       *time.Location
	startHour int
	endHour   int
	stride    time.Duration
}

func NewGrid(loc *time.Location) Grid {
	if loc == nil {
		loc = time.UTC
	}
	return Grid{
		loc:       loc,
		startHour: WindowStartHour,
		endHour:   WindowEndHour,
		stride:    StrideMinutes * time.Minute,
	}
}

func (g Grid) Location() *time.Location { return g.loc }

// ParseDate reads a YYYY-MM-DD civic date as local midnight in the grid's zone.
func (g Grid) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// Day returns [midnight, next midnight) of the civic day containing t.
func (g Grid) Day(t time.Time) (dayStart, dayNext time.Time) {
	y, m, d := t.In(g.loc).Date()
	dayStart = time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	dayNext = time.Date(y, m, d+1, 0, 0, 0, 0, g.loc)
	return dayStart, dayNext
}

// Window returns the service window [09:00, 18:00) of the civic day containing t.
func (g Grid) Window(t time.Time) (start, end time.Time) {
	y, m, d := t.In(g.loc).Date()
	start = time.Date(y, m, d, g.startHour, 0, 0, 0, g.loc)
	end = time.Date(y, m, d, g.endHour, 0, 0, 0, g.loc)
	return start, end
}

// Generate lists every stride-aligned slot of the given civic day whose full span fits
// inside the service window, in chronological order. A non-positive duration means the default.
func (g Grid) Generate(day time.Time, durationMin int) []Slot {
	if durationMin <= 0 {
		durationMin = DefaultDurationMin
	}
	dur := time.Duration(durationMin) * time.Minute
	start, end := g.Window(day)

	var out []Slot
	for t := start; !t.Add(dur).After(end); t = t.Add(g.stride) {
		out = append(out, Slot{
			StartAt:     t.UTC(),
			EndAt:       t.Add(dur).UTC(),
			DurationMin: durationMin,
		})
	}
	return out
}

// Fit validates an arbitrary instant and duration against the window of its own civic day.
func (g Grid) Fit(startAt time.Time, durationMin int) (Slot, error) {
	if durationMin <= 0 {
		durationMin = DefaultDurationMin
	}
	endAt := startAt.Add(time.Duration(durationMin) * time.Minute)
	winStart, winEnd := g.Window(startAt)
	if startAt.Before(winStart) || endAt.After(winEnd) {
		return Slot{}, ErrOutOfWindow
	}
	return Slot{StartAt: startAt.UTC(), EndAt: endAt.UTC(), DurationMin: durationMin}, nil
}

// Place is Fit for a booking: the start must also sit on the grid stride.
func (g Grid) Place(startAt time.Time, durationMin int) (Slot, error) {
	s, err := g.Fit(startAt, durationMin)
	if err != nil {
		return Slot{}, err
	}
	if !g.Aligned(startAt) {
		return Slot{}, ErrMisaligned
	}
	return s, nil
}

// Aligned reports whether t sits exactly on the grid stride counted from the window start.
func (g Grid) Aligned(t time.Time) bool {
	winStart, _ := g.Window(t)
	offset := t.Sub(winStart)
	return offset >= 0 && offset%g.stride == 0
}

// FormatInstant renders t as RFC 3339 in UTC without sub-second precision.
func FormatInstant(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
