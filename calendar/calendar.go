/*
Package calendar converts leave intervals into billable working time.

PURPOSE:
  A leave interval is wall-clock time; what an employee is charged for is
  the part of it that falls inside working hours on working days.

RULES:
  - Saturdays and Sundays never count
  - Holidays never count (recurring holidays match month and day)
  - On a working day only [DayStart, DayEnd) counts, in Location

EXAMPLE (DayStart 09:00, DayEnd 17:00):

  Fri 09:00 -> Mon 13:00   = 8h (Fri) + 0 (Sat, Sun) + 4h (Mon) = 12h

SEE ALSO:
  - holiday.go: holiday sources
  - leave.WorkingTimeCalendar: the interface this satisfies
*/
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidWindow = errors.New("workday end must be after workday start")
	ErrSpanTooLong   = errors.New("interval spans too many days")
)

// MaxSpanDays bounds how many calendar days one interval may cover.
const MaxSpanDays = 366 * 2

// WorkingHours is a weekday working window with optional holidays.
type WorkingHours struct {
	DayStart time.Duration // offset from local midnight
	DayEnd   time.Duration
	Location *time.Location
	Holidays Holidays
}

// Standard returns a 09:00-17:00 UTC calendar without holidays.
func Standard() *WorkingHours {
	return &WorkingHours{DayStart: 9 * time.Hour, DayEnd: 17 * time.Hour, Location: time.UTC}
}

// ElapsedSeconds returns the working seconds inside [start, end).
func (w *WorkingHours) ElapsedSeconds(ctx context.Context, start, end time.Time) (int64, error) {
	if w.DayEnd <= w.DayStart {
		return 0, ErrInvalidWindow
	}
	if !end.After(start) {
		return 0, nil
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}

	start, end = start.In(loc), end.In(loc)
	day := midnight(start)
	last := midnight(end)
	if last.Sub(day) > MaxSpanDays*24*time.Hour {
		return 0, fmt.Errorf("%w: %s to %s", ErrSpanTooLong, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	var total time.Duration
	for !day.After(last) {
		ok, err := w.IsWorkday(ctx, day)
		if err != nil {
			return 0, err
		}
		if ok {
			total += overlap(start, end, wallClock(day, w.DayStart), wallClock(day, w.DayEnd))
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return int64(total / time.Second), nil
}

// IsWorkday reports whether day is neither a weekend day nor a holiday.
func (w *WorkingHours) IsWorkday(ctx context.Context, day time.Time) (bool, error) {
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	if w.Holidays == nil {
		return true, nil
	}
	holiday, err := w.Holidays.IsHoliday(ctx, day)
	if err != nil {
		return false, fmt.Errorf("holiday lookup: %w", err)
	}
	return !holiday, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// wallClock returns the local time offset from day's midnight by the clock
// reading in d, so the window stays put across a DST change on that day.
func wallClock(day time.Time, d time.Duration) time.Time {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, int(d%time.Second), day.Location())
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	lo, hi := aStart, aEnd
	if bStart.After(lo) {
		lo = bStart
	}
	if bEnd.Before(hi) {
		hi = bEnd
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo)
}
