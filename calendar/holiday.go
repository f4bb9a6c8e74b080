package calendar

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holiday is a day that never counts as working time.
type Holiday struct {
	ID        string
	Date      time.Time // only year, month and day are used
	Name      string
	Recurring bool // same month/day every year
}

// Matches reports whether the holiday falls on day.
func (h Holiday) Matches(day time.Time) bool {
	if h.Recurring {
		return h.Date.Month() == day.Month() && h.Date.Day() == day.Day()
	}
	return h.Date.Year() == day.Year() && h.Date.Month() == day.Month() && h.Date.Day() == day.Day()
}

// Holidays answers whether a date is a holiday.
type Holidays interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// StaticHolidays is a fixed in-memory holiday list.
type StaticHolidays []Holiday

func (s StaticHolidays) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	for _, h := range s {
		if h.Matches(date) {
			return true, nil
		}
	}
	return false, nil
}

var _ Holidays = StaticHolidays(nil)

var (
	// ErrHolidayNotFound is returned when deleting an unknown holiday.
	ErrHolidayNotFound = errors.New("holiday not found")
	// ErrHolidayExists is returned when saving a holiday whose ID, or whose
	// date and name, is already stored.
	ErrHolidayExists = errors.New("holiday already exists")
)

// HolidayStore manages the holiday list behind a Holidays lookup.
type HolidayStore interface {
	Holidays
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
}
