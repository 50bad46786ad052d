// Package calendar implements business-day arithmetic over a market holiday list.
package calendar

import (
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
)

// maxAdjustDays bounds forward adjustment; a year of consecutive holidays
// means the holiday list is broken, not that the market is closed.
const maxAdjustDays = 366

// Calendar answers business-day questions. The zero value is a
// weekend-only calendar.
type Calendar struct {
	holidays map[time.Time]struct{}
}

// New creates a calendar from a holiday list. An empty list degrades to
// weekend-only adjustment.
func New(holidays []time.Time) *Calendar {
	c := &Calendar{holidays: make(map[time.Time]struct{}, len(holidays))}
	for _, h := range holidays {
		if h.IsZero() {
			continue
		}
		c.holidays[contracts.Day(h)] = struct{}{}
	}
	return c
}

// WeekendOnly returns a calendar without holidays
func WeekendOnly() *Calendar {
	return New(nil)
}

// HolidayCount returns the number of distinct holidays
func (c *Calendar) HolidayCount() int {
	if c == nil {
		return 0
	}
	return len(c.holidays)
}

// IsHoliday reports whether d is a listed holiday
func (c *Calendar) IsHoliday(d time.Time) bool {
	if c == nil || c.holidays == nil {
		return false
	}
	_, ok := c.holidays[contracts.Day(d)]
	return ok
}

// IsBusinessDay reports whether d is neither a weekend day nor a holiday
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}

// Adjust moves d forward one day at a time until it lands on a business day.
// A valid business day is returned unchanged.
func (c *Calendar) Adjust(d time.Time) time.Time {
	day := contracts.Day(d)
	for i := 0; i < maxAdjustDays && !c.IsBusinessDay(day); i++ {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// AddBusinessDays advances d by n business days (n <= 0 returns Adjust(d))
func (c *Calendar) AddBusinessDays(d time.Time, n int) time.Time {
	day := c.Adjust(d)
	for i := 0; i < n; i++ {
		day = c.Adjust(day.AddDate(0, 0, 1))
	}
	return day
}

// BusinessDaysBetween lists the business days in [from, to]
func (c *Calendar) BusinessDaysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for day := c.Adjust(from); !day.After(contracts.Day(to)); day = c.Adjust(day.AddDate(0, 0, 1)) {
		days = append(days, day)
	}
	return days
}
