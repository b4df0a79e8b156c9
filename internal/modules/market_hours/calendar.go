// Package market_hours provides the business-day calendar used by settlement and
// day-trade windows.
package market_hours

import (
	"sync"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
)

// BusinessCalendar decides which calendar dates are settlement days.
// Dates are midnight UTC of the market-local calendar day (see domain.DateOf).
type BusinessCalendar interface {
	IsBusinessDay(date time.Time) bool
	Name() string
}

// WeekendCalendar treats every Monday-Friday as a business day
type WeekendCalendar struct{}

// IsBusinessDay reports whether date is a weekday
func (WeekendCalendar) IsBusinessDay(date time.Time) bool {
	return !domain.IsWeekend(date)
}

// Name identifies the calendar in logs
func (WeekendCalendar) Name() string {
	return "weekends"
}

// USMarketCalendar skips weekends and US equity market holidays.
// Holiday sets are computed once per year and memoised.
type USMarketCalendar struct {
	mu    sync.RWMutex
	years map[int]map[string]bool
}

// NewUSMarketCalendar creates a holiday-aware calendar
func NewUSMarketCalendar() *USMarketCalendar {
	return &USMarketCalendar{years: make(map[int]map[string]bool)}
}

// IsBusinessDay reports whether date is a weekday that is not a market holiday
func (c *USMarketCalendar) IsBusinessDay(date time.Time) bool {
	if domain.IsWeekend(date) {
		return false
	}
	return !c.IsHoliday(date)
}

// IsHoliday reports whether date is a US market holiday
func (c *USMarketCalendar) IsHoliday(date time.Time) bool {
	return c.holidaysFor(date.Year())[domain.FormatDate(date)]
}

// Name identifies the calendar in logs
func (c *USMarketCalendar) Name() string {
	return "us_market"
}

func (c *USMarketCalendar) holidaysFor(year int) map[string]bool {
	c.mu.RLock()
	set, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.years[year]; ok {
		return set
	}

	set = make(map[string]bool)
	for _, h := range CalculateUSHolidays(year) {
		set[domain.FormatDate(h)] = true
	}
	c.years[year] = set
	return set
}

// NewCalendar returns the holiday-aware calendar when skipHolidays is set,
// otherwise the weekends-only calendar
func NewCalendar(skipHolidays bool) BusinessCalendar {
	if skipHolidays {
		return NewUSMarketCalendar()
	}
	return WeekendCalendar{}
}

// AddBusinessDays moves date forward by n business days
func AddBusinessDays(cal BusinessCalendar, date time.Time, n int) time.Time {
	d := date
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if cal.IsBusinessDay(d) {
			added++
		}
	}
	return d
}

// TrailingWindowStart returns the first date of the window that ends on today
// and spans n business days, today included when it is a business day.
func TrailingWindowStart(cal BusinessCalendar, today time.Time, n int) time.Time {
	if n <= 0 {
		return today
	}

	d := today
	// Bound the walk so a pathological calendar cannot loop forever
	for i, counted := 0, 0; i < 366; i++ {
		if cal.IsBusinessDay(d) {
			counted++
			if counted == n {
				return d
			}
		}
		d = d.AddDate(0, 0, -1)
	}
	return d
}
