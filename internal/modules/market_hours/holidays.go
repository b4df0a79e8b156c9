package market_hours

import "time"

// CalculateEaster returns Easter Sunday (Gregorian computus) for the given year
func CalculateEaster(year int) time.Time {
	// Golden Number (position in 19-year Metonic cycle)
	a := year % 19

	b := year / 100
	c := year % 100

	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451

	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// CalculateGoodFriday returns the Friday before Easter
func CalculateGoodFriday(year int) time.Time {
	return CalculateEaster(year).AddDate(0, 0, -2)
}

// findNthWeekday finds the nth occurrence of a weekday in a given month/year
func findNthWeekday(year, month int, weekday time.Weekday, n int) time.Time {
	date := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)

	daysToAdd := int(weekday - date.Weekday())
	if daysToAdd < 0 {
		daysToAdd += 7
	}
	return date.AddDate(0, 0, daysToAdd+(n-1)*7)
}

// findLastWeekday finds the last occurrence of a weekday in a given month/year
func findLastWeekday(year, month int, weekday time.Weekday) time.Time {
	date := time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC)

	daysToSubtract := int(date.Weekday() - weekday)
	if daysToSubtract < 0 {
		daysToSubtract += 7
	}
	return date.AddDate(0, 0, -daysToSubtract)
}

// observeOnWeekday moves a date to the nearest weekday if it falls on a weekend
// Saturday -> Friday, Sunday -> Monday
func observeOnWeekday(date time.Time) time.Time {
	switch date.Weekday() {
	case time.Saturday:
		return date.AddDate(0, 0, -1)
	case time.Sunday:
		return date.AddDate(0, 0, 1)
	default:
		return date
	}
}

// CalculateUSHolidays returns the full-day US equity market holidays for a year.
// Dates are midnight UTC of the calendar day.
func CalculateUSHolidays(year int) []time.Time {
	holidays := make([]time.Time, 0, 10)

	// New Year's Day. A Saturday Jan 1 is not observed on the prior Friday,
	// since that would close the market on the last trading day of the year.
	newYear := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	if newYear.Weekday() != time.Saturday {
		holidays = append(holidays, observeOnWeekday(newYear))
	}

	holidays = append(holidays,
		findNthWeekday(year, 1, time.Monday, 3), // Martin Luther King Jr. Day
		findNthWeekday(year, 2, time.Monday, 3), // Presidents Day
		CalculateGoodFriday(year),
		findLastWeekday(year, 5, time.Monday), // Memorial Day
	)

	// Juneteenth became a market holiday in 2022
	if year >= 2022 {
		holidays = append(holidays, observeOnWeekday(time.Date(year, 6, 19, 0, 0, 0, 0, time.UTC)))
	}

	holidays = append(holidays,
		observeOnWeekday(time.Date(year, 7, 4, 0, 0, 0, 0, time.UTC)), // Independence Day
		findNthWeekday(year, 9, time.Monday, 1),                       // Labor Day
		findNthWeekday(year, 11, time.Thursday, 4),                    // Thanksgiving
		observeOnWeekday(time.Date(year, 12, 25, 0, 0, 0, 0, time.UTC)), // Christmas
	)

	return holidays
}
