package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeekStart(t *testing.T) {
	assert.Equal(t, date(2025, 3, 10), WeekStart(date(2025, 3, 10)))
	assert.Equal(t, date(2025, 3, 10), WeekStart(date(2025, 3, 14)))
	assert.Equal(t, date(2025, 3, 10), WeekStart(date(2025, 3, 16)))
	assert.Equal(t, date(2025, 3, 17), WeekStart(date(2025, 3, 17)))
}

func TestFrequencyCounter_Record(t *testing.T) {
	var c FrequencyCounter

	c.Record(date(2025, 3, 10))
	c.Record(date(2025, 3, 10))
	assert.Equal(t, 2, c.DailyCount)
	assert.Equal(t, 2, c.WeeklyCount)

	c.Record(date(2025, 3, 11))
	assert.Equal(t, 1, c.DailyCount)
	assert.Equal(t, 3, c.WeeklyCount)

	// Late-arriving fill for an earlier day in the same week
	c.Record(date(2025, 3, 10))
	assert.Equal(t, 1, c.DailyCount)
	assert.Equal(t, 4, c.WeeklyCount)

	c.Record(date(2025, 3, 17))
	assert.Equal(t, 1, c.DailyCount)
	assert.Equal(t, 1, c.WeeklyCount)
}

func TestFrequencyCounter_CountsOn(t *testing.T) {
	c := FrequencyCounter{
		PeriodStart: date(2025, 3, 11),
		WeekStart:   date(2025, 3, 10),
		DailyCount:  3,
		WeeklyCount: 7,
	}

	daily, weekly := c.CountsOn(date(2025, 3, 11))
	assert.Equal(t, 3, daily)
	assert.Equal(t, 7, weekly)

	daily, weekly = c.CountsOn(date(2025, 3, 12))
	assert.Equal(t, 0, daily)
	assert.Equal(t, 7, weekly)

	daily, weekly = c.CountsOn(date(2025, 3, 17))
	assert.Equal(t, 0, daily)
	assert.Equal(t, 0, weekly)
}

func TestResult_Merge(t *testing.T) {
	warn := violation(ModeWarning, ReasonGFV, ReasonGFVWarning, "w")
	block := violation(ModeStrict, ReasonPDTLimit, ReasonPDTWarning, "b")

	merged := Pass().Merge(warn)
	assert.True(t, merged.Allowed)

	merged = merged.Merge(block)
	assert.False(t, merged.Allowed)
	assert.Equal(t, []ReasonCode{ReasonGFVWarning, ReasonPDTLimit}, merged.Codes())
}
