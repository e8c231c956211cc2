package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEffectivePayday_Weekday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}
	// 2025-07-15 is a Tuesday
	assert.Equal(t, day(2025, 7, 15), EffectivePayday(2025, time.July, cfg))
}

func TestEffectivePayday_SaturdayShiftsToFriday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}
	// 2025-02-15 is a Saturday
	assert.Equal(t, day(2025, 2, 14), EffectivePayday(2025, time.February, cfg))
}

func TestEffectivePayday_SundayShiftsToFriday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}
	// 2025-06-15 is a Sunday
	assert.Equal(t, day(2025, 6, 13), EffectivePayday(2025, time.June, cfg))
}

func TestEffectivePayday_NoAdjustment(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: false}
	assert.Equal(t, day(2025, 2, 15), EffectivePayday(2025, time.February, cfg))
}

func TestEffectivePayday_FirstOnSaturdayCrossesMonth(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 1, AdjustForWeekends: true}
	// 2025-03-01 is a Saturday; the effective payday lands in February
	assert.Equal(t, day(2025, 2, 28), EffectivePayday(2025, time.March, cfg))
}

func TestResolvePeriod_AfterPayday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15}
	p, err := ResolvePeriod(day(2025, 7, 20), cfg)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 7, 15), p.Start)
	assert.Equal(t, day(2025, 8, 14), p.End)
}

func TestResolvePeriod_BeforePayday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15}
	p, err := ResolvePeriod(day(2025, 7, 10), cfg)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 6, 15), p.Start)
	assert.Equal(t, day(2025, 7, 14), p.End)
}

func TestResolvePeriod_OnPayday(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15}
	p, err := ResolvePeriod(day(2025, 7, 15), cfg)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 7, 15), p.Start)
}

func TestResolvePeriod_WeekendAdjustedStart(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}
	// nominal payday 2025-02-15 is a Saturday, so the period starts the 14th
	p, err := ResolvePeriod(day(2025, 2, 14), cfg)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 2, 14), p.Start)

	// the day before belongs to the previous period
	prev, err := ResolvePeriod(day(2025, 2, 13), cfg)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 2, 13), prev.End)
}

func TestResolvePeriod_InvalidPaydayDay(t *testing.T) {
	_, err := ResolvePeriod(day(2025, 7, 10), models.PaydayConfig{PaydayDay: 31})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestTrailingPeriods_Contiguous(t *testing.T) {
	cfg := models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}
	periods, err := TrailingPeriods(day(2025, 7, 20), cfg, 6)
	require.NoError(t, err)
	require.Len(t, periods, 6)

	assert.Equal(t, day(2025, 7, 15), periods[5].Start)
	for i := 1; i < len(periods); i++ {
		assert.Equal(t, periods[i-1].End.AddDate(0, 0, 1), periods[i].Start,
			"period %d must start the day after its predecessor ends", i)
	}
}

func TestPeriodProgress(t *testing.T) {
	p := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	assert.Equal(t, 31, p.TotalDays())

	at := p.ProgressAt(day(2025, 7, 15))
	assert.Equal(t, 1, at.DaysElapsed)
	assert.Equal(t, 30, at.DaysRemaining)

	end := p.ProgressAt(day(2025, 8, 14))
	assert.Equal(t, 31, end.DaysElapsed)
	assert.InDelta(t, 100.0, end.ProgressPercent, 0.001)

	// clamped outside the period
	after := p.ProgressAt(day(2025, 9, 1))
	assert.Equal(t, 31, after.DaysElapsed)
	before := p.ProgressAt(day(2025, 7, 1))
	assert.Equal(t, 0, before.DaysElapsed)
}

func TestPeriodContains(t *testing.T) {
	p := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	assert.True(t, p.Contains(day(2025, 7, 15)))
	assert.True(t, p.Contains(day(2025, 8, 14)))
	assert.False(t, p.Contains(day(2025, 8, 15)))
	assert.False(t, p.Contains(day(2025, 7, 14)))
}
