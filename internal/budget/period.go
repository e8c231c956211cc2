// Package budget derives pay-cycle periods from a payday rule and
// aggregates budget-versus-actual spend per saver and category.
package budget

import (
	"time"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

// Period is one pay cycle: payday through the day before the next payday,
// both bounds inclusive at day granularity.
type Period struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

func (p Period) Contains(date time.Time) bool {
	d := models.DayOf(date)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) TotalDays() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Progress describes how far through the period a given date is.
type Progress struct {
	DaysElapsed     int     `json:"daysElapsed"`
	DaysRemaining   int     `json:"daysRemaining"`
	TotalDays       int     `json:"totalDays"`
	ProgressPercent float64 `json:"progressPercent"`
}

func (p Period) ProgressAt(date time.Time) Progress {
	total := p.TotalDays()
	elapsed := int(models.DayOf(date).Sub(p.Start).Hours()/24) + 1
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > total {
		elapsed = total
	}
	pct := 0.0
	if total > 0 {
		pct = float64(elapsed) / float64(total) * 100
	}
	return Progress{
		DaysElapsed:     elapsed,
		DaysRemaining:   total - elapsed,
		TotalDays:       total,
		ProgressPercent: pct,
	}
}

// EffectivePayday returns the payday for the given month after the weekend
// rule. A Saturday payday moves to the preceding Friday, a Sunday payday two
// days back to Friday. With a day-1 payday on a Saturday the effective date
// lands in the previous month; time.Date normalizes that.
func EffectivePayday(year int, month time.Month, cfg models.PaydayConfig) time.Time {
	day := cfg.PaydayDay
	if day < 1 {
		day = 1
	}
	if day > 28 {
		day = 28
	}
	nominal := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if !cfg.AdjustForWeekends {
		return nominal
	}
	switch nominal.Weekday() {
	case time.Saturday:
		return nominal.AddDate(0, 0, -1)
	case time.Sunday:
		return nominal.AddDate(0, 0, -2)
	}
	return nominal
}

// ResolvePeriod computes the pay period containing date, purely from the
// payday rule. No stored state is consulted; callers cache results keyed by
// start date if they want to.
func ResolvePeriod(date time.Time, cfg models.PaydayConfig) (Period, error) {
	if cfg.PaydayDay < 1 || cfg.PaydayDay > 28 {
		return Period{}, apperr.Field(apperr.Validation, "payday_day", "must be between 1 and 28")
	}
	d := models.DayOf(date)
	y, m, _ := d.Date()
	// Candidate paydays around the date's month. Weekend adjustment can
	// push a payday across a month boundary, so scan a window.
	var paydays []time.Time
	for off := -1; off <= 1; off++ {
		ref := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, off, 0)
		paydays = append(paydays, EffectivePayday(ref.Year(), ref.Month(), cfg))
	}
	for i := len(paydays) - 1; i >= 0; i-- {
		if !paydays[i].After(d) {
			var next time.Time
			if i+1 < len(paydays) {
				next = paydays[i+1]
			} else {
				ref := paydays[i].AddDate(0, 1, 0)
				next = EffectivePayday(ref.Year(), ref.Month(), cfg)
			}
			return Period{Start: paydays[i], End: next.AddDate(0, 0, -1)}, nil
		}
	}
	return Period{}, apperr.New(apperr.Internal, "no payday found around date")
}

// TrailingPeriods returns the n periods ending with the one containing ref,
// oldest first.
func TrailingPeriods(ref time.Time, cfg models.PaydayConfig, n int) ([]Period, error) {
	if n <= 0 {
		return nil, nil
	}
	current, err := ResolvePeriod(ref, cfg)
	if err != nil {
		return nil, err
	}
	periods := make([]Period, n)
	periods[n-1] = current
	for i := n - 2; i >= 0; i-- {
		prev, err := ResolvePeriod(periods[i+1].Start.AddDate(0, 0, -1), cfg)
		if err != nil {
			return nil, err
		}
		periods[i] = prev
	}
	return periods, nil
}
