// Package snapshot resolves balances for snapshot-based holdings by
// carrying the most recent known balance forward until a newer snapshot
// supersedes it.
package snapshot

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wealthd/internal/models"
)

// Resolved is a carry-forward result. Found is false when the holding has
// no snapshot at or before the target date, in which case it contributes
// nothing to calculations at that date.
type Resolved struct {
	Found    bool
	Balance  decimal.Decimal
	Currency string
	AsOf     time.Time
}

// ResolveAt returns the most recent live snapshot dated at or before target.
func ResolveAt(snaps []models.Snapshot, target time.Time) Resolved {
	day := models.DayOf(target)
	var best *models.Snapshot
	for i := range snaps {
		s := &snaps[i]
		if !s.Alive() || models.DayOf(s.Date).After(day) {
			continue
		}
		if best == nil || s.Date.After(best.Date) {
			best = s
		}
	}
	if best == nil {
		return Resolved{}
	}
	return Resolved{Found: true, Balance: best.Balance, Currency: best.Currency, AsOf: models.DayOf(best.Date)}
}

// MonthPoint is one holding's resolved state at a month boundary, with the
// investment return derived from the balance movement net of contributions.
type MonthPoint struct {
	Month            time.Time       `json:"month"`
	Balance          decimal.Decimal `json:"balance"`
	Found            bool            `json:"found"`
	EmployerContrib  decimal.Decimal `json:"employer_contrib"`
	EmployeeContrib  decimal.Decimal `json:"employee_contrib"`
	InvestmentReturn decimal.Decimal `json:"investment_return"`
}

// MonthlySeries resolves one holding's balance at the first of each of the
// trailing n months ending at the month of ref. Sparse snapshot history
// carries forward per holding; contributions within each month feed the
// derived return: newBalance - oldBalance - employer - employee.
func MonthlySeries(snaps []models.Snapshot, contribs []models.Contribution, ref time.Time, n int) []MonthPoint {
	if n <= 0 {
		return nil
	}
	y, m, _ := ref.UTC().Date()
	points := make([]MonthPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		month := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		// value as at end of that month
		endOfMonth := month.AddDate(0, 1, -1)
		res := ResolveAt(snaps, endOfMonth)
		pt := MonthPoint{Month: month, Found: res.Found, Balance: res.Balance}
		for _, c := range contribs {
			if !c.Alive() {
				continue
			}
			cd := models.DayOf(c.Date)
			if !cd.Before(month) && cd.Before(month.AddDate(0, 1, 0)) {
				pt.EmployerContrib = pt.EmployerContrib.Add(c.EmployerContrib)
				pt.EmployeeContrib = pt.EmployeeContrib.Add(c.EmployeeContrib)
			}
		}
		points = append(points, pt)
	}
	for i := 1; i < len(points); i++ {
		if points[i].Found && points[i-1].Found {
			points[i].InvestmentReturn = points[i].Balance.
				Sub(points[i-1].Balance).
				Sub(points[i].EmployerContrib).
				Sub(points[i].EmployeeContrib)
		}
	}
	return points
}

// SortByDate orders snapshots ascending by date. Callers that need
// deterministic iteration use this; ResolveAt itself does not require it.
func SortByDate(snaps []models.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Date.Before(snaps[j].Date) })
}
