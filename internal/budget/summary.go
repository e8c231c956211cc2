package budget

import (
	"strings"
	"time"

	"wealthd/internal/models"
)

// PaceStatus classifies spend trajectory against elapsed time.
type PaceStatus string

const (
	PaceGreen     PaceStatus = "green"
	PaceAmber     PaceStatus = "amber"
	PaceRed       PaceStatus = "red"
	PaceSatisfied PaceStatus = "satisfied"
)

// DefaultNearPaceMargin is the fraction of progress at which spend counts
// as "near pace".
const DefaultNearPaceMargin = 0.85

// ClassifyPace compares spend pace to period progress: over pace is red,
// within margin of progress is amber, comfortably under is green. A fixed
// budget item at exactly 100% used is satisfied regardless of pace.
func ClassifyPace(pacePercent, progressPercent, margin float64, isFixed bool) PaceStatus {
	if isFixed && pacePercent == 100 {
		return PaceSatisfied
	}
	if margin <= 0 {
		margin = DefaultNearPaceMargin
	}
	if pacePercent > progressPercent {
		return PaceRed
	}
	if pacePercent >= margin*progressPercent {
		return PaceAmber
	}
	return PaceGreen
}

// CategorySummary is budget-vs-actual for one category within a period.
type CategorySummary struct {
	CategoryID  string     `json:"categoryId"`
	Name        string     `json:"name"`
	BudgetCents int64      `json:"budgetCents"`
	ActualCents int64      `json:"actualCents"`
	PercentUsed float64    `json:"percentUsed"`
	Pace        PaceStatus `json:"pace"`
	IsFixed     bool       `json:"isFixed"`
}

type SaverSummary struct {
	SaverKey    string            `json:"saverKey"`
	DisplayName string            `json:"displayName"`
	SaverType   models.SaverType  `json:"saverType"`
	BudgetCents int64             `json:"budgetCents"`
	ActualCents int64             `json:"actualCents"`
	PercentUsed float64           `json:"percentUsed"`
	Pace        PaceStatus        `json:"pace"`
	Categories  []CategorySummary `json:"categories"`
}

type IncomeSummary struct {
	ExpectedCents int64 `json:"expectedCents"`
	ActualCents   int64 `json:"actualCents"`
}

type Summary struct {
	PeriodID           string         `json:"periodId,omitempty"`
	StartDate          time.Time      `json:"startDate"`
	EndDate            time.Time      `json:"endDate"`
	Income             IncomeSummary  `json:"income"`
	TotalBudgetedCents int64          `json:"totalBudgetedCents"`
	TotalSpentCents    int64          `json:"totalSpentCents"`
	SpendingSavers     []SaverSummary `json:"spendingSavers"`
	Period             Progress       `json:"period"`
}

// Inputs bundles the rows a summary is computed over. Transactions are the
// ones dated within the period; allocations are period-specific overrides.
type Inputs struct {
	Savers       []models.BudgetSaver
	Categories   []models.BudgetCategory
	Allocations  []models.BudgetAllocation
	Transactions []models.SpendTxn
	Config       models.PaydayConfig
	PeriodRow    *models.BudgetPeriod
	Margin       float64
}

// isIncomeTxn classifies a transaction as income: either its category is an
// income category, or its description matches the configured income source
// pattern. Income never counts toward spend totals.
func isIncomeTxn(t models.SpendTxn, incomeCategories map[string]bool, pattern string) bool {
	if t.CategoryID != nil && incomeCategories[*t.CategoryID] {
		return true
	}
	if pattern != "" && strings.Contains(strings.ToLower(t.Description), strings.ToLower(pattern)) {
		return true
	}
	return false
}

// Summarize aggregates budget vs. actual for one period. Per category the
// budget is the monthly figure unless an allocation overrides it; actual is
// the spend magnitude of transactions tagged to it. Income categories are
// reported in the income block only.
func Summarize(period Period, now time.Time, in Inputs) Summary {
	margin := in.Margin
	if margin <= 0 {
		margin = DefaultNearPaceMargin
	}
	progress := period.ProgressAt(now)

	incomeCategories := map[string]bool{}
	categoryByID := map[string]models.BudgetCategory{}
	for _, c := range in.Categories {
		if !models.Active(c.DeletedAt) {
			continue
		}
		categoryByID[c.ID] = c
		if c.IsIncome {
			incomeCategories[c.ID] = true
		}
	}

	allocByCategory := map[string]int64{}
	for _, a := range in.Allocations {
		if models.Active(a.DeletedAt) {
			allocByCategory[a.CategoryID] = a.AllocatedCents
		}
	}

	spendByCategory := map[string]int64{}
	var incomeActual int64
	for _, t := range in.Transactions {
		if !models.Active(t.DeletedAt) || !period.Contains(t.Date) {
			continue
		}
		if isIncomeTxn(t, incomeCategories, in.Config.IncomeSourcePattern) {
			if t.AmountCents > 0 {
				incomeActual += t.AmountCents
			}
			continue
		}
		if t.CategoryID != nil {
			// spend is stored negative; accumulate as positive magnitude
			spendByCategory[*t.CategoryID] -= t.AmountCents
		}
	}

	out := Summary{
		StartDate: period.Start,
		EndDate:   period.End,
		Income:    IncomeSummary{ActualCents: incomeActual},
		Period:    progress,
	}
	if in.PeriodRow != nil {
		out.PeriodID = in.PeriodRow.ID
		out.Income.ExpectedCents = in.PeriodRow.ExpectedIncomeCents
	}

	for _, s := range in.Savers {
		if !models.Active(s.DeletedAt) || s.SaverType != models.SaverSpending {
			continue
		}
		ss := SaverSummary{
			SaverKey:    s.Key,
			DisplayName: s.DisplayName,
			SaverType:   s.SaverType,
		}
		for _, c := range in.Categories {
			if !models.Active(c.DeletedAt) || c.SaverID != s.ID || c.IsIncome {
				continue
			}
			budget := c.MonthlyCents
			if override, ok := allocByCategory[c.ID]; ok {
				budget = override
			}
			actual := spendByCategory[c.ID]
			cs := CategorySummary{
				CategoryID:  c.ID,
				Name:        c.Name,
				BudgetCents: budget,
				ActualCents: actual,
				PercentUsed: percentUsed(actual, budget),
				IsFixed:     c.IsFixed,
			}
			cs.Pace = ClassifyPace(cs.PercentUsed, progress.ProgressPercent, margin, c.IsFixed)
			ss.BudgetCents += budget
			ss.ActualCents += actual
			ss.Categories = append(ss.Categories, cs)
		}
		ss.PercentUsed = percentUsed(ss.ActualCents, ss.BudgetCents)
		ss.Pace = ClassifyPace(ss.PercentUsed, progress.ProgressPercent, margin, false)
		out.TotalBudgetedCents += ss.BudgetCents
		out.TotalSpentCents += ss.ActualCents
		out.SpendingSavers = append(out.SpendingSavers, ss)
	}
	return out
}

func percentUsed(actual, budget int64) float64 {
	if budget <= 0 {
		return 0
	}
	return float64(actual) / float64(budget) * 100
}

// TrendPoint is one period's totals in a trailing series. The period still
// in progress is projected, not settled; consumers must present it as such.
type TrendPoint struct {
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	BudgetCents int64     `json:"budgetCents"`
	SpentCents  int64     `json:"spentCents"`
	IncomeCents int64     `json:"incomeCents"`
	IsProjected bool      `json:"isProjected"`
}

// Trend repeats the period aggregation over the n trailing periods ending
// at ref, oldest first.
func Trend(ref time.Time, n int, in Inputs) ([]TrendPoint, error) {
	periods, err := TrailingPeriods(ref, in.Config, n)
	if err != nil {
		return nil, err
	}
	points := make([]TrendPoint, 0, len(periods))
	for _, p := range periods {
		s := Summarize(p, ref, in)
		points = append(points, TrendPoint{
			StartDate:   p.Start,
			EndDate:     p.End,
			BudgetCents: s.TotalBudgetedCents,
			SpentCents:  s.TotalSpentCents,
			IncomeCents: s.Income.ActualCents,
			IsProjected: p.Contains(ref),
		})
	}
	return points, nil
}
