package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthd/internal/models"
)

func TestClassifyPace(t *testing.T) {
	// progress 50%: over pace is red, near the margin is amber, well
	// under is green
	assert.Equal(t, PaceRed, ClassifyPace(60, 50, 0.85, false))
	assert.Equal(t, PaceAmber, ClassifyPace(43, 50, 0.85, false))
	assert.Equal(t, PaceGreen, ClassifyPace(40, 50, 0.85, false))

	// exactly at progress is amber, not red
	assert.Equal(t, PaceAmber, ClassifyPace(50, 50, 0.85, false))
}

func TestClassifyPace_FixedItemFullyUsedIsSatisfied(t *testing.T) {
	// a fixed bill paid in full is satisfied even when 100% > progress
	assert.Equal(t, PaceRed, ClassifyPace(100, 20, 0.85, false))
	assert.Equal(t, PaceSatisfied, ClassifyPace(100, 20, 0.85, true))
	// a fixed bill partially paid still paces normally
	assert.Equal(t, PaceRed, ClassifyPace(90, 20, 0.85, true))
}

func fixtureInputs() Inputs {
	savers := []models.BudgetSaver{
		{ID: "s1", Key: "everyday", DisplayName: "Everyday", SaverType: models.SaverSpending, SortOrder: 1},
		{ID: "s2", Key: "house", DisplayName: "House Deposit", SaverType: models.SaverSavingsGoal, SortOrder: 2},
	}
	categories := []models.BudgetCategory{
		{ID: "c1", SaverID: "s1", Name: "Groceries", MonthlyCents: 80000},
		{ID: "c2", SaverID: "s1", Name: "Rent", MonthlyCents: 200000, IsFixed: true},
		{ID: "c3", SaverID: "s1", Name: "Salary", IsIncome: true},
	}
	return Inputs{
		Savers:     savers,
		Categories: categories,
		Config:     models.PaydayConfig{PaydayDay: 15, IncomeSourcePattern: "acme payroll"},
	}
}

func spend(id string, d time.Time, cents int64, category string, desc string) models.SpendTxn {
	c := category
	txn := models.SpendTxn{ID: id, Date: d, AmountCents: cents, Description: desc}
	if category != "" {
		txn.CategoryID = &c
	}
	return txn
}

func TestSummarize(t *testing.T) {
	period := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	in := fixtureInputs()
	in.Transactions = []models.SpendTxn{
		spend("t1", day(2025, 7, 16), -20000, "c1", "woolworths"),
		spend("t2", day(2025, 7, 20), -20000, "c1", "coles"),
		spend("t3", day(2025, 7, 15), -200000, "c2", "rent"),
		spend("t4", day(2025, 7, 15), 500000, "c3", "ACME PAYROLL deposit"),
		// outside the period, must not count
		spend("t5", day(2025, 7, 10), -99900, "c1", "before period"),
	}

	s := Summarize(period, day(2025, 7, 30), in)

	assert.Equal(t, int64(500000), s.Income.ActualCents)
	require.Len(t, s.SpendingSavers, 1, "only spending savers appear")
	saver := s.SpendingSavers[0]
	assert.Equal(t, "everyday", saver.SaverKey)
	assert.Equal(t, int64(280000), saver.BudgetCents)
	assert.Equal(t, int64(240000), saver.ActualCents)
	require.Len(t, saver.Categories, 2, "income category excluded from spend list")

	var groceries, rent CategorySummary
	for _, c := range saver.Categories {
		switch c.CategoryID {
		case "c1":
			groceries = c
		case "c2":
			rent = c
		}
	}
	assert.Equal(t, int64(40000), groceries.ActualCents, "out-of-period spend excluded")
	assert.InDelta(t, 50.0, groceries.PercentUsed, 0.001)
	assert.InDelta(t, 100.0, rent.PercentUsed, 0.001)
	assert.Equal(t, PaceSatisfied, rent.Pace, "fixed item at exactly 100%%")

	assert.Equal(t, int64(280000), s.TotalBudgetedCents)
	assert.Equal(t, int64(240000), s.TotalSpentCents)
}

func TestSummarize_AllocationOverride(t *testing.T) {
	period := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	in := fixtureInputs()
	in.Allocations = []models.BudgetAllocation{
		{ID: "a1", BudgetPeriodID: "p1", CategoryID: "c1", AllocatedCents: 100000},
	}
	in.Transactions = []models.SpendTxn{
		spend("t1", day(2025, 7, 16), -50000, "c1", "groceries"),
	}

	s := Summarize(period, day(2025, 7, 30), in)
	var groceries CategorySummary
	for _, c := range s.SpendingSavers[0].Categories {
		if c.CategoryID == "c1" {
			groceries = c
		}
	}
	assert.Equal(t, int64(100000), groceries.BudgetCents, "override replaces monthly figure")
	assert.InDelta(t, 50.0, groceries.PercentUsed, 0.001)
}

func TestSummarize_IncomeByPatternWithoutCategory(t *testing.T) {
	period := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	in := fixtureInputs()
	in.Transactions = []models.SpendTxn{
		spend("t1", day(2025, 7, 15), 450000, "", "Acme Payroll fortnightly"),
	}

	s := Summarize(period, day(2025, 7, 20), in)
	assert.Equal(t, int64(450000), s.Income.ActualCents)
	assert.Equal(t, int64(0), s.TotalSpentCents)
}

func TestSummarize_ZeroBudgetIsZeroPercent(t *testing.T) {
	period := Period{Start: day(2025, 7, 15), End: day(2025, 8, 14)}
	in := fixtureInputs()
	in.Categories = append(in.Categories, models.BudgetCategory{
		ID: "c4", SaverID: "s1", Name: "Unbudgeted",
	})
	in.Transactions = []models.SpendTxn{
		spend("t1", day(2025, 7, 16), -1000, "c4", "impulse"),
	}

	s := Summarize(period, day(2025, 7, 30), in)
	for _, c := range s.SpendingSavers[0].Categories {
		if c.CategoryID == "c4" {
			assert.Equal(t, 0.0, c.PercentUsed)
		}
	}
}

func TestTrend_CurrentPeriodIsProjected(t *testing.T) {
	in := fixtureInputs()
	ref := day(2025, 7, 20)
	in.Transactions = []models.SpendTxn{
		spend("t1", day(2025, 6, 20), -30000, "c1", "last period"),
		spend("t2", day(2025, 7, 16), -10000, "c1", "this period"),
	}

	points, err := Trend(ref, 3, in)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.False(t, points[0].IsProjected)
	assert.False(t, points[1].IsProjected)
	assert.True(t, points[2].IsProjected, "in-progress period is projected, not settled")

	assert.Equal(t, int64(30000), points[1].SpentCents)
	assert.Equal(t, int64(10000), points[2].SpentCents)
}
