package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wealthd/internal/models"
)

// ---- budget structure ----

func (r *Repo) ListSavers(ctx context.Context) ([]models.BudgetSaver, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT * FROM budget_savers WHERE `+alive+` ORDER BY sort_order ASC, key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.BudgetSaver{}
	for rows.Next() {
		var s models.BudgetSaver
		if err := rows.StructScan(&s); err != nil {
			r.log.Warnf("scan saver failed: %v", err)
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

func (r *Repo) ListCategories(ctx context.Context) ([]models.BudgetCategory, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT * FROM budget_categories WHERE `+alive+` ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.BudgetCategory{}
	for rows.Next() {
		var c models.BudgetCategory
		if err := rows.StructScan(&c); err != nil {
			r.log.Warnf("scan category failed: %v", err)
			continue
		}
		res = append(res, c)
	}
	return res, nil
}

// ---- budget periods ----

// GetPeriodByStart is the read-through lookup for the on-demand period
// cache keyed by start date.
func (r *Repo) GetPeriodByStart(ctx context.Context, start time.Time) (models.BudgetPeriod, error) {
	var p models.BudgetPeriod
	err := r.db.GetContext(ctx, &p, `SELECT * FROM budget_periods WHERE start_date = $1 AND `+alive, start)
	return p, notFoundOr(err, "budget period")
}

func (r *Repo) CreatePeriod(ctx context.Context, p models.BudgetPeriod) (models.BudgetPeriod, error) {
	q := `INSERT INTO budget_periods (id, start_date, end_date, expected_income_cents) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, q, p.ID, p.StartDate, p.EndDate, p.ExpectedIncomeCents); err != nil {
		if isUniqueViolation(err) {
			// concurrent on-demand creation; the stored row wins
			return r.GetPeriodByStart(ctx, p.StartDate)
		}
		return models.BudgetPeriod{}, err
	}
	return p, nil
}

func (r *Repo) ListAllocations(ctx context.Context, periodID string) ([]models.BudgetAllocation, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT * FROM budget_allocations WHERE budget_period_id = $1 AND `+alive, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.BudgetAllocation{}
	for rows.Next() {
		var a models.BudgetAllocation
		if err := rows.StructScan(&a); err != nil {
			r.log.Warnf("scan allocation failed: %v", err)
			continue
		}
		res = append(res, a)
	}
	return res, nil
}

// ---- spend transactions ----

func (r *Repo) ListSpendTxns(ctx context.Context, from, to time.Time) ([]models.SpendTxn, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT * FROM spend_transactions WHERE date >= $1 AND date <= $2 AND `+alive+` ORDER BY date ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.SpendTxn{}
	for rows.Next() {
		var t models.SpendTxn
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan spend txn failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

// ---- payday config ----

func (r *Repo) GetPaydayConfig(ctx context.Context) (models.PaydayConfig, error) {
	var c models.PaydayConfig
	err := r.db.GetContext(ctx, &c, `SELECT payday_day, adjust_for_weekends, income_source_pattern FROM payday_config LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaydayConfig{PaydayDay: 15, AdjustForWeekends: true}, nil
	}
	return c, err
}

func (r *Repo) UpsertPaydayConfig(ctx context.Context, c models.PaydayConfig) error {
	q := `INSERT INTO payday_config (singleton, payday_day, adjust_for_weekends, income_source_pattern)
	      VALUES (true, $1, $2, $3)
	      ON CONFLICT (singleton) DO UPDATE SET payday_day = $1, adjust_for_weekends = $2, income_source_pattern = $3`
	_, err := r.db.ExecContext(ctx, q, c.PaydayDay, c.AdjustForWeekends, c.IncomeSourcePattern)
	return err
}

// ---- price & rate caches ----

func (r *Repo) GetPrice(ctx context.Context, symbol string) (models.PriceCacheEntry, error) {
	var e models.PriceCacheEntry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM price_cache WHERE symbol = $1`, symbol)
	return e, notFoundOr(err, "price")
}

func (r *Repo) UpsertPrice(ctx context.Context, e models.PriceCacheEntry) error {
	q := `INSERT INTO price_cache (symbol, price, currency, change_percent, fetched_at, source)
	      VALUES ($1, $2::numeric, $3, $4::numeric, $5, $6)
	      ON CONFLICT (symbol) DO UPDATE SET price = $2::numeric, currency = $3, change_percent = $4::numeric, fetched_at = $5, source = $6`
	_, err := r.db.ExecContext(ctx, q, e.Symbol, e.Price.String(), e.Currency, e.ChangePercent.String(), e.FetchedAt, e.Source)
	return err
}

func (r *Repo) GetRate(ctx context.Context, from, to string) (models.RateCacheEntry, error) {
	var e models.RateCacheEntry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM exchange_rates WHERE from_currency = $1 AND to_currency = $2`, from, to)
	return e, notFoundOr(err, "rate")
}

func (r *Repo) UpsertRate(ctx context.Context, e models.RateCacheEntry) error {
	q := `INSERT INTO exchange_rates (from_currency, to_currency, rate, fetched_at)
	      VALUES ($1, $2, $3::numeric, $4)
	      ON CONFLICT (from_currency, to_currency) DO UPDATE SET rate = $3::numeric, fetched_at = $4`
	_, err := r.db.ExecContext(ctx, q, e.FromCurrency, e.ToCurrency, e.Rate.String(), e.FetchedAt)
	return err
}
