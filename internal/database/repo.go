package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

// alive is the shared soft-delete predicate. Every read path appends it
// instead of repeating the filter ad hoc.
const alive = "deleted_at IS NULL"

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	return err
}

// ---- holdings ----

func (r *Repo) CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO holdings (id, type, name, symbol, exchange, currency, is_dormant, is_active, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q, h.ID, h.Type, h.Name, h.Symbol, h.Exchange, h.Currency, h.IsDormant, h.IsActive, h.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Holding{}, apperr.New(apperr.Conflict, "holding already exists")
		}
		return models.Holding{}, err
	}
	return h, nil
}

func (r *Repo) GetHolding(ctx context.Context, id string) (models.Holding, error) {
	var h models.Holding
	err := r.db.GetContext(ctx, &h, `SELECT * FROM holdings WHERE id = $1 AND `+alive, id)
	return h, notFoundOr(err, "holding")
}

func (r *Repo) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT * FROM holdings WHERE `+alive+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		res = append(res, h)
	}
	return res, nil
}

func (r *Repo) FindHoldingBySymbol(ctx context.Context, symbol string) (models.Holding, error) {
	var h models.Holding
	err := r.db.GetContext(ctx, &h, `SELECT * FROM holdings WHERE symbol = $1 AND `+alive+` LIMIT 1`, symbol)
	return h, notFoundOr(err, "holding")
}

func (r *Repo) FindHoldingByName(ctx context.Context, name string) (models.Holding, error) {
	var h models.Holding
	err := r.db.GetContext(ctx, &h, `SELECT * FROM holdings WHERE name = $1 AND `+alive+` LIMIT 1`, name)
	return h, notFoundOr(err, "holding")
}

func (r *Repo) UpdateHolding(ctx context.Context, h models.Holding) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE holdings SET name=$2, symbol=$3, exchange=$4, currency=$5, is_dormant=$6, is_active=$7 WHERE id=$1 AND `+alive,
		h.ID, h.Name, h.Symbol, h.Exchange, h.Currency, h.IsDormant, h.IsActive)
	if err != nil {
		return err
	}
	return requireRow(res, "holding")
}

func (r *Repo) SoftDeleteHolding(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE holdings SET deleted_at = now() WHERE id = $1 AND `+alive, id)
	if err != nil {
		return err
	}
	return requireRow(res, "holding")
}

func requireRow(res sql.Result, what string) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	return nil
}

// ---- transactions ----

func (r *Repo) CreateTransaction(ctx context.Context, t models.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO transactions (id, holding_id, action, quantity, unit_price, fees, currency, date, notes, created_at)
	      VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.HoldingID, t.Action, t.Quantity.String(), t.UnitPrice.String(), t.Fees.String(), t.Currency, t.Date, t.Notes, t.CreatedAt)
	return err
}

func (r *Repo) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = $1 AND `+alive, id)
	return t, notFoundOr(err, "transaction")
}

// ListTransactions returns a holding's live ledger in replay order.
func (r *Repo) ListTransactions(ctx context.Context, holdingID string) ([]models.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT * FROM transactions WHERE holding_id = $1 AND `+alive+` ORDER BY date ASC, created_at ASC`, holdingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

func (r *Repo) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET action=$2, quantity=$3::numeric, unit_price=$4::numeric, fees=$5::numeric, currency=$6, date=$7, notes=$8 WHERE id=$1 AND `+alive,
		t.ID, t.Action, t.Quantity.String(), t.UnitPrice.String(), t.Fees.String(), t.Currency, t.Date, t.Notes)
	if err != nil {
		return err
	}
	return requireRow(res, "transaction")
}

func (r *Repo) SoftDeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET deleted_at = now() WHERE id = $1 AND `+alive, id)
	if err != nil {
		return err
	}
	return requireRow(res, "transaction")
}

// ---- snapshots ----

func (r *Repo) CreateSnapshot(ctx context.Context, s models.Snapshot) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO snapshots (id, holding_id, date, balance, currency, created_at)
	      VALUES ($1, $2, $3, $4::numeric, $5, $6)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.HoldingID, s.Date, s.Balance.String(), s.Currency, s.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "snapshot already exists for that date")
	}
	return err
}

func (r *Repo) ListSnapshots(ctx context.Context, holdingID string) ([]models.Snapshot, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT * FROM snapshots WHERE holding_id = $1 AND `+alive+` ORDER BY date ASC`, holdingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Snapshot{}
	for rows.Next() {
		var s models.Snapshot
		if err := rows.StructScan(&s); err != nil {
			r.log.Warnf("scan snapshot failed: %v", err)
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

func (r *Repo) UpdateSnapshot(ctx context.Context, s models.Snapshot) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE snapshots SET balance=$2::numeric, currency=$3 WHERE id=$1 AND `+alive,
		s.ID, s.Balance.String(), s.Currency)
	if err != nil {
		return err
	}
	return requireRow(res, "snapshot")
}

func (r *Repo) SoftDeleteSnapshot(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE snapshots SET deleted_at = now() WHERE id = $1 AND `+alive, id)
	if err != nil {
		return err
	}
	return requireRow(res, "snapshot")
}

// ---- contributions ----

func (r *Repo) UpsertContribution(ctx context.Context, c models.Contribution) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO contributions (id, holding_id, date, employer_contrib, employee_contrib, created_at)
	      VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
	      ON CONFLICT (holding_id, date) WHERE deleted_at IS NULL
	      DO UPDATE SET employer_contrib = $4::numeric, employee_contrib = $5::numeric`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.HoldingID, c.Date, c.EmployerContrib.String(), c.EmployeeContrib.String(), c.CreatedAt)
	return err
}

func (r *Repo) ListContributions(ctx context.Context, holdingID string) ([]models.Contribution, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT * FROM contributions WHERE holding_id = $1 AND `+alive+` ORDER BY date ASC`, holdingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Contribution{}
	for rows.Next() {
		var c models.Contribution
		if err := rows.StructScan(&c); err != nil {
			r.log.Warnf("scan contribution failed: %v", err)
			continue
		}
		res = append(res, c)
	}
	return res, nil
}
