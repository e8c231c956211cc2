// Package importer ingests CSV exports of transactions and balance
// snapshots. Imports are idempotent: rows matching an existing record on
// the natural key are skipped, and re-running a file changes nothing.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/costbasis"
	"wealthd/internal/models"
)

// Store is what the reconciler needs from persistence. The database repo
// implements it; tests use an in-memory store.
type Store interface {
	FindHoldingBySymbol(ctx context.Context, symbol string) (models.Holding, error)
	FindHoldingByName(ctx context.Context, name string) (models.Holding, error)
	CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error)
	ListTransactions(ctx context.Context, holdingID string) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, t models.Transaction) error
	ListSnapshots(ctx context.Context, holdingID string) ([]models.Snapshot, error)
	CreateSnapshot(ctx context.Context, s models.Snapshot) error
	UpsertContribution(ctx context.Context, c models.Contribution) error
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type Result struct {
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type Reconciler struct {
	store           Store
	log             *logrus.Logger
	defaultCurrency string
}

func New(store Store, defaultCurrency string, log *logrus.Logger) *Reconciler {
	if defaultCurrency == "" {
		defaultCurrency = models.CurrencyAUD
	}
	return &Reconciler{store: store, defaultCurrency: defaultCurrency, log: log}
}

var txRequired = []string{"date", "symbol", "action", "quantity", "unit_price"}
var snapRequired = []string{"date", "fund_name", "balance"}

// header maps lowercased column names to indexes and checks the required
// set is present.
func header(record []string, required []string) (map[string]int, error) {
	cols := map[string]int{}
	for i, c := range record {
		cols[strings.ToLower(strings.TrimSpace(c))] = i
	}
	var missing []string
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Newf(apperr.Validation, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DayOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ImportTransactions ingests the transactions CSV format:
// date,symbol,action,quantity,unit_price,fees,currency,exchange,notes.
// Unknown symbols get a holding created implicitly. Each row is isolated; a
// bad row is recorded and processing continues.
func (r *Reconciler) ImportTransactions(ctx context.Context, src io.Reader) (Result, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	head, err := reader.Read()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Validation, "empty or unreadable csv", err)
	}
	cols, err := header(head, txRequired)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	// per-holding view of the ledger including rows imported earlier in
	// this run, for dedupe and sell validation
	ledgers := map[string][]models.Transaction{}
	holdings := map[string]models.Holding{}

	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Total++
			res.Errors = append(res.Errors, RowError{Row: row, Message: "malformed csv row"})
			continue
		}
		res.Total++

		tx, symbol, exchange, rowErr := r.parseTxRow(record, cols)
		if rowErr != "" {
			res.Errors = append(res.Errors, RowError{Row: row, Message: rowErr})
			continue
		}

		h, ok := holdings[symbol]
		if !ok {
			h, err = r.resolveTradeable(ctx, symbol, exchange, tx.Currency)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: row, Message: err.Error()})
				continue
			}
			holdings[symbol] = h
			existing, err := r.store.ListTransactions(ctx, h.ID)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: row, Message: "failed to load existing transactions"})
				continue
			}
			ledgers[symbol] = existing
		}
		tx.HoldingID = h.ID

		if isDuplicateTx(ledgers[symbol], tx) {
			res.Skipped++
			continue
		}
		// stamp before validating so the candidate replays after every
		// stored row on the same date, matching the order it will be
		// persisted in
		tx.ID = uuid.NewString()
		tx.CreatedAt = time.Now().UTC()
		if err := costbasis.ValidateAppend(ledgers[symbol], tx); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: err.Error()})
			continue
		}

		if err := r.store.CreateTransaction(ctx, tx); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: "insert failed"})
			r.log.Warnf("import tx row %d insert failed: %v", row, err)
			continue
		}
		ledgers[symbol] = append(ledgers[symbol], tx)
		res.Imported++
	}
	return res, nil
}

func (r *Reconciler) parseTxRow(record []string, cols map[string]int) (models.Transaction, string, string, string) {
	var tx models.Transaction
	date, err := parseDay(field(record, cols, "date"))
	if err != nil {
		return tx, "", "", err.Error()
	}
	symbol := strings.ToUpper(field(record, cols, "symbol"))
	if symbol == "" {
		return tx, "", "", "symbol is required"
	}
	action := strings.ToUpper(field(record, cols, "action"))
	if !models.ValidTxAction(action) {
		return tx, "", "", "unknown action " + action
	}
	qty, err := decimal.NewFromString(field(record, cols, "quantity"))
	if err != nil || !qty.IsPositive() {
		return tx, "", "", "quantity must be a positive number"
	}
	price, err := decimal.NewFromString(field(record, cols, "unit_price"))
	if err != nil || price.IsNegative() {
		return tx, "", "", "unit_price must be a non-negative number"
	}
	fees := decimal.Zero
	if f := field(record, cols, "fees"); f != "" {
		fees, err = decimal.NewFromString(f)
		if err != nil || fees.IsNegative() {
			return tx, "", "", "fees must be a non-negative number"
		}
	}
	currency := strings.ToUpper(field(record, cols, "currency"))
	if currency == "" {
		currency = r.defaultCurrency
	}
	if !models.ValidCurrency(currency) {
		return tx, "", "", "unsupported currency " + currency
	}

	tx = models.Transaction{
		Action:    models.TxAction(action),
		Quantity:  qty,
		UnitPrice: price,
		Fees:      fees,
		Currency:  currency,
		Date:      date,
		Notes:     field(record, cols, "notes"),
	}
	return tx, symbol, strings.ToUpper(field(record, cols, "exchange")), ""
}

func (r *Reconciler) resolveTradeable(ctx context.Context, symbol, exchange, currency string) (models.Holding, error) {
	h, err := r.store.FindHoldingBySymbol(ctx, symbol)
	if err == nil {
		return h, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return models.Holding{}, err
	}
	return r.store.CreateHolding(ctx, models.Holding{
		ID:       uuid.NewString(),
		Type:     models.HoldingStock,
		Name:     symbol,
		Symbol:   symbol,
		Exchange: exchange,
		Currency: currency,
		IsActive: true,
	})
}

// ImportSnapshots ingests the snapshots CSV format:
// date,fund_name,balance,employer_contrib,employee_contrib,currency.
// A second snapshot for the same (holding, day) is a duplicate, skipped; an
// existing balance is never overwritten by import.
func (r *Reconciler) ImportSnapshots(ctx context.Context, src io.Reader) (Result, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	head, err := reader.Read()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Validation, "empty or unreadable csv", err)
	}
	cols, err := header(head, snapRequired)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	snaps := map[string][]models.Snapshot{}
	holdings := map[string]models.Holding{}

	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Total++
			res.Errors = append(res.Errors, RowError{Row: row, Message: "malformed csv row"})
			continue
		}
		res.Total++

		date, err := parseDay(field(record, cols, "date"))
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: err.Error()})
			continue
		}
		name := field(record, cols, "fund_name")
		if name == "" {
			res.Errors = append(res.Errors, RowError{Row: row, Message: "fund_name is required"})
			continue
		}
		balance, err := decimal.NewFromString(field(record, cols, "balance"))
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: "balance must be a number"})
			continue
		}
		currency := strings.ToUpper(field(record, cols, "currency"))
		if currency == "" {
			currency = r.defaultCurrency
		}
		if !models.ValidCurrency(currency) {
			res.Errors = append(res.Errors, RowError{Row: row, Message: "unsupported currency " + currency})
			continue
		}

		h, ok := holdings[name]
		if !ok {
			h, err = r.resolveFund(ctx, name, currency)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: row, Message: err.Error()})
				continue
			}
			holdings[name] = h
			existing, err := r.store.ListSnapshots(ctx, h.ID)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: row, Message: "failed to load existing snapshots"})
				continue
			}
			snaps[name] = existing
		}

		if isDuplicateSnap(snaps[name], h.ID, date) {
			res.Skipped++
			continue
		}

		snap := models.Snapshot{
			ID:        uuid.NewString(),
			HoldingID: h.ID,
			Date:      date,
			Balance:   balance,
			Currency:  currency,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.store.CreateSnapshot(ctx, snap); err != nil {
			if apperr.Is(err, apperr.Conflict) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, RowError{Row: row, Message: "insert failed"})
			r.log.Warnf("import snapshot row %d insert failed: %v", row, err)
			continue
		}
		snaps[name] = append(snaps[name], snap)
		res.Imported++

		if err := r.importContribution(ctx, record, cols, h.ID, date); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Message: err.Error()})
		}
	}
	return res, nil
}

func (r *Reconciler) resolveFund(ctx context.Context, name, currency string) (models.Holding, error) {
	h, err := r.store.FindHoldingByName(ctx, name)
	if err == nil {
		return h, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return models.Holding{}, err
	}
	return r.store.CreateHolding(ctx, models.Holding{
		ID:       uuid.NewString(),
		Type:     models.HoldingSuper,
		Name:     name,
		Currency: currency,
		IsActive: true,
	})
}

func (r *Reconciler) importContribution(ctx context.Context, record []string, cols map[string]int, holdingID string, date time.Time) error {
	employer := field(record, cols, "employer_contrib")
	employee := field(record, cols, "employee_contrib")
	if employer == "" && employee == "" {
		return nil
	}
	c := models.Contribution{
		ID:        uuid.NewString(),
		HoldingID: holdingID,
		Date:      date,
		CreatedAt: time.Now().UTC(),
	}
	var err error
	if employer != "" {
		if c.EmployerContrib, err = decimal.NewFromString(employer); err != nil || c.EmployerContrib.IsNegative() {
			return errors.New("employer_contrib must be a non-negative number")
		}
	}
	if employee != "" {
		if c.EmployeeContrib, err = decimal.NewFromString(employee); err != nil || c.EmployeeContrib.IsNegative() {
			return errors.New("employee_contrib must be a non-negative number")
		}
	}
	return r.store.UpsertContribution(ctx, c)
}

func isDuplicateTx(existing []models.Transaction, tx models.Transaction) bool {
	for _, e := range existing {
		if !e.Alive() {
			continue
		}
		if e.HoldingID == tx.HoldingID &&
			models.DayOf(e.Date).Equal(tx.Date) &&
			e.Action == tx.Action &&
			e.Quantity.Equal(tx.Quantity) &&
			e.UnitPrice.Equal(tx.UnitPrice) {
			return true
		}
	}
	return false
}

func isDuplicateSnap(existing []models.Snapshot, holdingID string, date time.Time) bool {
	for _, e := range existing {
		if e.Alive() && e.HoldingID == holdingID && models.DayOf(e.Date).Equal(date) {
			return true
		}
	}
	return false
}
