package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type HoldingType string

const (
	HoldingStock  HoldingType = "stock"
	HoldingETF    HoldingType = "etf"
	HoldingCrypto HoldingType = "crypto"
	HoldingSuper  HoldingType = "super"
	HoldingCash   HoldingType = "cash"
	HoldingDebt   HoldingType = "debt"
)

// IsTradeable reports whether the holding's value is derived from trade
// events and a live price, as opposed to periodic balance snapshots.
func (t HoldingType) IsTradeable() bool {
	return t == HoldingStock || t == HoldingETF || t == HoldingCrypto
}

// RequiresExchange reports whether the type needs an exchange code for
// price lookups.
func (t HoldingType) RequiresExchange() bool {
	return t == HoldingStock || t == HoldingETF
}

func ValidHoldingType(s string) bool {
	switch HoldingType(s) {
	case HoldingStock, HoldingETF, HoldingCrypto, HoldingSuper, HoldingCash, HoldingDebt:
		return true
	}
	return false
}

type TxAction string

const (
	ActionBuy      TxAction = "BUY"
	ActionSell     TxAction = "SELL"
	ActionDividend TxAction = "DIVIDEND"
	ActionSplit    TxAction = "SPLIT"
)

func ValidTxAction(s string) bool {
	switch TxAction(s) {
	case ActionBuy, ActionSell, ActionDividend, ActionSplit:
		return true
	}
	return false
}

// Supported display/native currencies. Anything else is rejected at the
// boundary, not deep in the rate code.
const (
	CurrencyAUD = "AUD"
	CurrencyNZD = "NZD"
	CurrencyUSD = "USD"
)

func ValidCurrency(c string) bool {
	return c == CurrencyAUD || c == CurrencyNZD || c == CurrencyUSD
}

type Holding struct {
	ID        string      `db:"id" json:"id"`
	Type      HoldingType `db:"type" json:"type"`
	Name      string      `db:"name" json:"name"`
	Symbol    string      `db:"symbol" json:"symbol,omitempty"`
	Exchange  string      `db:"exchange" json:"exchange,omitempty"`
	Currency  string      `db:"currency" json:"currency"`
	IsDormant bool        `db:"is_dormant" json:"is_dormant"`
	IsActive  bool        `db:"is_active" json:"is_active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	DeletedAt *time.Time  `db:"deleted_at" json:"-"`
}

type Transaction struct {
	ID        string          `db:"id" json:"id"`
	HoldingID string          `db:"holding_id" json:"holding_id"`
	Action    TxAction        `db:"action" json:"action"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Fees      decimal.Decimal `db:"fees" json:"fees"`
	Currency  string          `db:"currency" json:"currency"`
	Date      time.Time       `db:"date" json:"date"`
	Notes     string          `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	DeletedAt *time.Time      `db:"deleted_at" json:"-"`
}

// Snapshot is a point-in-time balance for a non-tradeable holding, one per
// (holding, day).
type Snapshot struct {
	ID        string          `db:"id" json:"id"`
	HoldingID string          `db:"holding_id" json:"holding_id"`
	Date      time.Time       `db:"date" json:"date"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Currency  string          `db:"currency" json:"currency"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	DeletedAt *time.Time      `db:"deleted_at" json:"-"`
}

// Contribution records employer/employee super contributions for a period.
// Investment return is derived, never stored.
type Contribution struct {
	ID              string          `db:"id" json:"id"`
	HoldingID       string          `db:"holding_id" json:"holding_id"`
	Date            time.Time       `db:"date" json:"date"`
	EmployerContrib decimal.Decimal `db:"employer_contrib" json:"employer_contrib"`
	EmployeeContrib decimal.Decimal `db:"employee_contrib" json:"employee_contrib"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	DeletedAt       *time.Time      `db:"deleted_at" json:"-"`
}

type SaverType string

const (
	SaverSpending    SaverType = "spending"
	SaverSavingsGoal SaverType = "savings_goal"
	SaverInvestment  SaverType = "investment"
)

type BudgetSaver struct {
	ID           string     `db:"id" json:"id"`
	Key          string     `db:"key" json:"key"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	SaverType    SaverType  `db:"saver_type" json:"saver_type"`
	MonthlyCents int64      `db:"monthly_cents" json:"monthly_cents"`
	SortOrder    int        `db:"sort_order" json:"sort_order"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

type BudgetCategory struct {
	ID           string     `db:"id" json:"id"`
	SaverID      string     `db:"saver_id" json:"saver_id"`
	Name         string     `db:"name" json:"name"`
	MonthlyCents int64      `db:"monthly_cents" json:"monthly_cents"`
	IsFixed      bool       `db:"is_fixed" json:"is_fixed"`
	IsIncome     bool       `db:"is_income" json:"is_income"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

type BudgetPeriod struct {
	ID                  string     `db:"id" json:"id"`
	StartDate           time.Time  `db:"start_date" json:"start_date"`
	EndDate             time.Time  `db:"end_date" json:"end_date"`
	ExpectedIncomeCents int64      `db:"expected_income_cents" json:"expected_income_cents"`
	DeletedAt           *time.Time `db:"deleted_at" json:"-"`
}

type BudgetAllocation struct {
	ID             string     `db:"id" json:"id"`
	BudgetPeriodID string     `db:"budget_period_id" json:"budget_period_id"`
	CategoryID     string     `db:"category_id" json:"category_id"`
	AllocatedCents int64      `db:"allocated_cents" json:"allocated_cents"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// SpendTxn is a bank transaction tagged to a budget category. Amounts are
// signed cents: spend negative, income positive.
type SpendTxn struct {
	ID          string     `db:"id" json:"id"`
	Date        time.Time  `db:"date" json:"date"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Description string     `db:"description" json:"description"`
	CategoryID  *string    `db:"category_id" json:"category_id,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// PaydayConfig is a singleton row. PaydayDay is clamped to 1-28 so every
// month has the nominal day.
type PaydayConfig struct {
	PaydayDay           int    `db:"payday_day" json:"payday_day"`
	AdjustForWeekends   bool   `db:"adjust_for_weekends" json:"adjust_for_weekends"`
	IncomeSourcePattern string `db:"income_source_pattern" json:"income_source_pattern,omitempty"`
}

type PriceCacheEntry struct {
	Symbol        string          `db:"symbol" json:"symbol"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Currency      string          `db:"currency" json:"currency"`
	ChangePercent decimal.Decimal `db:"change_percent" json:"change_percent"`
	FetchedAt     time.Time       `db:"fetched_at" json:"fetched_at"`
	Source        string          `db:"source" json:"source"`
}

type RateCacheEntry struct {
	FromCurrency string          `db:"from_currency" json:"from_currency"`
	ToCurrency   string          `db:"to_currency" json:"to_currency"`
	Rate         decimal.Decimal `db:"rate" json:"rate"`
	FetchedAt    time.Time       `db:"fetched_at" json:"fetched_at"`
}

// Active reports whether a soft-deletable row is live. Every read path goes
// through this rather than repeating the nil check.
func Active(deletedAt *time.Time) bool { return deletedAt == nil }

func (h Holding) Alive() bool      { return Active(h.DeletedAt) }
func (t Transaction) Alive() bool  { return Active(t.DeletedAt) }
func (s Snapshot) Alive() bool     { return Active(s.DeletedAt) }
func (c Contribution) Alive() bool { return Active(c.DeletedAt) }

// DayOf normalizes a timestamp to midnight UTC, the granularity snapshots
// and budget boundaries are keyed on.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
