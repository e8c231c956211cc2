// Package costbasis replays a holding's transaction ledger to derive the
// quantity held and average-cost basis. SELLs reduce the basis
// proportionally (running average, not FIFO lots); sell fees reduce
// proceeds, never the basis.
package costbasis

import (
	"sort"

	"github.com/shopspring/decimal"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

// Position is the replayed state of one holding's ledger.
type Position struct {
	QuantityHeld     decimal.Decimal
	CostBasis        decimal.Decimal
	RealizedProceeds decimal.Decimal
	RealizedCost     decimal.Decimal
	DividendIncome   decimal.Decimal
}

// AvgCost is CostBasis/QuantityHeld, or nil when nothing is held.
func (p Position) AvgCost() *decimal.Decimal {
	if p.QuantityHeld.IsPositive() {
		avg := p.CostBasis.Div(p.QuantityHeld)
		return &avg
	}
	return nil
}

// sortLedger orders transactions ascending by date, ties broken by creation
// order then id. A zero CreatedAt marks a candidate that has not been stored
// yet, which makes it newer than any stored row on the same date. Reordering
// changes replay results, so this ordering is part of the contract.
func sortLedger(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Alive() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].CreatedAt.IsZero() != out[j].CreatedAt.IsZero() {
			return out[j].CreatedAt.IsZero()
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func apply(p Position, t models.Transaction) (Position, error) {
	switch t.Action {
	case models.ActionBuy:
		p.QuantityHeld = p.QuantityHeld.Add(t.Quantity)
		p.CostBasis = p.CostBasis.Add(t.Quantity.Mul(t.UnitPrice)).Add(t.Fees)
	case models.ActionSell:
		if t.Quantity.GreaterThan(p.QuantityHeld) {
			return p, apperr.New(apperr.Conflict, "Sell quantity exceeds holdings")
		}
		avg := decimal.Zero
		if p.QuantityHeld.IsPositive() {
			avg = p.CostBasis.Div(p.QuantityHeld)
		}
		costOut := avg.Mul(t.Quantity)
		p.QuantityHeld = p.QuantityHeld.Sub(t.Quantity)
		p.CostBasis = p.CostBasis.Sub(costOut)
		p.RealizedCost = p.RealizedCost.Add(costOut)
		p.RealizedProceeds = p.RealizedProceeds.Add(t.Quantity.Mul(t.UnitPrice).Sub(t.Fees))
		if p.QuantityHeld.IsZero() {
			// basis residue from division rounding is meaningless with
			// nothing held
			p.CostBasis = decimal.Zero
		}
	case models.ActionSplit:
		if !t.Quantity.IsPositive() {
			return p, apperr.Field(apperr.Validation, "quantity", "split ratio must be positive")
		}
		p.QuantityHeld = p.QuantityHeld.Mul(t.Quantity)
	case models.ActionDividend:
		p.DividendIncome = p.DividendIncome.Add(t.Quantity.Mul(t.UnitPrice)).Sub(t.Fees)
	default:
		return p, apperr.Field(apperr.Validation, "action", "unknown action "+string(t.Action))
	}
	return p, nil
}

// Replay runs the full ledger in date order and returns the resulting
// position. Any intermediate negative quantity is a Conflict; write-time
// validation is supposed to make that impossible for stored ledgers.
func Replay(txs []models.Transaction) (Position, error) {
	p := Position{}
	var err error
	for _, t := range sortLedger(txs) {
		if p, err = apply(p, t); err != nil {
			return p, err
		}
	}
	return p, nil
}

// ValidateAppend checks whether adding candidate to the existing ledger
// keeps every intermediate quantity non-negative.
func ValidateAppend(txs []models.Transaction, candidate models.Transaction) error {
	_, err := Replay(append(cloneLedger(txs), candidate))
	return err
}

// ValidateWithout checks whether the ledger stays valid with one
// transaction removed. Deleting a BUY can strand a later SELL, so the whole
// remaining history is replayed, not just the final total.
func ValidateWithout(txs []models.Transaction, excludeID string) error {
	rest := make([]models.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.ID != excludeID {
			rest = append(rest, t)
		}
	}
	_, err := Replay(rest)
	return err
}

// ValidateReplacing checks whether the ledger stays valid with one
// transaction swapped for an updated version of itself.
func ValidateReplacing(txs []models.Transaction, updated models.Transaction) error {
	rest := make([]models.Transaction, 0, len(txs)+1)
	for _, t := range txs {
		if t.ID != updated.ID {
			rest = append(rest, t)
		}
	}
	rest = append(rest, updated)
	_, err := Replay(rest)
	return err
}

func cloneLedger(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	copy(out, txs)
	return out
}
