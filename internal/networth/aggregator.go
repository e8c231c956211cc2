// Package networth combines live-priced and snapshot-based holdings into a
// single net worth figure in a display currency.
package networth

import (
	"time"

	"github.com/shopspring/decimal"

	"wealthd/internal/costbasis"
	"wealthd/internal/fx"
	"wealthd/internal/models"
	"wealthd/internal/service"
	"wealthd/internal/snapshot"
)

// HoldingInput carries one holding plus whichever history its type values
// from: the transaction ledger for tradeable types, snapshots otherwise.
type HoldingInput struct {
	Holding      models.Holding
	Transactions []models.Transaction
	Snapshots    []models.Snapshot
}

type Options struct {
	DisplayCurrency string
	IncludeDormant  bool
	AsOf            time.Time
}

// HoldingValue is one holding's contribution to the aggregate. Value is in
// the display currency when Converted is true, otherwise still native.
type HoldingValue struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Symbol         string             `json:"symbol,omitempty"`
	Type           models.HoldingType `json:"type"`
	NativeCurrency string             `json:"nativeCurrency"`
	NativeValue    decimal.Decimal    `json:"nativeValue"`
	Value          decimal.Decimal    `json:"value"`
	Quantity       *decimal.Decimal   `json:"quantity,omitempty"`
	AvgCost        *decimal.Decimal   `json:"avgCost,omitempty"`
	Price          *decimal.Decimal   `json:"price,omitempty"`
	ChangePercent  *decimal.Decimal   `json:"changePercent,omitempty"`
	Converted      bool               `json:"converted"`
	IsStale        bool               `json:"isStale"`
	Error          string             `json:"error,omitempty"`
}

type Breakdown struct {
	Type       models.HoldingType `json:"type"`
	TotalValue decimal.Decimal    `json:"totalValue"`
	Count      int                `json:"count"`
	Holdings   []HoldingValue     `json:"holdings"`
}

type Result struct {
	NetWorth        decimal.Decimal `json:"netWorth"`
	TotalAssets     decimal.Decimal `json:"totalAssets"`
	TotalDebt       decimal.Decimal `json:"totalDebt"`
	Breakdown       []Breakdown     `json:"breakdown"`
	HasStaleData    bool            `json:"hasStaleData"`
	// true when any holding summed into the totals could not be converted
	// to the display currency
	HasUnconvertedData bool         `json:"hasUnconvertedData"`
	DisplayCurrency    string       `json:"displayCurrency"`
	RatesUsed          fx.RateTable `json:"ratesUsed"`
	CalculatedAt       time.Time    `json:"calculatedAt"`
}

var breakdownOrder = []models.HoldingType{
	models.HoldingStock, models.HoldingETF, models.HoldingCrypto,
	models.HoldingSuper, models.HoldingCash, models.HoldingDebt,
}

// Aggregate values every eligible holding, converts once at aggregation
// time against a single rate table, and sums assets and debt. A bad price
// or missing snapshot degrades that one holding, never the response.
func Aggregate(inputs []HoldingInput, quotes map[string]service.Quote, rates fx.RateTable, ratesStale bool, opts Options) Result {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	res := Result{
		DisplayCurrency: opts.DisplayCurrency,
		RatesUsed:       rates,
		HasStaleData:    ratesStale,
		CalculatedAt:    asOf,
	}

	byType := map[models.HoldingType][]HoldingValue{}
	for _, in := range inputs {
		h := in.Holding
		if !h.Alive() || !h.IsActive {
			continue
		}
		if h.IsDormant && !opts.IncludeDormant {
			continue
		}
		hv := valueOne(in, quotes, asOf)
		conv := fx.Convert(hv.NativeValue, hv.NativeCurrency, opts.DisplayCurrency, rates)
		hv.Value = conv.Amount
		hv.Converted = conv.Converted
		if !conv.Converted {
			res.HasUnconvertedData = true
		}
		if hv.IsStale {
			res.HasStaleData = true
		}
		byType[h.Type] = append(byType[h.Type], hv)
	}

	for _, t := range breakdownOrder {
		hvs := byType[t]
		if len(hvs) == 0 {
			continue
		}
		b := Breakdown{Type: t, Count: len(hvs), Holdings: hvs}
		for _, hv := range hvs {
			if t == models.HoldingDebt {
				b.TotalValue = b.TotalValue.Add(hv.Value.Abs())
				res.TotalDebt = res.TotalDebt.Add(hv.Value.Abs())
				continue
			}
			b.TotalValue = b.TotalValue.Add(hv.Value)
			if hv.Value.IsPositive() {
				res.TotalAssets = res.TotalAssets.Add(hv.Value)
			}
		}
		res.Breakdown = append(res.Breakdown, b)
	}
	res.NetWorth = res.TotalAssets.Sub(res.TotalDebt)
	return res
}

func valueOne(in HoldingInput, quotes map[string]service.Quote, asOf time.Time) HoldingValue {
	h := in.Holding
	hv := HoldingValue{
		ID:             h.ID,
		Name:           h.Name,
		Symbol:         h.Symbol,
		Type:           h.Type,
		NativeCurrency: h.Currency,
	}

	if h.Type.IsTradeable() {
		pos, err := costbasis.Replay(in.Transactions)
		if err != nil {
			hv.Error = err.Error()
			return hv
		}
		qty := pos.QuantityHeld
		hv.Quantity = &qty
		hv.AvgCost = pos.AvgCost()
		quote, ok := quotes[h.Symbol]
		if !ok || quote.Error != "" {
			if quote.Error != "" {
				hv.Error = quote.Error
			} else {
				hv.Error = "no price available"
			}
			return hv
		}
		price := quote.Price
		change := quote.ChangePercent
		hv.Price = &price
		hv.ChangePercent = &change
		hv.IsStale = quote.IsStale
		if quote.Currency != "" {
			hv.NativeCurrency = quote.Currency
		}
		hv.NativeValue = qty.Mul(price)
		return hv
	}

	resolved := snapshot.ResolveAt(in.Snapshots, asOf)
	if !resolved.Found {
		hv.Error = "no snapshot on or before date"
		return hv
	}
	hv.NativeValue = resolved.Balance
	if resolved.Currency != "" {
		hv.NativeCurrency = resolved.Currency
	}
	return hv
}
