package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

// RateTable is a snapshot of exchange rates keyed by ordered currency pair.
// A single table is captured per aggregate request so every conversion in
// one response uses the same rates.
type RateTable map[string]decimal.Decimal

func PairKey(from, to string) string { return from + "/" + to }

func (t RateTable) Set(from, to string, rate decimal.Decimal) {
	t[PairKey(from, to)] = rate
}

// Converted is the result of a conversion attempt. When no rate was
// available the original amount comes back with Converted=false so callers
// can flag the mixed-currency value instead of silently summing it.
type Converted struct {
	Amount    decimal.Decimal
	Converted bool
}

// Convert exchanges amount from one currency to another using the given
// table. Same-currency conversion never touches the table. If the direct
// pair is missing but the inverse is cached, the reciprocal is used.
// Conversion failure degrades to the unconverted amount, flagged.
func Convert(amount decimal.Decimal, from, to string, rates RateTable) Converted {
	if from == to {
		return Converted{Amount: amount, Converted: true}
	}
	if rate, ok := rates[PairKey(from, to)]; ok && rate.IsPositive() {
		return Converted{Amount: amount.Mul(rate), Converted: true}
	}
	if inv, ok := rates[PairKey(to, from)]; ok && inv.IsPositive() {
		return Converted{Amount: amount.Div(inv), Converted: true}
	}
	return Converted{Amount: amount, Converted: false}
}

// RateSource is the upstream exchange-rate collaborator.
type RateSource interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// RateCache persists fetched rates; implemented by the database repo.
type RateCache interface {
	GetRate(ctx context.Context, from, to string) (models.RateCacheEntry, error)
	UpsertRate(ctx context.Context, entry models.RateCacheEntry) error
}

type RateService struct {
	source RateSource
	cache  RateCache
	ttl    time.Duration
	log    *logrus.Logger
}

func NewRateService(source RateSource, cache RateCache, ttl time.Duration, log *logrus.Logger) *RateService {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &RateService{source: source, cache: cache, ttl: ttl, log: log}
}

// Rate returns the cached rate for a supported pair, fetching through to the
// source when the cache is missing or expired. A fetch failure falls back to
// the last cached value, however old; only a cold cache plus a failed fetch
// surfaces an error. The bool reports staleness.
func (s *RateService) Rate(ctx context.Context, from, to string) (decimal.Decimal, bool, error) {
	if !models.ValidCurrency(from) {
		return decimal.Zero, false, apperr.Field(apperr.Validation, "from", "unsupported currency "+from)
	}
	if !models.ValidCurrency(to) {
		return decimal.Zero, false, apperr.Field(apperr.Validation, "to", "unsupported currency "+to)
	}
	if from == to {
		return decimal.NewFromInt(1), false, nil
	}

	cached, cacheErr := s.cache.GetRate(ctx, from, to)
	if cacheErr == nil && time.Since(cached.FetchedAt) < s.ttl {
		return cached.Rate, false, nil
	}

	rate, err := s.source.FetchRate(ctx, from, to)
	if err != nil {
		if cacheErr == nil {
			s.log.Warnf("rate fetch %s/%s failed, serving stale cache: %v", from, to, err)
			return cached.Rate, true, nil
		}
		return decimal.Zero, false, apperr.Wrap(apperr.Upstream, "no rate available for "+PairKey(from, to), err)
	}

	entry := models.RateCacheEntry{FromCurrency: from, ToCurrency: to, Rate: rate, FetchedAt: time.Now().UTC()}
	if err := s.cache.UpsertRate(ctx, entry); err != nil {
		s.log.Warnf("rate cache upsert %s/%s failed: %v", from, to, err)
	}
	return rate, false, nil
}

// Table builds a rate table targeting one display currency from a set of
// native currencies. Unavailable pairs are simply left out; Convert flags
// the affected amounts. The bool reports whether any included rate is stale.
func (s *RateService) Table(ctx context.Context, natives []string, display string) (RateTable, bool) {
	table := RateTable{}
	anyStale := false
	seen := map[string]bool{}
	for _, cur := range natives {
		if cur == display || seen[cur] {
			continue
		}
		seen[cur] = true
		rate, stale, err := s.Rate(ctx, cur, display)
		if err != nil {
			s.log.Warnf("rate %s/%s unavailable: %v", cur, display, err)
			continue
		}
		table.Set(cur, display, rate)
		if stale {
			anyStale = true
		}
	}
	return table, anyStale
}
