package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

// PriceQuery identifies what to price. Exchange matters for stock/etf
// symbols, currency for reporting the quote's native currency.
type PriceQuery struct {
	Type     models.HoldingType
	Symbol   string
	Exchange string
	Currency string
}

// Quote is a price result. IsStale marks a value older than the cache TTL
// that was served anyway; Error carries a per-symbol failure without
// failing the batch.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	IsStale       bool            `json:"is_stale"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Source        string          `json:"source"`
	Error         string          `json:"error,omitempty"`
}

// PriceSource is the upstream price collaborator.
type PriceSource interface {
	FetchQuote(ctx context.Context, q PriceQuery) (Quote, error)
}

// PriceCache persists quotes; implemented by the database repo.
type PriceCache interface {
	GetPrice(ctx context.Context, symbol string) (models.PriceCacheEntry, error)
	UpsertPrice(ctx context.Context, entry models.PriceCacheEntry) error
}

type PriceService struct {
	source  PriceSource
	cache   PriceCache
	ttl     time.Duration
	timeout time.Duration
	log     *logrus.Logger
}

func NewPriceService(source PriceSource, cache PriceCache, ttl, timeout time.Duration, log *logrus.Logger) *PriceService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PriceService{source: source, cache: cache, ttl: ttl, timeout: timeout, log: log}
}

// GetPrice returns a quote for one symbol, read-through cached. Fresh cache
// hits skip the source; on fetch failure the last cached value is served
// stale. Only a cold cache plus a failed fetch is an error.
func (s *PriceService) GetPrice(ctx context.Context, q PriceQuery, forceRefresh bool) (Quote, error) {
	cached, cacheErr := s.cache.GetPrice(ctx, q.Symbol)
	if cacheErr == nil && !forceRefresh && time.Since(cached.FetchedAt) < s.ttl {
		return quoteFromEntry(cached, false), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	quote, err := s.source.FetchQuote(fetchCtx, q)
	if err != nil {
		if cacheErr == nil {
			s.log.Warnf("price fetch %s failed, serving stale cache: %v", q.Symbol, err)
			return quoteFromEntry(cached, true), nil
		}
		return Quote{Symbol: q.Symbol}, apperr.Wrap(apperr.Upstream, "no price available for "+q.Symbol, err)
	}

	quote.Symbol = q.Symbol
	if quote.FetchedAt.IsZero() {
		quote.FetchedAt = time.Now().UTC()
	}
	entry := models.PriceCacheEntry{
		Symbol:        q.Symbol,
		Price:         quote.Price,
		Currency:      quote.Currency,
		ChangePercent: quote.ChangePercent,
		FetchedAt:     quote.FetchedAt,
		Source:        quote.Source,
	}
	if err := s.cache.UpsertPrice(ctx, entry); err != nil {
		s.log.Warnf("price cache upsert %s failed: %v", q.Symbol, err)
	}
	return quote, nil
}

// GetPrices fans out one fetch per query concurrently and joins the
// results. A failed fetch yields a Quote with Error set for that symbol;
// it never blocks or fails the siblings.
func (s *PriceService) GetPrices(ctx context.Context, queries []PriceQuery) map[string]Quote {
	results := make(map[string]Quote, len(queries))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q PriceQuery) {
			defer wg.Done()
			quote, err := s.GetPrice(ctx, q, false)
			if err != nil {
				quote = Quote{Symbol: q.Symbol, Currency: q.Currency, Error: err.Error()}
			}
			mu.Lock()
			results[q.Symbol] = quote
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	return results
}

func quoteFromEntry(e models.PriceCacheEntry, stale bool) Quote {
	return Quote{
		Symbol:        e.Symbol,
		Price:         e.Price,
		Currency:      e.Currency,
		ChangePercent: e.ChangePercent,
		IsStale:       stale,
		FetchedAt:     e.FetchedAt,
		Source:        e.Source,
	}
}

// SimulatedSource generates pseudo prices for development when no real
// market data source is configured.
type SimulatedSource struct{}

func (SimulatedSource) FetchQuote(ctx context.Context, q PriceQuery) (Quote, error) {
	price := decimal.NewFromFloat(1 + rand.Float64()*499)
	change := decimal.NewFromFloat(rand.Float64()*10 - 5).Round(2)
	return Quote{
		Price:         price.Round(4),
		Currency:      q.Currency,
		ChangePercent: change,
		FetchedAt:     time.Now().UTC(),
		Source:        "simulated",
	}, nil
}

// SimulatedRateSource serves fixed indicative rates for the supported pairs.
type SimulatedRateSource struct{}

var simulatedRates = map[string]float64{
	"AUD/NZD": 1.09,
	"AUD/USD": 0.66,
	"NZD/USD": 0.60,
}

func (SimulatedRateSource) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if r, ok := simulatedRates[from+"/"+to]; ok {
		return decimal.NewFromFloat(r), nil
	}
	if r, ok := simulatedRates[to+"/"+from]; ok {
		return decimal.NewFromInt(1).Div(decimal.NewFromFloat(r)).Round(6), nil
	}
	return decimal.Zero, apperr.Newf(apperr.Upstream, "no simulated rate for %s/%s", from, to)
}
