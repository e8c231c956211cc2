package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

func TestConvert_SameCurrency(t *testing.T) {
	got := Convert(decimal.RequireFromString("123.45"), "AUD", "AUD", RateTable{})
	assert.True(t, got.Converted)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("123.45")))
}

func TestConvert_DirectPair(t *testing.T) {
	rates := RateTable{}
	rates.Set("AUD", "USD", decimal.RequireFromString("0.66"))
	got := Convert(decimal.RequireFromString("100"), "AUD", "USD", rates)
	assert.True(t, got.Converted)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("66")))
}

func TestConvert_InversePairFallback(t *testing.T) {
	rates := RateTable{}
	rates.Set("USD", "AUD", decimal.RequireFromString("1.5"))
	got := Convert(decimal.RequireFromString("150"), "AUD", "USD", rates)
	assert.True(t, got.Converted)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100")))
}

func TestConvert_MissingRateDegradesUnconverted(t *testing.T) {
	got := Convert(decimal.RequireFromString("100"), "AUD", "USD", RateTable{})
	assert.False(t, got.Converted)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100")), "amount passes through unchanged")
}

func TestConvert_RoundTrip(t *testing.T) {
	rates := RateTable{}
	rates.Set("AUD", "NZD", decimal.RequireFromString("1.09"))
	rates.Set("NZD", "AUD", decimal.RequireFromString("0.917431"))

	there := Convert(decimal.RequireFromString("250"), "AUD", "NZD", rates)
	back := Convert(there.Amount, "NZD", "AUD", rates)
	require.True(t, back.Converted)

	diff, _ := back.Amount.Sub(decimal.RequireFromString("250")).Abs().Float64()
	assert.Less(t, diff, 0.01, "round trip drift %v", diff)
}

// ---- rate service ----

type fakeRateSource struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fakeRateSource) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	f.calls++
	return f.rate, f.err
}

type memRateCache struct {
	entries map[string]models.RateCacheEntry
}

func newMemRateCache() *memRateCache {
	return &memRateCache{entries: map[string]models.RateCacheEntry{}}
}

func (m *memRateCache) GetRate(ctx context.Context, from, to string) (models.RateCacheEntry, error) {
	e, ok := m.entries[from+"/"+to]
	if !ok {
		return models.RateCacheEntry{}, apperr.New(apperr.NotFound, "rate not found")
	}
	return e, nil
}

func (m *memRateCache) UpsertRate(ctx context.Context, e models.RateCacheEntry) error {
	m.entries[e.FromCurrency+"/"+e.ToCurrency] = e
	return nil
}

func TestRateService_FetchesAndCaches(t *testing.T) {
	src := &fakeRateSource{rate: decimal.RequireFromString("0.66")}
	cache := newMemRateCache()
	svc := NewRateService(src, cache, time.Hour, logrus.New())

	rate, stale, err := svc.Rate(context.Background(), "AUD", "USD")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.66")))
	assert.Equal(t, 1, src.calls)

	// fresh cache: second read skips the source
	_, _, err = svc.Rate(context.Background(), "AUD", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestRateService_StaleFallbackOnFetchFailure(t *testing.T) {
	src := &fakeRateSource{err: errors.New("boom")}
	cache := newMemRateCache()
	cache.entries["AUD/USD"] = models.RateCacheEntry{
		FromCurrency: "AUD", ToCurrency: "USD",
		Rate:      decimal.RequireFromString("0.64"),
		FetchedAt: time.Now().Add(-2 * time.Hour),
	}
	svc := NewRateService(src, cache, time.Hour, logrus.New())

	rate, stale, err := svc.Rate(context.Background(), "AUD", "USD")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.64")))
}

func TestRateService_ColdCacheAndFailedFetchIsUpstreamError(t *testing.T) {
	src := &fakeRateSource{err: errors.New("boom")}
	svc := NewRateService(src, newMemRateCache(), time.Hour, logrus.New())

	_, _, err := svc.Rate(context.Background(), "AUD", "USD")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Upstream))
}

func TestRateService_UnsupportedPairIsValidation(t *testing.T) {
	src := &fakeRateSource{rate: decimal.RequireFromString("1")}
	svc := NewRateService(src, newMemRateCache(), time.Hour, logrus.New())

	_, _, err := svc.Rate(context.Background(), "EUR", "AUD")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Equal(t, 0, src.calls, "validation failure never hits the source")
}

func TestRateService_SamePairShortCircuits(t *testing.T) {
	src := &fakeRateSource{rate: decimal.RequireFromString("2")}
	svc := NewRateService(src, newMemRateCache(), time.Hour, logrus.New())

	rate, stale, err := svc.Rate(context.Background(), "AUD", "AUD")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0, src.calls)
}

func TestRateService_TableSkipsUnavailablePairs(t *testing.T) {
	src := &fakeRateSource{err: errors.New("down")}
	svc := NewRateService(src, newMemRateCache(), time.Hour, logrus.New())

	table, stale := svc.Table(context.Background(), []string{"USD", "AUD", "USD"}, "AUD")
	assert.False(t, stale)
	assert.Empty(t, table)
}
