package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/models"
)

func setupDB(t *testing.T) *sqlx.DB {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	files := []string{"../../migrations/0001_init.up.sql"}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			t.Logf("exec migration %s: %v", f, err)
		}
	}
	return db
}

func testHolding(t *testing.T, r *Repo, typ models.HoldingType, symbol string) models.Holding {
	t.Helper()
	h, err := r.CreateHolding(context.Background(), models.Holding{
		ID:       uuid.NewString(),
		Type:     typ,
		Name:     "test-" + uuid.NewString(),
		Symbol:   symbol,
		Exchange: "ASX",
		Currency: "AUD",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("create holding: %v", err)
	}
	return h
}

func TestSnapshotUniquePerDay(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())
	h := testHolding(t, r, models.HoldingSuper, "")

	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := models.Snapshot{
		ID: uuid.NewString(), HoldingID: h.ID, Date: date,
		Balance: decimal.RequireFromString("1000"), Currency: "AUD",
	}
	if err := r.CreateSnapshot(context.Background(), first); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	dup := first
	dup.ID = uuid.NewString()
	dup.Balance = decimal.RequireFromString("2000")
	err := r.CreateSnapshot(context.Background(), dup)
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict for duplicate day, got %v", err)
	}

	// deleting the first frees the slot
	if err := r.SoftDeleteSnapshot(context.Background(), first.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := r.CreateSnapshot(context.Background(), dup); err != nil {
		t.Fatalf("create after soft delete: %v", err)
	}
}

func TestSoftDeletedRowsAreInvisible(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())
	h := testHolding(t, r, models.HoldingETF, "VDHG")

	tx := models.Transaction{
		ID: uuid.NewString(), HoldingID: h.ID, Action: models.ActionBuy,
		Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("60"),
		Fees: decimal.Zero, Currency: "AUD",
		Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := r.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := r.SoftDeleteTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	txs, err := r.ListTransactions(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected soft-deleted transaction hidden, got %d rows", len(txs))
	}
	if _, err := r.GetTransaction(context.Background(), tx.ID); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found for soft-deleted transaction, got %v", err)
	}
}

func TestLedgerOrderIsDateThenCreation(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())
	h := testHolding(t, r, models.HoldingStock, "BHP")

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	later := models.Transaction{
		ID: uuid.NewString(), HoldingID: h.ID, Action: models.ActionSell,
		Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("45"),
		Fees: decimal.Zero, Currency: "AUD", Date: day,
		CreatedAt: time.Now().UTC(),
	}
	earlier := models.Transaction{
		ID: uuid.NewString(), HoldingID: h.ID, Action: models.ActionBuy,
		Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("40"),
		Fees: decimal.Zero, Currency: "AUD", Date: day,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := r.CreateTransaction(context.Background(), later); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.CreateTransaction(context.Background(), earlier); err != nil {
		t.Fatalf("create: %v", err)
	}

	txs, err := r.ListTransactions(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != earlier.ID {
		t.Fatalf("expected creation order to break the date tie")
	}
}

func TestRateCacheUpsertLastWriteWins(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())

	first := models.RateCacheEntry{
		FromCurrency: "AUD", ToCurrency: "NZD",
		Rate: decimal.RequireFromString("1.08"), FetchedAt: time.Now().UTC(),
	}
	if err := r.UpsertRate(context.Background(), first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := first
	second.Rate = decimal.RequireFromString("1.10")
	second.FetchedAt = time.Now().UTC().Add(time.Second)
	if err := r.UpsertRate(context.Background(), second); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := r.GetRate(context.Background(), "AUD", "NZD")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !got.Rate.Equal(second.Rate) {
		t.Fatalf("expected last write to win, got %s", got.Rate)
	}
}

func TestPaydayConfigDefaultsWhenUnset(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())

	_, _ = db.Exec(`DELETE FROM payday_config`)
	cfg, err := r.GetPaydayConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.PaydayDay != 15 || !cfg.AdjustForWeekends {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	want := models.PaydayConfig{PaydayDay: 20, AdjustForWeekends: false, IncomeSourcePattern: "payroll"}
	if err := r.UpsertPaydayConfig(context.Background(), want); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	got, err := r.GetPaydayConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
