package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wealthd/internal/apperr"
	"wealthd/internal/budget"
	"wealthd/internal/costbasis"
	"wealthd/internal/database"
	"wealthd/internal/fx"
	"wealthd/internal/importer"
	"wealthd/internal/models"
	"wealthd/internal/networth"
	"wealthd/internal/service"
	"wealthd/internal/snapshot"
)

type Handler struct {
	repo            *database.Repo
	prices          *service.PriceService
	rates           *fx.RateService
	importer        *importer.Reconciler
	displayCurrency string
	log             *logrus.Logger
}

func NewHandler(repo *database.Repo, prices *service.PriceService, rates *fx.RateService, imp *importer.Reconciler, displayCurrency string, log *logrus.Logger) *Handler {
	return &Handler{repo: repo, prices: prices, rates: rates, importer: imp, displayCurrency: displayCurrency, log: log}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ---- holdings ----

type HoldingRequest struct {
	Type      string `json:"type" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Currency  string `json:"currency" binding:"required"`
	IsDormant bool   `json:"is_dormant"`
}

func (req HoldingRequest) validate() error {
	if !models.ValidHoldingType(req.Type) {
		return apperr.Field(apperr.Validation, "type", "unknown holding type "+req.Type)
	}
	if !models.ValidCurrency(req.Currency) {
		return apperr.Field(apperr.Validation, "currency", "unsupported currency "+req.Currency)
	}
	t := models.HoldingType(req.Type)
	if t.IsTradeable() && req.Symbol == "" {
		return apperr.Field(apperr.Validation, "symbol", "symbol is required for tradeable holdings")
	}
	if !t.IsTradeable() && req.Symbol != "" {
		return apperr.Field(apperr.Validation, "symbol", "snapshot-based holdings do not take a symbol")
	}
	if t.RequiresExchange() && req.Exchange == "" {
		return apperr.Field(apperr.Validation, "exchange", "exchange is required for stock and etf holdings")
	}
	return nil
}

func (h *Handler) PostHolding(c *gin.Context) {
	var req HoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		h.fail(c, err)
		return
	}
	holding := models.Holding{
		ID:        uuid.NewString(),
		Type:      models.HoldingType(req.Type),
		Name:      req.Name,
		Symbol:    strings.ToUpper(req.Symbol),
		Exchange:  strings.ToUpper(req.Exchange),
		Currency:  req.Currency,
		IsDormant: req.IsDormant,
		IsActive:  true,
	}
	created, err := h.repo.CreateHolding(c.Request.Context(), holding)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetHoldings(c *gin.Context) {
	ctx := c.Request.Context()
	holdings, err := h.repo.ListHoldings(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	type holdingView struct {
		models.Holding
		Quantity *decimal.Decimal `json:"quantity,omitempty"`
		AvgCost  *decimal.Decimal `json:"avg_cost,omitempty"`
	}
	views := []holdingView{}
	for _, holding := range holdings {
		v := holdingView{Holding: holding}
		if holding.Type.IsTradeable() {
			txs, err := h.repo.ListTransactions(ctx, holding.ID)
			if err != nil {
				h.fail(c, err)
				return
			}
			if pos, err := costbasis.Replay(txs); err == nil {
				qty := pos.QuantityHeld
				v.Quantity = &qty
				v.AvgCost = pos.AvgCost()
			}
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"holdings": views})
}

func (h *Handler) DeleteHolding(c *gin.Context) {
	if err := h.repo.SoftDeleteHolding(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ---- transactions ----

type TransactionRequest struct {
	Action    string `json:"action" binding:"required"`
	Quantity  string `json:"quantity" binding:"required"`
	UnitPrice string `json:"unit_price" binding:"required"`
	Fees      string `json:"fees"`
	Currency  string `json:"currency"`
	Date      string `json:"date" binding:"required"`
	Notes     string `json:"notes"`
}

func (req TransactionRequest) toModel(holdingID, defaultCurrency string) (models.Transaction, error) {
	var tx models.Transaction
	if !models.ValidTxAction(strings.ToUpper(req.Action)) {
		return tx, apperr.Field(apperr.Validation, "action", "unknown action "+req.Action)
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil || !qty.IsPositive() {
		return tx, apperr.Field(apperr.Validation, "quantity", "must be a positive number")
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || price.IsNegative() {
		return tx, apperr.Field(apperr.Validation, "unit_price", "must be a non-negative number")
	}
	fees := decimal.Zero
	if req.Fees != "" {
		fees, err = decimal.NewFromString(req.Fees)
		if err != nil || fees.IsNegative() {
			return tx, apperr.Field(apperr.Validation, "fees", "must be a non-negative number")
		}
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return tx, apperr.Field(apperr.Validation, "date", "want YYYY-MM-DD")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	if !models.ValidCurrency(currency) {
		return tx, apperr.Field(apperr.Validation, "currency", "unsupported currency "+currency)
	}
	return models.Transaction{
		HoldingID: holdingID,
		Action:    models.TxAction(strings.ToUpper(req.Action)),
		Quantity:  qty,
		UnitPrice: price,
		Fees:      fees,
		Currency:  currency,
		Date:      models.DayOf(date),
		Notes:     req.Notes,
	}, nil
}

func (h *Handler) PostTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	holding, err := h.repo.GetHolding(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := req.toModel(holding.ID, holding.Currency)
	if err != nil {
		h.fail(c, err)
		return
	}
	ledger, err := h.repo.ListTransactions(ctx, holding.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	// stamp before validating so a same-day candidate replays after the
	// stored rows it follows
	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC()
	if err := costbasis.ValidateAppend(ledger, tx); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.repo.CreateTransaction(ctx, tx); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) GetTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	txs, err := h.repo.ListTransactions(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	pos, replayErr := costbasis.Replay(txs)
	resp := gin.H{"transactions": txs}
	if replayErr == nil {
		resp["quantity_held"] = pos.QuantityHeld
		resp["cost_basis"] = pos.CostBasis
		if avg := pos.AvgCost(); avg != nil {
			resp["avg_cost"] = avg
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PutTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.repo.GetTransaction(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := req.toModel(existing.HoldingID, existing.Currency)
	if err != nil {
		h.fail(c, err)
		return
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	ledger, err := h.repo.ListTransactions(ctx, existing.HoldingID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := costbasis.ValidateReplacing(ledger, updated); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.repo.UpdateTransaction(ctx, updated); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.repo.GetTransaction(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ledger, err := h.repo.ListTransactions(ctx, existing.HoldingID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := costbasis.ValidateWithout(ledger, existing.ID); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.repo.SoftDeleteTransaction(ctx, existing.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ---- snapshots ----

type SnapshotRequest struct {
	Date     string `json:"date" binding:"required"`
	Balance  string `json:"balance" binding:"required"`
	Currency string `json:"currency"`
}

func (h *Handler) PostSnapshot(c *gin.Context) {
	ctx := c.Request.Context()
	holding, err := h.repo.GetHolding(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if holding.Type.IsTradeable() {
		h.fail(c, apperr.New(apperr.Validation, "tradeable holdings derive value from transactions, not snapshots"))
		return
	}
	var req SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.fail(c, apperr.Field(apperr.Validation, "date", "want YYYY-MM-DD"))
		return
	}
	balance, err := decimal.NewFromString(req.Balance)
	if err != nil {
		h.fail(c, apperr.Field(apperr.Validation, "balance", "must be a number"))
		return
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = holding.Currency
	}
	if !models.ValidCurrency(currency) {
		h.fail(c, apperr.Field(apperr.Validation, "currency", "unsupported currency "+currency))
		return
	}
	snap := models.Snapshot{
		ID:        uuid.NewString(),
		HoldingID: holding.ID,
		Date:      models.DayOf(date),
		Balance:   balance,
		Currency:  currency,
	}
	if err := h.repo.CreateSnapshot(ctx, snap); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) GetSnapshots(c *gin.Context) {
	snaps, err := h.repo.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// ---- net worth ----

func (h *Handler) GetNetWorth(c *gin.Context) {
	ctx := c.Request.Context()
	display := strings.ToUpper(c.DefaultQuery("currency", h.displayCurrency))
	if !models.ValidCurrency(display) {
		h.fail(c, apperr.Field(apperr.Validation, "currency", "unsupported currency "+display))
		return
	}
	includeDormant := c.Query("include_dormant") == "true"

	holdings, err := h.repo.ListHoldings(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	inputs := []networth.HoldingInput{}
	queries := []service.PriceQuery{}
	natives := []string{}
	for _, holding := range holdings {
		if !holding.IsActive || (holding.IsDormant && !includeDormant) {
			continue
		}
		in := networth.HoldingInput{Holding: holding}
		if holding.Type.IsTradeable() {
			if in.Transactions, err = h.repo.ListTransactions(ctx, holding.ID); err != nil {
				h.fail(c, err)
				return
			}
			queries = append(queries, service.PriceQuery{
				Type: holding.Type, Symbol: holding.Symbol, Exchange: holding.Exchange, Currency: holding.Currency,
			})
		} else {
			if in.Snapshots, err = h.repo.ListSnapshots(ctx, holding.ID); err != nil {
				h.fail(c, err)
				return
			}
		}
		natives = append(natives, holding.Currency)
		inputs = append(inputs, in)
	}

	quotes := h.prices.GetPrices(ctx, queries)
	rates, ratesStale := h.rates.Table(ctx, natives, display)
	result := networth.Aggregate(inputs, quotes, rates, ratesStale, networth.Options{
		DisplayCurrency: display,
		IncludeDormant:  includeDormant,
	})
	c.JSON(http.StatusOK, result)
}

// ---- super growth ----

func (h *Handler) GetSuperGrowth(c *gin.Context) {
	ctx := c.Request.Context()
	months := 12
	if v := c.Query("months"); v != "" {
		if iv, err := strconv.Atoi(v); err == nil && iv > 0 && iv <= 120 {
			months = iv
		}
	}
	holdings, err := h.repo.ListHoldings(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	type series struct {
		HoldingID string                `json:"holding_id"`
		Name      string                `json:"name"`
		Points    []snapshot.MonthPoint `json:"points"`
	}
	out := []series{}
	now := time.Now().UTC()
	for _, holding := range holdings {
		if holding.Type != models.HoldingSuper || !holding.IsActive {
			continue
		}
		snaps, err := h.repo.ListSnapshots(ctx, holding.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		contribs, err := h.repo.ListContributions(ctx, holding.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		out = append(out, series{
			HoldingID: holding.ID,
			Name:      holding.Name,
			Points:    snapshot.MonthlySeries(snaps, contribs, now, months),
		})
	}
	c.JSON(http.StatusOK, gin.H{"months": months, "holdings": out})
}

// ---- budget ----

func (h *Handler) budgetInputs(c *gin.Context, period budget.Period, cfg models.PaydayConfig) (budget.Inputs, error) {
	ctx := c.Request.Context()
	savers, err := h.repo.ListSavers(ctx)
	if err != nil {
		return budget.Inputs{}, err
	}
	categories, err := h.repo.ListCategories(ctx)
	if err != nil {
		return budget.Inputs{}, err
	}
	txns, err := h.repo.ListSpendTxns(ctx, period.Start, period.End)
	if err != nil {
		return budget.Inputs{}, err
	}
	return budget.Inputs{
		Savers:       savers,
		Categories:   categories,
		Transactions: txns,
		Config:       cfg,
	}, nil
}

func (h *Handler) GetBudgetSummary(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			h.fail(c, apperr.Field(apperr.Validation, "date", "want YYYY-MM-DD"))
			return
		}
		now = parsed
	}
	cfg, err := h.repo.GetPaydayConfig(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	period, err := budget.ResolvePeriod(now, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}

	// on-demand period row: look up the stored period for this start date,
	// creating it when none exists yet
	row, err := h.repo.GetPeriodByStart(ctx, period.Start)
	if apperr.Is(err, apperr.NotFound) {
		row, err = h.repo.CreatePeriod(ctx, models.BudgetPeriod{
			ID:        uuid.NewString(),
			StartDate: period.Start,
			EndDate:   period.End,
		})
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	in, err := h.budgetInputs(c, period, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	in.PeriodRow = &row
	if in.Allocations, err = h.repo.ListAllocations(ctx, row.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, budget.Summarize(period, now, in))
}

func (h *Handler) GetBudgetTrend(c *gin.Context) {
	ctx := c.Request.Context()
	n := 6
	if v := c.Query("periods"); v != "" {
		if iv, err := strconv.Atoi(v); err == nil && iv > 0 && iv <= 36 {
			n = iv
		}
	}
	now := time.Now().UTC()
	cfg, err := h.repo.GetPaydayConfig(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	periods, err := budget.TrailingPeriods(now, cfg, n)
	if err != nil {
		h.fail(c, err)
		return
	}
	savers, err := h.repo.ListSavers(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	categories, err := h.repo.ListCategories(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	txns, err := h.repo.ListSpendTxns(ctx, periods[0].Start, periods[len(periods)-1].End)
	if err != nil {
		h.fail(c, err)
		return
	}
	points, err := budget.Trend(now, n, budget.Inputs{
		Savers:       savers,
		Categories:   categories,
		Transactions: txns,
		Config:       cfg,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

type PaydayConfigRequest struct {
	PaydayDay           int    `json:"payday_day" binding:"required"`
	AdjustForWeekends   bool   `json:"adjust_for_weekends"`
	IncomeSourcePattern string `json:"income_source_pattern"`
}

func (h *Handler) GetPaydayConfig(c *gin.Context) {
	cfg, err := h.repo.GetPaydayConfig(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) PutPaydayConfig(c *gin.Context) {
	var req PaydayConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PaydayDay < 1 || req.PaydayDay > 28 {
		h.fail(c, apperr.Field(apperr.Validation, "payday_day", "must be between 1 and 28"))
		return
	}
	cfg := models.PaydayConfig{
		PaydayDay:           req.PaydayDay,
		AdjustForWeekends:   req.AdjustForWeekends,
		IncomeSourcePattern: req.IncomeSourcePattern,
	}
	if err := h.repo.UpsertPaydayConfig(c.Request.Context(), cfg); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ---- imports ----

func (h *Handler) ImportTransactions(c *gin.Context) {
	res, err := h.importer.ImportTransactions(c.Request.Context(), c.Request.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ImportSnapshots(c *gin.Context) {
	res, err := h.importer.ImportSnapshots(c.Request.Context(), c.Request.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
