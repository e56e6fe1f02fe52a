package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/pkg/logger"
)

const (
	historyListLimit = 100
	verifyBatchLimit = 500
	verifyWorkers    = 4
)

// CalculateChange returns the percentage move from current to target rounded
// to 2 decimals and its direction. A zero current price reads as flat up.
func CalculateChange(current, target float64) (float64, string) {
	if current == 0 {
		return 0, models.DirectionUp
	}
	pct, _ := decimal.NewFromFloat(target).
		Sub(decimal.NewFromFloat(current)).
		Div(decimal.NewFromFloat(current)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	if pct >= 0 {
		return pct, models.DirectionUp
	}
	return pct, models.DirectionDown
}

// BuildHistoryEntry records a served forecast. Hourly entries end 24 hours
// after now; daily entries end horizon days after now.
func BuildHistoryEntry(res *models.ForecastResult, kind models.HorizonClass, now time.Time) *models.HistoryEntry {
	current := res.CurrentPrice()
	high, low := res.PredictedRange()
	change, dir := CalculateChange(current, res.PredictedPrice)

	days, end := res.Horizon, now.Add(time.Duration(res.Horizon)*24*time.Hour)
	if kind == models.ClassHourly {
		days, end = 1, now.Add(models.HourlySteps*time.Hour)
	}
	return &models.HistoryEntry{
		ID:               uuid.NewString(),
		Coin:             res.Coin,
		Horizon:          models.HorizonLabel(kind, days),
		HorizonDays:      days,
		ForecastType:     kind,
		Family:           res.Family,
		CreatedAt:        now,
		HorizonEnd:       end,
		CurrentPrice:     current,
		PredictedPrice:   res.PredictedPrice,
		PredictedHigh:    high,
		PredictedLow:     low,
		PredictedChange:  change,
		PredictedDir:     dir,
		UsingCachedModel: res.UsingCachedModel,
	}
}

// History lists and verifies served forecasts. Every method returns
// models.ErrHistoryDisabled when no store is configured.
type History struct {
	store  drepo.HistoryStore
	ranges drepo.RangeSource
	l      *logger.Logger
	now    func() time.Time
}

func NewHistory(store drepo.HistoryStore, ranges drepo.RangeSource, l *logger.Logger) *History {
	if l == nil {
		l = logger.Nop()
	}
	return &History{store: store, ranges: ranges, l: l, now: time.Now}
}

func (h *History) Enabled() bool { return h != nil && h.store != nil }

// Record stores an entry directly.
func (h *History) Record(ctx context.Context, e *models.HistoryEntry) error {
	if !h.Enabled() {
		return models.ErrHistoryDisabled
	}
	return h.store.Store(ctx, e)
}

// List returns the latest entries, newest first. An empty coin lists every coin.
func (h *History) List(ctx context.Context, coin string) ([]*models.HistoryEntry, error) {
	if !h.Enabled() {
		return nil, models.ErrHistoryDisabled
	}
	if coin != "" {
		var err error
		if coin, err = models.ValidateCoin(coin); err != nil {
			return nil, err
		}
	}
	return h.store.List(ctx, coin, historyListLimit)
}

// Stats summarises the stored entries.
type Stats struct {
	Total    int      `json:"total_forecasts"`
	Verified int      `json:"verified"`
	Pending  int      `json:"pending_verification"`
	Coins    []string `json:"coins_forecasted"`
}

func (h *History) Stats(ctx context.Context) (*Stats, error) {
	if !h.Enabled() {
		return nil, models.ErrHistoryDisabled
	}
	entries, err := h.store.List(ctx, "", verifyBatchLimit)
	if err != nil {
		return nil, err
	}
	st := &Stats{Total: len(entries), Coins: []string{}}
	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsVerified {
			st.Verified++
		}
		if !seen[e.Coin] {
			seen[e.Coin] = true
			st.Coins = append(st.Coins, e.Coin)
		}
	}
	st.Pending = st.Total - st.Verified
	return st, nil
}

type verifyOutcome struct {
	ok  bool
	err string
}

// Verify fills actual prices for every unverified entry whose horizon has
// passed. Per-entry failures are reported, not returned.
func (h *History) Verify(ctx context.Context) (*models.VerifyReport, error) {
	if !h.Enabled() {
		return nil, models.ErrHistoryDisabled
	}
	now := h.now()
	due, err := h.store.Due(ctx, now, verifyBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list due entries: %w", err)
	}

	p := pool.NewWithResults[verifyOutcome]().WithMaxGoroutines(verifyWorkers)
	for _, e := range due {
		p.Go(func() verifyOutcome {
			if err := h.verifyOne(ctx, e, now); err != nil {
				return verifyOutcome{err: err.Error()}
			}
			return verifyOutcome{ok: true}
		})
	}

	report := &models.VerifyReport{Errors: []string{}}
	for _, o := range p.Wait() {
		if o.ok {
			report.Updated++
		} else {
			report.Errors = append(report.Errors, o.err)
		}
	}
	h.l.Info("history verified",
		logger.Int("due", len(due)),
		logger.Int("updated", report.Updated),
		logger.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (h *History) verifyOne(ctx context.Context, e *models.HistoryEntry, now time.Time) error {
	if h.ranges == nil {
		return fmt.Errorf("no price source for %s", e.Coin)
	}
	interval, limit := drepo.Interval1d, int(e.HorizonEnd.Sub(e.CreatedAt).Hours()/24)+1
	if e.ForecastType == models.ClassHourly {
		interval, limit = drepo.Interval1h, models.HourlySteps
	}

	candles, err := h.ranges.FetchRange(ctx, e.Coin, interval, e.CreatedAt, e.HorizonEnd, limit)
	if err != nil {
		return fmt.Errorf("failed to fetch data for %s: %w", e.Coin, err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no data returned for %s", e.Coin)
	}

	actual := candles[len(candles)-1].Close
	high, low := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		high = max(high, c.High)
		low = min(low, c.Low)
	}
	change, dir := CalculateChange(e.CurrentPrice, actual)

	v := *e
	v.ActualPrice, v.ActualHigh, v.ActualLow, v.ActualChange = &actual, &high, &low, &change
	v.ActualDir = &dir
	v.IsVerified = true
	v.VerifiedAt = &now
	if err := h.store.Store(ctx, &v); err != nil {
		return fmt.Errorf("store verified %s: %w", e.ID, err)
	}
	return nil
}
