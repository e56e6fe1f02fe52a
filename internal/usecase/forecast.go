package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/domain/service"
	"CryptoPulse/internal/services/ml"
	"CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/metrics"
)

// CompatibilityFunc decides whether stored ensemble metadata still fits a
// series of currentLen candles.
type CompatibilityFunc func(meta *models.TrainingMetadata, currentLen int, now time.Time) bool

// EngineConfig tunes the engine. Zero values select the defaults.
type EngineConfig struct {
	Compatible CompatibilityFunc
	Params     *ml.BoostingParams
	LockTTL    time.Duration
	// NoiseSeed seeds the naive fallback noise; 0 seeds from the clock.
	NoiseSeed int64
	Now       func() time.Time
}

// Engine is the forecast orchestrator: ACQUIRE, DECIDE, INFER, CORRECT,
// ASSEMBLE, with FALLBACK to the naive path on any recoverable failure.
type Engine struct {
	data    drepo.CandleSource
	store   drepo.ModelStore
	lock    drepo.TrainingLock
	metrics drepo.Metrics
	l       *logger.Logger

	compatible CompatibilityFunc
	params     ml.BoostingParams
	lockTTL    time.Duration
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	runners map[models.Family]familyRunner
	hourly  familyRunner
}

var (
	_ service.Forecaster = (*Engine)(nil)
	_ service.Retrainer  = (*Engine)(nil)
)

// NewEngine wires the orchestrator. lock and m may be nil.
func NewEngine(data drepo.CandleSource, store drepo.ModelStore, lock drepo.TrainingLock, m drepo.Metrics, l *logger.Logger, cfg EngineConfig) *Engine {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	e := &Engine{
		data:       data,
		store:      store,
		lock:       lock,
		metrics:    m,
		l:          l,
		compatible: cfg.Compatible,
		params:     ml.DefaultBoostingParams(),
		lockTTL:    cfg.LockTTL,
		now:        cfg.Now,
	}
	if cfg.Params != nil {
		e.params = *cfg.Params
	}
	if e.compatible == nil {
		e.compatible = func(meta *models.TrainingMetadata, _ int, _ time.Time) bool { return meta != nil }
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 10 * time.Minute
	}
	if e.now == nil {
		e.now = time.Now
	}
	seed := cfg.NoiseSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))

	e.runners = map[models.Family]familyRunner{
		models.FamilyRecurrent: recurrentRunner{e: e},
		models.FamilyEnsemble:  ensembleRunner{e: e, checkCompat: true},
	}
	e.hourly = ensembleRunner{e: e}
	return e
}

func (e *Engine) noise(sigma float64) float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.NormFloat64() * sigma
}

// Forecast serves the daily endpoint. Only coin/horizon validation and
// market data exhaustion are returned as errors.
func (e *Engine) Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	coin, err := models.ValidateCoin(req.Coin)
	if err != nil {
		return nil, err
	}
	plan, err := PlanFor(coin, req.Horizon)
	if err != nil {
		return nil, err
	}
	if req.ForceRetrain {
		e.store.InvalidateCache()
	}

	candles, err := e.data.Fetch(ctx, coin, plan.Interval, plan.Records)
	if err != nil {
		return nil, err
	}

	res := e.run(ctx, e.runners[plan.Family], plan, coin, candles, req.ForceRetrain)
	res.Historical = historyWindow(candles, HistoryWindowDays(req.Horizon))
	return e.assemble(res, plan), nil
}

// ForecastHourly serves the dedicated 24-step hourly ensemble.
func (e *Engine) ForecastHourly(ctx context.Context, coin string, forceRetrain bool) (*models.ForecastResult, error) {
	coin, err := models.ValidateCoin(coin)
	if err != nil {
		return nil, err
	}
	plan := HourlyPlan(coin)

	candles, err := e.data.Fetch(ctx, coin, plan.Interval, plan.Records)
	if err != nil {
		return nil, err
	}
	if len(candles) < minHourlyCandles {
		return nil, fmt.Errorf("%w: %d hourly candles, need %d", models.ErrInsufficientHistory, len(candles), minHourlyCandles)
	}

	res := e.run(ctx, e.hourly, plan, coin, candles, forceRetrain)
	res.Historical = tailPoints(candles, hourlyHistoryCandles)
	return e.assemble(res, plan), nil
}

// Retrain rebuilds the ensemble artifact of class outside the request path.
func (e *Engine) Retrain(ctx context.Context, coin string, class models.HorizonClass) (*models.TrainingMetadata, error) {
	coin, err := models.ValidateCoin(coin)
	if err != nil {
		return nil, err
	}
	var plan Plan
	switch class {
	case models.ClassHourly:
		plan = HourlyPlan(coin)
	case models.ClassDaily:
		if plan, err = PlanFor(coin, ensembleSteps); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown class %q", models.ErrInvalidHorizon, class)
	}

	candles, err := e.data.Fetch(ctx, coin, plan.Interval, plan.Records)
	if err != nil {
		return nil, err
	}
	a, err := e.train(ctx, plan, candles)
	if err != nil {
		return nil, err
	}
	return a.Meta, nil
}

// run drives one family and falls back to the naive path when any stage fails.
func (e *Engine) run(ctx context.Context, r familyRunner, plan Plan, coin string, candles []models.Candle, force bool) *models.ForecastResult {
	job := &forecastJob{plan: plan, coin: coin, candles: candles, force: force, now: e.now()}
	res := &models.ForecastResult{
		Coin:        coin,
		Horizon:     plan.Horizon,
		Class:       plan.Class,
		GeneratedAt: job.now,
	}

	points, err := e.infer(ctx, r, job)
	if err == nil {
		res.Family = r.Family()
		res.Forecast = points
		res.ModelInfo = job.info
		res.UsingCachedModel = job.cached
		e.metrics.RecordForecast(res.Family, "ok")
		return res
	}

	e.l.Warn("forecast fell back to naive path",
		logger.String("coin", coin),
		logger.Int("horizon", plan.Horizon),
		logger.String("family", string(r.Family())),
		logger.Error(err),
	)
	e.metrics.RecordFallback(fallbackReason(err))
	e.metrics.RecordForecast(models.FamilyNaive, "fallback")

	res.Family = models.FamilyNaive
	res.Forecast = e.naivePath(job.lastClose(), plan, job.lastTime())
	res.ModelInfo = models.ModelInfo{}
	return res
}

func (e *Engine) infer(ctx context.Context, r familyRunner, job *forecastJob) (points []models.PricePoint, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", models.ErrInferenceFailure, rec)
		}
	}()
	if err := r.Resolve(ctx, job); err != nil {
		return nil, err
	}
	raw, err := r.Infer(ctx, job)
	if err != nil {
		return nil, err
	}
	return r.Correct(job, raw), nil
}

// assemble derives the cumulative series and the headline price.
func (e *Engine) assemble(res *models.ForecastResult, plan Plan) *models.ForecastResult {
	res.Cumulative = CumulativeReturns(res.Forecast)
	if n := len(res.Forecast); n > 0 {
		idx := n - 1
		if res.Family == models.FamilyRecurrent {
			idx = min(plan.Horizon*24-1, n-1)
		}
		res.PredictedPrice = res.Forecast[idx].Price
	}
	e.metrics.RecordPredictedPrice(res.Coin, res.PredictedPrice)
	return res
}

func fallbackReason(err error) string {
	for _, target := range []error{
		models.ErrModelUnavailable,
		models.ErrInsufficientHistory,
		models.ErrInferenceFailure,
		models.ErrTrainingInProgress,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "error"
}
