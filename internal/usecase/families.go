package usecase

import (
	"context"
	"fmt"
	"time"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/services/features"
	"CryptoPulse/internal/services/ml"
	"CryptoPulse/pkg/logger"
)

// recurrentCheckpoint is the output column compared when choosing the
// correction direction.
const recurrentCheckpoint = 29

// forecastJob carries one request through DECIDE, INFER and CORRECT.
type forecastJob struct {
	plan    Plan
	coin    string
	candles []models.Candle
	force   bool
	now     time.Time

	artifact *models.Artifact
	table    *features.Table
	cached   bool
	info     models.ModelInfo

	// recurrent evaluation on the held-out fifth
	rmse    []float64
	errSign float64
	scalerX models.Scaler
	scalerY models.Scaler
}

func (j *forecastJob) lastClose() float64 {
	c, _ := models.LastCandle(j.candles)
	return c.Close
}

func (j *forecastJob) lastTime() time.Time {
	c, _ := models.LastCandle(j.candles)
	return c.Time
}

// familyRunner is the per-family half of the forecast state machine.
type familyRunner interface {
	Family() models.Family
	// Resolve obtains a usable artifact, loading or training it.
	Resolve(ctx context.Context, job *forecastJob) error
	// Infer returns the unadjusted price path for the latest feature row.
	Infer(ctx context.Context, job *forecastJob) ([]float64, error)
	// Correct aligns the raw path with the last observed close.
	Correct(job *forecastJob, raw []float64) []models.PricePoint
}

func predictLatest(a *models.Artifact, sx, sy models.Scaler, t *features.Table) ([]float64, error) {
	latest, ok := t.Latest()
	if !ok {
		return nil, fmt.Errorf("%w: no feature rows", models.ErrInsufficientHistory)
	}
	x, err := sx.Transform([][]float64{latest})
	if err != nil {
		return nil, fmt.Errorf("%w: scale input: %v", models.ErrInferenceFailure, err)
	}
	y, err := a.Model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInferenceFailure, err)
	}
	if len(y) != 1 || len(y[0]) == 0 {
		return nil, fmt.Errorf("%w: model produced no output", models.ErrInferenceFailure)
	}
	inv, err := sy.InverseTransform(y)
	if err != nil {
		return nil, fmt.Errorf("%w: unscale output: %v", models.ErrInferenceFailure, err)
	}
	return inv[0], nil
}

// recurrentRunner serves pre-trained recurrent nets read-only.
type recurrentRunner struct {
	e *Engine
}

func (recurrentRunner) Family() models.Family { return models.FamilyRecurrent }

func (r recurrentRunner) Resolve(ctx context.Context, job *forecastJob) error {
	a, ok, err := r.e.store.Load(ctx, job.plan.Key)
	if err != nil {
		r.e.l.Warn("recurrent artifact unreadable",
			logger.String("coin", job.coin),
			logger.Int("horizon", job.plan.Horizon),
			logger.String("family", string(models.FamilyRecurrent)),
			logger.Error(err),
		)
	}
	r.e.metrics.RecordArtifactCache(ok && err == nil)
	if err != nil || !ok || a == nil || a.Model == nil {
		return fmt.Errorf("%w: %s", models.ErrModelUnavailable, job.plan.Key)
	}

	schema := job.plan.Schema
	if a.Meta != nil && len(a.Meta.FeatureCols) > 0 {
		schema = schema.WithColumns(a.Meta.FeatureCols)
	}
	t, err := features.Build(job.candles, schema)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInsufficientHistory, err)
	}
	if t.Len() < 1 {
		return fmt.Errorf("%w: series too short for model input", models.ErrInsufficientHistory)
	}

	job.artifact, job.table = a, t
	job.scalerX = a.ScalerX
	if job.scalerX == nil {
		sx, err := ml.FitMinMax(t.Rows)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrModelUnavailable, err)
		}
		job.scalerX = sx
	}
	job.scalerY = a.ScalerY
	if job.scalerY == nil {
		// Degenerate fit on the last close: inverse adds the close to the raw output.
		closes, _ := t.Column("Close")
		last := closes[len(closes)-1]
		dummy := make([][]float64, t.Len())
		for i := range dummy {
			dummy[i] = make([]float64, a.Model.Outputs())
			for k := range dummy[i] {
				dummy[i][k] = last
			}
		}
		sy, err := ml.FitMinMax(dummy)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrModelUnavailable, err)
		}
		job.scalerY = sy
	}
	return nil
}

func (r recurrentRunner) Infer(_ context.Context, job *forecastJob) ([]float64, error) {
	future, err := predictLatest(job.artifact, job.scalerX, job.scalerY, job.table)
	if err != nil {
		return nil, err
	}
	r.evaluate(job, len(future))
	job.info = models.ModelInfo{
		"algorithm":    "LSTM",
		"n_outputs":    len(future),
		"feature_cols": job.table.Columns,
		"rmse_mean":    ml.Mean(job.rmse),
	}
	return future, nil
}

// evaluate fills the per-step rmse and the checkpoint error from the held-out
// fifth of the engineered table. Any failure leaves zero corrections.
func (r recurrentRunner) evaluate(job *forecastJob, nOut int) {
	job.rmse = make([]float64, nOut)
	job.errSign = 0

	sup, err := features.Targets(job.table, nOut)
	if err != nil || sup.Len() <= 3 {
		return
	}
	_, test := sup.Split(0.8)
	if test.Len() == 0 {
		return
	}
	xs, err := job.scalerX.Transform(test.X)
	if err != nil {
		return
	}
	ps, err := job.artifact.Model.Predict(xs)
	if err != nil {
		return
	}
	pred, err := job.scalerY.InverseTransform(ps)
	if err != nil {
		return
	}
	rmse, err := ml.StepRMSE(test.Y, pred)
	if err != nil {
		r.e.l.Debug("recurrent rmse", logger.String("coin", job.coin), logger.Error(err))
		return
	}
	job.rmse = rmse
	last := len(pred) - 1
	if nOut > recurrentCheckpoint {
		job.errSign = pred[last][recurrentCheckpoint] - test.Y[last][recurrentCheckpoint]
	}
}

func (recurrentRunner) Correct(job *forecastJob, raw []float64) []models.PricePoint {
	delta := job.lastClose() - raw[0]
	adjusted := make([]float64, len(raw))
	for k, v := range raw {
		var rmse float64
		if k < len(job.rmse) {
			rmse = job.rmse[k]
		}
		if job.errSign < 0 {
			adjusted[k] = v - rmse + delta
		} else {
			adjusted[k] = v + rmse - delta
		}
	}
	return futurePoints(adjusted, job.lastTime(), time.Hour)
}

// ensembleRunner reuses or trains multi-output gradient boosting artifacts.
type ensembleRunner struct {
	e *Engine
	// checkCompat is false on the hourly path, which reuses any complete artifact.
	checkCompat bool
}

func (ensembleRunner) Family() models.Family { return models.FamilyEnsemble }

func (r ensembleRunner) Resolve(ctx context.Context, job *forecastJob) error {
	if !job.force {
		a, ok, err := r.e.store.Load(ctx, job.plan.Key)
		if err != nil {
			r.e.l.Warn("ensemble artifact unreadable, retraining",
				logger.String("coin", job.coin),
				logger.Int("horizon", job.plan.Horizon),
				logger.String("family", string(models.FamilyEnsemble)),
				logger.Error(err),
			)
		}
		usable := err == nil && ok && a.Complete()
		if usable && r.checkCompat {
			usable = r.e.compatible(a.Meta, len(job.candles), job.now)
		}
		r.e.metrics.RecordArtifactCache(usable)
		if usable {
			job.artifact, job.cached = a, true
			return nil
		}
	}

	a, err := r.e.train(ctx, job.plan, job.candles)
	if err != nil {
		return err
	}
	job.artifact, job.cached = a, false
	return nil
}

func (r ensembleRunner) Infer(_ context.Context, job *forecastJob) ([]float64, error) {
	schema := job.plan.Schema
	if job.artifact.Meta != nil && len(job.artifact.Meta.FeatureCols) > 0 {
		schema = schema.WithColumns(job.artifact.Meta.FeatureCols)
	}
	t, err := features.Build(job.candles, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInsufficientHistory, err)
	}
	job.table = t
	pred, err := predictLatest(job.artifact, job.artifact.ScalerX, job.artifact.ScalerY, t)
	if err != nil {
		return nil, err
	}
	job.info = job.artifact.Meta.Info()
	if job.artifact.Meta == nil {
		job.info["algorithm"] = "GradientBoostingRegressor"
	}
	return pred, nil
}

func (ensembleRunner) Correct(job *forecastJob, raw []float64) []models.PricePoint {
	offset := job.lastClose() - raw[0]
	n := min(job.plan.Emit, len(raw))
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = raw[k] + offset
	}
	return futurePoints(out, job.lastTime(), job.plan.StepDur)
}

// naivePath is the drift-plus-noise fallback. Daily paths step k = 1..h with
// 0.25% drift; the hourly path steps i = 0..23 with 0.1% drift.
func (e *Engine) naivePath(price float64, plan Plan, from time.Time) []models.PricePoint {
	var (
		n     int
		drift float64
		first int
		step  time.Duration
	)
	if plan.Family == models.FamilyEnsemble && plan.Class == models.ClassHourly {
		n, drift, first, step = models.HourlySteps, 0.001, 0, time.Hour
	} else {
		n, drift, first, step = plan.Horizon, 0.0025, 1, 24*time.Hour
	}
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = price * (1 + drift*float64(first+i) + e.noise(0.001))
	}
	return futurePoints(prices, from, step)
}
