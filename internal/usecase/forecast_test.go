package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/services/ml"
)

func fastParams() *ml.BoostingParams {
	p := ml.DefaultBoostingParams()
	p.NEstimators = 8
	p.MaxDepth = 3
	return &p
}

func newTestEngine(src *fakeSource, store *memStore, m *recMetrics) *Engine {
	now := epoch.Add(400 * 24 * time.Hour)
	return NewEngine(src, store, nil, m, nil, EngineConfig{
		Params:    fastParams(),
		NoiseSeed: 1,
		Now:       func() time.Time { return now },
	})
}

func TestEnsembleForecastStartsAtLastClose(t *testing.T) {
	candles := wave(200, 24*time.Hour)
	src := &fakeSource{name: "binance", candles: candles}
	store := newMemStore()
	m := &recMetrics{}
	e := newTestEngine(src, store, m)

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "btcusdt", Horizon: 7})
	require.NoError(t, err)

	last := candles[len(candles)-1]
	assert.Equal(t, "BTCUSDT", res.Coin)
	assert.Equal(t, models.FamilyEnsemble, res.Family)
	assert.Equal(t, models.ClassDaily, res.Class)
	assert.False(t, res.UsingCachedModel)
	require.Len(t, res.Forecast, 7)
	assert.InDelta(t, last.Close, res.Forecast[0].Price, 1e-9)
	assert.Equal(t, last.Time.Add(24*time.Hour), res.Forecast[0].Time)
	assert.Equal(t, last.Time.Add(7*24*time.Hour), res.Forecast[6].Time)
	assert.Equal(t, res.Forecast[6].Price, res.PredictedPrice)

	require.Len(t, res.Cumulative, 7)
	assert.Equal(t, 0.0, res.Cumulative[0].Price)

	require.NotEmpty(t, res.Historical)
	assert.Equal(t, last.Close, res.Historical[len(res.Historical)-1].Price)
	assert.Len(t, res.Historical, 16)

	assert.Equal(t, []string{"BTCUSDT/1d/1825"}, src.calls)
	assert.Equal(t, 1, store.saves)

	key := models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassDaily, Family: models.FamilyEnsemble}
	saved := store.artifacts[key]
	require.NotNil(t, saved)
	assert.Equal(t, 200, saved.Meta.DataShape)
	assert.Equal(t, 30, saved.Meta.ForecastSteps)
	assert.NotContains(t, saved.Meta.FeatureCols, "MA_50")
	assert.Len(t, saved.Meta.RMSE, 30)
}

func TestEnsembleForecastDefaultParamsOnLinearTrend(t *testing.T) {
	candles := linear(200, 24*time.Hour)
	store := newMemStore()
	e := NewEngine(&fakeSource{name: "binance", candles: candles}, store, nil, nil, nil, EngineConfig{
		NoiseSeed: 1,
		Now:       func() time.Time { return epoch.Add(400 * 24 * time.Hour) },
	})

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 7})
	require.NoError(t, err)

	last := candles[len(candles)-1]
	assert.Equal(t, models.FamilyEnsemble, res.Family)
	require.Len(t, res.Forecast, 7)
	assert.InDelta(t, last.Close, res.Forecast[0].Price, 1e-9)
	assert.Equal(t, last.Time.Add(24*time.Hour), res.Forecast[0].Time)
	assert.Equal(t, res.Forecast[6].Price, res.PredictedPrice)
	for _, p := range res.Forecast {
		assert.False(t, math.IsNaN(p.Price))
		assert.Greater(t, p.Price, 0.0)
	}

	saved := store.artifacts[models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassDaily, Family: models.FamilyEnsemble}]
	require.NotNil(t, saved)
	assert.Len(t, saved.Meta.RMSE, 30)
	assert.Equal(t, 200, saved.Meta.DataShape)
}

func TestEnsembleReusesCompatibleArtifact(t *testing.T) {
	src := &fakeSource{name: "binance", candles: wave(200, 24*time.Hour)}
	store := newMemStore()
	e := newTestEngine(src, store, &recMetrics{})

	ctx := context.Background()
	_, err := e.Forecast(ctx, models.ForecastRequest{Coin: "BTCUSDT", Horizon: 10})
	require.NoError(t, err)
	res, err := e.Forecast(ctx, models.ForecastRequest{Coin: "BTCUSDT", Horizon: 30})
	require.NoError(t, err)

	assert.True(t, res.UsingCachedModel)
	assert.Len(t, res.Forecast, 30)
	assert.Equal(t, 1, store.saves)

	res, err = e.Forecast(ctx, models.ForecastRequest{Coin: "BTCUSDT", Horizon: 10, ForceRetrain: true})
	require.NoError(t, err)
	assert.False(t, res.UsingCachedModel)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 1, store.invalidated)
}

func TestIncompatibleArtifactIsRetrained(t *testing.T) {
	src := &fakeSource{name: "binance", candles: wave(200, 24*time.Hour)}
	store := newMemStore()
	e := NewEngine(src, store, nil, nil, nil, EngineConfig{
		Params:     fastParams(),
		Compatible: func(*models.TrainingMetadata, int, time.Time) bool { return false },
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := e.Forecast(ctx, models.ForecastRequest{Coin: "BTCUSDT", Horizon: 5})
		require.NoError(t, err)
		assert.False(t, res.UsingCachedModel)
	}
	assert.Equal(t, 2, store.saves)
}

func TestDataUnavailablePropagates(t *testing.T) {
	src := &fakeSource{name: "chain", err: fmt.Errorf("%w: all sources down", models.ErrDataUnavailable)}
	e := newTestEngine(src, newMemStore(), &recMetrics{})

	_, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 7})
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	_, err = e.ForecastHourly(context.Background(), "BTCUSDT", false)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestRequestValidation(t *testing.T) {
	src := &fakeSource{name: "binance", candles: wave(200, 24*time.Hour)}
	e := newTestEngine(src, newMemStore(), &recMetrics{})

	_, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "FOOUSDT", Horizon: 7})
	assert.ErrorIs(t, err, models.ErrUnsupportedCoin)
	_, err = e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 31})
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)
	assert.Empty(t, src.calls)
}

func TestMissingRecurrentModelFallsBackToNaive(t *testing.T) {
	candles := wave(300, time.Hour)
	m := &recMetrics{}
	e := newTestEngine(&fakeSource{name: "binance", candles: candles}, newMemStore(), m)

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "ETHUSDT", Horizon: 2})
	require.NoError(t, err)

	last := candles[len(candles)-1]
	assert.Equal(t, models.FamilyNaive, res.Family)
	require.Len(t, res.Forecast, 2)
	assert.Equal(t, last.Time.Add(24*time.Hour), res.Forecast[0].Time)
	for k, p := range res.Forecast {
		want := last.Close * (1 + 0.0025*float64(k+1))
		assert.InDelta(t, want, p.Price, last.Close*0.006)
	}
	assert.Equal(t, res.Forecast[1].Price, res.PredictedPrice)
	assert.Equal(t, []string{models.ErrModelUnavailable.Error()}, m.fallbacks)
	assert.Equal(t, []string{"naive:fallback"}, m.forecasts)
	assert.NotNil(t, res.ModelInfo)
	assert.Empty(t, res.ModelInfo)
}

func TestRecurrentCorrection(t *testing.T) {
	candles := wave(400, time.Hour)
	last := candles[len(candles)-1]
	store := newMemStore()
	key := models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassHourly, Family: models.FamilyRecurrent}

	// A flat prediction well above every price makes the checkpoint error
	// positive, so the path is future + rmse - delta.
	out := make([]float64, 48)
	for i := range out {
		out[i] = 1000
	}
	store.artifacts[key] = &models.Artifact{Key: key, Model: constModel{out: out}, ScalerX: identity{}, ScalerY: identity{}}
	e := newTestEngine(&fakeSource{name: "binance", candles: candles}, store, &recMetrics{})

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 1})
	require.NoError(t, err)
	require.Equal(t, models.FamilyRecurrent, res.Family)
	require.Len(t, res.Forecast, 48)
	assert.Equal(t, last.Time.Add(time.Hour), res.Forecast[0].Time)
	assert.Equal(t, last.Time.Add(48*time.Hour), res.Forecast[47].Time)
	assert.Equal(t, res.Forecast[23].Price, res.PredictedPrice)
	assert.False(t, res.UsingCachedModel)

	delta := last.Close - 1000
	rmse0 := res.Forecast[0].Price - (1000 - delta)
	assert.Greater(t, rmse0, 0.0)
	for _, p := range res.Forecast {
		assert.Greater(t, p.Price, 1000.0)
	}

	res, err = e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, res.Forecast[47].Price, res.PredictedPrice)
}

func TestRecurrentCorrectionWithoutCheckpointColumn(t *testing.T) {
	candles := wave(400, time.Hour)
	store := newMemStore()
	key := models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassHourly, Family: models.FamilyRecurrent}

	out := make([]float64, 24)
	for i := range out {
		out[i] = 1000
	}
	store.artifacts[key] = &models.Artifact{Key: key, Model: constModel{out: out}, ScalerX: identity{}, ScalerY: identity{}}
	e := newTestEngine(&fakeSource{name: "binance", candles: candles}, store, &recMetrics{})

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 2})
	require.NoError(t, err)
	require.Equal(t, models.FamilyRecurrent, res.Family)
	require.Len(t, res.Forecast, 24)
	assert.Equal(t, res.Forecast[23].Price, res.PredictedPrice)
	for _, p := range res.Forecast {
		assert.Greater(t, p.Price, 1000.0)
	}
}

func TestHourlyForecastNeedsTwoHundredCandles(t *testing.T) {
	e := newTestEngine(&fakeSource{name: "binance", candles: wave(150, time.Hour)}, newMemStore(), &recMetrics{})
	_, err := e.ForecastHourly(context.Background(), "BTCUSDT", false)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestHourlyForecastFallsBackWhenTooShortToTrain(t *testing.T) {
	candles := wave(300, time.Hour)
	m := &recMetrics{}
	e := newTestEngine(&fakeSource{name: "binance", candles: candles}, newMemStore(), m)

	res, err := e.ForecastHourly(context.Background(), "BTCUSDT", false)
	require.NoError(t, err)
	last := candles[len(candles)-1]
	assert.Equal(t, models.FamilyNaive, res.Family)
	require.Len(t, res.Forecast, 24)
	assert.Equal(t, last.Time.Add(time.Hour), res.Forecast[0].Time)
	assert.InDelta(t, last.Close, res.Forecast[0].Price, last.Close*0.005)
	assert.Len(t, res.Historical, 48)
	assert.Equal(t, []string{models.ErrInsufficientHistory.Error()}, m.fallbacks)
}

func TestHourlyEnsembleTrainsAndReusesWithoutCompatibilityCheck(t *testing.T) {
	candles := wave(620, time.Hour)
	store := newMemStore()
	e := NewEngine(&fakeSource{name: "binance", candles: candles}, store, nil, nil, nil, EngineConfig{
		Params:     fastParams(),
		Compatible: func(*models.TrainingMetadata, int, time.Time) bool { return false },
	})
	ctx := context.Background()

	res, err := e.ForecastHourly(ctx, "SOLUSDT", false)
	require.NoError(t, err)
	assert.Equal(t, models.FamilyEnsemble, res.Family)
	require.Len(t, res.Forecast, 24)
	assert.InDelta(t, candles[619].Close, res.Forecast[0].Price, 1e-9)
	assert.Equal(t, res.Forecast[23].Price, res.PredictedPrice)

	res, err = e.ForecastHourly(ctx, "SOLUSDT", false)
	require.NoError(t, err)
	assert.True(t, res.UsingCachedModel)
	assert.Equal(t, 1, store.saves)
}

func TestTrainingLockHeldFallsBack(t *testing.T) {
	m := &recMetrics{}
	e := NewEngine(&fakeSource{name: "binance", candles: wave(200, 24*time.Hour)}, newMemStore(), &heldLock{held: true}, m, nil, EngineConfig{Params: fastParams()})

	res, err := e.Forecast(context.Background(), models.ForecastRequest{Coin: "BTCUSDT", Horizon: 7})
	require.NoError(t, err)
	assert.Equal(t, models.FamilyNaive, res.Family)
	assert.Equal(t, []string{models.ErrTrainingInProgress.Error()}, m.fallbacks)

	_, err = e.Retrain(context.Background(), "BTCUSDT", models.ClassDaily)
	assert.ErrorIs(t, err, models.ErrTrainingInProgress)
}

func TestRetrain(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(&fakeSource{name: "binance", candles: wave(200, 24*time.Hour)}, store, &recMetrics{})

	meta, err := e.Retrain(context.Background(), "BNBUSDT", models.ClassDaily)
	require.NoError(t, err)
	assert.Equal(t, "GradientBoostingRegressor", meta.Algorithm)
	assert.Equal(t, 8, meta.NEstimators)
	assert.Equal(t, 1, store.saves)

	_, err = e.Retrain(context.Background(), "BNBUSDT", models.HorizonClass("weekly"))
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)
}
