package analytics

import (
	"math"
	"testing"

	"CryptoPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestMonotonicRiseIsBullish(t *testing.T) {
	s := NewSummarizer()
	got, err := s.Summarize(ramp(40, 100, 1), ramp(10, 140, 1), 7)
	require.NoError(t, err)

	assert.Equal(t, models.SentimentBullish, got.Label)
	assert.Equal(t, 100.0, got.Indicators.RSI)
	assert.InDelta(t, 1.0, got.Score, 1e-9)
	assert.Greater(t, got.Indicators.EMAShort, got.Indicators.EMALong)
	assert.InDelta(t, 1.0, got.Indicators.Momentum, 1e-9)
	assert.Equal(t, 7, got.Horizon)
}

func TestMonotonicFallIsBearish(t *testing.T) {
	s := NewSummarizer()
	got, err := s.Summarize(ramp(30, 200, -1), ramp(5, 170, -1), 3)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentBearish, got.Label)
	assert.Equal(t, 0.0, got.Indicators.RSI)
	assert.InDelta(t, -1.0, got.Score, 1e-9)
}

func TestFlatSeriesIsNeutral(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	got, err := NewSummarizer().Summarize(flat, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, got.Label)
	assert.Zero(t, got.Score)
	assert.Equal(t, 50.0, got.Indicators.RSI)
	assert.Zero(t, got.Indicators.Volatility)
}

func TestShortSeriesRejected(t *testing.T) {
	_, err := NewSummarizer().Summarize(ramp(20, 1, 1), ramp(5, 21, 1), 1)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestEMASeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 3)
	// alpha = 0.5
	assert.Equal(t, []float64{10, 15, 22.5}, got)
}

func TestRSIMixedMoves(t *testing.T) {
	// 15 points, alternating +2 / -1: 7 gains of 2, 7 losses of 1
	x := []float64{100}
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			x = append(x, x[len(x)-1]+2)
		} else {
			x = append(x, x[len(x)-1]-1)
		}
	}
	rs := (14.0 / 14) / (7.0 / 14)
	assert.InDelta(t, 100-100/(1+rs), RSI(x, 14), 1e-9)
}

func TestVolatilityUsesLastTenReturns(t *testing.T) {
	x := ramp(40, 100, 0)
	x[len(x)-1] = 110
	got, err := NewSummarizer().Summarize(x, nil, 1)
	require.NoError(t, err)
	// nine zero returns and one 10% return
	mean := 0.01
	v := (9*mean*mean + (0.1-mean)*(0.1-mean)) / 9
	assert.InDelta(t, math.Sqrt(v), got.Indicators.Volatility, 1e-12)
}
