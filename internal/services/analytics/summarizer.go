package analytics

import (
	"fmt"
	"math"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/domain/service"
	"CryptoPulse/internal/services/features"
)

const (
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	emaShortPeriod  = 9
	emaLongPeriod   = 21
	volatilityWin   = 10
	bullishRSIFloor = 55.0
	bearishRSICeil  = 45.0
	baseScore       = 0.7
	maxBonus        = 0.3
)

// Summarizer classifies the combined historical and forecast series with
// RSI, MACD and EMA crossovers.
type Summarizer struct{}

var _ service.SentimentSummarizer = Summarizer{}

func NewSummarizer() Summarizer { return Summarizer{} }

// Summarize needs at least macdSlow points across both series.
func (Summarizer) Summarize(historical, forecast []float64, horizon int) (models.Sentiment, error) {
	series := make([]float64, 0, len(historical)+len(forecast))
	series = append(series, historical...)
	series = append(series, forecast...)
	if len(series) < macdSlow {
		return models.Sentiment{}, fmt.Errorf("%w: sentiment needs %d prices, got %d",
			models.ErrInsufficientHistory, macdSlow, len(series))
	}

	macd, signal := MACD(series, macdFast, macdSlow, macdSignal)
	ind := models.Indicators{
		RSI:        RSI(series, rsiPeriod),
		MACD:       macd,
		MACDSignal: signal,
		EMAShort:   last(EMA(series, emaShortPeriod)),
		EMALong:    last(EMA(series, emaLongPeriod)),
		Volatility: features.LastStd(features.PctChange(series)[1:], volatilityWin),
		Momentum:   series[len(series)-1] - series[len(series)-2],
	}

	out := models.Sentiment{Horizon: horizon, Label: models.SentimentNeutral, Indicators: ind}
	switch {
	case ind.MACD > ind.MACDSignal && ind.EMAShort > ind.EMALong && ind.RSI > bullishRSIFloor:
		out.Label = models.SentimentBullish
		out.Score = baseScore + math.Min((ind.RSI-bullishRSIFloor)/100, maxBonus)
	case ind.MACD < ind.MACDSignal && ind.EMAShort < ind.EMALong && ind.RSI < bearishRSICeil:
		out.Label = models.SentimentBearish
		out.Score = -baseScore - math.Min((bearishRSICeil-ind.RSI)/100, maxBonus)
	}
	return out, nil
}

// RSI is the simple-average relative strength index of the last period moves.
// No losses reads 100; a flat window reads 50.
func RSI(x []float64, period int) float64 {
	if len(x) < 2 || period <= 0 {
		return 50
	}
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := last(features.RollingMean(gains, period))
	avgLoss := last(features.RollingMean(losses, period))
	switch {
	case math.IsNaN(avgGain) || math.IsNaN(avgLoss):
		return 50
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// EMA is the recursive exponential average seeded with the first value,
// alpha = 2/(span+1).
func EMA(x []float64, span int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the last MACD line value and its signal line value.
func MACD(x []float64, fast, slow, signal int) (float64, float64) {
	f := EMA(x, fast)
	s := EMA(x, slow)
	line := make([]float64, len(x))
	for i := range x {
		line[i] = f[i] - s[i]
	}
	return last(line), last(EMA(line, signal))
}

func last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}
