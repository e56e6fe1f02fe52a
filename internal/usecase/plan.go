package usecase

import (
	"fmt"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/services/features"
)

const (
	hourlyRecords         = 1000
	dailyRecords          = 1825
	hourlyEnsembleRecords = 4380

	// ensembleSteps is the output width of the daily ensemble regardless of horizon.
	ensembleSteps = 30

	minDailyRows  = 100
	minHourlyRows = 500
	// minHourlyCandles gates the dedicated hourly path before any feature work.
	minHourlyCandles = 200
	// hourlyHistoryCandles is the historical window of the hourly path.
	hourlyHistoryCandles = 48
)

// SelectFamily picks the algorithm family for a daily-endpoint horizon.
func SelectFamily(horizon int) models.Family {
	if horizon <= 2 {
		return models.FamilyRecurrent
	}
	return models.FamilyEnsemble
}

// Plan is everything the engine needs to know before touching data.
type Plan struct {
	Horizon  int
	Class    models.HorizonClass
	Family   models.Family
	Interval drepo.Interval
	Records  int
	Schema   features.Schema
	// Steps is the model output width; Emit is how many of them reach the result.
	Steps   int
	Emit    int
	StepDur time.Duration
	MinRows int
	Key     models.ArtifactKey
}

// PlanFor returns the daily-endpoint plan for coin and horizon.
func PlanFor(coin string, horizon int) (Plan, error) {
	if horizon < models.MinHorizonDays || horizon > models.MaxHorizonDays {
		return Plan{}, fmt.Errorf("%w: %d (allowed %d..%d)", models.ErrInvalidHorizon, horizon, models.MinHorizonDays, models.MaxHorizonDays)
	}
	fam := SelectFamily(horizon)
	if fam == models.FamilyRecurrent {
		return Plan{
			Horizon:  horizon,
			Class:    models.ClassHourly,
			Family:   fam,
			Interval: drepo.Interval1h,
			Records:  hourlyRecords,
			Schema:   features.HourlyRecurrent,
			StepDur:  time.Hour,
			Key:      models.ArtifactKey{Coin: coin, Class: models.ClassHourly, Family: fam},
		}, nil
	}
	return Plan{
		Horizon:  horizon,
		Class:    models.ClassDaily,
		Family:   fam,
		Interval: drepo.Interval1d,
		Records:  dailyRecords,
		Schema:   features.DailyEnsemble,
		Steps:    ensembleSteps,
		Emit:     min(horizon, ensembleSteps),
		StepDur:  24 * time.Hour,
		MinRows:  minDailyRows,
		Key:      models.ArtifactKey{Coin: coin, Class: models.ClassDaily, Family: fam},
	}, nil
}

// HourlyPlan is the dedicated 24-step ensemble path.
func HourlyPlan(coin string) Plan {
	return Plan{
		Horizon:  1,
		Class:    models.ClassHourly,
		Family:   models.FamilyEnsemble,
		Interval: drepo.Interval1h,
		Records:  hourlyEnsembleRecords,
		Schema:   features.HourlyEnsemble,
		Steps:    models.HourlySteps,
		Emit:     models.HourlySteps,
		StepDur:  time.Hour,
		MinRows:  minHourlyRows,
		Key:      models.ArtifactKey{Coin: coin, Class: models.ClassHourly, Family: models.FamilyEnsemble},
	}
}

// HistoryWindowDays is how far back the returned historical series reaches.
func HistoryWindowDays(horizon int) int {
	switch {
	case horizon <= 2:
		return 2
	case horizon <= 7:
		return 15
	case horizon <= 15:
		return 30
	}
	return max(90, 3*horizon)
}

// historyWindow keeps candles with time >= last - days.
func historyWindow(candles []models.Candle, days int) []models.PricePoint {
	last, ok := models.LastCandle(candles)
	if !ok {
		return nil
	}
	cutoff := last.Time.Add(-time.Duration(days) * 24 * time.Hour)
	out := make([]models.PricePoint, 0, len(candles))
	for _, c := range candles {
		if !c.Time.Before(cutoff) {
			out = append(out, models.PricePoint{Time: c.Time, Price: c.Close})
		}
	}
	return out
}

func tailPoints(candles []models.Candle, n int) []models.PricePoint {
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	out := make([]models.PricePoint, len(candles))
	for i, c := range candles {
		out[i] = models.PricePoint{Time: c.Time, Price: c.Close}
	}
	return out
}

// futurePoints stamps prices at from+step, from+2*step, ...
func futurePoints(prices []float64, from time.Time, step time.Duration) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Time: from.Add(time.Duration(i+1) * step), Price: p}
	}
	return out
}

// CumulativeReturns maps a price series to cumulative returns: 0 first, then
// prod(1+r_j) - 1.
func CumulativeReturns(points []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(points))
	acc := 1.0
	for i, p := range points {
		if i > 0 {
			prev := points[i-1].Price
			if prev != 0 {
				acc *= p.Price / prev
			}
		}
		out[i] = models.PricePoint{Time: p.Time, Price: acc - 1}
	}
	return out
}
