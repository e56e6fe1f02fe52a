package models

import "time"

// Family is the algorithm family that produced a forecast.
type Family string

const (
	FamilyRecurrent Family = "recurrent"
	FamilyEnsemble  Family = "ensemble"
	FamilyNaive     Family = "naive"
)

// HorizonClass selects candle granularity and artifact set.
type HorizonClass string

const (
	ClassHourly HorizonClass = "hourly"
	ClassDaily  HorizonClass = "daily"
)

const (
	MinHorizonDays = 1
	MaxHorizonDays = 30
	// HourlySteps is the length of the dedicated 24-step hourly forecast.
	HourlySteps = 24
)

// ForecastRequest is the inbound forecast contract.
type ForecastRequest struct {
	Coin         string `json:"coin" validate:"required,coin"`
	Horizon      int    `json:"horizon" validate:"min=1,max=30"`
	ForceRetrain bool   `json:"force_retrain"`
	// Epochs and TimeStep are accepted for compatibility with the recurrent
	// trainer; the engine never trains the recurrent family itself.
	Epochs   int `json:"epochs" default:"50"`
	TimeStep int `json:"time_step" default:"60"`
}

// HourlyForecastRequest asks for the dedicated 24-step hourly forecast.
type HourlyForecastRequest struct {
	Coin         string `json:"coin" validate:"required,coin"`
	ForceRetrain bool   `json:"force_retrain"`
}

// ModelInfo carries algorithm metadata for display.
type ModelInfo map[string]interface{}

// ForecastResult is the outbound forecast contract.
type ForecastResult struct {
	Coin             string       `json:"coin"`
	Horizon          int          `json:"horizon_days"`
	Class            HorizonClass `json:"forecast_type"`
	Family           Family       `json:"family"`
	Historical       []PricePoint `json:"historical"`
	Forecast         []PricePoint `json:"forecast"`
	Cumulative       []PricePoint `json:"cumulative_returns"`
	PredictedPrice   float64      `json:"forecasted_price"`
	ModelInfo        ModelInfo    `json:"model_info"`
	UsingCachedModel bool         `json:"using_cached_model"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

// CurrentPrice is the last historical price, or 0 when the window is empty.
func (r *ForecastResult) CurrentPrice() float64 {
	if len(r.Historical) == 0 {
		return 0
	}
	return r.Historical[len(r.Historical)-1].Price
}

// PredictedRange returns the max and min of the forecast series.
func (r *ForecastResult) PredictedRange() (high, low float64) {
	for i, p := range r.Forecast {
		if i == 0 || p.Price > high {
			high = p.Price
		}
		if i == 0 || p.Price < low {
			low = p.Price
		}
	}
	return high, low
}
