package models

import (
	"fmt"
	"time"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// HistoryEntry records one served forecast so it can be verified once its
// horizon has passed.
type HistoryEntry struct {
	ID               string       `json:"id"`
	Coin             string       `json:"coin"`
	Horizon          string       `json:"horizon"` // "7d", "24h"
	HorizonDays      int          `json:"horizon_days"`
	ForecastType     HorizonClass `json:"forecast_type"`
	Family           Family       `json:"family"`
	CreatedAt        time.Time    `json:"timestamp"`
	HorizonEnd       time.Time    `json:"horizon_end_time"`
	CurrentPrice     float64      `json:"current_price"`
	PredictedPrice   float64      `json:"predicted_price"`
	PredictedHigh    float64      `json:"predicted_high"`
	PredictedLow     float64      `json:"predicted_low"`
	PredictedChange  float64      `json:"predicted_change"`
	PredictedDir     string       `json:"predicted_change_direction"`
	UsingCachedModel bool         `json:"using_cached"`
	IsVerified       bool         `json:"is_verified"`
	ActualPrice      *float64     `json:"actual_price"`
	ActualHigh       *float64     `json:"actual_high"`
	ActualLow        *float64     `json:"actual_low"`
	ActualChange     *float64     `json:"actual_change"`
	ActualDir        *string      `json:"actual_change_direction"`
	VerifiedAt       *time.Time   `json:"verified_at,omitempty"`
}

// HorizonLabel renders the horizon string stored with an entry.
func HorizonLabel(class HorizonClass, days int) string {
	if class == ClassHourly {
		return "24h"
	}
	return fmt.Sprintf("%dd", days)
}

// VerifyReport summarises one verification sweep.
type VerifyReport struct {
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}
