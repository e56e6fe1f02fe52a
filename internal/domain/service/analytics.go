package service

import (
	"context"

	"CryptoPulse/internal/domain/models"
)

// SentimentSummarizer labels a combined historical and forecast price series.
type SentimentSummarizer interface {
	Summarize(historical, forecast []float64, horizon int) (models.Sentiment, error)
}

// Forecaster is the engine entry point used by the HTTP layer and jobs.
type Forecaster interface {
	Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error)
	ForecastHourly(ctx context.Context, coin string, forceRetrain bool) (*models.ForecastResult, error)
}

// Retrainer rebuilds ensemble artifacts outside the request path.
type Retrainer interface {
	Retrain(ctx context.Context, coin string, class models.HorizonClass) (*models.TrainingMetadata, error)
}
