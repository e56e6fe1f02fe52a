package repository

import (
	"context"
	"time"

	"CryptoPulse/internal/domain/models"
)

// CandleSource is one link in the market data chain.
type CandleSource interface {
	Name() string
	// Fetch returns up to count candles ending at the latest available one,
	// oldest first. Any failure wraps models.ErrSourceUnavailable.
	Fetch(ctx context.Context, symbol string, interval Interval, count int) ([]models.Candle, error)
}

// RangeSource fetches candles between two instants. Used by history verification.
type RangeSource interface {
	FetchRange(ctx context.Context, symbol string, interval Interval, start, end time.Time, limit int) ([]models.Candle, error)
}

// CandleArchive is a persistent candle store that can also serve as a source.
type CandleArchive interface {
	CandleSource
	StoreCandles(ctx context.Context, symbol string, interval Interval, candles []models.Candle) error
}

// ModelStore persists artifacts and serves them through an in-process cache.
type ModelStore interface {
	// Load returns (nil, false, nil) when the artifact does not exist.
	Load(ctx context.Context, key models.ArtifactKey) (*models.Artifact, bool, error)
	LoadMetadata(ctx context.Context, key models.ArtifactKey) (*models.TrainingMetadata, bool, error)
	Save(ctx context.Context, artifact *models.Artifact) error
	InvalidateCache()
}

// ResultPublisher hands finished forecasts to downstream collaborators.
type ResultPublisher interface {
	PublishForecast(ctx context.Context, result *models.ForecastResult) error
	PublishHistory(ctx context.Context, entry *models.HistoryEntry) error
	Close() error
}

// HistoryStore keeps served forecasts and their verification outcome.
type HistoryStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, entry *models.HistoryEntry) error
	List(ctx context.Context, coin string, limit int) ([]*models.HistoryEntry, error)
	// Due returns unverified entries whose horizon ended at or before now.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.HistoryEntry, error)
	Health(ctx context.Context) error
	Close() error
}

// TrainingLock serialises retraining of one artifact across replicas.
type TrainingLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordForecast(family models.Family, outcome string)
	RecordFallback(reason string)
	RecordTraining(key models.ArtifactKey, seconds float64)
	RecordFetch(source, outcome string)
	RecordArtifactCache(hit bool)
	RecordPredictedPrice(coin string, price float64)
}
