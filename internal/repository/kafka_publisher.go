package repository

import (
	"context"
	"fmt"

	"CryptoPulse/internal/domain/models"
	domrepo "CryptoPulse/internal/domain/repository"
)

// eventProducer is the slice of pkg/kafka.Producer the publisher needs.
type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher hands forecasts and history entries to Kafka, keyed by coin
// so one coin's events stay ordered within a partition.
type KafkaPublisher struct {
	producer      eventProducer
	forecastTopic string
	historyTopic  string
}

// NewKafkaPublisher creates the publisher. An empty topic disables that stream.
func NewKafkaPublisher(producer eventProducer, forecastTopic, historyTopic string) domrepo.ResultPublisher {
	return &KafkaPublisher{producer: producer, forecastTopic: forecastTopic, historyTopic: historyTopic}
}

// forecastEvent is the compact wire form of a finished forecast.
type forecastEvent struct {
	Coin           string              `json:"coin"`
	Horizon        int                 `json:"horizon_days"`
	Class          models.HorizonClass `json:"forecast_type"`
	Family         models.Family       `json:"family"`
	CurrentPrice   float64             `json:"current_price"`
	PredictedPrice float64             `json:"forecasted_price"`
	Forecast       []models.PricePoint `json:"forecast"`
	UsingCached    bool                `json:"using_cached_model"`
	GeneratedAt    int64               `json:"generated_at"`
}

func (p *KafkaPublisher) PublishForecast(ctx context.Context, r *models.ForecastResult) error {
	if p.forecastTopic == "" {
		return nil
	}
	ev := forecastEvent{
		Coin:           r.Coin,
		Horizon:        r.Horizon,
		Class:          r.Class,
		Family:         r.Family,
		CurrentPrice:   r.CurrentPrice(),
		PredictedPrice: r.PredictedPrice,
		Forecast:       r.Forecast,
		UsingCached:    r.UsingCachedModel,
		GeneratedAt:    r.GeneratedAt.UnixMilli(),
	}
	if err := p.producer.Publish(ctx, p.forecastTopic, []byte(r.Coin), ev); err != nil {
		return fmt.Errorf("publish forecast %s: %w", r.Coin, err)
	}
	return nil
}

func (p *KafkaPublisher) PublishHistory(ctx context.Context, e *models.HistoryEntry) error {
	if p.historyTopic == "" {
		return nil
	}
	if err := p.producer.Publish(ctx, p.historyTopic, []byte(e.Coin), e); err != nil {
		return fmt.Errorf("publish history %s: %w", e.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
