package metrics

import (
	"strconv"

	"CryptoPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts     *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	training      *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	artifactCache *prometheus.CounterVec
	predicted     *prometheus.GaugeVec
}

// New registers the recorder's collectors on reg; nil uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopulse_forecasts_total",
				Help: "Forecasts served, by algorithm family and outcome",
			},
			[]string{"family", "outcome"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopulse_forecast_fallbacks_total",
				Help: "Degradations to the naive forecast, by reason",
			},
			[]string{"reason"},
		),
		training: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptopulse_training_duration_seconds",
				Help:    "Synchronous ensemble training duration",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"class", "family"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopulse_candle_fetches_total",
				Help: "Candle fetch attempts, by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		artifactCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopulse_artifact_cache_lookups_total",
				Help: "Model artifact cache lookups",
			},
			[]string{"hit"},
		),
		predicted: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptopulse_predicted_price",
				Help: "Last predicted price per coin",
			},
			[]string{"coin"},
		),
	}
}

func (r *Recorder) RecordForecast(family models.Family, outcome string) {
	r.forecasts.WithLabelValues(string(family), outcome).Inc()
}

func (r *Recorder) RecordFallback(reason string) {
	r.fallbacks.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordTraining(key models.ArtifactKey, seconds float64) {
	r.training.WithLabelValues(string(key.Class), string(key.Family)).Observe(seconds)
}

func (r *Recorder) RecordFetch(source, outcome string) {
	r.fetches.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) RecordArtifactCache(hit bool) {
	r.artifactCache.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (r *Recorder) RecordPredictedPrice(coin string, price float64) {
	r.predicted.WithLabelValues(coin).Set(price)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordForecast(models.Family, string) {}
func (Nop) RecordFallback(string) {}
func (Nop) RecordTraining(models.ArtifactKey, float64) {}
func (Nop) RecordFetch(string, string) {}
func (Nop) RecordArtifactCache(bool) {}
func (Nop) RecordPredictedPrice(string, float64) {}
