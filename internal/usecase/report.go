package usecase

import (
	"context"
	"errors"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/domain/service"
	"CryptoPulse/pkg/logger"
)

// Change is the headline move of a forecast.
type Change struct {
	CurrentPrice float64 `json:"current_price"`
	Percent      float64 `json:"predicted_change"`
	Direction    string  `json:"predicted_change_direction"`
}

// ForecastReport is what the API returns for one forecast request.
type ForecastReport struct {
	*models.ForecastResult
	Sentiment    *models.Sentiment    `json:"sentiment"`
	Change       Change               `json:"change"`
	HistoryEntry *models.HistoryEntry `json:"history_entry"`
}

// Reporter decorates engine results with sentiment, change and a history
// entry, then hands both to the downstream publisher.
type Reporter struct {
	engine     service.Forecaster
	summarizer service.SentimentSummarizer
	publisher  drepo.ResultPublisher
	history    *History
	l          *logger.Logger
	now        func() time.Time
}

// NewReporter builds a Reporter. publisher and history may be nil; without a
// publisher entries go straight to the history store.
func NewReporter(engine service.Forecaster, summarizer service.SentimentSummarizer, publisher drepo.ResultPublisher, history *History, l *logger.Logger) *Reporter {
	if l == nil {
		l = logger.Nop()
	}
	return &Reporter{engine: engine, summarizer: summarizer, publisher: publisher, history: history, l: l, now: time.Now}
}

func (r *Reporter) Forecast(ctx context.Context, req models.ForecastRequest) (*ForecastReport, error) {
	res, err := r.engine.Forecast(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.report(ctx, res, models.ClassDaily, req.Horizon), nil
}

func (r *Reporter) ForecastHourly(ctx context.Context, coin string, forceRetrain bool) (*ForecastReport, error) {
	res, err := r.engine.ForecastHourly(ctx, coin, forceRetrain)
	if err != nil {
		return nil, err
	}
	return r.report(ctx, res, models.ClassHourly, 1), nil
}

func (r *Reporter) report(ctx context.Context, res *models.ForecastResult, kind models.HorizonClass, horizon int) *ForecastReport {
	out := &ForecastReport{ForecastResult: res}

	if r.summarizer != nil {
		s, err := r.summarizer.Summarize(models.Prices(res.Historical), models.Prices(res.Forecast), horizon)
		switch {
		case err == nil:
			out.Sentiment = &s
		case errors.Is(err, models.ErrInsufficientHistory):
			r.l.Debug("sentiment skipped", logger.String("coin", res.Coin), logger.Error(err))
		default:
			r.l.Warn("sentiment failed", logger.String("coin", res.Coin), logger.Error(err))
		}
	}

	current := res.CurrentPrice()
	pct, dir := CalculateChange(current, res.PredictedPrice)
	out.Change = Change{CurrentPrice: current, Percent: pct, Direction: dir}
	out.HistoryEntry = BuildHistoryEntry(res, kind, r.now().UTC())

	r.publish(ctx, out)
	return out
}

// publish never fails the request.
func (r *Reporter) publish(ctx context.Context, rep *ForecastReport) {
	if r.publisher != nil {
		if err := r.publisher.PublishForecast(ctx, rep.ForecastResult); err != nil {
			r.l.Warn("publish forecast", logger.String("coin", rep.Coin), logger.Error(err))
		}
		if err := r.publisher.PublishHistory(ctx, rep.HistoryEntry); err != nil {
			r.l.Warn("publish history entry", logger.String("coin", rep.Coin), logger.Error(err))
		}
		return
	}
	if r.history.Enabled() {
		if err := r.history.Record(ctx, rep.HistoryEntry); err != nil {
			r.l.Warn("record history entry", logger.String("coin", rep.Coin), logger.Error(err))
		}
	}
}
