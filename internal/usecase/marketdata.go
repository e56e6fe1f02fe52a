package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/pkg/cache"
	"CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/metrics"
)

// MarketData walks the candle sources in order: live exchange, archive, then
// the offline dataset. Only exhausting every source is fatal.
type MarketData struct {
	sources []drepo.CandleSource
	archive drepo.CandleArchive
	metrics drepo.Metrics
	l       *logger.Logger
}

// NewMarketData builds the chain. archive may be nil; when set it is tried
// after primary and receives every successful primary fetch.
func NewMarketData(primary drepo.CandleSource, archive drepo.CandleArchive, dataset drepo.CandleSource, m drepo.Metrics, l *logger.Logger) *MarketData {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	md := &MarketData{archive: archive, metrics: m, l: l}
	for _, s := range []drepo.CandleSource{primary, archive, dataset} {
		if s != nil {
			md.sources = append(md.sources, s)
		}
	}
	return md
}

func (m *MarketData) Name() string { return "chain" }

// Fetch returns candles from the first source that has any.
func (m *MarketData) Fetch(ctx context.Context, symbol string, interval drepo.Interval, count int) ([]models.Candle, error) {
	steps := make([]Step[[]models.Candle], 0, len(m.sources))
	for _, src := range m.sources {
		steps = append(steps, Step[[]models.Candle]{
			Name: src.Name(),
			Run: func(ctx context.Context) Attempt[[]models.Candle] {
				candles, err := src.Fetch(ctx, symbol, interval, count)
				switch {
				case err == nil && len(candles) > 0:
					return Succeed(candles)
				case err == nil:
					return Next[[]models.Candle](fmt.Errorf("%w: empty result", models.ErrSourceUnavailable))
				case errors.Is(err, context.Canceled):
					return Abort[[]models.Candle](err)
				}
				return Next[[]models.Candle](err)
			},
		})
	}

	onSkip := func(name string, err error) {
		m.metrics.RecordFetch(name, "miss")
		m.l.Warn("candle source failed",
			logger.String("source", name),
			logger.String("coin", symbol),
			logger.String("interval", string(interval)),
			logger.Error(err),
		)
	}
	candles, source, err := RunChain(ctx, models.ErrDataUnavailable, onSkip, steps...)
	if err != nil {
		return nil, err
	}
	m.metrics.RecordFetch(source, "hit")
	m.l.Debug("candles fetched",
		logger.String("source", source),
		logger.String("coin", symbol),
		logger.Int("count", len(candles)),
	)

	if m.archive != nil && len(m.sources) > 0 && source == m.sources[0].Name() && source != m.archive.Name() {
		if err := m.archive.StoreCandles(ctx, symbol, interval, candles); err != nil {
			m.l.Warn("archive candles", logger.String("coin", symbol), logger.Error(err))
		}
	}
	return candles, nil
}

// CachedSource keeps recent fetch results in the shared cache for ttl.
type CachedSource struct {
	next drepo.CandleSource
	c    cache.Service
	ttl  time.Duration
	l    *logger.Logger
}

func NewCachedSource(next drepo.CandleSource, c cache.Service, ttl time.Duration, l *logger.Logger) *CachedSource {
	if l == nil {
		l = logger.Nop()
	}
	return &CachedSource{next: next, c: c, ttl: ttl, l: l}
}

func (s *CachedSource) Name() string { return s.next.Name() }

func (s *CachedSource) Fetch(ctx context.Context, symbol string, interval drepo.Interval, count int) ([]models.Candle, error) {
	key := cache.GenerateKeyWithParams("candles", symbol, interval, count)
	if s.c != nil && s.ttl > 0 {
		if cached, err := cache.GetTyped[[]models.Candle](ctx, s.c, key); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	candles, err := s.next.Fetch(ctx, symbol, interval, count)
	if err != nil {
		return nil, err
	}
	if s.c != nil && s.ttl > 0 {
		if err := s.c.Set(ctx, key, candles, s.ttl); err != nil {
			s.l.Debug("cache candles", logger.String("key", key), logger.Error(err))
		}
	}
	return candles, nil
}

// ClearCandles drops every cached candle page.
func (s *CachedSource) ClearCandles(ctx context.Context) error {
	if s.c == nil {
		return nil
	}
	return s.c.DeleteByPattern(ctx, cache.BuildPattern("candles:"))
}
