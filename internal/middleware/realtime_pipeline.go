package middleware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"CryptoPulse/internal/domain/models"
)

// TickerPipeline sits between the exchange stream and one websocket client.
// It validates frames, optionally transforms them, and throttles each symbol
// to at most maxRPS frames per second.
type TickerPipeline struct {
	mu        sync.Mutex
	maxRPS    int
	lastSeen  map[string]time.Time // per-symbol last accepted time
	transform func(*models.Ticker) *models.Ticker
	now       func() time.Time

	accepted  int
	throttled int
	invalid   int
}

type PipelineOption func(*TickerPipeline)

// WithMaxRPS sets the max frames per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickerPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform sets a hook applied to every valid frame.
func WithTransform(fn func(*models.Ticker) *models.Ticker) PipelineOption {
	return func(p *TickerPipeline) { p.transform = fn }
}

func NewTickerPipeline(opts ...PipelineOption) *TickerPipeline {
	p := &TickerPipeline{
		maxRPS:   5,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Accept returns the frame to forward, or false when it is invalid or throttled.
func (p *TickerPipeline) Accept(t *models.Ticker) (*models.Ticker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateTicker(t); err != nil {
		p.invalid++
		return nil, false
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTicker(t); err != nil {
			p.invalid++
			return nil, false
		}
	}
	if !p.allow(t.Symbol, p.now()) {
		p.throttled++
		return nil, false
	}
	p.accepted++
	return t, true
}

// Stats returns accepted, throttled and invalid frame counts.
func (p *TickerPipeline) Stats() (accepted, throttled, invalid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted, p.throttled, p.invalid
}

func validateTicker(t *models.Ticker) error {
	if t == nil {
		return fmt.Errorf("ticker nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.EventTime.IsZero() {
		return fmt.Errorf("event time missing")
	}
	for _, v := range []float64{t.Close, t.Open, t.High, t.Low, t.Volume} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid price/volume %v", v)
		}
	}
	if t.High < t.Low {
		return fmt.Errorf("high %v below low %v", t.High, t.Low)
	}
	return nil
}

func (p *TickerPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
