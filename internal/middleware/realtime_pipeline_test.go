package middleware

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
)

func tick(symbol string, close float64) *models.Ticker {
	return &models.Ticker{
		Symbol:    symbol,
		Close:     close,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Volume:    10,
		EventTime: time.Unix(1700000000, 0),
	}
}

func TestTickerPipelineThrottlesPerSymbol(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := NewTickerPipeline(WithMaxRPS(2))
	p.now = func() time.Time { return now }

	_, ok := p.Accept(tick("BTCUSDT", 100))
	assert.True(t, ok)
	_, ok = p.Accept(tick("BTCUSDT", 101))
	assert.False(t, ok, "second frame within 500ms is dropped")
	_, ok = p.Accept(tick("ETHUSDT", 10))
	assert.True(t, ok, "other symbols have their own window")

	now = now.Add(600 * time.Millisecond)
	_, ok = p.Accept(tick("BTCUSDT", 102))
	assert.True(t, ok)

	accepted, throttled, invalid := p.Stats()
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 1, throttled)
	assert.Equal(t, 0, invalid)
}

func TestTickerPipelineRejectsInvalid(t *testing.T) {
	p := NewTickerPipeline(WithMaxRPS(0))

	bad := []*models.Ticker{
		nil,
		tick("", 1),
		tick("BTCUSDT", -5),
		tick("BTCUSDT", math.NaN()),
		{Symbol: "BTCUSDT", Close: 1, High: 1, Low: 2, EventTime: time.Unix(1, 0)},
		{Symbol: "BTCUSDT", Close: 1, High: 1, Low: 1},
	}
	for _, tk := range bad {
		_, ok := p.Accept(tk)
		assert.False(t, ok)
	}
	_, _, invalid := p.Stats()
	assert.Equal(t, len(bad), invalid)
}

func TestTickerPipelineTransform(t *testing.T) {
	p := NewTickerPipeline(WithMaxRPS(0), WithTransform(func(tk *models.Ticker) *models.Ticker {
		out := *tk
		out.Close = math.Round(out.Close*100) / 100
		return &out
	}))
	out, ok := p.Accept(tick("BTCUSDT", 100.12345))
	require.True(t, ok)
	assert.Equal(t, 100.12, out.Close)
}
