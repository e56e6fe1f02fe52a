package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/pkg/cache"
)

func unavailable(name string) error {
	return fmt.Errorf("%w: %s down", models.ErrSourceUnavailable, name)
}

func TestMarketDataPrefersPrimaryAndArchivesIt(t *testing.T) {
	candles := wave(10, time.Hour)
	primary := &fakeSource{name: "binance", candles: candles}
	archive := &fakeArchive{fakeSource: fakeSource{name: "clickhouse"}}
	dataset := &fakeSource{name: "dataset", candles: wave(3, time.Hour)}
	m := &recMetrics{}

	md := NewMarketData(primary, archive, dataset, m, nil)
	got, err := md.Fetch(context.Background(), "BTCUSDT", drepo.Interval1h, 10)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
	require.Len(t, archive.stored, 1)
	assert.Empty(t, dataset.calls)
	assert.Equal(t, []string{"binance:hit"}, m.fetches)
}

func TestMarketDataFallsThroughToDataset(t *testing.T) {
	primary := &fakeSource{name: "binance", err: unavailable("binance")}
	archive := &fakeArchive{fakeSource: fakeSource{name: "clickhouse", err: unavailable("clickhouse")}}
	dataset := &fakeSource{name: "dataset", candles: wave(5, 24*time.Hour)}
	m := &recMetrics{}

	md := NewMarketData(primary, archive, dataset, m, nil)
	got, err := md.Fetch(context.Background(), "ETHUSDT", drepo.Interval1d, 1825)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Empty(t, archive.stored)
	assert.Equal(t, []string{"binance:miss", "clickhouse:miss", "dataset:hit"}, m.fetches)
}

func TestMarketDataExhaustedIsDataUnavailable(t *testing.T) {
	md := NewMarketData(
		&fakeSource{name: "binance", err: unavailable("binance")},
		nil,
		&fakeSource{name: "dataset"}, // empty result counts as a miss
		nil, nil,
	)
	_, err := md.Fetch(context.Background(), "BTCUSDT", drepo.Interval1h, 1000)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestCachedSourceServesRepeatFetches(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	next := &fakeSource{name: "binance", candles: wave(4, time.Hour)}
	src := NewCachedSource(next, mem, time.Minute, nil)

	ctx := context.Background()
	first, err := src.Fetch(ctx, "BTCUSDT", drepo.Interval1h, 4)
	require.NoError(t, err)
	second, err := src.Fetch(ctx, "BTCUSDT", drepo.Interval1h, 4)
	require.NoError(t, err)

	assert.Len(t, next.calls, 1)
	require.Len(t, second, len(first))
	assert.True(t, first[3].Time.Equal(second[3].Time))
	assert.Equal(t, "binance", src.Name())

	require.NoError(t, src.ClearCandles(ctx))
	_, err = src.Fetch(ctx, "BTCUSDT", drepo.Interval1h, 4)
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}
