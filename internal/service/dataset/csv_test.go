package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, dir, sub, name, body string) {
	t.Helper()
	p := filepath.Join(dir, "Milestone1", sub)
	require.NoError(t, os.MkdirAll(p, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p, name), []byte(body), 0o644))
}

func TestFetchDailySortsAndNormalizesHeaders(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "Daily_Dataset", "BTCUSDT_daily.csv",
		"DATE,Open,HIGH,low,Close,Volume\n"+
			"2024-01-03,3,4,2,3.5,30\n"+
			"2024-01-01,1,2,0.5,1.5,10\n"+
			"2024-01-02,2,3,1,2.5,20\n")

	s := New(dir, nil)
	candles, err := s.Fetch(context.Background(), "btcusdt", drepo.Interval1d, 1825)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 1.5, candles[0].Close)
	assert.Equal(t, 30.0, candles[2].Volume)
}

func TestFetchHourlyMissingVolume(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "Hourly_Dataset", "ETHUSDT_hourly.csv",
		"date,open,high,low,close\n"+
			"2024-01-01 00:00:00,1,2,0.5,1.5\n"+
			"2024-01-01 01:00:00,1.5,2,1,1.8\n")

	s := New(dir, nil)
	candles, err := s.Fetch(context.Background(), "ETHUSDT", drepo.Interval1h, 1000)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Zero(t, candles[0].Volume)
	assert.Equal(t, time.Hour, candles[1].Time.Sub(candles[0].Time))
}

func TestFetchMissingFile(t *testing.T) {
	s := New(t.TempDir(), nil)
	_, err := s.Fetch(context.Background(), "SOLUSDT", drepo.Interval1d, 10)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestPath(t *testing.T) {
	s := New("/data", nil)
	assert.Equal(t, filepath.Join("/data", "Milestone1", "Hourly_Dataset", "BNBUSDT_hourly.csv"), s.Path("bnbusdt", drepo.Interval1h))
	assert.Equal(t, filepath.Join("/data", "Milestone1", "Daily_Dataset", "BNBUSDT_daily.csv"), s.Path("BNBUSDT", drepo.Interval1d))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("open,high,low,close\n1,2,3,4\n"))
	assert.ErrorIs(t, err, errNoDateColumn)

	_, err = Parse(strings.NewReader("date,open,high,low\n2024-01-01,1,2,3\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("date,open,high,low,close\nnot-a-date,1,2,3,4\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("date,open,high,low,close\n2024-01-01,x,2,3,4\n"))
	assert.Error(t, err)
}
