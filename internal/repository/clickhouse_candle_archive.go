package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CryptoPulse/internal/domain/models"
	domrepo "CryptoPulse/internal/domain/repository"
	pkgch "CryptoPulse/pkg/clickhouse"
	applogger "CryptoPulse/pkg/logger"
)

// CandleArchiveSchema creates the archive table. Re-inserting a candle
// replaces the previous version on merge.
func CandleArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.candles (
            symbol      LowCardinality(String),
            interval    LowCardinality(String),
            open_time   DateTime64(3, 'UTC'),
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            volume      Float64,
            inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (symbol, interval, open_time)`, database),
	}
}

// CHCandleArchive keeps every candle fetched from the exchange and serves
// them back when the exchange is unreachable.
type CHCandleArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.CandleArchive = (*CHCandleArchive)(nil)

func NewCHCandleArchive(ch *pkgch.Client, l *applogger.Logger) *CHCandleArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleArchive{db: ch.DB(), table: ch.Database() + ".candles", l: l}
}

func (s *CHCandleArchive) Name() string { return "clickhouse" }

// Fetch returns the latest count archived candles, oldest first.
func (s *CHCandleArchive) Fetch(ctx context.Context, symbol string, interval domrepo.Interval, count int) ([]models.Candle, error) {
	start := time.Now()
	symbol = strings.ToUpper(symbol)
	q := fmt.Sprintf(`
        SELECT open_time, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY open_time DESC
        LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, string(interval), count)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(interval)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("%w: clickhouse query: %v", models.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, count)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: clickhouse scan: %v", models.ErrSourceUnavailable, err)
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: clickhouse rows: %v", models.ErrSourceUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: clickhouse: no archived %s %s candles", models.ErrSourceUnavailable, symbol, interval)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse candles ok",
		applogger.String("symbol", symbol),
		applogger.String("interval", string(interval)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// StoreCandles inserts candles in chunks of multi-row VALUES.
func (s *CHCandleArchive) StoreCandles(ctx context.Context, symbol string, interval domrepo.Interval, candles []models.Candle) error {
	const chunkSize = 2000
	symbol = strings.ToUpper(symbol)
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, c := range candles[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, string(interval), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, interval, open_time, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store candles: %w", err)
		}
	}
	return nil
}
