package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CryptoPulse/internal/domain/models"
	domrepo "CryptoPulse/internal/domain/repository"
	pkgch "CryptoPulse/pkg/clickhouse"
)

// HistorySchema creates forecast_history. Verification writes a new row
// version; FINAL reads see only the latest one.
func HistorySchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.forecast_history (
            id                 String,
            coin               LowCardinality(String),
            horizon            LowCardinality(String),
            horizon_days       UInt16,
            forecast_type      LowCardinality(String),
            family             LowCardinality(String),
            created_at         DateTime64(3, 'UTC'),
            horizon_end        DateTime64(3, 'UTC'),
            current_price      Float64,
            predicted_price    Float64,
            predicted_high     Float64,
            predicted_low      Float64,
            predicted_change   Float64,
            predicted_dir      LowCardinality(String),
            using_cached_model UInt8,
            is_verified        UInt8,
            actual_price       Nullable(Float64),
            actual_high        Nullable(Float64),
            actual_low         Nullable(Float64),
            actual_change      Nullable(Float64),
            actual_dir         Nullable(String),
            verified_at        Nullable(DateTime64(3, 'UTC')),
            version            UInt64
        ) ENGINE = ReplacingMergeTree(version)
        ORDER BY (coin, id)`, database),
	}
}

const historyColumns = `id, coin, horizon, horizon_days, forecast_type, family, created_at, horizon_end,
    current_price, predicted_price, predicted_high, predicted_low, predicted_change, predicted_dir,
    using_cached_model, is_verified, actual_price, actual_high, actual_low, actual_change, actual_dir, verified_at`

// CHHistoryStore implements HistoryStore on ClickHouse.
type CHHistoryStore struct {
	db       *sql.DB
	database string
	table    string
	now      func() time.Time
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

func NewCHHistoryStore(ch *pkgch.Client) *CHHistoryStore {
	return &CHHistoryStore{
		db:       ch.DB(),
		database: ch.Database(),
		table:    ch.Database() + ".forecast_history",
		now:      time.Now,
	}
}

func (s *CHHistoryStore) Init(ctx context.Context) error {
	for _, stmt := range HistorySchema(s.database) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Store inserts a new version of the entry.
func (s *CHHistoryStore) Store(ctx context.Context, e *models.HistoryEntry) error {
	q := fmt.Sprintf(`INSERT INTO %s (%s, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table, historyColumns)
	_, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.Coin,
		e.Horizon,
		uint16(e.HorizonDays),
		string(e.ForecastType),
		string(e.Family),
		e.CreatedAt,
		e.HorizonEnd,
		e.CurrentPrice,
		e.PredictedPrice,
		e.PredictedHigh,
		e.PredictedLow,
		e.PredictedChange,
		e.PredictedDir,
		boolToUInt8(e.UsingCachedModel),
		boolToUInt8(e.IsVerified),
		e.ActualPrice,
		e.ActualHigh,
		e.ActualLow,
		e.ActualChange,
		e.ActualDir,
		e.VerifiedAt,
		uint64(s.now().UnixNano()),
	)
	if err != nil {
		return fmt.Errorf("store history %s: %w", e.ID, err)
	}
	return nil
}

// List returns the latest entries, newest first. An empty coin lists all coins.
func (s *CHHistoryStore) List(ctx context.Context, coin string, limit int) ([]*models.HistoryEntry, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL`, historyColumns, s.table)
	args := []interface{}{}
	if coin != "" {
		q += ` WHERE coin = ?`
		args = append(args, coin)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	return s.query(ctx, q, args...)
}

// Due returns unverified entries whose horizon ended at or before now.
func (s *CHHistoryStore) Due(ctx context.Context, now time.Time, limit int) ([]*models.HistoryEntry, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
        WHERE is_verified = 0 AND horizon_end <= ?
        ORDER BY horizon_end ASC LIMIT ?`, historyColumns, s.table)
	return s.query(ctx, q, now, limit)
}

func (s *CHHistoryStore) query(ctx context.Context, q string, args ...interface{}) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var (
			e                 models.HistoryEntry
			days              uint16
			forecastType      string
			family            string
			cached, verified  uint8
			actualPrice, high sql.NullFloat64
			low, change       sql.NullFloat64
			actualDir         sql.NullString
			verifiedAt        sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Coin, &e.Horizon, &days, &forecastType, &family, &e.CreatedAt, &e.HorizonEnd,
			&e.CurrentPrice, &e.PredictedPrice, &e.PredictedHigh, &e.PredictedLow, &e.PredictedChange, &e.PredictedDir,
			&cached, &verified, &actualPrice, &high, &low, &change, &actualDir, &verifiedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.HorizonDays = int(days)
		e.ForecastType = models.HorizonClass(forecastType)
		e.Family = models.Family(family)
		e.UsingCachedModel = cached == 1
		e.IsVerified = verified == 1
		e.ActualPrice = nullFloat(actualPrice)
		e.ActualHigh = nullFloat(high)
		e.ActualLow = nullFloat(low)
		e.ActualChange = nullFloat(change)
		if actualDir.Valid {
			d := actualDir.String
			e.ActualDir = &d
		}
		if verifiedAt.Valid {
			t := verifiedAt.Time.UTC()
			e.VerifiedAt = &t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHHistoryStore) Close() error {
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
