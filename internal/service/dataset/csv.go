package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	applogger "CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/util"
)

const rootDir = "Milestone1"

// Source reads the offline OHLCV datasets shipped with the service:
// {dir}/Milestone1/{Hourly_Dataset|Daily_Dataset}/{SYMBOL}_{hourly|daily}.csv
type Source struct {
	dir string
	l   *applogger.Logger
}

var _ drepo.CandleSource = (*Source)(nil)

func New(dir string, l *applogger.Logger) *Source {
	if l == nil {
		l = applogger.Nop()
	}
	return &Source{dir: dir, l: l}
}

func (s *Source) Name() string { return "dataset" }

// Path returns the dataset file for symbol and interval.
func (s *Source) Path(symbol string, interval drepo.Interval) string {
	sub := "Daily_Dataset"
	if interval == drepo.Interval1h {
		sub = "Hourly_Dataset"
	}
	name := fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), interval.DatasetSuffix())
	return filepath.Join(s.dir, rootDir, sub, name)
}

// Fetch returns every row of the dataset file sorted by time. The file is a
// fixed snapshot, so count is not applied.
func (s *Source) Fetch(ctx context.Context, symbol string, interval drepo.Interval, count int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: dataset: %v", models.ErrSourceUnavailable, err)
	}
	if s.dir == "" {
		return nil, fmt.Errorf("%w: dataset dir not configured", models.ErrSourceUnavailable)
	}

	path := s.Path(symbol, interval)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", models.ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	candles, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", models.ErrSourceUnavailable, path, err)
	}
	s.l.Info("loaded dataset",
		applogger.String("symbol", symbol),
		applogger.String("interval", string(interval)),
		applogger.Int("rows", len(candles)),
	)
	return candles, nil
}

var errNoDateColumn = errors.New("no date column")

// Parse reads an OHLCV CSV. Headers are matched case-insensitively and a
// missing volume column reads as zero volume.
func Parse(r io.Reader) ([]models.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "time" {
			name = "date"
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	if _, ok := idx["date"]; !ok {
		return nil, fmt.Errorf("%w; found %v", errNoDateColumn, header)
	}
	for _, col := range []string{"open", "high", "low", "close"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing %s column", col)
		}
	}
	volIdx, hasVolume := idx["volume"]

	var out []models.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		ts, ok := util.ParseTime(field(idx["date"]))
		if !ok {
			return nil, fmt.Errorf("line %d: unparseable date %q", line, field(idx["date"]))
		}
		c := models.Candle{Time: ts}
		for _, p := range []struct {
			col string
			dst *float64
		}{{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}} {
			v, err := util.ParseFloat(field(idx[p.col]))
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, p.col, err)
			}
			*p.dst = v
		}
		if hasVolume {
			if v := field(volIdx); v != "" {
				if c.Volume, err = util.ParseFloat(v); err != nil {
					return nil, fmt.Errorf("line %d volume: %w", line, err)
				}
			}
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
