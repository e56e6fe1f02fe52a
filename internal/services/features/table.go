package features

import (
	"fmt"
	"math"
	"slices"
	"time"

	"CryptoPulse/internal/domain/models"
)

// Table is the engineered feature matrix. Every row is fully defined.
type Table struct {
	Schema  Schema
	Columns []string
	Rows    [][]float64
	Times   []time.Time
	Closes  []float64
}

func (t *Table) Len() int { return len(t.Rows) }

// Latest returns the most recent row.
func (t *Table) Latest() ([]float64, bool) {
	if len(t.Rows) == 0 {
		return nil, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx := slices.Index(t.Columns, name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in table", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Build engineers the schema's columns from candles and drops every row with
// an undefined value.
func Build(candles []models.Candle, s Schema) (*Table, error) {
	n := len(candles)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, c := range candles {
		open[i], high[i], low[i], closes[i], volume[i] = c.Open, c.High, c.Low, c.Close, c.Volume
	}

	series := map[string][]float64{
		"Open":   open,
		"High":   high,
		"Low":    low,
		"Close":  closes,
		"Volume": volume,
	}
	for _, p := range s.CloseMA {
		series[fmt.Sprintf("MA_%d", p)] = RollingMean(closes, p)
	}
	returns := PctChange(closes)
	series["Returns"] = returns
	if s.VolatilityWindow > 1 {
		series["Volatility"] = RollingStd(returns, s.VolatilityWindow)
	}
	priceRange := make([]float64, n)
	priceChange := make([]float64, n)
	for i := range candles {
		priceRange[i] = high[i] - low[i]
		priceChange[i] = closes[i] - open[i]
	}
	series["Price_Range"] = priceRange
	series["Price_Change"] = priceChange
	for _, p := range s.VolumeMA {
		series[fmt.Sprintf("Volume_MA_%d", p)] = RollingMean(volume, p)
	}
	if s.HighLowRatio {
		ratio := make([]float64, n)
		for i := range candles {
			if low[i] == 0 {
				ratio[i] = math.NaN()
				continue
			}
			ratio[i] = high[i] / low[i]
		}
		series["High_Low_Ratio"] = ratio
	}

	for _, col := range s.Columns {
		if _, ok := series[col]; !ok {
			return nil, fmt.Errorf("schema %s: unknown column %q", s.Name, col)
		}
	}

	computed := s.computed()
	t := &Table{Schema: s, Columns: append([]string(nil), s.Columns...)}
	for i := 0; i < n; i++ {
		if !defined(series, computed, i) {
			continue
		}
		row := make([]float64, len(s.Columns))
		for j, col := range s.Columns {
			row[j] = series[col][i]
		}
		t.Rows = append(t.Rows, row)
		t.Times = append(t.Times, candles[i].Time)
		t.Closes = append(t.Closes, closes[i])
	}
	return t, nil
}

func defined(series map[string][]float64, cols []string, i int) bool {
	for _, col := range cols {
		v := series[col][i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Supervised pairs feature rows with the next Steps closes.
type Supervised struct {
	X     [][]float64
	Y     [][]float64
	Times []time.Time
	Steps int
}

func (s *Supervised) Len() int { return len(s.X) }

// Split cuts chronologically at floor(frac*len).
func (s *Supervised) Split(frac float64) (train, test *Supervised) {
	cut := int(frac * float64(len(s.X)))
	train = &Supervised{X: s.X[:cut], Y: s.Y[:cut], Times: s.Times[:cut], Steps: s.Steps}
	test = &Supervised{X: s.X[cut:], Y: s.Y[cut:], Times: s.Times[cut:], Steps: s.Steps}
	return train, test
}

// Targets attaches Close_t+k for k = 1..steps. Rows without all targets are dropped.
func Targets(t *Table, steps int) (*Supervised, error) {
	if steps < 1 {
		return nil, fmt.Errorf("targets: steps must be positive, got %d", steps)
	}
	out := &Supervised{Steps: steps}
	for i := 0; i+steps < len(t.Rows); i++ {
		y := make([]float64, steps)
		copy(y, t.Closes[i+1:i+1+steps])
		out.X = append(out.X, t.Rows[i])
		out.Y = append(out.Y, y)
		out.Times = append(out.Times, t.Times[i])
	}
	return out, nil
}
