package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"CryptoPulse/internal/domain/models"
)

var errEmptyMatrix = errors.New("empty matrix")

// StandardScaler centres each column on its mean and divides by the population
// standard deviation. Constant columns keep a unit scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func FitStandard(x [][]float64) (*StandardScaler, error) {
	width, err := matrixWidth(x)
	if err != nil {
		return nil, fmt.Errorf("fit standard scaler: %w", err)
	}
	s := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	return mapColumns(x, len(s.Mean), func(j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) InverseTransform(x [][]float64) ([][]float64, error) {
	return mapColumns(x, len(s.Mean), func(j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

// MinMaxScaler maps each column onto [0, 1].
type MinMaxScaler struct {
	DataMin   []float64 `json:"data_min"`
	DataRange []float64 `json:"data_range"`
}

func FitMinMax(x [][]float64) (*MinMaxScaler, error) {
	width, err := matrixWidth(x)
	if err != nil {
		return nil, fmt.Errorf("fit min-max scaler: %w", err)
	}
	lo := make([]float64, width)
	hi := make([]float64, width)
	copy(lo, x[0])
	copy(hi, x[0])
	for _, row := range x[1:] {
		for j, v := range row {
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}
	s := &MinMaxScaler{DataMin: lo, DataRange: make([]float64, width)}
	for j := range hi {
		s.DataRange[j] = hi[j] - lo[j]
	}
	return s, nil
}

func (s *MinMaxScaler) scale(j int) float64 {
	if s.DataRange[j] == 0 {
		return 1
	}
	return s.DataRange[j]
}

func (s *MinMaxScaler) Transform(x [][]float64) ([][]float64, error) {
	return mapColumns(x, len(s.DataMin), func(j int, v float64) float64 {
		return (v - s.DataMin[j]) / s.scale(j)
	})
}

func (s *MinMaxScaler) InverseTransform(x [][]float64) ([][]float64, error) {
	return mapColumns(x, len(s.DataMin), func(j int, v float64) float64 {
		return v*s.scale(j) + s.DataMin[j]
	})
}

const (
	KindStandard = "standard"
	KindMinMax   = "minmax"
)

type scalerEnvelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// EncodeScaler serialises a scaler together with its kind.
func EncodeScaler(s interface{}) ([]byte, error) {
	var kind string
	switch s.(type) {
	case *StandardScaler:
		kind = KindStandard
	case *MinMaxScaler:
		kind = KindMinMax
	default:
		return nil, fmt.Errorf("encode scaler: unsupported type %T", s)
	}
	params, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	return json.Marshal(scalerEnvelope{Kind: kind, Params: params})
}

// DecodeScaler is the inverse of EncodeScaler.
func DecodeScaler(b []byte) (models.Scaler, error) {
	var env scalerEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	switch env.Kind {
	case KindStandard:
		var s StandardScaler
		if err := json.Unmarshal(env.Params, &s); err != nil {
			return nil, fmt.Errorf("decode standard scaler: %w", err)
		}
		if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
			return nil, fmt.Errorf("decode standard scaler: inconsistent widths")
		}
		return &s, nil
	case KindMinMax:
		var s MinMaxScaler
		if err := json.Unmarshal(env.Params, &s); err != nil {
			return nil, fmt.Errorf("decode min-max scaler: %w", err)
		}
		if len(s.DataMin) == 0 || len(s.DataMin) != len(s.DataRange) {
			return nil, fmt.Errorf("decode min-max scaler: inconsistent widths")
		}
		return &s, nil
	}
	return nil, fmt.Errorf("decode scaler: unknown kind %q", env.Kind)
}

func matrixWidth(x [][]float64) (int, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return 0, errEmptyMatrix
	}
	w := len(x[0])
	for i, row := range x {
		if len(row) != w {
			return 0, fmt.Errorf("row %d has %d columns, want %d", i, len(row), w)
		}
	}
	return w, nil
}

func mapColumns(x [][]float64, width int, f func(j int, v float64) float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, scaler expects %d", i, len(row), width)
		}
		r := make([]float64, width)
		for j, v := range row {
			r[j] = f(j, v)
		}
		out[i] = r
	}
	return out, nil
}
