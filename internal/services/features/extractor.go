package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// PctChange computes r_t = (x_t - x_{t-1}) / x_{t-1}. The first element and any
// step from a zero price are NaN.
func PctChange(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(x); i++ {
		prev := x[i-1]
		if prev == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (x[i] - prev) / prev
	}
	return out
}

// RollingMean is the trailing simple moving average aligned to x: the first
// window-1 values are NaN.
func RollingMean(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	if window <= 0 || len(x) < window {
		return out
	}
	sma := trend.NewSmaWithPeriod[float64](window)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(x)))

	// The indicator emits one value per full window; align from the end.
	want := len(x) - window + 1
	if len(values) > want {
		values = values[len(values)-want:]
	}
	offset := len(x) - len(values)
	for i, v := range values {
		out[offset+i] = v
	}
	return out
}

// RollingStd is the trailing sample standard deviation (n-1 denominator). A
// window containing NaN yields NaN.
func RollingStd(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	if window <= 1 {
		return out
	}
	for end := window; end <= len(x); end++ {
		out[end-1] = sampleStd(x[end-window : end])
	}
	return out
}

func sampleStd(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		if math.IsNaN(v) {
			return math.NaN()
		}
		sum += v
	}
	n := float64(len(w))
	mean := sum / n
	ss := 0.0
	for _, v := range w {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}

// LastStd is the sample std of the last window values of x, or 0 when x is too short.
func LastStd(x []float64, window int) float64 {
	if window <= 1 || len(x) < window {
		return 0
	}
	v := sampleStd(x[len(x)-window:])
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
