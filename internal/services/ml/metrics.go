package ml

import (
	"fmt"
	"math"
)

// StepRMSE returns the root-mean-squared error of every output column.
func StepRMSE(actual, predicted [][]float64) ([]float64, error) {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return nil, fmt.Errorf("rmse: %d actual rows vs %d predicted", len(actual), len(predicted))
	}
	width := len(actual[0])
	out := make([]float64, width)
	for i := range actual {
		if len(actual[i]) != width || len(predicted[i]) != width {
			return nil, fmt.Errorf("rmse: row %d width mismatch", i)
		}
		for k := 0; k < width; k++ {
			d := actual[i][k] - predicted[i][k]
			out[k] += d * d
		}
	}
	for k := range out {
		out[k] = math.Sqrt(out[k] / float64(len(actual)))
	}
	return out, nil
}

// R2 is the coefficient of determination over the flattened matrices.
func R2(actual, predicted [][]float64) float64 {
	var sum float64
	var n int
	for _, row := range actual {
		for _, v := range row {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	var ssRes, ssTot float64
	for i, row := range actual {
		for k, v := range row {
			d := v - predicted[i][k]
			ssRes += d * d
			t := v - mean
			ssTot += t * t
		}
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
