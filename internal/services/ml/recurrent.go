package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// LSTMLayer holds Keras-layout weights: gate blocks ordered input, forget,
// cell, output along the 4*Units axis.
type LSTMLayer struct {
	Units           int         `json:"units"`
	Kernel          [][]float64 `json:"kernel"`           // [inputs][4*units]
	RecurrentKernel [][]float64 `json:"recurrent_kernel"` // [units][4*units]
	Bias            []float64   `json:"bias"`             // [4*units]
	ReturnSequences bool        `json:"return_sequences"`
}

type DenseLayer struct {
	Weights    [][]float64 `json:"weights"` // [inputs][outputs]
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// RecurrentNet is a pretrained stacked LSTM followed by dense layers. It is
// inference-only; weights are produced by an external trainer.
type RecurrentNet struct {
	InputSize int          `json:"input_size"`
	Timesteps int          `json:"timesteps"`
	LSTM      []LSTMLayer  `json:"lstm"`
	Dense     []DenseLayer `json:"dense"`
}

// DecodeRecurrentNet parses and validates exported weights.
func DecodeRecurrentNet(b []byte) (*RecurrentNet, error) {
	var net RecurrentNet
	if err := json.Unmarshal(b, &net); err != nil {
		return nil, fmt.Errorf("decode recurrent net: %w", err)
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("decode recurrent net: %w", err)
	}
	return &net, nil
}

func (n *RecurrentNet) Validate() error {
	if len(n.LSTM) == 0 || len(n.Dense) == 0 {
		return errors.New("need at least one lstm and one dense layer")
	}
	in := n.InputSize
	for i, l := range n.LSTM {
		g := 4 * l.Units
		if l.Units < 1 || len(l.Kernel) != in || len(l.RecurrentKernel) != l.Units || len(l.Bias) != g {
			return fmt.Errorf("lstm layer %d: inconsistent shapes", i)
		}
		for _, row := range l.Kernel {
			if len(row) != g {
				return fmt.Errorf("lstm layer %d: kernel width %d, want %d", i, len(row), g)
			}
		}
		for _, row := range l.RecurrentKernel {
			if len(row) != g {
				return fmt.Errorf("lstm layer %d: recurrent kernel width %d, want %d", i, len(row), g)
			}
		}
		in = l.Units
	}
	for i, d := range n.Dense {
		if len(d.Weights) != in || len(d.Bias) == 0 {
			return fmt.Errorf("dense layer %d: inconsistent shapes", i)
		}
		for _, row := range d.Weights {
			if len(row) != len(d.Bias) {
				return fmt.Errorf("dense layer %d: weight width %d, want %d", i, len(row), len(d.Bias))
			}
		}
		in = len(d.Bias)
	}
	return nil
}

func (n *RecurrentNet) Outputs() int {
	return len(n.Dense[len(n.Dense)-1].Bias)
}

// Predict treats each input row as a single-timestep sequence.
func (n *RecurrentNet) Predict(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != n.InputSize {
			return nil, fmt.Errorf("predict: row %d has %d features, net expects %d", i, len(row), n.InputSize)
		}
		y, err := n.PredictSequence([][]float64{row})
		if err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}

// PredictSequence runs one sequence of timesteps through the net.
func (n *RecurrentNet) PredictSequence(seq [][]float64) ([]float64, error) {
	if len(seq) == 0 {
		return nil, errors.New("predict: empty sequence")
	}
	for li, layer := range n.LSTM {
		states := layer.run(seq)
		last := li == len(n.LSTM)-1
		if last || !layer.ReturnSequences {
			seq = [][]float64{states[len(states)-1]}
		} else {
			seq = states
		}
	}
	v := seq[len(seq)-1]
	for _, d := range n.Dense {
		v = d.apply(v)
	}
	return v, nil
}

func (l LSTMLayer) run(seq [][]float64) [][]float64 {
	u := l.Units
	h := make([]float64, u)
	c := make([]float64, u)
	out := make([][]float64, 0, len(seq))
	z := make([]float64, 4*u)
	for _, x := range seq {
		copy(z, l.Bias)
		for i, xi := range x {
			if xi == 0 {
				continue
			}
			for j, w := range l.Kernel[i] {
				z[j] += xi * w
			}
		}
		for i, hi := range h {
			if hi == 0 {
				continue
			}
			for j, w := range l.RecurrentKernel[i] {
				z[j] += hi * w
			}
		}
		next := make([]float64, u)
		for k := 0; k < u; k++ {
			ig := sigmoid(z[k])
			fg := sigmoid(z[u+k])
			cg := math.Tanh(z[2*u+k])
			og := sigmoid(z[3*u+k])
			c[k] = fg*c[k] + ig*cg
			next[k] = og * math.Tanh(c[k])
		}
		h = next
		out = append(out, next)
	}
	return out
}

func (d DenseLayer) apply(x []float64) []float64 {
	out := make([]float64, len(d.Bias))
	copy(out, d.Bias)
	for i, xi := range x {
		for j, w := range d.Weights[i] {
			out[j] += xi * w
		}
	}
	switch d.Activation {
	case "relu":
		for j, v := range out {
			out[j] = math.Max(0, v)
		}
	case "tanh":
		for j, v := range out {
			out[j] = math.Tanh(v)
		}
	case "sigmoid":
		for j, v := range out {
			out[j] = sigmoid(v)
		}
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
