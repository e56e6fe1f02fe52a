package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// BoostingParams are the gradient boosting hyperparameters.
type BoostingParams struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	Subsample       float64 `json:"subsample"`
	Seed            int64   `json:"seed"`
}

// DefaultBoostingParams is the configuration every ensemble artifact is trained with.
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		NEstimators:     50,
		MaxDepth:        5,
		LearningRate:    0.05,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  3,
		Subsample:       0.8,
		Seed:            42,
	}
}

func (p BoostingParams) validate() error {
	switch {
	case p.NEstimators < 1:
		return errors.New("n_estimators must be positive")
	case p.MaxDepth < 1:
		return errors.New("max_depth must be positive")
	case p.LearningRate <= 0:
		return errors.New("learning_rate must be positive")
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.New("subsample must be in (0, 1]")
	}
	return nil
}

// GradientBoosting is a single-output least-squares boosted tree ensemble.
type GradientBoosting struct {
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Node `json:"trees"`
}

func (g *GradientBoosting) predictRow(x []float64) float64 {
	out := g.Init
	for _, t := range g.Trees {
		out += g.LearningRate * t.predict(x)
	}
	return out
}

func fitBoosting(x [][]float64, y []float64, p BoostingParams) *GradientBoosting {
	n := len(x)
	g := &GradientBoosting{LearningRate: p.LearningRate}
	for _, v := range y {
		g.Init += v
	}
	g.Init /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, n)
	rng := rand.New(rand.NewSource(p.Seed))
	sampleSize := max(1, int(p.Subsample*float64(n)))
	tp := treeParams{maxDepth: p.MaxDepth, minSamplesSplit: p.MinSamplesSplit, minSamplesLeaf: p.MinSamplesLeaf}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for stage := 0; stage < p.NEstimators; stage++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		idx := all
		if sampleSize < n {
			idx = rng.Perm(n)[:sampleSize]
			sort.Ints(idx)
		}
		tree := fitTree(x, residual, idx, tp)
		g.Trees = append(g.Trees, tree)
		for i := range pred {
			pred[i] += p.LearningRate * tree.predict(x[i])
		}
	}
	return g
}

// MultiOutputBoosting fits one independent ensemble per output column.
type MultiOutputBoosting struct {
	Params     BoostingParams      `json:"params"`
	NFeatures  int                 `json:"n_features"`
	Estimators []*GradientBoosting `json:"estimators"`
}

// FitMultiOutput trains every output in parallel. Each estimator is seeded
// with the same Seed, so results do not depend on scheduling.
func FitMultiOutput(x, y [][]float64, p BoostingParams) (*MultiOutputBoosting, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("fit boosting: %w", err)
	}
	width, err := matrixWidth(x)
	if err != nil {
		return nil, fmt.Errorf("fit boosting: features: %w", err)
	}
	outputs, err := matrixWidth(y)
	if err != nil {
		return nil, fmt.Errorf("fit boosting: targets: %w", err)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("fit boosting: %d feature rows but %d target rows", len(x), len(y))
	}

	m := &MultiOutputBoosting{Params: p, NFeatures: width, Estimators: make([]*GradientBoosting, outputs)}
	var wg sync.WaitGroup
	for k := 0; k < outputs; k++ {
		col := make([]float64, len(y))
		for i, row := range y {
			col[i] = row[k]
		}
		wg.Add(1)
		go func(k int, col []float64) {
			defer wg.Done()
			m.Estimators[k] = fitBoosting(x, col, p)
		}(k, col)
	}
	wg.Wait()
	return m, nil
}

func (m *MultiOutputBoosting) Outputs() int { return len(m.Estimators) }

func (m *MultiOutputBoosting) Predict(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != m.NFeatures {
			return nil, fmt.Errorf("predict: row %d has %d features, model expects %d", i, len(row), m.NFeatures)
		}
		r := make([]float64, len(m.Estimators))
		for k, est := range m.Estimators {
			r[k] = est.predictRow(row)
		}
		out[i] = r
	}
	return out, nil
}

// Validate checks a decoded model for structural consistency.
func (m *MultiOutputBoosting) Validate() error {
	if m.NFeatures < 1 || len(m.Estimators) == 0 {
		return errors.New("boosting model is empty")
	}
	for k, est := range m.Estimators {
		if est == nil {
			return fmt.Errorf("estimator %d missing", k)
		}
		for t, tree := range est.Trees {
			if err := validateNode(tree, m.NFeatures); err != nil {
				return fmt.Errorf("estimator %d tree %d: %w", k, t, err)
			}
		}
	}
	return nil
}

func validateNode(n *Node, width int) error {
	if n == nil {
		return errors.New("nil node")
	}
	if n.Leaf {
		return nil
	}
	if n.Feature < 0 || n.Feature >= width {
		return fmt.Errorf("feature index %d out of range", n.Feature)
	}
	if err := validateNode(n.Left, width); err != nil {
		return err
	}
	return validateNode(n.Right, width)
}
