package ml

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScalerRoundTrip(t *testing.T) {
	x := [][]float64{{1, 10, 5}, {2, 20, 5}, {3, 30, 5}}
	s, err := FitStandard(x)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, s.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2], "constant column keeps unit scale")

	scaled, err := s.Transform(x)
	require.NoError(t, err)
	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	for i := range x {
		for j := range x[i] {
			assert.InDelta(t, x[i][j], back[i][j], 1e-9)
		}
	}

	_, err = s.Transform([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestMinMaxScaler(t *testing.T) {
	s, err := FitMinMax([][]float64{{0, 7}, {10, 7}, {5, 7}})
	require.NoError(t, err)
	out, err := s.Transform([][]float64{{5, 7}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0][0], 1e-12)
	assert.InDelta(t, 0.0, out[0][1], 1e-12)
}

func TestScalerEnvelope(t *testing.T) {
	std, err := FitStandard([][]float64{{1}, {3}})
	require.NoError(t, err)
	raw, err := EncodeScaler(std)
	require.NoError(t, err)
	decoded, err := DecodeScaler(raw)
	require.NoError(t, err)
	assert.IsType(t, &StandardScaler{}, decoded)

	_, err = DecodeScaler([]byte(`{"kind":"robust","params":{}}`))
	assert.Error(t, err)
	_, err = EncodeScaler(42)
	assert.Error(t, err)
}

func TestTreeLearnsStep(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		x = append(x, []float64{float64(i), 1})
		if i < 20 {
			y = append(y, -1)
		} else {
			y = append(y, 1)
		}
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	root := fitTree(x, y, idx, treeParams{maxDepth: 3, minSamplesSplit: 5, minSamplesLeaf: 3})
	require.False(t, root.Leaf)
	assert.Equal(t, 0, root.Feature)
	assert.InDelta(t, 19.5, root.Threshold, 1e-12)
	assert.Equal(t, -1.0, root.predict([]float64{3, 1}))
	assert.Equal(t, 1.0, root.predict([]float64{33, 1}))
	assert.LessOrEqual(t, root.depth(), 3)
}

func TestTreeRespectsMinLeaf(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}}
	y := []float64{100, 0, 0, 0, 0}
	idx := []int{0, 1, 2, 3, 4}
	root := fitTree(x, y, idx, treeParams{maxDepth: 5, minSamplesSplit: 2, minSamplesLeaf: 3})
	assert.True(t, root.Leaf, "no split leaves 3 samples on both sides")
}

func boostingFixture(n int) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, n)
	y := make([][]float64, n)
	for i := range x {
		a, b := rng.Float64()*4-2, rng.Float64()*4-2
		x[i] = []float64{a, b}
		y[i] = []float64{2*a + b, a*a - b}
	}
	return x, y
}

func TestMultiOutputBoostingFits(t *testing.T) {
	x, y := boostingFixture(200)
	m, err := FitMultiOutput(x, y, DefaultBoostingParams())
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, 2, m.Outputs())
	assert.Len(t, m.Estimators[0].Trees, 50)

	pred, err := m.Predict(x)
	require.NoError(t, err)
	rmse, err := StepRMSE(y, pred)
	require.NoError(t, err)

	// 50 shallow stages at lr 0.05 leave some bias but must beat predicting the mean.
	baseline := make([][]float64, len(y))
	for i := range baseline {
		baseline[i] = []float64{m.Estimators[0].Init, m.Estimators[1].Init}
	}
	base, err := StepRMSE(y, baseline)
	require.NoError(t, err)
	assert.Less(t, rmse[0], base[0])
	assert.Less(t, rmse[1], base[1])
	assert.Greater(t, R2(y, pred), 0.5)
}

func TestMultiOutputBoostingDeterministic(t *testing.T) {
	x, y := boostingFixture(80)
	p := DefaultBoostingParams()
	p.NEstimators = 10
	a, err := FitMultiOutput(x, y, p)
	require.NoError(t, err)
	b, err := FitMultiOutput(x, y, p)
	require.NoError(t, err)

	pa, err := a.Predict(x[:5])
	require.NoError(t, err)
	pb, err := b.Predict(x[:5])
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestMultiOutputBoostingRejectsBadInput(t *testing.T) {
	_, err := FitMultiOutput(nil, nil, DefaultBoostingParams())
	assert.Error(t, err)

	x, y := boostingFixture(10)
	_, err = FitMultiOutput(x, y[:5], DefaultBoostingParams())
	assert.Error(t, err)

	p := DefaultBoostingParams()
	p.Subsample = 0
	_, err = FitMultiOutput(x, y, p)
	assert.Error(t, err)

	m, err := FitMultiOutput(x, y, DefaultBoostingParams())
	require.NoError(t, err)
	_, err = m.Predict([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestRecurrentNetSingleUnit(t *testing.T) {
	net := &RecurrentNet{
		InputSize: 1,
		Timesteps: 1,
		LSTM: []LSTMLayer{{
			Units:           1,
			Kernel:          [][]float64{{0.5, 0.1, 0.3, 0.7}},
			RecurrentKernel: [][]float64{{0.2, 0.2, 0.2, 0.2}},
			Bias:            []float64{0, 1, 0, 0},
		}},
		Dense: []DenseLayer{{Weights: [][]float64{{2, -1}}, Bias: []float64{1, 0}}},
	}
	require.NoError(t, net.Validate())
	assert.Equal(t, 2, net.Outputs())

	out, err := net.Predict([][]float64{{1}})
	require.NoError(t, err)

	c := sigmoid(0.5) * math.Tanh(0.3)
	h := sigmoid(0.7) * math.Tanh(c)
	assert.InDelta(t, 2*h+1, out[0][0], 1e-12)
	assert.InDelta(t, -h, out[0][1], 1e-12)
}

func TestDecodeRecurrentNetRejectsBadShapes(t *testing.T) {
	_, err := DecodeRecurrentNet([]byte(`{"input_size":2,"lstm":[{"units":1,"kernel":[[1,1,1,1]],"recurrent_kernel":[[1,1,1,1]],"bias":[0,0,0,0]}],"dense":[{"weights":[[1]],"bias":[0]}]}`))
	assert.Error(t, err)
	_, err = DecodeRecurrentNet([]byte(`not json`))
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	actual := [][]float64{{1, 2}, {3, 4}}
	pred := [][]float64{{1, 3}, {3, 2}}
	rmse, err := StepRMSE(actual, pred)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, rmse[0], 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), rmse[1], 1e-12)
	assert.InDelta(t, 1.0, R2(actual, actual), 1e-12)
	assert.Equal(t, 2.5, Mean([]float64{1, 2, 3, 4}))
}
