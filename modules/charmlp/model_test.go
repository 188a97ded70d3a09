package charmlp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
)

func seeded(t *testing.T, seed int64) *rng.Context {
	t.Helper()
	r := rng.New()
	require.NoError(t, r.SetSeed(seed))
	return r
}

func tinyBatchFor(vocab int) *dataset.Batch {
	return &dataset.Batch{
		Split:   dataset.SplitTrain,
		Inputs:  [][]int{{0, 1, 2, vocab - 1}},
		Targets: [][]int{{1, 2, vocab - 1, 0}},
	}
}

func tinyBatch() *dataset.Batch {
	return &dataset.Batch{
		Split:   dataset.SplitTrain,
		Inputs:  [][]int{{0, 1, 2}, {2, 0, 1}},
		Targets: [][]int{{1, 2, 0}, {0, 1, 2}},
	}
}

func TestNewModel_DeterministicForSeed(t *testing.T) {
	t.Parallel()

	a := NewModel(5, 2, 8, seeded(t, 42))
	b := NewModel(5, 2, 8, seeded(t, 42))
	c := NewModel(5, 2, 8, seeded(t, 43))

	assert.Equal(t, a.Weights(), b.Weights())
	assert.NotEqual(t, a.Weights()[0].Values, c.Weights()[0].Values)
	assert.Equal(t, 5*2*8+8+8*5+5, a.NumParams())
	for _, w := range a.Weights() {
		if w.Name == "fc1/biases" || w.Name == "fc2/biases" {
			assert.Equal(t, make([]float64, len(w.Values)), w.Values, "%s starts at zero", w.Name)
		}
	}
}

func TestModel_LossIsMeanCrossEntropy(t *testing.T) {
	t.Parallel()

	m := NewModel(3, 2, 4, seeded(t, 1))

	loss, err := m.Loss(tinyBatch())
	require.NoError(t, err)
	lossGrad, grad, err := m.LossAndGrad(tinyBatch())
	require.NoError(t, err)

	assert.Positive(t, loss)
	assert.InDelta(t, loss, lossGrad, 1e-12)
	assert.Len(t, grad, 4)
	// An untrained model is close to uniform over the vocabulary.
	assert.InDelta(t, math.Log(3), loss, 1.0)
}

func TestModel_GradientMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	// Arrange
	m := NewModel(3, 2, 4, seeded(t, 7))
	batch := tinyBatch()
	_, grad, err := m.LossAndGrad(batch)
	require.NoError(t, err)
	const h = 1e-5

	// Act / Assert
	for pi, p := range m.Parameters() {
		analytic := vectorData(grad[p])
		orig := vectorData(p.Vector)
		for _, j := range []int{0, len(orig) - 1} {
			shifted := append([]float64(nil), orig...)
			shifted[j] = orig[j] + h
			setVectorData(p.Vector, shifted)
			plus, err := m.Loss(batch)
			require.NoError(t, err)
			shifted[j] = orig[j] - h
			setVectorData(p.Vector, shifted)
			minus, err := m.Loss(batch)
			require.NoError(t, err)
			setVectorData(p.Vector, orig)

			numeric := (plus - minus) / (2 * h)
			assert.InDelta(t, numeric, analytic[j], 1e-5, "param %s[%d]", m.ParameterNames()[pi], j)
		}
	}
}

func TestModel_TrainingReducesLoss(t *testing.T) {
	t.Parallel()

	m := NewModel(3, 2, 16, seeded(t, 3))
	opt := NewAdam(m.Parameters(), &Hyper{Beta1: 0.9, Beta2: 0.999})
	batch := tinyBatch()

	first, err := m.Loss(batch)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, grad, err := m.LossAndGrad(batch)
		require.NoError(t, err)
		require.NoError(t, opt.Step(grad, 0.05))
	}
	last, err := m.Loss(batch)
	require.NoError(t, err)

	assert.Less(t, last, first/2)
	assert.Equal(t, 100, opt.Iteration())
}

func TestModel_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewModel(4, 3, 6, seeded(t, 9))
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	batch := &dataset.Batch{Inputs: [][]int{{0, 1, 2, 3}}, Targets: [][]int{{1, 2, 3, 0}}}

	restored, err := DecodeModel(data, 4, 3, 6)
	require.NoError(t, err)

	want, err := m.Loss(batch)
	require.NoError(t, err)
	got, err := restored.Loss(batch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.Weights(), restored.Weights())
}

func TestDecodeModel_ShapeMismatch(t *testing.T) {
	t.Parallel()

	m := NewModel(4, 3, 6, seeded(t, 9))
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	testCases := []struct {
		name                   string
		vocab, context, hidden int
	}{
		{name: "vocab", vocab: 5, context: 3, hidden: 6},
		{name: "context", vocab: 4, context: 2, hidden: 6},
		{name: "hidden", vocab: 4, context: 3, hidden: 7},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeModel(data, tc.vocab, tc.context, tc.hidden)
			assert.True(t, errors.Is(err, runerr.ErrConfiguration), "got %v", err)
		})
	}

	_, err = DecodeModel([]byte("garbage"), 4, 3, 6)
	assert.True(t, errors.Is(err, runerr.ErrConfiguration))
}

func TestModel_RejectsOutOfRangeTokens(t *testing.T) {
	t.Parallel()

	m := NewModel(3, 2, 4, seeded(t, 1))

	_, err := m.Loss(&dataset.Batch{Inputs: [][]int{{0, 3}}, Targets: [][]int{{1, 2}}})
	assert.True(t, errors.Is(err, runerr.ErrData))

	_, _, err = m.LossAndGrad(&dataset.Batch{Inputs: [][]int{{0, 1}}, Targets: [][]int{{1, -1}}})
	assert.True(t, errors.Is(err, runerr.ErrData))

	_, err = m.Loss(&dataset.Batch{})
	assert.True(t, errors.Is(err, runerr.ErrData))
}
