package charmlp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/vk/lmrun/internal/runerr"
)

func newVar(vals ...float64) *anydiff.Var {
	c := anyvec64.DefaultCreator{}
	return anydiff.NewVar(c.MakeVectorData(c.MakeNumericList(vals)))
}

func gradFor(v *anydiff.Var, vals ...float64) anydiff.Grad {
	c := anyvec64.DefaultCreator{}
	return anydiff.Grad{v: c.MakeVectorData(c.MakeNumericList(vals))}
}

func TestAdam_FirstStepMovesBySignTimesLR(t *testing.T) {
	t.Parallel()

	v := newVar(1, 2)
	opt := NewAdam([]*anydiff.Var{v}, &Hyper{Beta1: 0.9, Beta2: 0.999})

	require.NoError(t, opt.Step(gradFor(v, 0.5, -3), 0.1))

	got := vectorData(v.Vector)
	assert.InDelta(t, 0.9, got[0], 1e-6)
	assert.InDelta(t, 2.1, got[1], 1e-6)
}

func TestAdam_WeightDecay(t *testing.T) {
	t.Parallel()

	v := newVar(10)
	opt := NewAdam([]*anydiff.Var{v}, &Hyper{Beta1: 0.9, Beta2: 0.999, WeightDecay: 0.5})

	require.NoError(t, opt.Step(gradFor(v, 0), 0.1))

	// No gradient signal; only the decay term 0.1 * 0.5 * 10 applies.
	assert.InDelta(t, 9.5, vectorData(v.Vector)[0], 1e-9)
}

func TestAdam_GradClipScalesMoments(t *testing.T) {
	t.Parallel()

	v := newVar(0, 0)
	opt := NewAdam([]*anydiff.Var{v}, &Hyper{Beta1: 0.9, Beta2: 0.999, GradClip: 1})

	require.NoError(t, opt.Step(gradFor(v, 30, 40), 0.1))

	s := opt.State()
	// The clipped gradient is (0.6, 0.8); the first moment keeps 10% of it.
	assert.InDelta(t, 0.06, s.First[0][0], 1e-12)
	assert.InDelta(t, 0.08, s.First[0][1], 1e-12)
}

func TestAdam_StateRestoreContinuesIdentically(t *testing.T) {
	t.Parallel()

	// Arrange
	h := &Hyper{Beta1: 0.9, Beta2: 0.999}
	a := newVar(1, 1)
	optA := NewAdam([]*anydiff.Var{a}, h)
	require.NoError(t, optA.Step(gradFor(a, 1, -1), 0.1))
	require.NoError(t, optA.Step(gradFor(a, 0.5, 2), 0.1))

	b := newVar(vectorData(a.Vector)...)
	optB := NewAdam([]*anydiff.Var{b}, h)
	require.NoError(t, optB.Restore(optA.State()))

	// Act
	require.NoError(t, optA.Step(gradFor(a, -0.2, 0.3), 0.1))
	require.NoError(t, optB.Step(gradFor(b, -0.2, 0.3), 0.1))

	// Assert
	assert.Equal(t, vectorData(a.Vector), vectorData(b.Vector))
	assert.Equal(t, 3, optB.Iteration())
}

func TestAdam_RestoreMismatch(t *testing.T) {
	t.Parallel()

	h := &Hyper{Beta1: 0.9, Beta2: 0.999}
	small := NewAdam([]*anydiff.Var{newVar(1)}, h)
	big := NewAdam([]*anydiff.Var{newVar(1, 2)}, h)
	two := NewAdam([]*anydiff.Var{newVar(1), newVar(2)}, h)

	for name, state := range map[string]*Adam{"length": small, "count": two} {
		err := big.Restore(state.State())
		assert.True(t, errors.Is(err, runerr.ErrConfiguration), "%s: got %v", name, err)
	}

	wrongType := small.State()
	wrongType.Type = "sgd"
	assert.True(t, errors.Is(NewAdam([]*anydiff.Var{newVar(1)}, h).Restore(wrongType), runerr.ErrConfiguration))
}

func TestAdam_MissingGradient(t *testing.T) {
	t.Parallel()

	v := newVar(1)
	opt := NewAdam([]*anydiff.Var{v}, &Hyper{Beta1: 0.9, Beta2: 0.999})

	err := opt.Step(anydiff.Grad{}, 0.1)

	assert.Error(t, err)
	assert.Zero(t, opt.Iteration())
}
