package charmlp

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/pipeline"
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/zclconf/go-cty/cty"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func variableConfig() *config.Params {
	p := config.NewParams()
	p.Set("learning_rate", cty.NumberFloatVal(0.01))
	p.SetInt("n_hidden", 8)
	p.SetInt("context_size", 2)
	p.SetInt("max_steps", 20)
	p.SetInt("seed", 7)
	return p
}

func fixedConfig() *config.Params {
	p := config.NewParams()
	p.SetInt("seed", 42)
	p.SetString("device", "cpu")
	p.SetInt("vocab_size", 5)
	p.SetInt("block_size", 4)
	return p
}

func TestModule_Registers(t *testing.T) {
	t.Parallel()

	r := registry.New()
	(&Module{}).Register(r)

	b, ok := r.Builder(Name)
	require.True(t, ok)
	assert.IsType(t, &Builder{}, b)
}

func TestBuilder_SetupModelFlattens(t *testing.T) {
	t.Parallel()

	// Arrange
	b := &Builder{}
	variable := variableConfig()

	// Act
	model, flat, err := b.SetupModel(testContext(), variable, fixedConfig(), nil, seeded(t, 42))

	// Assert
	require.NoError(t, err)
	seed, err := flat.Int("seed")
	require.NoError(t, err)
	assert.Equal(t, 42, seed, "fixed wins over variable")
	assert.False(t, flat.Has(pipeline.ResumeStepKey))
	assert.Equal(t, 5*2*8+8+8*5+5, model.NumParams())
	vSeed, err := variable.Int("seed")
	require.NoError(t, err)
	assert.Equal(t, 7, vSeed, "variable config is untouched")
}

func TestBuilder_SetupTrainingFresh(t *testing.T) {
	t.Parallel()

	b := &Builder{}
	model, flat, err := b.SetupModel(testContext(), variableConfig(), fixedConfig(), nil, seeded(t, 42))
	require.NoError(t, err)

	setup, err := b.SetupTraining(testContext(), model, flat, nil)

	require.NoError(t, err)
	assert.Zero(t, setup.Step)
	assert.Equal(t, 0.01, setup.Scheduler.LR())
	assert.Equal(t, Name, setup.Info["model"])
	assert.Equal(t, OptimizerType, setup.Optimizer.State().Type)
}

func TestBuilder_ResumeFromCheckpoint(t *testing.T) {
	t.Parallel()

	// Arrange
	b := &Builder{}
	orig, flat, err := b.SetupModel(testContext(), variableConfig(), fixedConfig(), nil, seeded(t, 42))
	require.NoError(t, err)
	setup, err := b.SetupTraining(testContext(), orig, flat, nil)
	require.NoError(t, err)
	_, grad, err := orig.LossAndGrad(tinyBatchFor(5))
	require.NoError(t, err)
	require.NoError(t, setup.Optimizer.Step(grad, 0.01))
	data, err := orig.MarshalBinary()
	require.NoError(t, err)
	ckpt := &checkpoint.Checkpoint{Step: 100, Model: data, Optimizer: setup.Optimizer.State()}

	// Act
	restored, rflat, err := b.SetupModel(testContext(), variableConfig(), fixedConfig(), ckpt, seeded(t, 42))
	require.NoError(t, err)
	rsetup, err := b.SetupTraining(testContext(), restored, rflat, ckpt)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 100, rsetup.Step)
	resume, err := rflat.Int(pipeline.ResumeStepKey)
	require.NoError(t, err)
	assert.Equal(t, 100, resume)
	assert.Equal(t, orig.Weights(), restored.Weights())
	assert.Equal(t, 1, rsetup.Optimizer.State().Iteration)
}

func TestBuilder_RejectsBadCheckpoints(t *testing.T) {
	t.Parallel()

	b := &Builder{}
	other := NewModel(6, 2, 8, seeded(t, 1))
	otherData, err := other.MarshalBinary()
	require.NoError(t, err)

	testCases := []struct {
		name string
		ckpt *checkpoint.Checkpoint
	}{
		{name: "negative step", ckpt: &checkpoint.Checkpoint{Step: -1, Model: otherData}},
		{name: "empty model", ckpt: &checkpoint.Checkpoint{Step: 3}},
		{name: "shape mismatch", ckpt: &checkpoint.Checkpoint{Step: 3, Model: otherData}},
		{name: "vocab mismatch", ckpt: &checkpoint.Checkpoint{Step: 3, Model: otherData, Vocab: []string{"a"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := b.SetupModel(testContext(), variableConfig(), fixedConfig(), tc.ckpt, seeded(t, 42))
			assert.True(t, errors.Is(err, runerr.ErrConfiguration), "got %v", err)
		})
	}
}

func TestBuilder_RejectsOptimizerStateMismatch(t *testing.T) {
	t.Parallel()

	b := &Builder{}
	model, flat, err := b.SetupModel(testContext(), variableConfig(), fixedConfig(), nil, seeded(t, 42))
	require.NoError(t, err)
	ckpt := &checkpoint.Checkpoint{
		Step:      5,
		Model:     []byte("unused"),
		Optimizer: &checkpoint.OptimizerState{Type: OptimizerType, First: [][]float64{{1}}, Second: [][]float64{{1}}},
	}

	_, err = b.SetupTraining(testContext(), model, flat, ckpt)

	assert.True(t, errors.Is(err, runerr.ErrConfiguration))
}

func TestHyperFromParams_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(p *config.Params)
	}{
		{name: "missing vocab size", mutate: func(p *config.Params) { p.Delete("vocab_size") }},
		{name: "zero hidden", mutate: func(p *config.Params) { p.SetInt("n_hidden", 0) }},
		{name: "string learning rate", mutate: func(p *config.Params) { p.SetString("learning_rate", "fast") }},
		{name: "beta out of range", mutate: func(p *config.Params) { p.SetInt("beta2", 1) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := config.Merge(variableConfig(), fixedConfig())
			tc.mutate(p)
			_, err := HyperFromParams(p)
			assert.True(t, errors.Is(err, runerr.ErrConfiguration), "got %v", err)
		})
	}
}
