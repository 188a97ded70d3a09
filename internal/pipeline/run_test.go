package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/pipeline"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/internal/tracking"
	"github.com/vk/lmrun/internal/trainer"
	"github.com/vk/lmrun/modules/charmlp"
	"github.com/zclconf/go-cty/cty"
)

const corpus = "the quick brown fox jumps over the lazy dog. "

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func variableConfig(maxSteps, evalInterval int) *config.Params {
	p := config.NewParams()
	p.Set("learning_rate", cty.NumberFloatVal(0.01))
	p.SetInt("n_hidden", 8)
	p.SetInt("context_size", 2)
	p.SetInt("batch_size", 4)
	p.SetInt("max_steps", maxSteps)
	p.SetInt("eval_interval", evalInterval)
	p.SetInt("eval_iters", 2)
	return p
}

// newSetting builds a run over a small repeated corpus with a fresh random
// context, so two calls with the same arguments describe identical runs.
func newSetting(t *testing.T, variable *config.Params, tracker tracking.Tracker) pipeline.Setting {
	t.Helper()
	data, err := dataset.Prepare(strings.Repeat(corpus, 10), dataset.DefaultValidFraction)
	require.NoError(t, err)

	fixed := config.NewParams()
	fixed.SetInt("seed", 42)
	fixed.SetString("device", dataset.DeviceCPU)
	fixed.SetInt("vocab_size", data.VocabSize())
	fixed.SetInt("block_size", 4)

	r := rng.New()
	src, err := dataset.NewCorpusSource(data, 4, dataset.DeviceCPU, r)
	require.NoError(t, err)

	return pipeline.Setting{
		Config:  variable,
		Fixed:   fixed,
		Source:  src,
		RNG:     r,
		LogName: "charLM-test",
		Project: "lm-hpo",
		Builder: &charmlp.Builder{},
		Tracker: tracker,
		Vocab:   data.Tokenizer.Vocab(),
	}
}

func keys(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func TestRun_CompletesAndTracks(t *testing.T) {
	t.Parallel()

	// Arrange
	rec := tracking.NewRecorder()
	s := newSetting(t, variableConfig(6, 3), rec)

	// Act
	res, err := pipeline.Run(testContext(), s, false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, res.Status)
	assert.Equal(t, trainer.PhaseDone, res.State)
	assert.Equal(t, 6, res.FinalStep)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, keys(res.TrainLosses))
	assert.Equal(t, []int{3, 6}, keys(res.ValidLosses))
	assert.True(t, res.HasBest)
	assert.Positive(t, res.NumParams)
	assert.True(t, res.Tracked)

	require.Len(t, rec.Inits(), 1)
	info := rec.Inits()[0]
	assert.Equal(t, "lm-hpo", info.Project)
	assert.Equal(t, "charLM-test", info.Name)
	assert.Zero(t, info.StartStep)
	assert.Equal(t, s.Config.Keys(), info.Config.Keys(), "only the swept configuration is tracked")
	assert.Equal(t, res.TrainLosses, rec.Series(trainer.MetricTrainLoss))
	assert.Equal(t, []bool{false}, rec.Finishes())
}

func TestRun_SameSeedSameLosses(t *testing.T) {
	t.Parallel()

	first, err := pipeline.Run(testContext(), newSetting(t, variableConfig(3, 3), tracking.NewRecorder()), false)
	require.NoError(t, err)
	second, err := pipeline.Run(testContext(), newSetting(t, variableConfig(3, 3), tracking.NewRecorder()), false)
	require.NoError(t, err)

	assert.Equal(t, first.TrainLosses, second.TrainLosses)
	assert.Equal(t, first.ValidLosses, second.ValidLosses)
}

func TestRun_DataFailureKeepsPartialResults(t *testing.T) {
	t.Parallel()

	// Arrange: the third training batch cannot be produced.
	rec := tracking.NewRecorder()
	s := newSetting(t, variableConfig(10, 5), rec)
	inner := s.Source
	trainCalls := 0
	s.Source = dataset.SourceFunc(func(split string, batchSize int) (*dataset.Batch, error) {
		if split == dataset.SplitTrain {
			trainCalls++
			if trainCalls == 3 {
				return nil, runerr.Data("get batch", "corpus file vanished")
			}
		}
		return inner.Next(split, batchSize)
	})

	// Act
	res, err := pipeline.Run(testContext(), s, false)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, runerr.ErrData)
	require.NotNil(t, res)
	assert.NotEqual(t, pipeline.StatusCompleted, res.Status)
	assert.Equal(t, trainer.PhaseFailed, res.State)
	assert.Equal(t, []int{1, 2}, keys(res.TrainLosses))
	assert.Equal(t, []bool{true}, rec.Finishes(), "the tracking session is closed as failed")
}

func TestRun_ResumeContinuesAfterCheckpoint(t *testing.T) {
	t.Parallel()

	// Arrange: an uninterrupted reference run and a run cut at step 4.
	reference, err := pipeline.Run(testContext(), newSetting(t, variableConfig(8, 4), tracking.NewRecorder()), false)
	require.NoError(t, err)

	dir := t.TempDir()
	first := newSetting(t, variableConfig(4, 4), tracking.NewRecorder())
	first.CheckpointDir = dir
	cut, err := pipeline.Run(testContext(), first, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, checkpoint.FileName("charLM-test", 4)), cut.CheckpointPath)

	path, err := checkpoint.Latest(dir, "charLM-test")
	require.NoError(t, err)
	ckpt, err := checkpoint.Load(path)
	require.NoError(t, err)

	// Act
	rec := tracking.NewRecorder()
	second := newSetting(t, variableConfig(8, 4), rec)
	second.Checkpoint = ckpt
	resumed, err := pipeline.Run(testContext(), second, false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 4, resumed.StartStep)
	assert.Equal(t, 8, resumed.FinalStep)
	assert.Equal(t, []int{5, 6, 7, 8}, keys(resumed.TrainLosses))
	for step, loss := range resumed.TrainLosses {
		assert.InDelta(t, reference.TrainLosses[step], loss, 1e-9, "step %d", step)
	}
	resumeStep, err := resumed.Flat.Int(pipeline.ResumeStepKey)
	require.NoError(t, err)
	assert.Equal(t, 4, resumeStep)
	assert.Equal(t, 5, rec.Logs()[0].Step)
	require.Len(t, rec.Inits(), 1)
	assert.Equal(t, 4, rec.Inits()[0].StartStep, "the tracker is told where the run resumes")
}

func TestRun_VerbosePrintsSetting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := newSetting(t, variableConfig(1, 1), tracking.NewRecorder())
	s.Out = &buf

	_, err := pipeline.Run(testContext(), s, true)

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Setting:")
	assert.Contains(t, out, "  n_hidden: 8")
	assert.Contains(t, out, "  device: cpu")
	assert.Contains(t, out, "Number of parameters: 0.00M")
}

func TestRun_TrackerInitFailureDoesNotStopTraining(t *testing.T) {
	t.Parallel()

	rec := tracking.NewRecorder()
	rec.InitErr = errors.New("tracking server unreachable")

	res, err := pipeline.Run(testContext(), newSetting(t, variableConfig(2, 2), rec), false)

	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, res.Status)
	assert.False(t, res.Tracked)
	assert.Empty(t, rec.Logs())
}

func TestRun_WarnsWhenFixedSettingsOverrideSweep(t *testing.T) {
	t.Parallel()

	// Arrange: the sweep tries to change the seed.
	var logs bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))
	variable := variableConfig(1, 1)
	variable.SetInt("seed", 7)
	s := newSetting(t, variable, tracking.NewRecorder())

	// Act
	res, err := pipeline.Run(ctx, s, false)

	// Assert
	require.NoError(t, err)
	seed, err := res.Flat.Int("seed")
	require.NoError(t, err)
	assert.Equal(t, 42, seed)
	assert.Contains(t, logs.String(), "Sweep values overridden by fixed settings.")
	assert.Contains(t, logs.String(), "keys=[seed]")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(s *pipeline.Setting)
	}{
		{name: "no builder", mutate: func(s *pipeline.Setting) { s.Builder = nil }},
		{name: "no source", mutate: func(s *pipeline.Setting) { s.Source = nil }},
		{name: "no seed", mutate: func(s *pipeline.Setting) { s.Fixed.Delete("seed") }},
		{name: "missing batch size", mutate: func(s *pipeline.Setting) { s.Config.Delete("batch_size") }},
		{name: "zero eval interval", mutate: func(s *pipeline.Setting) { s.Config.SetInt("eval_interval", 0) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newSetting(t, variableConfig(2, 2), tracking.NewRecorder())
			tc.mutate(&s)

			_, err := pipeline.Run(testContext(), s, false)

			require.Error(t, err)
			assert.ErrorIs(t, err, runerr.ErrConfiguration)
		})
	}
}
