package trainer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/dataset"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

// fakeModel returns losses from lossFn, keyed by the number of training
// forward passes so far.
type fakeModel struct {
	calls   int
	lossFn  func(call int) float64
	evalErr error
	weights []Weight
}

func (m *fakeModel) LossAndGrad(*dataset.Batch) (float64, anydiff.Grad, error) {
	m.calls++
	if m.lossFn == nil {
		return 1.0 / float64(m.calls), anydiff.Grad{}, nil
	}
	return m.lossFn(m.calls), anydiff.Grad{}, nil
}

func (m *fakeModel) Loss(*dataset.Batch) (float64, error) {
	if m.evalErr != nil {
		return 0, m.evalErr
	}
	return 0.5, nil
}

func (m *fakeModel) Weights() []Weight {
	return m.weights
}

func (m *fakeModel) NumParams() int {
	n := 0
	for _, w := range m.weights {
		n += len(w.Values)
	}
	return n
}

func (m *fakeModel) MarshalBinary() ([]byte, error) {
	return []byte("fake"), nil
}

type fakeOptimizer struct {
	steps int
	lrs   []float64
}

func (o *fakeOptimizer) Step(_ anydiff.Grad, lr float64) error {
	o.steps++
	o.lrs = append(o.lrs, lr)
	return nil
}

func (o *fakeOptimizer) State() *checkpoint.OptimizerState {
	return &checkpoint.OptimizerState{Type: "fake", Iteration: o.steps}
}

type constScheduler struct {
	lr    float64
	steps int
}

func (s *constScheduler) LR() float64 { return s.lr }
func (s *constScheduler) Step()       { s.steps++ }

// fakeSource returns well-formed batches and fails on call failAt (1-based)
// when failAt > 0.
type fakeSource struct {
	blockSize int
	calls     int
	failAt    int
	ragged    bool
}

func (s *fakeSource) Next(split string, batchSize int) (*dataset.Batch, error) {
	if split == dataset.SplitTrain {
		s.calls++
		if s.failAt > 0 && s.calls == s.failAt {
			return nil, errors.New("corpus shard unavailable")
		}
	}
	b := &dataset.Batch{Split: split}
	for i := 0; i < batchSize; i++ {
		n := s.blockSize
		if s.ragged && i == 0 {
			n--
		}
		b.Inputs = append(b.Inputs, make([]int, n))
		b.Targets = append(b.Targets, make([]int, n))
	}
	return b, nil
}

// fakeEvaluator returns losses that decrease with every call.
type fakeEvaluator struct {
	calls  int
	splits []string
	err    error
}

func (e *fakeEvaluator) Evaluate(_ context.Context, _ Model, _ dataset.BatchSource, split string) (float64, error) {
	if e.err != nil {
		return 0, e.err
	}
	e.calls++
	e.splits = append(e.splits, split)
	return 10 / float64(e.calls), nil
}

type sinkCall struct {
	step    int
	metrics map[string]float64
}

type fakeSink struct {
	calls []sinkCall
	err   error
}

func (s *fakeSink) Log(_ context.Context, step int, metrics map[string]float64) error {
	s.calls = append(s.calls, sinkCall{step: step, metrics: metrics})
	return s.err
}

type fakeCheckpointer struct {
	snaps []Snapshot
}

func (c *fakeCheckpointer) Checkpoint(_ context.Context, snap Snapshot) (string, error) {
	c.snaps = append(c.snaps, snap)
	return checkpoint.FileName("test", snap.Step), nil
}

// fakeClock advances by tick on every call.
type fakeClock struct {
	now  time.Time
	tick time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.tick)
	return c.now
}
