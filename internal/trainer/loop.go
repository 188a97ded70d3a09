package trainer

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/runerr"
)

// Outcome summarizes a finished (or failed) loop.
type Outcome struct {
	Phase          Phase
	StartStep      int
	FinalStep      int
	TrainLosses    map[int]float64
	ValidLosses    map[int]float64
	BestValidLoss  float64
	BestStep       int
	HasBest        bool
	Metrics        []MetricRecord
	StopReason     string
	Duration       time.Duration
	CheckpointPath string
}

// Options carries the loop's optional collaborators.
type Options struct {
	Sink         MetricSink
	Checkpointer Checkpointer
	Board        *Board
	// BestValidLoss seeds best-loss tracking when resuming.
	BestValidLoss *float64
	BestStep      int
	// Now is the clock used for the duration budget. Defaults to time.Now.
	Now func() time.Time
}

// Loop drives one run's training.
type Loop struct {
	cfg    Config
	state  *State
	source dataset.BatchSource
	eval   Evaluator
	opts   Options

	phase     Phase
	startStep int
	lastEval  int
	history   History
	pending   map[string]float64
	best      float64
	bestStep  int
	hasBest   bool
	ckptPath  string
}

// NewLoop binds a loop to its state, data and evaluator.
func NewLoop(cfg Config, state *State, source dataset.BatchSource, eval Evaluator, opts Options) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if state == nil || state.Model == nil || state.Optimizer == nil || state.Scheduler == nil {
		return nil, runerr.Configuration("new loop", "training state is incomplete")
	}
	if state.Step < 0 {
		return nil, runerr.Configuration("new loop", "negative start step %d", state.Step)
	}
	if source == nil || eval == nil {
		return nil, runerr.Configuration("new loop", "batch source and evaluator are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Loop{
		cfg:       cfg,
		state:     state,
		source:    source,
		eval:      eval,
		opts:      opts,
		phase:     PhaseInit,
		startStep: state.Step,
		lastEval:  -1,
		pending:   make(map[string]float64),
	}
	if opts.BestValidLoss != nil {
		l.best, l.bestStep, l.hasBest = *opts.BestValidLoss, opts.BestStep, true
	}
	return l, nil
}

// Phase returns the current phase.
func (l *Loop) Phase() Phase {
	return l.phase
}

// Step returns the number of completed optimization steps.
func (l *Loop) Step() int {
	return l.state.Step
}

// History returns the records emitted so far.
func (l *Loop) History() []MetricRecord {
	return l.history.Records()
}

func (l *Loop) setPhase(p Phase) {
	l.phase = p
	l.opts.Board.Update(func(pr *Progress) { pr.Phase = p.String() })
}

// Run trains until max_steps, the duration budget or ctx cancellation. A
// cancelled context is a normal stop, not an error. On failure the returned
// Outcome still holds every record emitted before the error.
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	start := l.opts.Now()
	l.opts.Board.Update(func(p *Progress) {
		p.StartStep, p.Step, p.MaxSteps, p.StartedAt = l.startStep, l.startStep, l.cfg.MaxSteps, start
	})
	l.setPhase(PhaseRunning)
	logger.Info("🚀 Training started.", "start_step", l.startStep, "max_steps", l.cfg.MaxSteps)

	reason, err := l.run(ctx, start)
	// Wrap-up work runs even after an interrupt.
	final := context.WithoutCancel(ctx)
	if err == nil && l.state.Step > l.startStep && l.lastEval != l.state.Step {
		err = l.evaluate(final)
	}
	// The last step is reported once, together with its terminal evaluation.
	l.flush(final)
	if err == nil && l.opts.Checkpointer != nil && l.state.Step > l.startStep {
		l.ckptPath, err = l.checkpoint(final, "final")
	}

	out := l.outcome(reason, l.opts.Now().Sub(start))
	if err != nil {
		l.setPhase(PhaseFailed)
		out.Phase, out.StopReason = PhaseFailed, StopFailed
		out.Metrics = l.history.Records()
		logger.Error("💥 Training failed.", "step", l.state.Step, "error", err)
		return out, err
	}
	l.setPhase(PhaseDone)
	out.Phase = PhaseDone
	logger.Info("🏁 Training finished.", "final_step", l.state.Step, "reason", reason, "duration", out.Duration)
	return out, nil
}

func (l *Loop) run(ctx context.Context, start time.Time) (string, error) {
	for {
		switch {
		case l.state.Step >= l.cfg.MaxSteps:
			return StopMaxSteps, nil
		case ctx.Err() != nil:
			return StopInterrupted, nil
		case l.cfg.MaxDuration > 0 && l.opts.Now().Sub(start) >= l.cfg.MaxDuration:
			return StopMaxDuration, nil
		}
		// Records of the previous step go out only once another step is
		// about to run; the final step is flushed by Run.
		l.flush(ctx)

		if err := l.trainStep(ctx); err != nil {
			return StopFailed, err
		}
		step := l.state.Step
		if step%l.cfg.EvalInterval == 0 {
			if err := l.evaluate(ctx); err != nil {
				return StopFailed, err
			}
		}
		if l.cfg.LogWeightStats && step%l.cfg.WeightStatsInterval == 0 {
			stats := WeightMetrics(l.state.Model.Weights())
			for _, name := range slices.Sorted(maps.Keys(stats)) {
				l.record(name, stats[name])
			}
		}
		if l.opts.Checkpointer != nil && l.cfg.CheckpointInterval > 0 && step%l.cfg.CheckpointInterval == 0 && step < l.cfg.MaxSteps {
			if _, err := l.checkpoint(ctx, "periodic"); err != nil {
				ctxlog.FromContext(ctx).Warn("Periodic checkpoint failed, continuing.", "step", step, "error", err)
			}
		}
	}
}

func (l *Loop) trainStep(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	next := l.state.Step + 1

	batch, err := l.source.Next(dataset.SplitTrain, l.cfg.BatchSize)
	if err != nil {
		return asData(fmt.Sprintf("step %d", next), err)
	}
	if err := batch.Validate(l.cfg.BatchSize, l.cfg.BlockSize); err != nil {
		return err
	}
	loss, grad, err := l.state.Model.LossAndGrad(batch)
	if err != nil {
		return runerr.TrainingStep(fmt.Sprintf("step %d", next), "forward pass: %w", err)
	}
	if !finite(loss) {
		return runerr.TrainingStep(fmt.Sprintf("step %d", next), "non-finite loss %v", loss)
	}
	lr := l.state.Scheduler.LR()
	if err := l.state.Optimizer.Step(grad, lr); err != nil {
		return runerr.TrainingStep(fmt.Sprintf("step %d", next), "optimizer: %w", err)
	}
	l.state.Scheduler.Step()
	l.state.Step = next

	l.record(MetricTrainLoss, loss)
	l.record(MetricTrainLR, lr)
	l.opts.Board.Update(func(p *Progress) { p.Step, p.TrainLoss, p.LearningRate = next, loss, lr })
	logger.Debug("Step complete.", "step", next, "loss", loss, "lr", lr)
	return nil
}

func (l *Loop) evaluate(ctx context.Context) error {
	l.setPhase(PhaseEvaluating)
	defer func() {
		if l.phase == PhaseEvaluating {
			l.setPhase(PhaseRunning)
		}
	}()
	// Evaluation is allowed to finish after a cancellation so the final
	// numbers are reported.
	evalCtx := context.WithoutCancel(ctx)

	valid, err := l.eval.Evaluate(evalCtx, l.state.Model, l.source, dataset.SplitValid)
	if err != nil {
		return err
	}
	train, err := l.eval.Evaluate(evalCtx, l.state.Model, l.source, dataset.SplitTrain)
	if err != nil {
		return err
	}
	step := l.state.Step
	l.lastEval = step
	l.record(MetricValidLoss, valid)
	l.record(MetricTrainEvalLoss, train)
	if finite(valid) && (!l.hasBest || valid < l.best) {
		l.best, l.bestStep, l.hasBest = valid, step, true
	}
	l.opts.Board.Update(func(p *Progress) {
		p.ValidLoss, p.BestValidLoss, p.BestStep = valid, l.best, l.bestStep
	})
	ctxlog.FromContext(ctx).Info("📊 Evaluation", "step", step, "valid_loss", valid, "train_loss", train, "best_valid_loss", l.best)
	return nil
}

func (l *Loop) checkpoint(ctx context.Context, reason string) (string, error) {
	snap := Snapshot{
		Step:          l.state.Step,
		Model:         l.state.Model,
		Optimizer:     l.state.Optimizer,
		BestValidLoss: l.best,
		BestStep:      l.bestStep,
		HasBest:       l.hasBest,
		Reason:        reason,
	}
	path, err := l.opts.Checkpointer.Checkpoint(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("checkpoint at step %d: %w", l.state.Step, err)
	}
	ctxlog.FromContext(ctx).Info("💾 Checkpoint saved.", "step", l.state.Step, "path", path, "reason", reason)
	return path, nil
}

func (l *Loop) record(name string, v float64) {
	l.history.add(l.state.Step, name, v)
	l.pending[name] = v
}

// flush hands the pending records of the current step to the sink.
func (l *Loop) flush(ctx context.Context) {
	if len(l.pending) == 0 {
		return
	}
	metrics := l.pending
	l.pending = make(map[string]float64)
	if l.opts.Sink == nil {
		return
	}
	if err := l.opts.Sink.Log(ctx, l.state.Step, metrics); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to report metrics.", "step", l.state.Step, "error", err)
	}
}

func (l *Loop) outcome(reason string, d time.Duration) *Outcome {
	out := &Outcome{
		StartStep:      l.startStep,
		FinalStep:      l.state.Step,
		TrainLosses:    l.history.Series(MetricTrainLoss),
		ValidLosses:    l.history.Series(MetricValidLoss),
		BestValidLoss:  math.NaN(),
		BestStep:       l.bestStep,
		HasBest:        l.hasBest,
		Metrics:        l.history.Records(),
		StopReason:     reason,
		Duration:       d,
		CheckpointPath: l.ckptPath,
	}
	if l.hasBest {
		out.BestValidLoss = l.best
	}
	return out
}
