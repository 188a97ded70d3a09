package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/internal/tracking"
	"github.com/vk/lmrun/internal/trainer"
)

// DefaultEvalIters is the number of batches averaged per evaluation when
// eval_iters is not configured.
const DefaultEvalIters = 10

// Run executes one run. On success the result's Status is StatusCompleted.
// On failure the error is returned together with whatever the run produced
// before failing.
func Run(ctx context.Context, s Setting, verbose bool) (*RunResult, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.LogName == "" {
		s.LogName = "run"
	}
	ctx = ctxlog.With(ctx, "run", s.LogName)
	logger := ctxlog.FromContext(ctx)

	variable := s.Config
	if variable == nil {
		variable = config.NewParams()
	}
	info := tracking.RunInfo{
		Project: s.Project,
		Name:    s.LogName,
		Config:  variable.Clone(),
	}
	if s.Checkpoint != nil {
		info.StartStep = s.Checkpoint.Step
	}
	session := tracking.Open(ctx, s.Tracker, info)
	if session.Active() {
		logger.Info("📈 Tracking run.", "project", session.Info().Project, "start_step", info.StartStep)
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close tracking session.", "error", err)
		}
	}()

	res, err := run(ctx, s, variable, session, verbose)
	if res != nil {
		res.Tracked = session.Active()
	}
	if err != nil {
		session.MarkFailed()
		return res, err
	}
	return res, nil
}

func run(ctx context.Context, s Setting, variable *config.Params, session *tracking.Session, verbose bool) (*RunResult, error) {
	logger := ctxlog.FromContext(ctx)

	layered := config.Layered{Variable: variable, Fixed: s.Fixed}
	if err := seed(s.RNG, layered.Flatten()); err != nil {
		return nil, err
	}
	if keys := layered.Overrides(); len(keys) > 0 {
		logger.Warn("Sweep values overridden by fixed settings.", "keys", keys)
	}
	if s.Checkpoint != nil {
		if err := s.Checkpoint.Validate(); err != nil {
			return nil, err
		}
		if s.Checkpoint.Seed != s.RNG.Seed() {
			logger.Warn("Checkpoint was written by a run with a different seed.",
				"checkpoint_seed", s.Checkpoint.Seed, "seed", s.RNG.Seed())
		}
	}

	model, flat, err := s.Builder.SetupModel(ctx, variable, s.Fixed, s.Checkpoint, s.RNG)
	if err != nil {
		return nil, err
	}
	numParams := model.NumParams()
	logger.Info("Model built.", "params", numParams)
	if verbose {
		out := s.Out
		if out == nil {
			out = io.Discard
		}
		printSetting(out, flat, numParams)
	}

	setup, err := s.Builder.SetupTraining(ctx, model, flat, s.Checkpoint)
	if err != nil {
		return newResult(nil, flat, numParams), err
	}
	// The training stream continues where the checkpointed run left it.
	if ck := s.Checkpoint; ck != nil && len(ck.RNG) > 0 {
		if err := s.RNG.Restore(ck.RNG, s.RNG.Seed()); err != nil {
			return newResult(nil, flat, numParams), runerr.Configuration("resume", "restore rng: %w", err)
		}
	}
	cfg, err := trainer.ConfigFromParams(flat)
	if err != nil {
		return newResult(nil, flat, numParams), err
	}
	evalIters, err := flat.IntOr("eval_iters", DefaultEvalIters)
	if err != nil {
		return newResult(nil, flat, numParams), err
	}

	opts := trainer.Options{Sink: session, Board: s.Board}
	dir := s.CheckpointDir
	if dir == "" {
		if dir, err = flat.StringOr("checkpoint_dir", ""); err != nil {
			return newResult(nil, flat, numParams), err
		}
	}
	if dir != "" {
		opts.Checkpointer = &fileCheckpointer{dir: dir, runName: s.LogName, rng: s.RNG, vocab: s.Vocab, flat: flat}
	}
	if ck := s.Checkpoint; ck != nil && ck.BestValidLoss != nil {
		opts.BestValidLoss, opts.BestStep = ck.BestValidLoss, ck.BestStep
	}
	s.Board.Update(func(p *trainer.Progress) { p.RunName = s.LogName })

	state := &trainer.State{
		Model:     model,
		Optimizer: setup.Optimizer,
		Scheduler: setup.Scheduler,
		Step:      setup.Step,
		Info:      setup.Info,
	}
	eval := &trainer.LossEstimator{
		Iters:     evalIters,
		BatchSize: cfg.BatchSize,
		RNG:       s.RNG,
		Seed:      rng.DeriveSeed(s.RNG.Seed(), "eval"),
	}
	loop, err := trainer.NewLoop(cfg, state, s.Source, eval, opts)
	if err != nil {
		return newResult(nil, flat, numParams), err
	}

	out, err := loop.Run(ctx)
	return newResult(out, flat, numParams), err
}

// seed seeds r from the flat config's seed. A missing or non-integer seed is
// a configuration error.
func seed(r *rng.Context, flat *config.Params) error {
	v, ok := flat.Get("seed")
	if !ok {
		return runerr.Configuration("set seed", "missing required key %q", "seed")
	}
	if err := r.SetSeedValue(v); err != nil {
		return err
	}
	return nil
}

func printSetting(w io.Writer, flat *config.Params, numParams int) {
	fmt.Fprintln(w, "Setting:")
	for _, k := range flat.Keys() {
		v, _ := flat.Get(k)
		native, err := config.ToNative(v)
		if err != nil {
			native = v.GoString()
		}
		fmt.Fprintf(w, "  %s: %v\n", k, native)
	}
	fmt.Fprintf(w, "Number of parameters: %.2fM\n", float64(numParams)/1e6)
}
