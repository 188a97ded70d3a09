package app

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/hcl"
	"github.com/vk/lmrun/internal/pipeline"
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/modules/charmlp"
)

// loadConfigs reads the run configuration and its setup file. A missing
// setup file yields empty fixed settings.
func (a *App) loadConfigs(ctx context.Context) (variable, fixed *config.Params, err error) {
	logger := ctxlog.FromContext(ctx)
	loader := hcl.NewLoader(a.config.ConfigDir)

	variable, err = loader.Load(ctx, a.config.ConfigName)
	if err != nil {
		return nil, nil, err
	}

	setupPath := loader.ResolveSetup(a.config.ConfigName)
	if _, statErr := os.Stat(setupPath); errors.Is(statErr, fs.ErrNotExist) {
		logger.Debug("No setup file found.", "path", setupPath)
		return variable, config.NewParams(), nil
	}
	fixed, err = loader.LoadSetup(ctx, a.config.ConfigName)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Configuration loaded.", "variable", variable.Len(), "fixed", fixed.Len())
	return variable, fixed, nil
}

// loadData reads the corpus and builds the dataset. When resuming, the
// checkpoint's vocabulary is reused so ids keep their meaning.
func (a *App) loadData(ctx context.Context, flat *config.Params, ckpt *checkpoint.Checkpoint) (*dataset.Dataset, error) {
	text, err := dataset.LoadCorpus(a.config.DataPath)
	if err != nil {
		return nil, err
	}
	frac, err := flat.FloatOr("valid_fraction", dataset.DefaultValidFraction)
	if err != nil {
		return nil, err
	}
	if ckpt == nil || len(ckpt.Vocab) == 0 {
		return dataset.Prepare(text, frac)
	}
	tok, err := dataset.TokenizerFromVocab(ckpt.Vocab)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Reusing checkpoint vocabulary.", "vocab_size", tok.VocabSize())
	return dataset.PrepareWith(tok, text, frac)
}

// resolveCheckpoint returns the checkpoint file the run starts from, or ""
// for a fresh run. A --checkpoint directory, or --resume with the checkpoint
// directory, resolves to the newest checkpoint of runName found there.
func (a *App) resolveCheckpoint(ctx context.Context, flat *config.Params, runName string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	var dir string
	switch {
	case a.config.CheckpointPath != "":
		info, err := os.Stat(a.config.CheckpointPath)
		if err != nil || !info.IsDir() {
			// checkpoint.Load reports a missing file.
			return a.config.CheckpointPath, nil
		}
		dir = a.config.CheckpointPath
	case a.config.Resume:
		dir = a.config.CheckpointDir
		if dir == "" {
			var err error
			if dir, err = flat.StringOr("checkpoint_dir", ""); err != nil {
				return "", err
			}
		}
		if dir == "" {
			return "", runerr.Configuration("resume", "no checkpoint directory: set --checkpoint-dir or checkpoint_dir")
		}
	default:
		return "", nil
	}

	path, err := checkpoint.Latest(dir, runName)
	switch {
	case errors.Is(err, fs.ErrNotExist) && a.config.Resume:
		logger.Info("No checkpoint to resume from, starting fresh.", "dir", dir, "run", runName)
		return "", nil
	case errors.Is(err, fs.ErrNotExist):
		return "", runerr.Configuration("load checkpoint", "no checkpoint for run %q in %s", runName, dir)
	case err != nil:
		return "", runerr.Configuration("load checkpoint", "%w", err)
	}
	logger.Info("Resuming from newest checkpoint.", "path", path)
	return path, nil
}

// setting assembles everything pipeline.Run needs from the app config.
func (a *App) setting(ctx context.Context) (pipeline.Setting, error) {
	var s pipeline.Setting

	variable, fixed, err := a.loadConfigs(ctx)
	if err != nil {
		return s, err
	}

	runName := a.config.RunName
	if runName == "" {
		runName = runNameFor(a.config.ConfigName)
	}

	flat := config.Merge(variable, fixed)
	ckptPath, err := a.resolveCheckpoint(ctx, flat, runName)
	if err != nil {
		return s, err
	}
	var ckpt *checkpoint.Checkpoint
	if ckptPath != "" {
		if ckpt, err = checkpoint.Load(ckptPath); err != nil {
			return s, err
		}
	}

	data, err := a.loadData(ctx, flat, ckpt)
	if err != nil {
		return s, err
	}
	fixed.SetInt("vocab_size", data.VocabSize())

	blockSize, err := flat.Int("block_size")
	if err != nil {
		return s, err
	}
	device, err := flat.StringOr("device", dataset.DeviceCPU)
	if err != nil {
		return s, err
	}
	r := rng.New()
	source, err := dataset.NewCorpusSource(data, blockSize, device, r)
	if err != nil {
		return s, err
	}

	modelName, err := flat.StringOr("model", charmlp.Name)
	if err != nil {
		return s, err
	}
	if err := a.registry.ValidateSelection(modelName, a.config.Tracker); err != nil {
		return s, err
	}
	builder, _ := a.registry.Builder(modelName)
	factory, _ := a.registry.Tracker(a.config.Tracker)
	tracker, err := factory(ctx, registry.TrackerOptions{
		URL:       a.config.TrackerURL,
		Namespace: a.config.TrackerNamespace,
		Insecure:  a.config.TrackerInsecure,
	})
	if err != nil {
		return s, runerr.Configuration("tracker", "%s: %w", a.config.Tracker, err)
	}

	return pipeline.Setting{
		Config:        variable,
		Fixed:         fixed,
		Source:        source,
		RNG:           r,
		Checkpoint:    ckpt,
		LogName:       runName,
		Project:       a.config.Project,
		Builder:       builder,
		Tracker:       tracker,
		Vocab:         data.Tokenizer.Vocab(),
		CheckpointDir: a.config.CheckpointDir,
		Board:         a.board,
		Out:           a.outW,
	}, nil
}
