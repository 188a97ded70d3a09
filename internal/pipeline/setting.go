package pipeline

import (
	"io"

	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/internal/tracking"
	"github.com/vk/lmrun/internal/trainer"
)

// Setting is everything one run needs.
type Setting struct {
	// Config is the swept configuration; it is what gets tracked.
	Config *config.Params
	// Fixed holds the task constants (seed, device, vocab_size,
	// block_size); it wins on key collisions.
	Fixed *config.Params
	// Source supplies batches. It must draw from RNG.
	Source dataset.BatchSource
	RNG    *rng.Context
	// Checkpoint, when set, is resumed from.
	Checkpoint *checkpoint.Checkpoint
	LogName    string
	Project    string

	Builder Builder
	Tracker tracking.Tracker

	// Vocab is stored in checkpoints so a resumed run tokenizes
	// identically.
	Vocab []string
	// CheckpointDir overrides the checkpoint_dir hyperparameter.
	CheckpointDir string
	Board         *trainer.Board
	// Out receives the verbose summary. Nil means io.Discard.
	Out io.Writer
}

func (s *Setting) validate() error {
	switch {
	case s.Builder == nil:
		return runerr.Configuration("run", "no model builder")
	case s.Source == nil:
		return runerr.Configuration("run", "no batch source")
	case s.RNG == nil:
		return runerr.Configuration("run", "no random context")
	}
	return nil
}
