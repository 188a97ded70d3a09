package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/lmrun/internal/checkpoint"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/trainer"
)

// fileCheckpointer writes loop snapshots as checkpoint files.
type fileCheckpointer struct {
	dir     string
	runName string
	rng     *rng.Context
	vocab   []string
	flat    *config.Params
}

func (c *fileCheckpointer) Checkpoint(_ context.Context, snap trainer.Snapshot) (string, error) {
	model, err := snap.Model.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize model: %w", err)
	}
	state, err := c.rng.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize rng: %w", err)
	}
	ckpt := &checkpoint.Checkpoint{
		Step:      snap.Step,
		Model:     model,
		Optimizer: snap.Optimizer.State(),
		RNG:       state,
		Seed:      c.rng.Seed(),
		Vocab:     c.vocab,
		BestStep:  snap.BestStep,
		Config:    c.flat,
		Metadata: checkpoint.Metadata{
			RunName: c.runName,
			Reason:  snap.Reason,
		},
	}
	if snap.HasBest {
		best := snap.BestValidLoss
		ckpt.BestValidLoss = &best
	}
	path := filepath.Join(c.dir, checkpoint.FileName(c.runName, snap.Step))
	if err := checkpoint.Save(path, ckpt); err != nil {
		return "", err
	}
	return path, nil
}
