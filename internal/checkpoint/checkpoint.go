// Package checkpoint holds the persisted state of a training run: the step it
// reached, serialized model parameters, optimizer and RNG state, and the
// configuration it ran with. A checkpoint is consumed once at run start and
// never mutated by the orchestrator.
package checkpoint

import (
	"time"

	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/runerr"
)

// FormatVersion is written into every checkpoint.
const FormatVersion = 1

// Checkpoint is a complete snapshot of a run.
type Checkpoint struct {
	Step          int             `json:"step"`
	Model         []byte          `json:"model"`
	Optimizer     *OptimizerState `json:"optimizer,omitempty"`
	RNG           []byte          `json:"rng,omitempty"`
	Seed          int64           `json:"seed"`
	Vocab         []string        `json:"vocab,omitempty"`
	BestValidLoss *float64        `json:"best_valid_loss,omitempty"`
	BestStep      int             `json:"best_step,omitempty"`
	Config        *config.Params  `json:"config,omitempty"`
	Metadata      Metadata        `json:"metadata"`
}

// OptimizerState captures moment estimates, one slot per model parameter in
// parameter order.
type OptimizerState struct {
	Type      string      `json:"type"`
	Iteration int         `json:"iteration"`
	First     [][]float64 `json:"first,omitempty"`
	Second    [][]float64 `json:"second,omitempty"`
}

// Metadata describes where a checkpoint came from.
type Metadata struct {
	Version   int       `json:"version"`
	RunName   string    `json:"run_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Validate checks internal consistency. Shape checks against a configuration
// belong to the model builder, which knows the architecture.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return runerr.Configuration("checkpoint", "checkpoint is nil")
	}
	if c.Metadata.Version > FormatVersion {
		return runerr.Configuration("checkpoint", "unsupported format version %d", c.Metadata.Version)
	}
	if c.Step < 0 {
		return runerr.Configuration("checkpoint", "negative step %d", c.Step)
	}
	if len(c.Model) == 0 {
		return runerr.Configuration("checkpoint", "model state is empty")
	}
	if o := c.Optimizer; o != nil {
		if o.Iteration < 0 {
			return runerr.Configuration("checkpoint", "negative optimizer iteration %d", o.Iteration)
		}
		if len(o.First) != len(o.Second) {
			return runerr.Configuration("checkpoint", "optimizer has %d first moments and %d second moments",
				len(o.First), len(o.Second))
		}
		for i := range o.First {
			if len(o.First[i]) != len(o.Second[i]) {
				return runerr.Configuration("checkpoint", "optimizer slot %d: moment lengths %d and %d differ",
					i, len(o.First[i]), len(o.Second[i]))
			}
		}
	}
	return nil
}

// HasBest reports whether a best validation loss was recorded.
func (c *Checkpoint) HasBest() bool {
	return c.BestValidLoss != nil
}
