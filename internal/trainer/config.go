package trainer

import (
	"time"

	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/runerr"
)

// Config holds the loop's cadence and budget.
type Config struct {
	BatchSize           int
	BlockSize           int
	MaxSteps            int
	EvalInterval        int
	MaxDuration         time.Duration
	LogWeightStats      bool
	WeightStatsInterval int
	CheckpointInterval  int
}

// ConfigFromParams reads the loop settings from a flat run configuration.
func ConfigFromParams(p *config.Params) (Config, error) {
	var c Config
	var err error
	if c.BatchSize, err = p.Int("batch_size"); err != nil {
		return c, err
	}
	if c.BlockSize, err = p.Int("block_size"); err != nil {
		return c, err
	}
	if c.MaxSteps, err = p.Int("max_steps"); err != nil {
		return c, err
	}
	if c.EvalInterval, err = p.IntOr("eval_interval", max(c.MaxSteps, 1)); err != nil {
		return c, err
	}
	if c.MaxDuration, err = p.DurationOr("max_duration", 0); err != nil {
		return c, err
	}
	if c.LogWeightStats, err = p.BoolOr("log_weight_stats", false); err != nil {
		return c, err
	}
	if c.WeightStatsInterval, err = p.IntOr("weight_stats_interval", c.EvalInterval); err != nil {
		return c, err
	}
	if c.CheckpointInterval, err = p.IntOr("checkpoint_interval", 0); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate checks that every count is usable.
func (c Config) Validate() error {
	for _, f := range []struct {
		key string
		v   int
	}{
		{"batch_size", c.BatchSize},
		{"block_size", c.BlockSize},
		{"eval_interval", c.EvalInterval},
	} {
		if err := config.Positive(f.key, f.v); err != nil {
			return err
		}
	}
	if c.MaxSteps < 0 {
		return runerr.Configuration("config", "max_steps must not be negative, got %d", c.MaxSteps)
	}
	if c.MaxDuration < 0 {
		return runerr.Configuration("config", "max_duration must not be negative, got %s", c.MaxDuration)
	}
	if c.LogWeightStats && c.WeightStatsInterval <= 0 {
		return runerr.Configuration("config", "weight_stats_interval must be positive, got %d", c.WeightStatsInterval)
	}
	if c.CheckpointInterval < 0 {
		return runerr.Configuration("config", "checkpoint_interval must not be negative, got %d", c.CheckpointInterval)
	}
	return nil
}
