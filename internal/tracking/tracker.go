package tracking

import (
	"context"

	"github.com/vk/lmrun/internal/config"
)

// DefaultProject is the project runs are filed under when none is given.
const DefaultProject = "lm-hpo"

// RunInfo identifies a run to the tracking backend.
type RunInfo struct {
	Project string
	Name    string
	// Config is the swept (variable) configuration of the run.
	Config *config.Params
	// StartStep is the step the run resumes from; zero for a fresh run.
	StartStep int
}

// Tracker is an experiment-tracking backend.
type Tracker interface {
	Init(ctx context.Context, info RunInfo) error
	Log(ctx context.Context, step int, metrics map[string]float64) error
	Finish(ctx context.Context, failed bool) error
}
