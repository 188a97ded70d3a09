package pipeline

import (
	"time"

	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/trainer"
)

// StatusCompleted is the status of a run that trained to termination.
const StatusCompleted = 1

// RunResult describes a finished run.
type RunResult struct {
	Status         int
	State          trainer.Phase
	StartStep      int
	FinalStep      int
	TrainLosses    map[int]float64
	ValidLosses    map[int]float64
	BestValidLoss  float64
	BestStep       int
	HasBest        bool
	Metrics        []trainer.MetricRecord
	StopReason     string
	Duration       time.Duration
	CheckpointPath string
	NumParams      int
	Flat           *config.Params
	// Tracked reports whether the tracking backend accepted the run.
	Tracked bool
}

func newResult(out *trainer.Outcome, flat *config.Params, numParams int) *RunResult {
	r := &RunResult{Flat: flat, NumParams: numParams}
	if out == nil {
		r.State = trainer.PhaseFailed
		return r
	}
	r.State = out.Phase
	r.StartStep = out.StartStep
	r.FinalStep = out.FinalStep
	r.TrainLosses = out.TrainLosses
	r.ValidLosses = out.ValidLosses
	r.BestValidLoss = out.BestValidLoss
	r.BestStep = out.BestStep
	r.HasBest = out.HasBest
	r.Metrics = out.Metrics
	r.StopReason = out.StopReason
	r.Duration = out.Duration
	r.CheckpointPath = out.CheckpointPath
	if out.Phase == trainer.PhaseDone {
		r.Status = StatusCompleted
	}
	return r
}
