package trainer

import (
	"context"

	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
)

// LossEstimator averages the loss over Iters batches of BatchSize rows.
// Gradients are never computed. When RNG is set, batches are drawn inside
// RNG.WithSeed(Seed), so every evaluation sees the same windows and the
// training stream continues exactly where it left off.
type LossEstimator struct {
	Iters     int
	BatchSize int
	RNG       *rng.Context
	Seed      int64
}

// Evaluate implements Evaluator.
func (e *LossEstimator) Evaluate(ctx context.Context, model Model, source dataset.BatchSource, split string) (float64, error) {
	if e.Iters <= 0 {
		return 0, runerr.Configuration("evaluate", "eval_iters must be positive, got %d", e.Iters)
	}
	var mean float64
	estimate := func() error {
		var total float64
		for i := 0; i < e.Iters; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := source.Next(split, e.BatchSize)
			if err != nil {
				return asData("evaluate", err)
			}
			loss, err := model.Loss(batch)
			if err != nil {
				return runerr.TrainingStep("evaluate", "forward pass on %s: %w", split, err)
			}
			total += loss
		}
		mean = total / float64(e.Iters)
		return nil
	}

	var err error
	if e.RNG != nil {
		err = e.RNG.WithSeed(e.Seed, estimate)
	} else {
		err = estimate()
	}
	return mean, err
}

// asData classifies err as a data error unless it already carries a kind.
func asData(op string, err error) error {
	if _, ok := runerr.KindOf(err); ok {
		return err
	}
	return runerr.Data(op, "%w", err)
}
