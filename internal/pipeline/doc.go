// Package pipeline executes one run of one hyperparameter point.
//
// Run opens a tracking session, seeds the run's random context exactly once,
// asks the Builder for a model and its optimizer/scheduler pair (restoring a
// checkpoint when one is given), and hands everything to a trainer.Loop. The
// tracking session is closed on every exit path.
package pipeline
