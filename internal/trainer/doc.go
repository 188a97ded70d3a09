// Package trainer runs the train/evaluate loop of a single run.
//
// A Loop owns the training State and moves through the phases
// INIT → RUNNING ⇄ EVALUATING → DONE, with FAILED reachable from any phase.
// Each successful optimization step advances the step counter by exactly one
// and appends train/loss and train/lr records; evaluation runs on the
// configured cadence and once more at termination if the final step was not
// just evaluated. Records reach the MetricSink in increasing step order.
//
// The loop knows nothing about the model architecture. It talks to the
// Model, Optimizer, Scheduler and Evaluator interfaces, and to the data
// through dataset.BatchSource.
package trainer
