// Package tracking reports run metadata and metrics to an experiment-tracking
// backend.
//
// A Tracker is a backend. A Session wraps one for the lifetime of a run: it is
// opened before training, closed on every exit path, and never lets a
// reporting failure stop training. Failures come back as reporting errors so
// callers can log them.
package tracking
