package tracking

import (
	"context"
	"sync"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/runerr"
)

// Session is an open tracking run. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	tracker  Tracker
	info     RunInfo
	active   bool
	closed   bool
	failed   bool
	lastStep int
}

// Open initializes a tracking run. If the backend cannot be initialized the
// failure is logged and the returned session drops everything it is given;
// training goes on without tracking.
func Open(ctx context.Context, t Tracker, info RunInfo) *Session {
	if info.Project == "" {
		info.Project = DefaultProject
	}
	s := &Session{tracker: t, info: info, lastStep: -1}
	if t == nil {
		return s
	}
	if err := t.Init(ctx, info); err != nil {
		ctxlog.FromContext(ctx).Warn("Experiment tracking disabled: init failed.",
			"project", info.Project, "run", info.Name,
			"error", runerr.Reporting("tracking init", "%w", err))
		return s
	}
	s.active = true
	ctxlog.FromContext(ctx).Debug("Experiment tracking session opened.", "project", info.Project, "run", info.Name)
	return s
}

// Info returns the run description the session was opened with.
func (s *Session) Info() RunInfo {
	return s.info
}

// Active reports whether the backend accepted the run.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && !s.closed
}

// Log forwards the metrics of a step. Steps must not go backwards.
func (s *Session) Log(ctx context.Context, step int, metrics map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.closed {
		return nil
	}
	if step < s.lastStep {
		return runerr.Reporting("tracking log", "step %d is before last logged step %d", step, s.lastStep)
	}
	s.lastStep = step
	if err := s.tracker.Log(ctx, step, metrics); err != nil {
		return runerr.Reporting("tracking log", "step %d: %w", step, err)
	}
	return nil
}

// MarkFailed records that the run failed; Close reports it to the backend.
func (s *Session) MarkFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

// Close finishes the tracking run. It is safe to call more than once; only
// the first call reaches the backend.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.active {
		return nil
	}
	if err := s.tracker.Finish(ctx, s.failed); err != nil {
		return runerr.Reporting("tracking finish", "%w", err)
	}
	ctxlog.FromContext(ctx).Debug("Experiment tracking session closed.", "failed", s.failed)
	return nil
}
