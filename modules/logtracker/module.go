// Package logtracker is the default tracking backend: it writes run
// metadata and metrics as structured log records.
package logtracker

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/internal/tracking"
)

// Name is the --tracker value that selects this backend.
const Name = "log"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the tracker factory.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTracker(Name, New)
}

// Tracker logs every tracking call. With no writer it uses the logger in
// the context.
type Tracker struct {
	logger *slog.Logger
	out    io.Writer
}

// New creates a Tracker. opts.Out, when set, receives JSON records instead
// of the application log.
func New(_ context.Context, opts registry.TrackerOptions) (tracking.Tracker, error) {
	return &Tracker{out: opts.Out}, nil
}

func (t *Tracker) log(ctx context.Context) *slog.Logger {
	if t.logger == nil {
		if t.out != nil {
			t.logger = slog.New(slog.NewJSONHandler(t.out, nil))
		} else {
			t.logger = ctxlog.FromContext(ctx)
		}
		t.logger = t.logger.With("tracker", Name)
	}
	return t.logger
}

// Init implements tracking.Tracker.
func (t *Tracker) Init(ctx context.Context, info tracking.RunInfo) error {
	args := []any{"project", info.Project, "run", info.Name}
	if info.Config != nil {
		native, err := info.Config.Native()
		if err != nil {
			return err
		}
		args = append(args, "config", native)
	}
	t.log(ctx).Info("📈 Tracking run started.", args...)
	return nil
}

// Log implements tracking.Tracker.
func (t *Tracker) Log(ctx context.Context, step int, metrics map[string]float64) error {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names)+1)
	attrs = append(attrs, slog.Int("step", step))
	for _, name := range names {
		attrs = append(attrs, slog.Float64(name, metrics[name]))
	}
	t.log(ctx).Info("metrics", attrs...)
	return nil
}

// Finish implements tracking.Tracker.
func (t *Tracker) Finish(ctx context.Context, failed bool) error {
	status := "completed"
	if failed {
		status = "failed"
	}
	t.log(ctx).Info("Tracking run finished.", "status", status)
	return nil
}
