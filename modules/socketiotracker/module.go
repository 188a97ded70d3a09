// Package socketiotracker reports runs to a tracking server over socket.io.
//
// A run produces three kinds of events: "run:init" once with the project,
// run name and swept configuration, "run:log" for every step that has
// metrics, and "run:finish" with the final status.
package socketiotracker

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/internal/tracking"
)

// Name is the --tracker value that selects this backend.
const Name = "socketio"

// Event names.
const (
	EventInit   = "run:init"
	EventLog    = "run:log"
	EventFinish = "run:finish"
)

const connectTimeout = 15 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the tracker factory.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTracker(Name, New)
}

// InitPayload is the body of a run:init event.
type InitPayload struct {
	Project   string         `json:"project"`
	Run       string         `json:"run"`
	Config    map[string]any `json:"config"`
	StartStep int            `json:"start_step"`
}

// LogPayload is the body of a run:log event.
type LogPayload struct {
	Run     string             `json:"run"`
	Step    int                `json:"step"`
	Metrics map[string]float64 `json:"metrics"`
}

// FinishPayload is the body of a run:finish event.
type FinishPayload struct {
	Run    string `json:"run"`
	Status string `json:"status"`
}

// Tracker emits tracking events over socket.io. It connects on Init.
type Tracker struct {
	dial   dialFunc
	client client
	run    string
}

// New creates a Tracker for the server at opts.URL.
func New(_ context.Context, opts registry.TrackerOptions) (tracking.Tracker, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%s tracker requires a server URL", Name)
	}
	return &Tracker{dial: dialer(opts.URL, opts.Namespace, opts.Insecure, connectTimeout)}, nil
}

// Init implements tracking.Tracker.
// A connection that fails after dialing is closed before Init returns, since
// the session never calls Finish for a run it could not open.
func (t *Tracker) Init(ctx context.Context, info tracking.RunInfo) error {
	payload := InitPayload{
		Project:   info.Project,
		Run:       info.Name,
		Config:    map[string]any{},
		StartStep: info.StartStep,
	}
	if info.Config != nil {
		native, err := info.Config.Native()
		if err != nil {
			return err
		}
		payload.Config = native
	}

	c, err := t.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.Emit(EventInit, payload); err != nil {
		c.Close()
		return fmt.Errorf("emit %s: %w", EventInit, err)
	}
	t.client = c
	t.run = info.Name
	ctxlog.FromContext(ctx).Info("📡 Reporting to tracking server.", "sid", c.ID(), "run", info.Name)
	return nil
}

// Log implements tracking.Tracker.
func (t *Tracker) Log(_ context.Context, step int, metrics map[string]float64) error {
	if t.client == nil {
		return errDisconnected
	}
	return t.client.Emit(EventLog, LogPayload{Run: t.run, Step: step, Metrics: metrics})
}

// Finish implements tracking.Tracker.
func (t *Tracker) Finish(_ context.Context, failed bool) error {
	if t.client == nil {
		return nil
	}
	defer t.client.Close()
	status := "completed"
	if failed {
		status = "failed"
	}
	return t.client.Emit(EventFinish, FinishPayload{Run: t.run, Status: status})
}
