package registry

import (
	"context"
	"io"
	"sort"

	"github.com/vk/lmrun/internal/pipeline"
	"github.com/vk/lmrun/internal/tracking"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// TrackerOptions configures a tracking backend.
type TrackerOptions struct {
	URL       string
	Namespace string
	Insecure  bool // skip TLS certificate verification
	Out       io.Writer
}

// TrackerFactory creates a tracking backend.
type TrackerFactory func(ctx context.Context, opts TrackerOptions) (tracking.Tracker, error)

// Registry holds the registered model builders and tracker factories for a
// single application instance.
type Registry struct {
	BuilderRegistry map[string]pipeline.Builder
	TrackerRegistry map[string]TrackerFactory
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		BuilderRegistry: make(map[string]pipeline.Builder),
		TrackerRegistry: make(map[string]TrackerFactory),
	}
}

// Builder returns the model builder registered under name.
func (r *Registry) Builder(name string) (pipeline.Builder, bool) {
	b, ok := r.BuilderRegistry[name]
	return b, ok
}

// Tracker returns the tracker factory registered under name.
func (r *Registry) Tracker(name string) (TrackerFactory, bool) {
	f, ok := r.TrackerRegistry[name]
	return f, ok
}

// BuilderNames returns the registered model names in sorted order.
func (r *Registry) BuilderNames() []string {
	return sortedKeys(r.BuilderRegistry)
}

// TrackerNames returns the registered tracker names in sorted order.
func (r *Registry) TrackerNames() []string {
	return sortedKeys(r.TrackerRegistry)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
