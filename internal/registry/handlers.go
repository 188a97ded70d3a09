package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/lmrun/internal/pipeline"
)

// RegisterBuilder registers the model builder for a `model` name.
func (r *Registry) RegisterBuilder(name string, b pipeline.Builder) {
	if _, exists := r.BuilderRegistry[name]; exists {
		panic(fmt.Sprintf("model builder with name '%s' already registered", name))
	}
	slog.Debug("Registering model builder.", "name", name)
	r.BuilderRegistry[name] = b
}

// RegisterTracker registers a tracking backend factory.
func (r *Registry) RegisterTracker(name string, f TrackerFactory) {
	if _, exists := r.TrackerRegistry[name]; exists {
		panic(fmt.Sprintf("tracker with name '%s' already registered", name))
	}
	slog.Debug("Registering tracker.", "name", name)
	r.TrackerRegistry[name] = f
}
