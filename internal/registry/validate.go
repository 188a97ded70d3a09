package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/runerr"
)

// ValidateRegistry checks that the registry can serve a run: at least one
// model builder, at least one tracker, and no nil entries.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	if len(r.BuilderRegistry) == 0 {
		errs = append(errs, "no model builders registered")
	}
	if len(r.TrackerRegistry) == 0 {
		errs = append(errs, "no trackers registered")
	}
	for name, b := range r.BuilderRegistry {
		if b == nil {
			errs = append(errs, fmt.Sprintf("model builder '%s' is nil", name))
		}
	}
	for name, f := range r.TrackerRegistry {
		if f == nil {
			errs = append(errs, fmt.Sprintf("tracker '%s' is nil", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated.", "models", r.BuilderNames(), "trackers", r.TrackerNames())
	return nil
}

// ValidateSelection checks that the chosen model and tracker are registered.
func (r *Registry) ValidateSelection(model, tracker string) error {
	var errs []string
	if _, ok := r.BuilderRegistry[model]; !ok {
		errs = append(errs, fmt.Sprintf("unknown model '%s' (available: %s)", model, strings.Join(r.BuilderNames(), ", ")))
	}
	if _, ok := r.TrackerRegistry[tracker]; !ok {
		errs = append(errs, fmt.Sprintf("unknown tracker '%s' (available: %s)", tracker, strings.Join(r.TrackerNames(), ", ")))
	}
	if len(errs) > 0 {
		return runerr.Configuration("registry", "invalid selection:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
