// Package config holds the run configuration model: an ordered mapping of
// hyperparameter names to cty values, and the two-tier merge that resolves a
// swept (variable) configuration against task-fixed settings.
//
// The resolved Params is the single source of truth for model construction,
// the optimizer and the training loop. Format-specific loading lives in
// separate packages (see internal/hcl).
package config
