package app

import (
	"errors"
	"fmt"

	"github.com/vk/lmrun/internal/tracking"
)

// Defaults for optional fields of Config.
const (
	DefaultConfigDir = "configs"
	DefaultTracker   = "log"
	DefaultNamespace = "/"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigName string // run config name or .hcl path
	ConfigDir  string // where bare names and setup_<name>.hcl are looked up
	DataPath   string // training corpus

	CheckpointPath string // resume from this checkpoint file, or the newest one in this directory
	CheckpointDir  string // write checkpoints here
	Resume         bool   // resume from the newest checkpoint in CheckpointDir, if any

	Tracker          string
	TrackerURL       string
	TrackerNamespace string
	TrackerInsecure  bool
	Project          string
	RunName          string

	LogFormat  string
	LogLevel   string
	StatusPort int
	Quiet      bool
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigName == "" {
		return nil, errors.New("ConfigName is a required configuration field and cannot be empty")
	}
	if cfg.DataPath == "" {
		return nil, errors.New("DataPath is a required configuration field and cannot be empty")
	}
	if cfg.Resume && cfg.CheckpointPath != "" {
		return nil, errors.New("Resume and CheckpointPath are mutually exclusive")
	}
	if cfg.StatusPort < 0 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = DefaultConfigDir
	}
	if cfg.Tracker == "" {
		cfg.Tracker = DefaultTracker
	}
	if cfg.TrackerNamespace == "" {
		cfg.TrackerNamespace = DefaultNamespace
	}
	if cfg.Project == "" {
		cfg.Project = tracking.DefaultProject
	}
	return &cfg, nil
}
