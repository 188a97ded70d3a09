package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/lmrun/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("lmrun", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
lmrun - Train a character-level language model from an HCL run configuration.

Usage:
  lmrun [options] CONFIG_NAME

Arguments:
  CONFIG_NAME
    Name of a run configuration in the config directory (charLM-test
    resolves to <config-dir>/charLM-test.hcl and setup_charLM-test.hcl),
    or a path to an .hcl file.

Options:
`)
		flagSet.PrintDefaults()
	}

	configDirFlag := flagSet.String("config-dir", app.DefaultConfigDir, "Directory holding run and setup configurations.")
	dataFlag := flagSet.String("data", "", "Path to the training corpus (plain text).")
	checkpointFlag := flagSet.String("checkpoint", "", "Resume from this checkpoint file, or from the newest checkpoint of the run in this directory.")
	checkpointDirFlag := flagSet.String("checkpoint-dir", "", "Directory to write checkpoints to. Empty uses checkpoint_dir from the config.")
	trackerFlag := flagSet.String("tracker", app.DefaultTracker, "Experiment tracker. Options: 'log' or 'socketio'.")
	trackerURLFlag := flagSet.String("tracker-url", "", "Tracking server URL for the socketio tracker.")
	namespaceFlag := flagSet.String("tracker-namespace", app.DefaultNamespace, "Socket.IO namespace for the socketio tracker.")
	insecureFlag := flagSet.Bool("tracker-insecure", false, "Skip TLS certificate verification for the socketio tracker.")
	projectFlag := flagSet.String("project", "", "Project name runs are filed under.")
	runNameFlag := flagSet.String("run-name", "", "Run name. Defaults to the config name.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	resumeFlag := flagSet.Bool("resume", false, "Resume from the newest checkpoint of the run in the checkpoint directory, if there is one.")
	quietFlag := flagSet.Bool("quiet", false, "Do not print the resolved setting before training.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No config name provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected one CONFIG_NAME, got %d arguments", flagSet.NArg())}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigName:       flagSet.Arg(0),
		ConfigDir:        *configDirFlag,
		DataPath:         *dataFlag,
		CheckpointPath:   *checkpointFlag,
		CheckpointDir:    *checkpointDirFlag,
		Resume:           *resumeFlag,
		Tracker:          *trackerFlag,
		TrackerURL:       *trackerURLFlag,
		TrackerNamespace: *namespaceFlag,
		TrackerInsecure:  *insecureFlag,
		Project:          *projectFlag,
		RunName:          *runNameFlag,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
		StatusPort:       *statusPortFlag,
		Quiet:            *quietFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
