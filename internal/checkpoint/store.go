package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vk/lmrun/internal/fsutil"
	"github.com/vk/lmrun/internal/hcl"
	"github.com/vk/lmrun/internal/runerr"
)

const (
	fileExt       = ".ckpt.json"
	configExt     = ".hcl"
	stepSeparator = "-step"
)

// FileName returns the checkpoint file name for a run at a step.
func FileName(runName string, step int) string {
	if runName == "" {
		runName = "run"
	}
	return fmt.Sprintf("%s%s%08d%s", runName, stepSeparator, step, fileExt)
}

// Save writes c to path as indented JSON. The file is written to a temporary
// name in the same directory and renamed into place, so a crash never leaves
// a truncated checkpoint behind. If c carries a config, it is also rendered
// as HCL next to the checkpoint.
func Save(path string, c *Checkpoint) error {
	if c.Metadata.Version == 0 {
		c.Metadata.Version = FormatVersion
	}
	if c.Metadata.CreatedAt.IsZero() {
		c.Metadata.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if c.Config != nil {
		if err := hcl.WriteFile(ConfigPath(path), c.Config); err != nil {
			return fmt.Errorf("failed to write checkpoint config: %w", err)
		}
	}
	return nil
}

// ConfigPath returns where Save renders the config of the checkpoint at path.
func ConfigPath(path string) string {
	return strings.TrimSuffix(path, fileExt) + configExt
}

// Load reads and validates the checkpoint at path. Any failure is a
// configuration error: a run cannot start from a checkpoint it cannot trust.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, runerr.Configuration("load checkpoint", "failed to read %s: %w", path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, runerr.Configuration("load checkpoint", "failed to decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Latest returns the path of the highest-step checkpoint for runName in dir
// or below it. An empty runName matches any run. It returns fs.ErrNotExist
// when there is none.
func Latest(dir, runName string) (string, error) {
	paths, err := fsutil.FindFiles(dir, func(name string) bool {
		run, _, ok := parseFileName(name)
		return ok && (runName == "" || run == runName)
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fs.ErrNotExist
		}
		return "", fmt.Errorf("failed to list checkpoints: %w", err)
	}

	best, bestStep := "", -1
	for _, path := range paths {
		_, step, _ := parseFileName(filepath.Base(path))
		if step > bestStep {
			best, bestStep = path, step
		}
	}
	if best == "" {
		return "", fs.ErrNotExist
	}
	return best, nil
}

func parseFileName(name string) (string, int, bool) {
	base, ok := strings.CutSuffix(name, fileExt)
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndex(base, stepSeparator)
	if i < 0 {
		return "", 0, false
	}
	step, err := strconv.Atoi(base[i+len(stepSeparator):])
	if err != nil {
		return "", 0, false
	}
	return base[:i], step, true
}
