package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/pipeline"
)

// Run executes one training run described by the app config.
func (a *App) Run(ctx context.Context) (*pipeline.RunResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startStatusServer(ctx)
	defer func() {
		_ = a.closeStatusServer(ctx)
	}()

	setting, err := a.setting(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Run prepared.", "run", setting.LogName, "tracker", a.config.Tracker,
		"resume", setting.Checkpoint != nil)

	res, err := pipeline.Run(ctx, setting, !a.config.Quiet)
	if err != nil {
		return res, err
	}

	attrs := []any{"run", setting.LogName, "status", res.Status, "final_step", res.FinalStep}
	if res.HasBest {
		attrs = append(attrs, "best_valid_loss", res.BestValidLoss, "best_step", res.BestStep)
	}
	if res.CheckpointPath != "" {
		attrs = append(attrs, "checkpoint", res.CheckpointPath)
	}
	a.logger.Info("✅ Run completed.", attrs...)
	a.logger.Debug("App.Run method finished.")
	return res, nil
}

// runNameFor derives a run name from a config name or path:
// "configs/charLM-test.hcl" becomes "charLM-test".
func runNameFor(configName string) string {
	base := filepath.Base(configName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
