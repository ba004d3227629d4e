package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/dag"
	"github.com/vk/lorapipe/internal/device"
	"github.com/vk/lorapipe/internal/executor"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/stage"
)

// Run executes the loaded pipeline based on the provided configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, appConfig.HealthcheckPort)
		defer a.closeHealthcheckServer(ctx)
	}

	runDir := a.config.Pipeline.RunDir
	if appConfig.RunDir != "" {
		runDir = appConfig.RunDir
	}
	if runDir == "" {
		return fmt.Errorf("pipeline %q declares no run_dir and none was given on the command line", a.config.Pipeline.Name)
	}
	layout := artifact.NewLayout(runDir)
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to prepare run directory: %w", err)
	}
	lock, err := artifact.AcquireLock(runDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	devices, err := a.resolveDevices(appConfig)
	if err != nil {
		return err
	}
	a.logger.Info("Device set resolved.", "devices", devices.String(), "count", devices.Count())

	a.logger.Debug("Building dependency graph from config model...")
	graph, err := dag.Build(ctx, a.config)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	if appConfig.Stage != "" {
		if err := graph.Prune(appConfig.Stage); err != nil {
			return err
		}
		a.logger.Info("Run restricted to one stage and its dependencies.",
			"stage", appConfig.Stage, "node_count", len(graph.Nodes))
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	if len(graph.Nodes) == 0 {
		a.logger.Warn("No stages found in pipeline, execution not required.")
		return nil
	}

	runner := a.runner
	if runner == nil {
		runner = launch.NewExecRunner()
	}
	rc := &stage.RunContext{
		Pipeline: a.config.Pipeline,
		Layout:   layout,
		Devices:  devices,
		Runner:   runner,
		DryRun:   appConfig.DryRun,
		Out:      a.outW,
	}

	a.logger.Info("Starting pipeline execution.",
		"pipeline", a.config.Pipeline.Name, "run_dir", runDir, "dry_run", appConfig.DryRun)
	startedAt := time.Now()
	exec := executor.New(graph, appConfig.WorkerCount, a.registry, a.converter, rc)
	runErr := exec.Run(ctx)

	manifest := &artifact.Manifest{
		Pipeline:   a.config.Pipeline.Name,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Devices:    devices.String(),
		Succeeded:  runErr == nil,
		Stages:     exec.Report(),
	}
	if err := artifact.WriteManifest(layout.ManifestPath(), manifest); err != nil {
		if runErr == nil {
			return err
		}
		a.logger.Error("Failed to write run manifest.", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("pipeline execution failed: %w", runErr)
	}
	a.logger.Info("Pipeline execution finished.", "duration", time.Since(startedAt).String())
	return nil
}

// resolveDevices merges the pipeline's devices block with command-line
// overrides and produces the clamped device set.
func (a *App) resolveDevices(appConfig *Config) (device.Set, error) {
	policy := device.Policy{}
	if d := a.config.Pipeline.Devices; d != nil {
		policy.Visible = d.Visible
		policy.Max = d.Max
	}
	if appConfig.Devices != "" {
		policy.Visible = appConfig.Devices
	}
	if appConfig.MaxDevices > 0 {
		policy.Max = appConfig.MaxDevices
	}
	return policy.Resolve()
}
