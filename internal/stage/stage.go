// Package stage defines the runtime context handed to stage handlers: the
// run's artifact layout, resolved device set, subprocess runner, and the
// shared pipeline settings.
package stage

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/device"
	"github.com/vk/lorapipe/internal/launch"
)

// RunContext carries everything a stage handler needs beyond its own
// decoded arguments.
type RunContext struct {
	// Pipeline holds the run-wide settings from the pipeline block.
	Pipeline *config.Pipeline
	// Layout resolves artifact paths inside the run directory.
	Layout *artifact.Layout
	// Devices is the clamped device set for this run.
	Devices device.Set
	// Runner executes subprocesses.
	Runner launch.Runner
	// DryRun suppresses subprocess execution; resolved command lines are
	// printed to Out instead.
	DryRun bool
	// Out is the user-facing output stream for reports and dry-run command
	// lines.
	Out io.Writer
}

// Launch runs a subprocess through the configured runner, or prints its
// command line when dry-running. The spec's environment always carries the
// run's visible device list.
func (rc *RunContext) Launch(ctx context.Context, spec *launch.Spec) (*launch.Result, error) {
	if spec.Env == nil {
		spec.Env = make(map[string]string, 1)
	}
	if _, set := spec.Env[device.VisibleEnv]; !set {
		spec.Env[device.VisibleEnv] = rc.Devices.String()
	}

	if rc.DryRun {
		ctxlog.FromContext(ctx).Debug("Dry run: skipping subprocess.", "command", spec.String())
		fmt.Fprintln(rc.Out, spec.String())
		return &launch.Result{}, nil
	}
	return rc.Runner.Run(ctx, spec)
}

// ModelPaths returns the pipeline's base-model paths, failing when the
// pipeline block declared none.
func (rc *RunContext) ModelPaths() (*config.ModelPaths, error) {
	if rc.Pipeline.Model == nil {
		return nil, fmt.Errorf("pipeline %q declares no model block", rc.Pipeline.Name)
	}
	return rc.Pipeline.Model, nil
}
