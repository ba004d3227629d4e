// Package extract implements the adapter-extraction stage: it runs the
// external extraction program against the newest training checkpoint and
// records the generation parameters beside the extracted adapter.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/stage"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'extract' stage kind.
type Input struct {
	Script     string `lp:"script"`
	Checkpoint string `lp:"checkpoint"`
}

// OnRunExtract is the handler for the 'extract' stage kind.
func OnRunExtract(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error) {
	checkpoint := input.Checkpoint
	if checkpoint == "" {
		found, err := rc.Layout.NewestCheckpoint()
		switch {
		case err == nil:
			checkpoint = found
		case rc.DryRun:
			// Nothing has trained yet in a dry run; print a plausible path.
			checkpoint = filepath.Join(rc.Layout.CheckpointDir(), "checkpoint.pth")
		default:
			return cty.NilVal, err
		}
	}
	ctxlog.FromContext(ctx).Info("Extracting adapter.", "checkpoint", checkpoint)

	spec := &launch.Spec{
		Program: rc.Pipeline.Python,
		Args:    []string{input.Script, "--checkpoint", checkpoint},
	}
	if _, err := rc.Launch(ctx, spec); err != nil {
		return cty.NilVal, fmt.Errorf("adapter extraction failed: %w", err)
	}

	adapterPath := rc.Layout.AdapterPath()
	if !rc.DryRun {
		if _, err := os.Stat(adapterPath); err != nil {
			return cty.NilVal, fmt.Errorf("extraction produced no adapter at %s: %w", adapterPath, err)
		}
		// Hyper-variant extractors write generate_params.json themselves with
		// keys the generation program depends on, so an existing file must
		// stay untouched. Only fall back to writing one when the extractor
		// left none behind.
		if _, err := os.Stat(rc.Layout.GenerateParamsPath()); os.IsNotExist(err) {
			params, err := artifact.ReadAdapterParams(rc.Layout.AdapterParamsPath())
			if err != nil {
				return cty.NilVal, err
			}
			gp := &artifact.GenerateParams{MaxSeqLen: params.MaxSeqLen}
			if err := artifact.WriteGenerateParams(rc.Layout.GenerateParamsPath(), gp); err != nil {
				return cty.NilVal, err
			}
		}
	}

	return cty.ObjectVal(map[string]cty.Value{
		"adapter_path": cty.StringVal(adapterPath),
		"checkpoint":   cty.StringVal(checkpoint),
	}), nil
}

// Register registers the stage kind with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("extract", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Inputs: map[string]*config.InputDefinition{
			"script":     {Name: "script", Default: config.Default(cty.StringVal("extract_adapter_from_checkpoint.py"))},
			"checkpoint": {Name: "checkpoint", Optional: true},
		},
		Fn: OnRunExtract,
	})
}
