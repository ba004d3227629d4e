// Package command implements the generic passthrough stage: it runs an
// arbitrary program with the run's device environment applied.
package command

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/stage"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'command' stage kind.
type Input struct {
	Program string            `lp:"program"`
	Args    []string          `lp:"args"`
	Dir     string            `lp:"dir"`
	Env     map[string]string `lp:"env"`
}

// OnRunCommand is the handler for the 'command' stage kind.
func OnRunCommand(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error) {
	if input.Program == "" {
		return cty.NilVal, fmt.Errorf("command stage requires a program")
	}

	spec := &launch.Spec{
		Program: input.Program,
		Args:    input.Args,
		Dir:     input.Dir,
		Env:     input.Env,
	}
	result, err := rc.Launch(ctx, spec)
	if err != nil {
		return cty.NilVal, err
	}

	return cty.ObjectVal(map[string]cty.Value{
		"exit_code": cty.NumberIntVal(int64(result.ExitCode)),
	}), nil
}

// Register registers the stage kind with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("command", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Inputs: map[string]*config.InputDefinition{
			"program": {Name: "program"},
			"args":    {Name: "args", Optional: true},
			"dir":     {Name: "dir", Optional: true},
			"env":     {Name: "env", Optional: true},
		},
		Fn: OnRunCommand,
	})
}
