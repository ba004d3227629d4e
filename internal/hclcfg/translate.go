// This file contains the logic for translating the HCL schema structs into
// the format-agnostic configuration model defined in the config package.

package hclcfg

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/lorapipe/internal/config"
)

// Defaults applied when the pipeline block leaves the interpreters unset.
const (
	defaultPython   = "python"
	defaultLauncher = "torchrun"
)

// translate converts the parsed HCL schema into the agnostic model.
func (l *Loader) translate(ctx context.Context, p *Pipeline, stages []*Stage) (*config.Model, error) {
	pipeline := &config.Pipeline{
		Name:     p.Name,
		RunDir:   p.RunDir,
		Python:   p.Python,
		Launcher: p.Launcher,
	}
	if pipeline.Python == "" {
		pipeline.Python = defaultPython
	}
	if pipeline.Launcher == "" {
		pipeline.Launcher = defaultLauncher
	}
	if p.Model != nil {
		pipeline.Model = &config.ModelPaths{
			BasePath:      p.Model.BasePath,
			TokenizerPath: p.Model.TokenizerPath,
		}
	}
	if p.Devices != nil {
		pipeline.Devices = &config.DevicePolicy{
			Visible: p.Devices.Visible,
			Max:     p.Devices.Max,
		}
	}

	model := &config.Model{Pipeline: pipeline}
	for _, s := range stages {
		translated, err := l.translateStage(s)
		if err != nil {
			return nil, err
		}
		model.Stages = append(model.Stages, translated)
	}
	return model, nil
}

// translateStage converts a single HCL stage block into the agnostic model.
func (l *Loader) translateStage(s *Stage) (*config.Stage, error) {
	stage := &config.Stage{
		Kind:      s.Kind,
		Name:      s.Name,
		Arguments: l.extractBodyAttributes(s.Arguments),
		DependsOn: s.DependsOn,
		Retries:   s.Retries,
	}
	if s.Retries < 0 {
		return nil, fmt.Errorf("stage %q: retries cannot be negative", s.Name)
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("stage %q: invalid timeout: %w", s.Name, err)
		}
		stage.Timeout = d
	}
	return stage, nil
}

// extractBodyAttributes flattens an arguments block into a map of named,
// unevaluated expressions.
func (l *Loader) extractBodyAttributes(args *StageArgs) map[string]hcl.Expression {
	if args == nil || args.Body == nil {
		return nil
	}
	attrs, _ := args.Body.JustAttributes()
	if attrs == nil {
		return nil
	}
	exprMap := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprMap[name] = attr.Expr
	}
	return exprMap
}
