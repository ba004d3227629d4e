// Package evaluate implements the scoring stage: it runs the external
// scoring program over the merged predictions, then aggregates the
// per-example scores into a summary table.
package evaluate

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/report"
	"github.com/vk/lorapipe/internal/stage"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'evaluate' stage kind.
type Input struct {
	Script      string `lp:"script"`
	PredictFile string `lp:"predict_file"`
	Lang        string `lp:"lang"`
}

// OnRunEvaluate is the handler for the 'evaluate' stage kind.
func OnRunEvaluate(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error) {
	predictFile := input.PredictFile
	if predictFile == "" {
		predictFile = rc.Layout.PredictionsPath()
	}

	spec := &launch.Spec{
		Program: rc.Pipeline.Python,
		Args: []string{
			input.Script,
			"--predict_file", predictFile,
			"--lang", input.Lang,
			"--score_file", rc.Layout.ScoresPath(),
		},
	}
	if _, err := rc.Launch(ctx, spec); err != nil {
		return cty.NilVal, fmt.Errorf("evaluation failed: %w", err)
	}
	if rc.DryRun {
		return cty.ObjectVal(map[string]cty.Value{
			"scores_path":  cty.StringVal(rc.Layout.ScoresPath()),
			"summary_path": cty.StringVal(rc.Layout.SummaryPath()),
			"mean_f1":      cty.NumberFloatVal(0),
		}), nil
	}

	scores, err := report.LoadScores(rc.Layout.ScoresPath())
	if err != nil {
		return cty.NilVal, err
	}
	summary, err := report.Aggregate(scores)
	if err != nil {
		return cty.NilVal, err
	}
	summary.Render(rc.Out)
	if err := report.WriteSummary(rc.Layout.SummaryPath(), summary); err != nil {
		return cty.NilVal, err
	}

	return cty.ObjectVal(map[string]cty.Value{
		"scores_path":  cty.StringVal(rc.Layout.ScoresPath()),
		"summary_path": cty.StringVal(rc.Layout.SummaryPath()),
		"mean_f1":      cty.NumberFloatVal(summary.F1.Mean),
	}), nil
}

// Register registers the stage kind with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("evaluate", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Inputs: map[string]*config.InputDefinition{
			"script":       {Name: "script", Default: config.Default(cty.StringVal("evaluate.py"))},
			"predict_file": {Name: "predict_file", Optional: true},
			"lang":         {Name: "lang", Default: config.Default(cty.StringVal("en"))},
		},
		Fn: OnRunEvaluate,
	})
}
