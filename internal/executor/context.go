package executor

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/dag"
)

// buildEvalContext assembles the variables available to a stage's argument
// expressions: completed stage outputs under `stage`, run-wide paths under
// `pipeline`, the resolved device set under `devices`, and the process
// environment under `env`.
func (e *Executor) buildEvalContext(ctx context.Context) *hcl.EvalContext {
	stageOutputs := make(map[string]cty.Value)
	for _, n := range e.Graph.Nodes {
		if n.GetState() != dag.Done || n.Output == cty.NilVal {
			continue
		}
		stageOutputs[n.Stage.Name] = n.Output
	}

	layout := e.rc.Layout
	pipelineVals := map[string]cty.Value{
		"name":             cty.StringVal(e.rc.Pipeline.Name),
		"run_dir":          cty.StringVal(layout.RunDir()),
		"checkpoint_dir":   cty.StringVal(layout.CheckpointDir()),
		"adapter_path":     cty.StringVal(layout.AdapterPath()),
		"predictions_path": cty.StringVal(layout.PredictionsPath()),
		"scores_path":      cty.StringVal(layout.ScoresPath()),
	}
	if e.rc.Pipeline.Model != nil {
		pipelineVals["base_model"] = cty.StringVal(e.rc.Pipeline.Model.BasePath)
	}

	deviceVals := map[string]cty.Value{
		"count":   cty.NumberIntVal(int64(e.rc.Devices.Count())),
		"visible": cty.StringVal(e.rc.Devices.String()),
	}

	envVars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envVars[k] = cty.StringVal(v)
		}
	}

	variables := map[string]cty.Value{
		"pipeline": cty.ObjectVal(pipelineVals),
		"devices":  cty.ObjectVal(deviceVals),
		"env":      cty.ObjectVal(envVars),
	}
	if len(stageOutputs) > 0 {
		variables["stage"] = cty.ObjectVal(stageOutputs)
	}

	return &hcl.EvalContext{Variables: variables}
}
