// Package finetune implements the fine-tuning stage: it launches the
// external training entry point under the distributed launcher with one
// process per visible device.
package finetune

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/stage"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'finetune' stage kind. Names mirror
// the training program's own flags.
type Input struct {
	Script           string  `lp:"script"`
	DataPath         string  `lp:"data_path"`
	LoraRank         int     `lp:"lora_rank"`
	LoraTargets      string  `lp:"lora_targets"`
	NHyperLoraLayers int     `lp:"n_hyper_lora_layers"`
	MaxSeqLen        int     `lp:"max_seq_len"`
	BatchSize        int     `lp:"batch_size"`
	Epochs           int     `lp:"epochs"`
	WarmupEpochs     float64 `lp:"warmup_epochs"`
	Blr              float64 `lp:"blr"`
	WeightDecay      float64 `lp:"weight_decay"`
	WBias            bool    `lp:"w_bias"`
}

// OnRunFinetune is the handler for the 'finetune' stage kind.
func OnRunFinetune(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error) {
	model, err := rc.ModelPaths()
	if err != nil {
		return cty.NilVal, err
	}
	if input.DataPath == "" {
		return cty.NilVal, fmt.Errorf("finetune stage requires data_path")
	}

	nproc := rc.Devices.Count()
	args := []string{
		"--nproc_per_node", strconv.Itoa(nproc),
		input.Script,
		"--llama_path", model.BasePath,
		"--data_path", input.DataPath,
		"--lora_rank", strconv.Itoa(input.LoraRank),
		"--lora_targets", input.LoraTargets,
		"--n_hyper_lora_layers", strconv.Itoa(input.NHyperLoraLayers),
		"--max_seq_len", strconv.Itoa(input.MaxSeqLen),
		"--batch_size", strconv.Itoa(input.BatchSize),
		"--epochs", strconv.Itoa(input.Epochs),
		"--warmup_epochs", formatFloat(input.WarmupEpochs),
		"--blr", formatFloat(input.Blr),
		"--weight_decay", formatFloat(input.WeightDecay),
		"--output_dir", rc.Layout.CheckpointDir(),
	}
	if input.WBias {
		args = append(args, "--w_bias")
	}

	spec := &launch.Spec{
		Program: rc.Pipeline.Launcher,
		Args:    args,
	}
	if _, err := rc.Launch(ctx, spec); err != nil {
		return cty.NilVal, fmt.Errorf("fine-tuning failed: %w", err)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"checkpoint_dir": cty.StringVal(rc.Layout.CheckpointDir()),
		"nproc":          cty.NumberIntVal(int64(nproc)),
	}), nil
}

// Register registers the stage kind with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("finetune", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Inputs: map[string]*config.InputDefinition{
			"script":              {Name: "script", Default: config.Default(cty.StringVal("main_finetune.py"))},
			"data_path":           {Name: "data_path"},
			"lora_rank":           {Name: "lora_rank", Default: config.Default(cty.NumberIntVal(8))},
			"lora_targets":        {Name: "lora_targets", Default: config.Default(cty.StringVal("Q,K,V,O"))},
			"n_hyper_lora_layers": {Name: "n_hyper_lora_layers", Default: config.Default(cty.NumberIntVal(0))},
			"max_seq_len":         {Name: "max_seq_len", Default: config.Default(cty.NumberIntVal(2048))},
			"batch_size":          {Name: "batch_size", Default: config.Default(cty.NumberIntVal(4))},
			"epochs":              {Name: "epochs", Default: config.Default(cty.NumberIntVal(4))},
			"warmup_epochs":       {Name: "warmup_epochs", Default: config.Default(cty.NumberFloatVal(1))},
			"blr":                 {Name: "blr", Default: config.Default(cty.NumberFloatVal(0.009))},
			"weight_decay":        {Name: "weight_decay", Default: config.Default(cty.NumberFloatVal(0.02))},
			"w_bias":              {Name: "w_bias", Default: config.Default(cty.BoolVal(true))},
		},
		Fn: OnRunFinetune,
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
