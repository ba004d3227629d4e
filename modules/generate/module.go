// Package generate implements the batched-generation stage: it shards the
// evaluation dataset across the visible devices, runs one generation process
// per device, and merges the per-device predictions in rank order.
package generate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/dataset"
	"github.com/vk/lorapipe/internal/device"
	"github.com/vk/lorapipe/internal/launch"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/stage"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'generate' stage kind. Names mirror
// the generation program's own flags.
type Input struct {
	Script       string  `lp:"script"`
	DataPath     string  `lp:"data_path"`
	AdapterPath  string  `lp:"adapter_path"`
	Temperature  float64 `lp:"temperature"`
	TopP         float64 `lp:"top_p"`
	MaxGenLen    int     `lp:"max_gen_len"`
	MinGenLen    int     `lp:"min_gen_len"`
	MaxBatchSize int     `lp:"max_batch_size"`
}

// OnRunGenerate is the handler for the 'generate' stage kind.
func OnRunGenerate(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error) {
	model, err := rc.ModelPaths()
	if err != nil {
		return cty.NilVal, err
	}
	if input.DataPath == "" {
		return cty.NilVal, fmt.Errorf("generate stage requires data_path")
	}
	if input.MaxBatchSize <= 0 {
		return cty.NilVal, fmt.Errorf("generate stage requires a positive max_batch_size")
	}
	adapterPath := input.AdapterPath
	if adapterPath == "" {
		adapterPath = rc.Layout.AdapterPath()
	}

	if rc.DryRun {
		spec := workerSpec(rc, input, model, adapterPath, 0)
		if _, err := rc.Launch(ctx, spec); err != nil {
			return cty.NilVal, err
		}
		return output(rc, 0), nil
	}

	records, err := dataset.Load(input.DataPath)
	if err != nil {
		return cty.NilVal, err
	}
	if len(records) == 0 {
		return cty.NilVal, fmt.Errorf("dataset %s holds no records", input.DataPath)
	}
	// Long and short inputs batch together more evenly after sorting, and
	// the contiguous shards end up with comparable token counts.
	dataset.SortByInputLength(records)

	logger := ctxlog.FromContext(ctx)
	if gp, err := artifact.ReadGenerateParams(rc.Layout.GenerateParamsPath()); err == nil {
		logger.Debug("Generation parameters recorded at extraction.", "max_seq_len", gp.MaxSeqLen)
	}

	world := rc.Devices.Count()
	if world > len(records) {
		world = len(records)
	}
	logger.Info("Sharding dataset for generation.",
		"examples", len(records), "shards", world)

	for rank := 0; rank < world; rank++ {
		shard := dataset.Shard(records, world, rank)
		if err := dataset.WriteJSONL(rc.Layout.ShardDataPath(rank), shard); err != nil {
			return cty.NilVal, err
		}
		batches := dataset.SplitBatches(shard, input.MaxBatchSize)
		logger.Debug("Wrote generation shard.",
			"rank", rank, "examples", len(shard), "batches", len(batches))
	}

	group, gctx := errgroup.WithContext(ctx)
	ids := rc.Devices.IDs()
	for rank := 0; rank < world; rank++ {
		rank := rank
		spec := workerSpec(rc, input, model, adapterPath, rank)
		if rank < len(ids) {
			spec.Env = map[string]string{device.VisibleEnv: ids[rank]}
		}
		group.Go(func() error {
			if _, err := rc.Launch(gctx, spec); err != nil {
				return fmt.Errorf("generation worker %d failed: %w", rank, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return cty.NilVal, err
	}

	if err := mergeShards(rc, world); err != nil {
		return cty.NilVal, err
	}
	return output(rc, len(records)), nil
}

// workerPortBase is the first rendezvous port handed to generation workers.
// Each worker is its own single-process torchrun world, so concurrent
// workers need distinct ports.
const workerPortBase = 29600

func workerSpec(rc *stage.RunContext, input *Input, model *config.ModelPaths, adapterPath string, rank int) *launch.Spec {
	// The generation program initializes a torch.distributed process group
	// and reads LOCAL_RANK/WORLD_SIZE from its launcher, so each worker
	// runs under the launcher as a world of one and consumes exactly the
	// shard file it is given.
	return &launch.Spec{
		Program: rc.Pipeline.Launcher,
		Args: []string{
			"--nproc_per_node", "1",
			"--master_port", strconv.Itoa(workerPortBase + rank),
			input.Script,
			"--ckpt_dir", model.BasePath,
			"--adapter_path", adapterPath,
			"--data_path", rc.Layout.ShardDataPath(rank),
			"--save_path", rc.Layout.ShardSavePath(rank),
			"--temperature", strconv.FormatFloat(input.Temperature, 'g', -1, 64),
			"--top_p", strconv.FormatFloat(input.TopP, 'g', -1, 64),
			"--max_gen_len", strconv.Itoa(input.MaxGenLen),
			"--min_gen_len", strconv.Itoa(input.MinGenLen),
			"--max_batch_size", strconv.Itoa(input.MaxBatchSize),
		},
	}
}

// mergeShards concatenates the per-device prediction files in rank order so
// the merged file lines up with the sorted dataset.
func mergeShards(rc *stage.RunContext, world int) error {
	merged, err := os.Create(rc.Layout.PredictionsPath())
	if err != nil {
		return fmt.Errorf("failed to create predictions file: %w", err)
	}
	defer merged.Close()

	for rank := 0; rank < world; rank++ {
		path := rc.Layout.ShardSavePath(rank)
		shard, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("generation worker %d left no output: %w", rank, err)
		}
		_, err = io.Copy(merged, shard)
		shard.Close()
		if err != nil {
			return fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}
	return nil
}

func output(rc *stage.RunContext, examples int) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"predictions_path": cty.StringVal(rc.Layout.PredictionsPath()),
		"examples":         cty.NumberIntVal(int64(examples)),
	})
}

// Register registers the stage kind with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("generate", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Inputs: map[string]*config.InputDefinition{
			"script":         {Name: "script", Default: config.Default(cty.StringVal("example.py"))},
			"data_path":      {Name: "data_path"},
			"adapter_path":   {Name: "adapter_path", Optional: true},
			"temperature":    {Name: "temperature", Default: config.Default(cty.NumberFloatVal(0.1))},
			"top_p":          {Name: "top_p", Default: config.Default(cty.NumberFloatVal(0.75))},
			"max_gen_len":    {Name: "max_gen_len", Default: config.Default(cty.NumberIntVal(128))},
			"min_gen_len":    {Name: "min_gen_len", Default: config.Default(cty.NumberIntVal(30))},
			"max_batch_size": {Name: "max_batch_size", Default: config.Default(cty.NumberIntVal(32))},
		},
		Fn: OnRunGenerate,
	})
}
