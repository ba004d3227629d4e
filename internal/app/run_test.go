package app_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/lorapipe/internal/app"
	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/testutil"
)

const fullPipelineHCL = `
	pipeline "summarize" {
		run_dir = "overridden-by-harness"

		model {
			base_path      = "/models/llama-7b"
			tokenizer_path = "/models/llama-7b/tokenizer.model"
		}

		devices {
			visible = "0,1,2,3"
		}
	}

	stage "finetune" "train" {
		arguments {
			data_path = "/data/train.jsonl"
			lora_rank = 16
		}
	}

	stage "extract" "adapter" {
		depends_on = ["train"]
		arguments {}
	}

	stage "generate" "predict" {
		depends_on = ["adapter"]
		arguments {
			data_path = "/data/eval.jsonl"
		}
	}

	stage "evaluate" "score" {
		depends_on = ["predict"]
		arguments {}
	}
`

func TestRun_DryRunPrintsEveryStageCommand(t *testing.T) {
	t.Parallel()

	files := map[string]string{"main.hcl": fullPipelineHCL}
	result := testutil.RunPipelineTest(t, files, nil, func(cfg *app.Config) {
		cfg.DryRun = true
	})
	require.NoError(t, result.Err)

	out := result.LogOutput
	// Four visible devices clamp to the default maximum of two processes.
	assert.Contains(t, out, "torchrun --nproc_per_node 2")
	assert.Contains(t, out, "--lora_rank 16")
	assert.Contains(t, out, "--llama_path /models/llama-7b")
	assert.Contains(t, out, "extract_adapter_from_checkpoint.py --checkpoint")
	assert.Contains(t, out, "--adapter_path")
	assert.Contains(t, out, "--predict_file")

	// Stages must print in dependency order.
	train := strings.Index(out, "--nproc_per_node")
	adapter := strings.Index(out, "extract_adapter_from_checkpoint.py")
	predict := strings.Index(out, "--max_batch_size")
	score := strings.Index(out, "--predict_file")
	assert.True(t, train < adapter && adapter < predict && predict < score,
		"expected train < adapter < predict < score in output ordering")

	// A dry run does not execute anything.
	assert.Empty(t, result.Runner.Commands())
}

const commandChainHCL = `
	pipeline "chain" {
		run_dir = "overridden-by-harness"

		devices {
			visible = "0,1,2"
			max     = 2
		}
	}

	stage "command" "prep" {
		arguments {
			program = "echo"
			args    = ["hello"]
		}
	}

	stage "command" "pack" {
		arguments {
			program = "tar"
			args    = ["-czf", "out.tgz", stage.prep.exit_code]
		}
	}
`

func TestRun_CommandChain(t *testing.T) {
	t.Parallel()

	files := map[string]string{"main.hcl": commandChainHCL}
	result := testutil.RunPipelineTest(t, files, nil)
	require.NoError(t, result.Err)

	commands := result.Runner.Commands()
	require.Len(t, commands, 2)
	// The clamped device list rides along on every launch.
	assert.Equal(t, "CUDA_VISIBLE_DEVICES=0,1 echo hello", commands[0])
	// The upstream exit code flows through the expression into the args.
	assert.Equal(t, "CUDA_VISIBLE_DEVICES=0,1 tar -czf out.tgz 0", commands[1])

	manifest, err := artifact.ReadManifest(artifact.NewLayout(result.RunDir).ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, "chain", manifest.Pipeline)
	assert.True(t, manifest.Succeeded)
	assert.Equal(t, "0,1", manifest.Devices)
	require.Len(t, manifest.Stages, 2)
	for _, s := range manifest.Stages {
		assert.Equal(t, artifact.StageDone, s.Status)
	}
}

const failingChainHCL = `
	pipeline "chain" {
		run_dir = "overridden-by-harness"

		devices {
			visible = "0"
		}
	}

	stage "command" "prep" {
		arguments {
			program = "echo"
		}
	}

	stage "command" "pack" {
		depends_on = ["prep"]
		arguments {
			program = "tar"
		}
	}

	stage "command" "final" {
		depends_on = ["pack"]
		arguments {
			program = "echo"
		}
	}
`

func TestRun_FailureSkipsDownstream(t *testing.T) {
	t.Parallel()

	runner := &testutil.RecordingRunner{FailWith: map[string]int{"tar": 3}}
	files := map[string]string{"main.hcl": failingChainHCL}
	result := testutil.RunPipelineTest(t, files, runner)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "stage 'pack' failed")

	manifest, err := artifact.ReadManifest(artifact.NewLayout(result.RunDir).ManifestPath())
	require.NoError(t, err)
	assert.False(t, manifest.Succeeded)

	byName := map[string]*artifact.StageResult{}
	for _, s := range manifest.Stages {
		byName[s.Name] = s
	}
	assert.Equal(t, artifact.StageDone, byName["prep"].Status)
	assert.Equal(t, artifact.StageFailed, byName["pack"].Status)
	assert.Equal(t, 3, byName["pack"].ExitCode)
	assert.Equal(t, artifact.StageSkipped, byName["final"].Status)
}

func TestRun_StageFilter(t *testing.T) {
	t.Parallel()

	files := map[string]string{"main.hcl": failingChainHCL}
	result := testutil.RunPipelineTest(t, files, nil, func(cfg *app.Config) {
		cfg.Stage = "pack"
	})
	require.NoError(t, result.Err)

	commands := result.Runner.Commands()
	require.Len(t, commands, 2, "only the target stage and its dependency should run")

	manifest, err := artifact.ReadManifest(artifact.NewLayout(result.RunDir).ManifestPath())
	require.NoError(t, err)
	require.Len(t, manifest.Stages, 2)
}

func TestRun_UnknownStageKindFailsStartup(t *testing.T) {
	t.Parallel()

	files := map[string]string{"main.hcl": `
		pipeline "p" {
			run_dir = "overridden-by-harness"
		}

		stage "teleport" "x" {
			arguments {}
		}
	`}
	result := testutil.RunPipelineTest(t, files, nil)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "application startup panicked")
}
