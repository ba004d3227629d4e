// Package artifact manages the on-disk layout of a pipeline run: checkpoint
// and adapter locations, prediction and score files, the run manifest, and
// the lock that keeps two runs out of the same directory.
package artifact

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/vk/lorapipe/internal/fsutil"
)

// Well-known file names inside a run directory. The checkpoint and adapter
// names follow the conventions of the external training and extraction
// programs.
const (
	checkpointDirName  = "checkpoints"
	adapterFileName    = "adapter.pth"
	adapterParamsName  = "adapter_params.json"
	generateParamsName = "generate_params.json"
	predictionsName    = "predictions.jsonl"
	scoresName         = "scores.jsonl"
	summaryName        = "score_summary.json"
	manifestName       = "manifest.json"
	shardDirName       = "shards"
)

// Layout resolves every artifact path of a run from its root directory.
type Layout struct {
	runDir string
}

// NewLayout creates a Layout rooted at runDir.
func NewLayout(runDir string) *Layout {
	return &Layout{runDir: runDir}
}

// RunDir returns the root of the run directory.
func (l *Layout) RunDir() string { return l.runDir }

// CheckpointDir is where the fine-tuning stage writes checkpoints.
func (l *Layout) CheckpointDir() string { return filepath.Join(l.runDir, checkpointDirName) }

// AdapterPath is the extracted adapter weights file, written by the
// extraction program beside the checkpoint it came from.
func (l *Layout) AdapterPath() string { return filepath.Join(l.CheckpointDir(), adapterFileName) }

// AdapterParamsPath holds the adapter hyperparameters recorded at
// extraction time.
func (l *Layout) AdapterParamsPath() string {
	return filepath.Join(l.CheckpointDir(), adapterParamsName)
}

// GenerateParamsPath holds the parameters the generation program needs.
func (l *Layout) GenerateParamsPath() string {
	return filepath.Join(l.CheckpointDir(), generateParamsName)
}

// PredictionsPath is the merged generation output.
func (l *Layout) PredictionsPath() string { return filepath.Join(l.runDir, predictionsName) }

// ShardDir holds per-device dataset shards and their prediction outputs.
func (l *Layout) ShardDir() string { return filepath.Join(l.runDir, shardDirName) }

// ShardDataPath is the dataset shard assigned to one generation worker.
func (l *Layout) ShardDataPath(rank int) string {
	return filepath.Join(l.ShardDir(), shardName("data", rank))
}

// ShardSavePath is the prediction output of one generation worker.
func (l *Layout) ShardSavePath(rank int) string {
	return filepath.Join(l.ShardDir(), shardName("predictions", rank))
}

// ScoresPath is the per-example score file written by the evaluation program.
func (l *Layout) ScoresPath() string { return filepath.Join(l.runDir, scoresName) }

// SummaryPath is the aggregated score summary.
func (l *Layout) SummaryPath() string { return filepath.Join(l.runDir, summaryName) }

// ManifestPath is the run manifest written when the run finishes.
func (l *Layout) ManifestPath() string { return filepath.Join(l.runDir, manifestName) }

// EnsureDirs creates the run directory tree.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.runDir, l.CheckpointDir(), l.ShardDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// NewestCheckpoint returns the most recently written .pth checkpoint in the
// checkpoint directory, excluding the extracted adapter file.
func (l *Layout) NewestCheckpoint() (string, error) {
	path, err := fsutil.NewestFileByExtension(l.CheckpointDir(), ".pth")
	if err != nil {
		return "", err
	}
	if filepath.Base(path) != adapterFileName {
		return path, nil
	}
	// The adapter is newer than every checkpoint: fall back to scanning for
	// the newest non-adapter file.
	entries, err := os.ReadDir(l.CheckpointDir())
	if err != nil {
		return "", err
	}
	var (
		newest     string
		newestTime int64 = -1
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pth" || e.Name() == adapterFileName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", err
		}
		if mod := info.ModTime().UnixNano(); mod > newestTime {
			newestTime = mod
			newest = filepath.Join(l.CheckpointDir(), e.Name())
		}
	}
	if newest == "" {
		return "", &NoCheckpointError{Dir: l.CheckpointDir()}
	}
	return newest, nil
}

// NoCheckpointError is returned when a run directory holds no usable
// training checkpoint.
type NoCheckpointError struct {
	Dir string
}

func (e *NoCheckpointError) Error() string {
	return "no training checkpoint found in " + e.Dir
}

func shardName(prefix string, rank int) string {
	return prefix + "-" + strconv.Itoa(rank) + ".jsonl"
}
