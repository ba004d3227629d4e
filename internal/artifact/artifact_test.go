package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestLayoutEnsureDirs(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, l.EnsureDirs())
	assert.DirExists(t, l.CheckpointDir())
	assert.DirExists(t, l.ShardDir())
	assert.Equal(t, filepath.Join(l.CheckpointDir(), "adapter.pth"), l.AdapterPath())
}

func TestNewestCheckpoint(t *testing.T) {
	t.Run("picks latest checkpoint", func(t *testing.T) {
		l := NewLayout(t.TempDir())
		require.NoError(t, l.EnsureDirs())
		base := time.Now().Add(-time.Hour)
		touch(t, filepath.Join(l.CheckpointDir(), "checkpoint-0.pth"), base)
		touch(t, filepath.Join(l.CheckpointDir(), "checkpoint-1.pth"), base.Add(time.Minute))

		got, err := l.NewestCheckpoint()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(l.CheckpointDir(), "checkpoint-1.pth"), got)
	})

	t.Run("ignores extracted adapter", func(t *testing.T) {
		l := NewLayout(t.TempDir())
		require.NoError(t, l.EnsureDirs())
		base := time.Now().Add(-time.Hour)
		touch(t, filepath.Join(l.CheckpointDir(), "checkpoint-0.pth"), base)
		// Extraction already ran once: adapter.pth is newer than the checkpoint.
		touch(t, l.AdapterPath(), base.Add(time.Minute))

		got, err := l.NewestCheckpoint()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(l.CheckpointDir(), "checkpoint-0.pth"), got)
	})

	t.Run("empty checkpoint dir", func(t *testing.T) {
		l := NewLayout(t.TempDir())
		require.NoError(t, l.EnsureDirs())
		_, err := l.NewestCheckpoint()
		assert.Error(t, err)
	})
}

func TestGenerateParamsRoundTrip(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.EnsureDirs())

	require.NoError(t, WriteGenerateParams(l.GenerateParamsPath(), &GenerateParams{MaxSeqLen: 3400}))
	p, err := ReadGenerateParams(l.GenerateParamsPath())
	require.NoError(t, err)
	assert.Equal(t, 3400, p.MaxSeqLen)
}

func TestReadAdapterParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter_params.json")
	content := `{"w_bias": true, "w_lora": true, "lora_rank": 8, "lora_targets": "Q,K,V,O", "max_seq_len": 3400}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := ReadAdapterParams(path)
	require.NoError(t, err)
	assert.True(t, p.WBias)
	assert.Equal(t, 8, p.LoraRank)
	assert.Equal(t, "Q,K,V,O", p.LoraTargets)
}

func TestLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	require.NoError(t, err)

	_, err = AcquireLock(dir)
	assert.ErrorContains(t, err, "locked by another run")

	require.NoError(t, lock.Release())
	lock2, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestManifestRoundTrip(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.EnsureDirs())

	m := &Manifest{
		Pipeline:  "covidet",
		Devices:   "0,1",
		Succeeded: false,
		Stages: []*StageResult{
			{Name: "train", Kind: "finetune", Status: StageDone, Attempts: 1},
			{Name: "gen", Kind: "generate", Status: StageFailed, ExitCode: 2, Error: "exited with code 2"},
			{Name: "score", Kind: "evaluate", Status: StageSkipped},
		},
	}
	require.NoError(t, WriteManifest(l.ManifestPath(), m))

	got, err := ReadManifest(l.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, "covidet", got.Pipeline)
	require.Len(t, got.Stages, 3)
	assert.Equal(t, StageSkipped, got.Stages[2].Status)
	assert.Equal(t, 2, got.Stages[1].ExitCode)
}
