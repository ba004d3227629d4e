package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(dir, "a.hcl"), now)
	writeFile(t, filepath.Join(dir, "sub", "b.hcl"), now)
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), now)

	files, err := FindFilesByExtension(dir, ".hcl")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestNewestFileByExtension(t *testing.T) {
	t.Run("picks most recently modified", func(t *testing.T) {
		dir := t.TempDir()
		base := time.Now().Add(-time.Hour)
		writeFile(t, filepath.Join(dir, "checkpoint-0.pth"), base)
		writeFile(t, filepath.Join(dir, "checkpoint-2.pth"), base.Add(20*time.Minute))
		writeFile(t, filepath.Join(dir, "checkpoint-1.pth"), base.Add(10*time.Minute))
		writeFile(t, filepath.Join(dir, "notes.txt"), base.Add(30*time.Minute))

		got, err := NewestFileByExtension(dir, ".pth")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "checkpoint-2.pth"), got)
	})

	t.Run("does not recurse", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "sub", "deep.pth"), time.Now())

		_, err := NewestFileByExtension(dir, ".pth")
		assert.ErrorContains(t, err, "no \".pth\" file found")
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := NewestFileByExtension(filepath.Join(t.TempDir(), "nope"), ".pth")
		assert.Error(t, err)
	})
}
