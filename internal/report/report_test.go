package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.jsonl")
	content := `{"precision": 0.91, "recall": 0.85, "f1": 0.88}

{"precision": 0.80, "recall": 0.90, "f1": 0.85}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scores, err := LoadScores(path)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.91, scores[0].Precision, 1e-9)
	assert.InDelta(t, 0.85, scores[1].F1, 1e-9)
}

func TestLoadScoresMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{oops\n"), 0o644))

	_, err := LoadScores(path)
	assert.ErrorContains(t, err, ":1:")
}

func TestAggregate(t *testing.T) {
	t.Run("basic statistics", func(t *testing.T) {
		scores := []*Score{
			{Precision: 0.6, Recall: 0.5, F1: 0.4},
			{Precision: 0.8, Recall: 0.7, F1: 0.6},
			{Precision: 1.0, Recall: 0.9, F1: 0.8},
		}
		s, err := Aggregate(scores)
		require.NoError(t, err)

		assert.Equal(t, 3, s.Examples)
		assert.InDelta(t, 0.8, s.Precision.Mean, 1e-9)
		assert.InDelta(t, 0.6, s.Precision.Min, 1e-9)
		assert.InDelta(t, 1.0, s.Precision.Max, 1e-9)
		assert.InDelta(t, 0.8, s.Precision.Median, 1e-9)
		assert.InDelta(t, 0.6, s.F1.Mean, 1e-9)
		assert.Greater(t, s.F1.StdDev, 0.0)
	})

	t.Run("single example has zero stddev", func(t *testing.T) {
		s, err := Aggregate([]*Score{{Precision: 0.5, Recall: 0.5, F1: 0.5}})
		require.NoError(t, err)
		assert.Zero(t, s.F1.StdDev)
		assert.InDelta(t, 0.5, s.F1.Median, 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Aggregate(nil)
		assert.ErrorContains(t, err, "no scores")
	})
}

func TestRender(t *testing.T) {
	s, err := Aggregate([]*Score{
		{Precision: 0.9, Recall: 0.8, F1: 0.85},
		{Precision: 0.7, Recall: 0.6, F1: 0.65},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "Scored 2 examples")
	assert.Contains(t, out, "f1")
	assert.Contains(t, out, "0.7500")
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	s, err := Aggregate([]*Score{{Precision: 1, Recall: 1, F1: 1}})
	require.NoError(t, err)

	require.NoError(t, WriteSummary(path, s))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"examples": 1`)
}
