// Package report aggregates per-example similarity scores produced by the
// external evaluation program into a run-level summary.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/stat"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Score is one example's precision/recall/F1 triple as emitted by the
// BERTScore-style scorer.
type Score struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// MetricSummary holds the aggregate statistics of a single metric.
type MetricSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Summary is the run-level aggregation over all scored examples.
type Summary struct {
	Examples  int           `json:"examples"`
	Precision MetricSummary `json:"precision"`
	Recall    MetricSummary `json:"recall"`
	F1        MetricSummary `json:"f1"`
}

// LoadScores reads a JSONL score file.
func LoadScores(path string) ([]*Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open score file: %w", err)
	}
	defer f.Close()

	var scores []*Score
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var s Score
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		scores = append(scores, &s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read score file %s: %w", path, err)
	}
	return scores, nil
}

// Aggregate computes the summary statistics over the given scores.
func Aggregate(scores []*Score) (*Summary, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("no scores to aggregate")
	}

	precision := make([]float64, len(scores))
	recall := make([]float64, len(scores))
	f1 := make([]float64, len(scores))
	for i, s := range scores {
		precision[i] = s.Precision
		recall[i] = s.Recall
		f1[i] = s.F1
	}

	return &Summary{
		Examples:  len(scores),
		Precision: summarize(precision),
		Recall:    summarize(recall),
		F1:        summarize(f1),
	}, nil
}

// summarize computes the statistics of a single metric column.
func summarize(values []float64) MetricSummary {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := MetricSummary{
		Mean:   stat.Mean(values, nil),
		Min:    sorted[0],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}

// Render writes a human-readable summary table.
func (s *Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "Scored %d examples\n", s.Examples)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Mean", "StdDev", "Min", "Median", "Max"})
	for _, row := range []struct {
		name string
		m    MetricSummary
	}{
		{"precision", s.Precision},
		{"recall", s.Recall},
		{"f1", s.F1},
	} {
		table.Append([]string{
			row.name,
			formatScore(row.m.Mean),
			formatScore(row.m.StdDev),
			formatScore(row.m.Min),
			formatScore(row.m.Median),
			formatScore(row.m.Max),
		})
	}
	table.Render()
}

// WriteSummary persists the summary as JSON.
func WriteSummary(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode score summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write score summary: %w", err)
	}
	return nil
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
