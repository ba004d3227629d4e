package artifact

import (
	"fmt"
	"os"
	"time"
)

// StageStatus is the terminal state of one stage in the manifest.
type StageStatus string

const (
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageResult records the outcome of a single stage for the run manifest.
type StageResult struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Status   StageStatus   `json:"status"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Manifest is the machine-readable record of a finished run.
type Manifest struct {
	Pipeline   string         `json:"pipeline"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Devices    string         `json:"devices"`
	Succeeded  bool           `json:"succeeded"`
	Stages     []*StageResult `json:"stages"`
}

// WriteManifest persists the manifest to the given path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a previously written manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run manifest %s: %w", path, err)
	}
	return &m, nil
}
