package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePath is a single .hcl file or a directory of .hcl files.
	PipelinePath string

	// RunDir overrides the run directory declared in the pipeline block.
	RunDir string
	// Devices overrides the visible device list. Empty defers to the
	// pipeline block and the environment.
	Devices string
	// MaxDevices overrides the device-count clamp. Zero defers to the
	// pipeline block.
	MaxDevices int
	// Stage restricts the run to one stage and its dependencies.
	Stage string
	// DryRun prints resolved command lines instead of executing them.
	DryRun bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
