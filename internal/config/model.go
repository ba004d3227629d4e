package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of the entire
// pipeline configuration.
type Model struct {
	Pipeline *Pipeline
	Stages   []*Stage
}

// Pipeline holds the run-wide settings shared by every stage.
type Pipeline struct {
	Name   string
	RunDir string

	// Python is the interpreter used for the external entry points.
	Python string
	// Launcher is the distributed training launcher (e.g. torchrun).
	Launcher string

	Model   *ModelPaths
	Devices *DevicePolicy
}

// ModelPaths locates the frozen base model the adapter is trained against.
type ModelPaths struct {
	BasePath      string
	TokenizerPath string
}

// DevicePolicy is the format-agnostic form of the devices block.
type DevicePolicy struct {
	// Visible is an explicit comma-separated device list. Empty means
	// "consult CUDA_VISIBLE_DEVICES".
	Visible string
	// Max clamps the device count. Zero means the built-in default of 2.
	Max int
}

// Stage is the format-agnostic representation of a `stage` block: one
// instance of a registered stage kind.
type Stage struct {
	Kind      string
	Name      string
	Arguments map[string]hcl.Expression
	DependsOn []string
	Timeout   time.Duration
	Retries   int
}

// InputDefinition defines a single input argument of a stage kind. Stage
// modules declare these in Go; the converter uses them to apply defaults and
// to report missing required arguments.
type InputDefinition struct {
	Name        string
	Description string
	Default     *cty.Value
	Optional    bool
}

// Default is a convenience for declaring an InputDefinition default value.
func Default(v cty.Value) *cty.Value {
	return &v
}
