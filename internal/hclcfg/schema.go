package hclcfg

import "github.com/hashicorp/hcl/v2"

// StageArgs represents the content of the 'arguments' block within a stage.
// The raw body is kept so expressions can be evaluated lazily, after
// upstream stage outputs are known.
type StageArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Stage represents a `stage` block from a user's pipeline file. It is a
// runnable instance of a registered stage kind.
type Stage struct {
	Kind      string     `hcl:"kind,label"`
	Name      string     `hcl:"instance_name,label"`
	Arguments *StageArgs `hcl:"arguments,block"`
	DependsOn []string   `hcl:"depends_on,optional"`
	Timeout   string     `hcl:"timeout,optional"`
	Retries   int        `hcl:"retries,optional"`
}

// Model represents the `model` block: where the frozen base model lives.
type Model struct {
	BasePath      string `hcl:"base_path"`
	TokenizerPath string `hcl:"tokenizer_path,optional"`
}

// Devices represents the `devices` block controlling the device-count clamp.
type Devices struct {
	Visible string `hcl:"visible,optional"`
	Max     int    `hcl:"max,optional"`
}

// Pipeline represents the single `pipeline` block with run-wide settings.
type Pipeline struct {
	Name     string   `hcl:"name,label"`
	RunDir   string   `hcl:"run_dir"`
	Python   string   `hcl:"python,optional"`
	Launcher string   `hcl:"launcher,optional"`
	Model    *Model   `hcl:"model,block"`
	Devices  *Devices `hcl:"devices,block"`
}

// File represents the top-level structure of a pipeline file.
type File struct {
	Pipeline *Pipeline `hcl:"pipeline,block"`
	Stages   []*Stage  `hcl:"stage,block"`
	Body     hcl.Body  `hcl:",remain"`
}
