package hclcfg

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/fsutil"
)

// Loader loads HCL pipeline files and translates them into the
// format-agnostic config model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load implements config.Loader. Each path may be a single .hcl file or a
// directory searched recursively. Exactly one `pipeline` block must exist
// across all loaded files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to stat config path: %w", err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, nil, fmt.Errorf("failed to scan config directory %s: %w", path, err)
			}
			files = append(files, found...)
		} else {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no .hcl files found in: %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered configuration files.", "count", len(files))

	evalCtx := baseEvalContext()

	var (
		pipeline     *Pipeline
		pipelineFile string
		stages       []*Stage
	)
	for _, file := range files {
		hclFile, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var parsed File
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &parsed); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		if parsed.Pipeline != nil {
			if pipeline != nil {
				return nil, nil, fmt.Errorf("duplicate pipeline block: defined in both %s and %s", pipelineFile, file)
			}
			pipeline = parsed.Pipeline
			pipelineFile = file
		}
		stages = append(stages, parsed.Stages...)
	}

	if pipeline == nil {
		return nil, nil, fmt.Errorf("no pipeline block found in: %s", strings.Join(paths, ", "))
	}

	model, err := l.translate(ctx, pipeline, stages)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Configuration translated into unified model.", "stages", len(model.Stages))

	return model, NewConverter(), nil
}

// baseEvalContext builds the evaluation context available to top-level
// pipeline attributes: the process environment under the `env` root.
func baseEvalContext() *hcl.EvalContext {
	envVars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envVars[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVars),
		},
	}
}
