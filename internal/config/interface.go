package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the interface for format-specific data binding and type
// conversion. It is the bridge between raw configuration expressions and the
// Go input structs stage modules work with.
type Converter interface {
	// DecodeBody decodes a stage's raw `arguments` block into a target Go
	// struct, applying declared defaults and reporting missing required
	// arguments.
	DecodeBody(
		ctx context.Context,
		inputStruct any,
		args map[string]hcl.Expression,
		defs map[string]*InputDefinition,
		evalCtx *hcl.EvalContext,
	) error

	// ToCtyValue converts a native Go value (such as a map[string]any
	// returned by a stage handler) into its cty.Value equivalent for use in
	// downstream expression evaluation.
	ToCtyValue(v any) (cty.Value, error)
}
