package hclcfg

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
)

type decodeTarget struct {
	Script    string  `lp:"script"`
	Rank      int     `lp:"lora_rank"`
	Blr       float64 `lp:"blr"`
	WBias     bool    `lp:"w_bias"`
	Adapter   string  `lp:"adapter_path"`
	unmatched string
}

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), "failed to parse expression %q: %s", src, diags)
	return parsed
}

func defsFor(t *testing.T) map[string]*config.InputDefinition {
	t.Helper()
	return map[string]*config.InputDefinition{
		"script":       {Name: "script", Default: config.Default(cty.StringVal("main.py"))},
		"lora_rank":    {Name: "lora_rank", Default: config.Default(cty.NumberIntVal(8))},
		"blr":          {Name: "blr", Default: config.Default(cty.NumberFloatVal(0.009))},
		"w_bias":       {Name: "w_bias", Default: config.Default(cty.BoolVal(true))},
		"adapter_path": {Name: "adapter_path", Optional: true},
	}
}

func TestDecodeBody_ArgumentsAndDefaults(t *testing.T) {
	t.Parallel()

	args := map[string]hcl.Expression{
		"lora_rank": expr(t, "16"),
		"w_bias":    expr(t, "false"),
	}
	var target decodeTarget

	err := NewConverter().DecodeBody(context.Background(), &target, args, defsFor(t), &hcl.EvalContext{})
	require.NoError(t, err)

	require.Equal(t, 16, target.Rank, "explicit argument wins")
	require.False(t, target.WBias, "explicit argument wins over the default")
	require.Equal(t, "main.py", target.Script, "default applies when unset")
	require.InDelta(t, 0.009, target.Blr, 1e-9, "default applies when unset")
	require.Empty(t, target.Adapter, "optional argument stays zero")
}

func TestDecodeBody_MissingRequiredArgument(t *testing.T) {
	t.Parallel()

	defs := map[string]*config.InputDefinition{
		"script": {Name: "script"},
	}
	var target struct {
		Script string `lp:"script"`
	}

	err := NewConverter().DecodeBody(context.Background(), &target, nil, defs, &hcl.EvalContext{})
	require.Error(t, err)
	require.Contains(t, err.Error(), `missing required argument "script"`)
}

func TestDecodeBody_UnknownArgument(t *testing.T) {
	t.Parallel()

	args := map[string]hcl.Expression{
		"no_such_thing": expr(t, `"x"`),
	}
	var target decodeTarget

	err := NewConverter().DecodeBody(context.Background(), &target, args, defsFor(t), &hcl.EvalContext{})
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown argument "no_such_thing"`)
}

func TestDecodeBody_TypeConversion(t *testing.T) {
	t.Parallel()

	// A numeric string converts to an int through cty's conversion rules.
	args := map[string]hcl.Expression{
		"lora_rank": expr(t, `"32"`),
	}
	var target decodeTarget

	err := NewConverter().DecodeBody(context.Background(), &target, args, defsFor(t), &hcl.EvalContext{})
	require.NoError(t, err)
	require.Equal(t, 32, target.Rank)
}

func TestDecodeBody_VariablesFromEvalContext(t *testing.T) {
	t.Parallel()

	args := map[string]hcl.Expression{
		"adapter_path": expr(t, "pipeline.adapter_path"),
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pipeline": cty.ObjectVal(map[string]cty.Value{
				"adapter_path": cty.StringVal("/tmp/run/checkpoints/adapter.pth"),
			}),
		},
	}
	var target decodeTarget

	err := NewConverter().DecodeBody(context.Background(), &target, args, defsFor(t), evalCtx)
	require.NoError(t, err)
	require.Equal(t, "/tmp/run/checkpoints/adapter.pth", target.Adapter)
}

func TestToCtyValue_Passthrough(t *testing.T) {
	t.Parallel()

	c := NewConverter()

	v, err := c.ToCtyValue(cty.StringVal("x"))
	require.NoError(t, err)
	require.Equal(t, cty.StringVal("x"), v)

	v, err = c.ToCtyValue(nil)
	require.NoError(t, err)
	require.Equal(t, cty.NilVal, v)

	v, err = c.ToCtyValue("plain")
	require.NoError(t, err)
	require.Equal(t, cty.StringVal("plain"), v)
}
