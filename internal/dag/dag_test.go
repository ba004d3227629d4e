package dag

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/lorapipe/internal/config"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func model(stages ...*config.Stage) *config.Model {
	return &config.Model{
		Pipeline: &config.Pipeline{Name: "test"},
		Stages:   stages,
	}
}

func TestBuildExplicitDeps(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
		&config.Stage{Kind: "extract", Name: "adapter", DependsOn: []string{"train"}},
		&config.Stage{Kind: "generate", Name: "gen", DependsOn: []string{"stage.adapter"}},
	))
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	train := g.Nodes["stage.train"]
	adapter := g.Nodes["stage.adapter"]
	gen := g.Nodes["stage.gen"]
	require.NotNil(t, train)
	require.NotNil(t, adapter)
	require.NotNil(t, gen)

	assert.Contains(t, adapter.Deps, "stage.train")
	assert.Contains(t, train.Dependents, "stage.adapter")
	assert.Contains(t, gen.Deps, "stage.adapter")

	roots := g.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "stage.train", roots[0].ID)
}

func TestBuildImplicitDeps(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
		&config.Stage{
			Kind: "command",
			Name: "archive",
			Arguments: map[string]hcl.Expression{
				"program": expr(t, `"tar"`),
				"args":    expr(t, `["-czf", "out.tgz", stage.train.checkpoint_dir]`),
			},
		},
	))
	require.NoError(t, err)

	archive := g.Nodes["stage.archive"]
	require.NotNil(t, archive)
	assert.Contains(t, archive.Deps, "stage.train")
}

func TestBuildErrors(t *testing.T) {
	t.Run("unknown explicit dependency", func(t *testing.T) {
		_, err := Build(context.Background(), model(
			&config.Stage{Kind: "finetune", Name: "train", DependsOn: []string{"nope"}},
		))
		assert.ErrorContains(t, err, "unknown stage 'nope'")
	})

	t.Run("unknown implicit dependency", func(t *testing.T) {
		_, err := Build(context.Background(), model(
			&config.Stage{
				Kind: "command",
				Name: "a",
				Arguments: map[string]hcl.Expression{
					"program": expr(t, `stage.ghost.path`),
				},
			},
		))
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("duplicate stage name", func(t *testing.T) {
		_, err := Build(context.Background(), model(
			&config.Stage{Kind: "finetune", Name: "train"},
			&config.Stage{Kind: "extract", Name: "train"},
		))
		assert.ErrorContains(t, err, "duplicate stage name")
	})

	t.Run("self reference", func(t *testing.T) {
		_, err := Build(context.Background(), model(
			&config.Stage{Kind: "finetune", Name: "train", DependsOn: []string{"train"}},
		))
		assert.ErrorContains(t, err, "cannot depend on itself")
	})

	t.Run("cycle detected", func(t *testing.T) {
		_, err := Build(context.Background(), model(
			&config.Stage{Kind: "command", Name: "a", DependsOn: []string{"c"}},
			&config.Stage{Kind: "command", Name: "b", DependsOn: []string{"a"}},
			&config.Stage{Kind: "command", Name: "c", DependsOn: []string{"b"}},
		))
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestNodeCounters(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
		&config.Stage{Kind: "extract", Name: "adapter", DependsOn: []string{"train"}},
		&config.Stage{Kind: "generate", Name: "gen", DependsOn: []string{"train", "adapter"}},
	))
	require.NoError(t, err)

	gen := g.Nodes["stage.gen"]
	assert.Equal(t, int32(1), gen.DecrementDepCount())
	assert.Equal(t, int32(0), gen.DecrementDepCount())
}
