package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/lorapipe/internal/config"
)

func TestPrune(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
		&config.Stage{Kind: "extract", Name: "adapter", DependsOn: []string{"train"}},
		&config.Stage{Kind: "generate", Name: "gen", DependsOn: []string{"adapter"}},
		&config.Stage{Kind: "evaluate", Name: "score", DependsOn: []string{"gen"}},
	))
	require.NoError(t, err)

	require.NoError(t, g.Prune("gen"))

	require.Len(t, g.Nodes, 3)
	assert.Contains(t, g.Nodes, "stage.train")
	assert.Contains(t, g.Nodes, "stage.adapter")
	assert.Contains(t, g.Nodes, "stage.gen")
	assert.NotContains(t, g.Nodes, "stage.score")

	// The dropped dependent edge must not leak from surviving nodes.
	assert.NotContains(t, g.Nodes["stage.gen"].Dependents, "stage.score")

	gen := g.Nodes["stage.gen"]
	assert.Equal(t, int32(0), gen.DecrementDepCount())
}

func TestPruneUnknownStage(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
	))
	require.NoError(t, err)

	assert.ErrorContains(t, g.Prune("ghost"), `unknown stage "ghost"`)
}

func TestPruneToRoot(t *testing.T) {
	g, err := Build(context.Background(), model(
		&config.Stage{Kind: "finetune", Name: "train"},
		&config.Stage{Kind: "extract", Name: "adapter", DependsOn: []string{"train"}},
	))
	require.NoError(t, err)

	require.NoError(t, g.Prune("train"))
	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Nodes["stage.train"].Dependents)
}
