package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
)

// Build constructs a complete, validated dependency graph from a config
// model.
func Build(ctx context.Context, model *config.Model) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all nodes.
	for _, s := range model.Stages {
		n := newNode(s)
		if _, dup := graph.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate stage name '%s'", s.Name)
		}
		graph.Nodes[n.ID] = n
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link explicit and implicit dependencies.
	for _, n := range graph.Nodes {
		if err := linkExplicitDeps(ctx, n, graph); err != nil {
			return nil, err
		}
		for _, expr := range n.Stage.Arguments {
			if err := linkImplicitDeps(ctx, n, expr, graph); err != nil {
				return nil, err
			}
		}
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, n := range graph.Nodes {
		n.SetInitialCounters()
	}

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// linkExplicitDeps wires the edges declared with depends_on. Entries name a
// stage instance, with or without the "stage." prefix.
func linkExplicitDeps(ctx context.Context, n *Node, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, dep := range n.Stage.DependsOn {
		depID := dep
		if _, ok := graph.Nodes[depID]; !ok {
			depID = NodeID(dep)
		}
		depNode, ok := graph.Nodes[depID]
		if !ok {
			return fmt.Errorf("stage '%s' depends on unknown stage '%s'", n.Stage.Name, dep)
		}
		logger.Debug("Linking explicit dependency.", "from", n.ID, "to", depID)
		if err := graph.addEdge(depNode, n); err != nil {
			return err
		}
	}
	return nil
}

// linkImplicitDeps parses an argument expression for stage.<name> variable
// traversals and links the referenced stages as dependencies.
func linkImplicitDeps(ctx context.Context, n *Node, expr hcl.Expression, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, traversal := range expr.Variables() {
		if len(traversal) < 2 || traversal.RootName() != "stage" {
			continue
		}
		nameAttr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}

		depID := NodeID(nameAttr.Name)
		depNode, found := graph.Nodes[depID]
		if !found {
			return fmt.Errorf("implicit dependency error in '%s': referenced stage '%s' does not exist", n.ID, nameAttr.Name)
		}

		if _, exists := n.Deps[depID]; !exists {
			logger.Debug("Linking implicit dependency.", "from", n.ID, "to", depID)
			if err := graph.addEdge(depNode, n); err != nil {
				return err
			}
		}
	}
	return nil
}
