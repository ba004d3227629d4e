package dag

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/config"
)

// State represents the execution state of a node in the graph.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies to complete.
	Pending State = iota
	// Running indicates the node is currently being executed by a worker.
	Running
	// Done indicates the node has completed execution successfully.
	Done
	// Failed indicates the node has failed execution or was skipped.
	Failed
)

// Node is a single vertex in the execution graph: one stage instance.
type Node struct {
	// ID is the unique identifier, "stage.<instance_name>".
	ID string
	// Stage holds the node's configuration.
	Stage *config.Stage

	// Deps and Dependents are the adjacent nodes, keyed by ID.
	Deps       map[string]*Node
	Dependents map[string]*Node

	// Error stores any error that occurred during the node's execution.
	Error error
	// Output stores the handler's result for use by downstream expressions.
	Output cty.Value
	// Attempts counts how many times the handler ran, including retries.
	Attempts int
	// Duration is the wall time the handler spent across all attempts.
	Duration time.Duration
	// Skipped marks nodes never run because an upstream stage failed.
	Skipped bool

	// depCount is an atomic counter of unmet dependencies.
	depCount atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32
	// skipOnce ensures a node is marked as skipped exactly once.
	skipOnce sync.Once
}

// newNode creates a Pending node for a stage.
func newNode(s *config.Stage) *Node {
	return &Node{
		ID:         NodeID(s.Name),
		Stage:      s,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
		Output:     cty.NilVal,
	}
}

// NodeID returns the canonical node ID for a stage instance name.
func NodeID(name string) string {
	return "stage." + name
}

// DecrementDepCount atomically decrements the dependency counter and returns
// the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// SetInitialCounters seeds the dependency counter from the linked edges.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// GetState atomically retrieves the node's execution state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

// Skip marks a node as failed-without-running and decrements the WaitGroup
// counter. A sync.Once guarantees this happens only once; the return value
// reports whether this call was the first.
func (n *Node) Skip(err error, wg *sync.WaitGroup) bool {
	var wasSkipped bool
	n.skipOnce.Do(func() {
		n.SetState(Failed)
		n.Error = err
		n.Skipped = true
		wg.Done()
		wasSkipped = true
	})
	return wasSkipped
}

// Graph is the validated stage dependency graph.
type Graph struct {
	Nodes map[string]*Node
}

// addEdge links node `to` as a dependent of node `from`. Self-references are
// rejected; duplicate edges are ignored.
func (g *Graph) addEdge(from, to *Node) error {
	if from.ID == to.ID {
		return fmt.Errorf("stage '%s' cannot depend on itself", from.Stage.Name)
	}
	if _, exists := to.Deps[from.ID]; exists {
		return nil
	}
	to.Deps[from.ID] = from
	from.Dependents[to.ID] = to
	return nil
}

// detectCycles checks the graph for any cycles using a depth-first search
// with permanent and temporary marks. A non-nil error names a node involved
// in the first cycle found.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID)
		}

		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Roots returns the nodes with no dependencies, in no particular order.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.Nodes {
		if len(n.Deps) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}
