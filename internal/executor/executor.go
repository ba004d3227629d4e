// Package executor runs a validated stage graph to completion on a pool of
// concurrent workers. A stage failure cancels the run and skips every
// transitive dependent; independent branches already running are allowed to
// finish.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/lorapipe/internal/artifact"
	"github.com/vk/lorapipe/internal/config"
	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/dag"
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/internal/stage"
)

// Executor orchestrates the end-to-end execution of a stage graph.
type Executor struct {
	Graph *dag.Graph

	workers   int
	registry  *registry.Registry
	converter config.Converter
	rc        *stage.RunContext

	wg sync.WaitGroup
}

// New creates an Executor. workerCount values below one are raised to one.
func New(graph *dag.Graph, workerCount int, reg *registry.Registry, converter config.Converter, rc *stage.RunContext) *Executor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Executor{
		Graph:     graph,
		workers:   workerCount,
		registry:  reg,
		converter: converter,
		rc:        rc,
	}
}

// Run executes the graph and blocks until every node is done, failed, or
// skipped. The returned error reflects the first stage failure.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readyChan := make(chan *dag.Node, len(e.Graph.Nodes))
	e.wg.Add(len(e.Graph.Nodes))

	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, readyChan, cancel, i)
	}

	roots := e.Graph.Roots()
	logger.Debug("Seeding ready channel with root nodes.", "count", len(roots))
	for _, n := range roots {
		readyChan <- n
	}

	e.wg.Wait()
	close(readyChan)

	return e.runError()
}

// runError collects the first failure, preferring genuinely failed stages
// over skipped ones.
func (e *Executor) runError() error {
	var skipErr error
	for _, id := range e.sortedNodeIDs() {
		n := e.Graph.Nodes[id]
		if n.GetState() != dag.Failed || n.Error == nil {
			continue
		}
		if !n.Skipped {
			return fmt.Errorf("stage '%s' failed: %w", n.Stage.Name, n.Error)
		}
		if skipErr == nil {
			skipErr = fmt.Errorf("stage '%s' skipped: %w", n.Stage.Name, n.Error)
		}
	}
	return skipErr
}

// Report summarizes every node's terminal state for the run manifest.
func (e *Executor) Report() []*artifact.StageResult {
	results := make([]*artifact.StageResult, 0, len(e.Graph.Nodes))
	for _, id := range e.sortedNodeIDs() {
		n := e.Graph.Nodes[id]
		r := &artifact.StageResult{
			Name:     n.Stage.Name,
			Kind:     n.Stage.Kind,
			Attempts: n.Attempts,
			Duration: n.Duration,
		}
		switch {
		case n.GetState() == dag.Done:
			r.Status = artifact.StageDone
		case n.Skipped:
			r.Status = artifact.StageSkipped
		default:
			r.Status = artifact.StageFailed
		}
		if n.Error != nil {
			r.Error = n.Error.Error()
			r.ExitCode = exitCodeOf(n.Error)
		}
		results = append(results, r)
	}
	return results
}

func (e *Executor) sortedNodeIDs() []string {
	ids := make([]string, 0, len(e.Graph.Nodes))
	for id := range e.Graph.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
