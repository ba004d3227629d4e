package executor

import (
	"context"
	"time"

	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/dag"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *dag.Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "stage", n.Stage.Name)

		if ctx.Err() != nil {
			// A node skipped at pickup still owes its dependents a skip,
			// or they would sit on a dependency counter that never drains.
			if n.Skip(ctx.Err(), &e.wg) {
				e.skipDependents(ctx, n)
			}
			continue
		}

		workerLogger.Debug("Worker picked up stage for execution.")
		n.SetState(dag.Running)

		started := time.Now()
		err := e.runStageNode(ctx, n)
		n.Duration = time.Since(started)
		if err != nil {
			workerLogger.Error("Stage execution failed.", "error", err)
			n.Error = err
			n.SetState(dag.Failed)
			cancel()
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Stage execution succeeded.")
		n.SetState(dag.Done)

		for _, dependent := range n.Dependents {
			if dependent.DecrementDepCount() == 0 {
				workerLogger.Debug("Unlocking dependent stage.", "dependent", dependent.ID)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// skipDependents transitively marks every dependent of a failed node as
// skipped so the WaitGroup can drain.
func (e *Executor) skipDependents(ctx context.Context, n *dag.Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.Dependents {
		err := &UpstreamError{StageName: n.Stage.Name}
		if dependent.Skip(err, &e.wg) {
			logger.Debug("Skipping dependent stage.", "stage", dependent.Stage.Name, "failed_upstream", n.Stage.Name)
			e.skipDependents(ctx, dependent)
		}
	}
}

// UpstreamError marks a stage that never ran because a stage it depends on
// failed.
type UpstreamError struct {
	StageName string
}

func (e *UpstreamError) Error() string {
	return "upstream stage '" + e.StageName + "' failed"
}
