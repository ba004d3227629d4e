package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lorapipe/internal/ctxlog"
	"github.com/vk/lorapipe/internal/dag"
	"github.com/vk/lorapipe/internal/launch"
)

// runStageNode decodes a stage's arguments and invokes its handler,
// honoring the stage's timeout and retry settings.
func (e *Executor) runStageNode(ctx context.Context, n *dag.Node) error {
	logger := ctxlog.FromContext(ctx).With("stage", n.Stage.Name, "kind", n.Stage.Kind)
	logger.Info("▶️ Starting stage")

	registered, ok := e.registry.Lookup(n.Stage.Kind)
	if !ok {
		return fmt.Errorf("unknown stage kind '%s'", n.Stage.Kind)
	}

	var inputStruct any
	if registered.NewInput != nil {
		inputStruct = registered.NewInput()
	}
	if inputStruct != nil {
		evalCtx := e.buildEvalContext(ctx)
		err := e.converter.DecodeBody(ctx, inputStruct, n.Stage.Arguments, registered.Inputs, evalCtx)
		if err != nil {
			return fmt.Errorf("failed to decode arguments for stage '%s': %w", n.Stage.Name, err)
		}
	}

	output, err := e.callWithRetry(ctx, n, registered.Fn, inputStruct)
	if err != nil {
		return err
	}
	n.Output = output

	logger.Info("✅ Finished stage", "attempts", n.Attempts)
	return nil
}

// callWithRetry invokes the handler, retrying per the stage's retry budget
// with exponential backoff. Context errors are never retried.
func (e *Executor) callWithRetry(ctx context.Context, n *dag.Node, fn any, inputStruct any) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	var output cty.Value
	operation := func() error {
		n.Attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if n.Stage.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, n.Stage.Timeout)
			defer cancel()
		}

		var err error
		output, err = callHandler(attemptCtx, fn, e.rc, inputStruct)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		if n.Attempts <= n.Stage.Retries {
			logger.Warn("Stage attempt failed, retrying.", "stage", n.Stage.Name, "attempt", n.Attempts, "error", err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newRetryBackoff(), uint64(n.Stage.Retries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return cty.NilVal, err
	}
	return output, nil
}

// newRetryBackoff builds the per-stage retry policy. Stage launches are
// expensive, so the initial interval is generous.
func newRetryBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	return bo
}

// callHandler invokes a registered stage handler via reflection. The
// expected signature is
// func(ctx context.Context, rc *stage.RunContext, input *Input) (cty.Value, error).
func callHandler(ctx context.Context, fn any, rc any, inputStruct any) (cty.Value, error) {
	handlerFunc := reflect.ValueOf(fn)
	if handlerFunc.Kind() != reflect.Func || handlerFunc.Type().NumIn() != 3 || handlerFunc.Type().NumOut() != 2 {
		return cty.NilVal, fmt.Errorf("invalid handler signature: %T", fn)
	}

	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(rc)}
	if inputStruct == nil {
		callArgs = append(callArgs, reflect.Zero(handlerFunc.Type().In(2)))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(inputStruct))
	}

	results := handlerFunc.Call(callArgs)
	if errResult := results[1].Interface(); errResult != nil {
		return cty.NilVal, errResult.(error)
	}
	output, ok := results[0].Interface().(cty.Value)
	if !ok {
		return cty.NilVal, fmt.Errorf("handler returned %T, want cty.Value", results[0].Interface())
	}
	return output, nil
}

// exitCodeOf digs the subprocess exit code out of an error chain, or zero.
func exitCodeOf(err error) int {
	var exitErr *launch.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return 0
}
