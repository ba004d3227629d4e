package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/lorapipe/internal/launch"
)

// RecordingRunner is a launch.Runner that records every spec it is asked to
// run instead of executing subprocesses. Failures can be scripted per
// command line.
type RecordingRunner struct {
	mu    sync.Mutex
	specs []*launch.Spec

	// FailWith maps a substring of the rendered command line to the exit
	// code that launch should report for it.
	FailWith map[string]int
	// OnRun, when set, decides the outcome of every launch and overrides
	// FailWith.
	OnRun func(spec *launch.Spec) (*launch.Result, error)
}

// Run implements launch.Runner.
func (r *RecordingRunner) Run(_ context.Context, spec *launch.Spec) (*launch.Result, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()

	if r.OnRun != nil {
		return r.OnRun(spec)
	}
	line := spec.String()
	for substr, code := range r.FailWith {
		if strings.Contains(line, substr) {
			return &launch.Result{ExitCode: code}, &launch.ExitError{Spec: spec, ExitCode: code}
		}
	}
	return &launch.Result{}, nil
}

// Specs returns the recorded specs in launch order.
func (r *RecordingRunner) Specs() []*launch.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*launch.Spec(nil), r.specs...)
}

// Commands returns the rendered command lines in launch order.
func (r *RecordingRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, len(r.specs))
	for i, spec := range r.specs {
		lines[i] = spec.String()
	}
	return lines
}
