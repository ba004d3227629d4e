// Package launch wraps os/exec for the external pipeline entry points:
// command specs, environment merging, line-wise log capture, and exit-code
// extraction.
package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vk/lorapipe/internal/ctxlog"
)

// ExitCodeNotFound is reported when the program could not be started at all.
const ExitCodeNotFound = 127

// Spec describes a single subprocess invocation.
type Spec struct {
	// Program is the executable to run, resolved via PATH when relative.
	Program string
	// Args are the command-line arguments, excluding the program itself.
	Args []string
	// Env holds variables merged over the parent environment.
	Env map[string]string
	// Dir is the working directory. Empty means the parent's.
	Dir string
}

// String renders the spec as a copy-pasteable command line.
func (s *Spec) String() string {
	parts := make([]string, 0, len(s.Env)+len(s.Args)+1)
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, s.Env[k]))
	}
	parts = append(parts, s.Program)
	parts = append(parts, s.Args...)
	return strings.Join(parts, " ")
}

// Result holds the outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// ExitError is returned when the subprocess ran but exited non-zero.
type ExitError struct {
	Spec     *Spec
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Spec.Program, e.ExitCode)
}

// Runner abstracts subprocess execution so tests can substitute a recording
// implementation.
type Runner interface {
	Run(ctx context.Context, spec *Spec) (*Result, error)
}

// ExecRunner executes commands on the local host. Stdout and stderr are
// streamed line-wise into the context logger.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, spec *Spec) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("program", spec.Program)
	logger.Info("Launching subprocess.", "command", spec.String())

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return &Result{ExitCode: ExitCodeNotFound, Duration: time.Since(start)},
				fmt.Errorf("program %s not found: %w", spec.Program, err)
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Program, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			logger.Info(scanner.Text(), "stream", "stdout")
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			logger.Info(scanner.Text(), "stream", "stderr")
		}
	}()

	wg.Wait()
	err = cmd.Wait()
	result := &Result{ExitCode: 0, Duration: time.Since(start)}

	if err != nil {
		// Prefer the context error: a killed process reports an opaque -1.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Spec: spec, ExitCode: result.ExitCode}
		}
		return nil, fmt.Errorf("subprocess %s failed: %w", spec.Program, err)
	}

	logger.Info("Subprocess finished.", "duration", result.Duration.Round(time.Millisecond).String())
	return result, nil
}

// mergedEnv overlays spec-provided variables on the parent environment.
func mergedEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	out := make([]string, 0, len(env)+len(overlay))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if _, shadowed := overlay[k]; !shadowed {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, overlay[k]))
	}
	return out
}
