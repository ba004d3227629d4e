package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/lorapipe/internal/app"
	"github.com/vk/lorapipe/internal/hclcfg"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a pipeline test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Runner    *RecordingRunner
	RunDir    string
}

// RunPipelineTest provides a standardized harness for running a pipeline
// end to end against a recording runner, using a default background context.
// A nil runner gets a fresh always-succeeding RecordingRunner. The mutate
// functions can adjust the app configuration before the run.
func RunPipelineTest(t *testing.T, files map[string]string, runner *RecordingRunner, mutate ...func(*app.Config)) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithContext(context.Background(), t, files, runner, mutate...)
}

// RunPipelineTestWithContext is RunPipelineTest with a caller-provided
// context.
func RunPipelineTestWithContext(ctx context.Context, t *testing.T, files map[string]string, runner *RecordingRunner, mutate ...func(*app.Config)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	pipelineDir := filepath.Join(tmpDir, "pipeline")
	runDir := filepath.Join(tmpDir, "run")
	require.NoError(t, os.Mkdir(pipelineDir, 0755))

	for name, content := range files {
		filePath := filepath.Join(pipelineDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig := &app.Config{
		PipelinePath: pipelineDir,
		RunDir:       runDir,
		LogLevel:     "debug",
		LogFormat:    "text",
		WorkerCount:  4,
	}
	for _, fn := range mutate {
		fn(appConfig)
	}

	logBuffer := &SafeBuffer{}
	if runner == nil {
		runner = &RecordingRunner{}
	}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hclcfg.NewLoader())
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Runner:    runner,
			RunDir:    runDir,
		}
	}
	testApp.SetRunner(runner)

	runErr := testApp.Run(ctx, appConfig)

	if os.Getenv("LORAPIPE_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Runner:    runner,
		RunDir:    runDir,
	}
}
