package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunnerScript writes a tiny shell script standing in for a real
// compiler/runner, so these tests exercise ProcessSandbox's framing
// (temp files, streaming, cancellation) without depending on a Go
// toolchain being installed in the test environment.
func fakeRunnerScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-runner.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessSandboxRunStreamsOutput(t *testing.T) {
	runner := fakeRunnerScript(t, `echo "hello from sandbox"`)
	p := NewProcessSandbox(runner, t.TempDir(), ".go")

	var out bytes.Buffer
	err := p.Run(context.Background(), RunOptions{Source: "package main", MaxOutputLength: 1000}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello from sandbox")
}

func TestProcessSandboxRunTruncatesOversizedOutput(t *testing.T) {
	runner := fakeRunnerScript(t, `yes x | head -c 5000`)
	p := NewProcessSandbox(runner, t.TempDir(), ".go")

	var out bytes.Buffer
	err := p.Run(context.Background(), RunOptions{Source: "package main", MaxOutputLength: 100}, &out)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.String()), 100+len(TruncationMarker))
	assert.True(t, strings.HasSuffix(out.String(), TruncationMarker))
}

func TestProcessSandboxRunRemovesTempFileOnSuccess(t *testing.T) {
	tempDir := t.TempDir()
	runner := fakeRunnerScript(t, `echo ok`)
	p := NewProcessSandbox(runner, tempDir, ".go")

	var out bytes.Buffer
	require.NoError(t, p.Run(context.Background(), RunOptions{Source: "package main", MaxOutputLength: 100}, &out))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp source file must not outlive the run")
}

func TestProcessSandboxRunRemovesTempFileOnFailure(t *testing.T) {
	tempDir := t.TempDir()
	runner := fakeRunnerScript(t, `exit 1`)
	p := NewProcessSandbox(runner, tempDir, ".go")

	var out bytes.Buffer
	err := p.Run(context.Background(), RunOptions{Source: "package main", MaxOutputLength: 100}, &out)

	assert.Error(t, err)
	entries, readErr := os.ReadDir(tempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "temp source file must be cleaned up even when the runner fails")
}

func TestProcessSandboxRunCancelledOnDeadline(t *testing.T) {
	runner := fakeRunnerScript(t, `sleep 5; echo "should never print"`)
	p := NewProcessSandbox(runner, t.TempDir(), ".go")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	var out bytes.Buffer
	err := p.Run(ctx, RunOptions{Source: "package main", MaxOutputLength: 1000}, &out)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 4*time.Second, "cancellation must kill the child promptly instead of waiting out the sleep")
	assert.NotContains(t, out.String(), "should never print")
}

func TestProcessSandboxRunCancelledExplicitly(t *testing.T) {
	runner := fakeRunnerScript(t, `sleep 5`)
	p := NewProcessSandbox(runner, t.TempDir(), ".go")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	var out bytes.Buffer
	err := p.Run(ctx, RunOptions{Source: "package main", MaxOutputLength: 1000}, &out)
	assert.ErrorIs(t, err, context.Canceled)
}
