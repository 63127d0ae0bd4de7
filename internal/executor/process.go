package executor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/luis198755/execgateway/internal/errs"
)

// ProcessSandbox runs the compiler/runner directly as an os/exec
// subprocess on the host, grounded on
// original_source/docker/pkg/executor/executor.go. It is the default
// backend and the one spec.md's testable properties are written against:
// isolation beyond the safety filter is the outer container's job, not
// this component's (spec.md §1 non-goals).
//
// A run passes through IDLE -> PREPARED -> STARTED -> STREAMING -> WAITED
// and terminates in DONE, FAILED or CANCELLED (spec.md §4.5); cleanup
// (temp file removal, process-group kill) runs on every exit path via
// defer, not as an explicit state.
type ProcessSandbox struct {
	runnerPath string
	tempDir    string
	sourceExt  string
	bufferPool sync.Pool
}

// NewProcessSandbox builds a ProcessSandbox that invokes runnerPath (a
// "go run"-shaped compiler/runner) against files written under tempDir.
func NewProcessSandbox(runnerPath, tempDir, sourceExt string) *ProcessSandbox {
	return &ProcessSandbox{
		runnerPath: runnerPath,
		tempDir:    tempDir,
		sourceExt:  sourceExt,
		bufferPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 4096)
				return &buf
			},
		},
	}
}

// Run implements Sandbox. It writes source to a fresh temp file, execs
// the runner as a subprocess bound to ctx and its own process group (so
// cancellation kills descendants), and streams combined stdout+stderr
// through a bounded writer.
func (p *ProcessSandbox) Run(ctx context.Context, opts RunOptions, out io.Writer) error {
	// PREPARED: materialize source.
	tmpFile, err := os.CreateTemp(p.tempDir, "code-*"+p.sourceExt)
	if err != nil {
		return errs.Execution("failed to create temp file", err)
	}
	tmpPath := tmpFile.Name()
	defer removeWithRetry(tmpPath)

	if _, err := tmpFile.WriteString(opts.Source); err != nil {
		tmpFile.Close()
		return errs.Execution("failed to write source", err)
	}
	if err := tmpFile.Close(); err != nil {
		return errs.Execution("failed to close temp file", err)
	}

	cmd := exec.CommandContext(ctx, p.runnerPath, "run", tmpPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Execution("failed to open stdout pipe", err)
	}
	cmd.Stderr = cmd.Stdout // combine stderr into stdout, per spec.md §4.5 step 4

	// STARTED.
	if err := cmd.Start(); err != nil {
		return errs.Execution("failed to start runner", err)
	}

	// Bind cancellation to the whole process group, not just cmd's own
	// PID, so descendants spawned by the runner die with it too.
	go func() {
		<-ctx.Done()
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}()

	// STREAMING / TRUNCATING.
	bounded := newBoundedWriter(out, opts.MaxOutputLength)

	bufPtr := p.bufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer p.bufferPool.Put(bufPtr)

	var readErr error
	for {
		n, rerr := stdoutPipe.Read(buf)
		if n > 0 {
			if _, werr := bounded.Write(buf[:n]); werr != nil {
				readErr = werr
				break
			}
			if bounded.Truncated() {
				break
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				readErr = rerr
			}
			break
		}
	}

	// WAITED.
	waitErr := cmd.Wait()

	// CANCELLED takes precedence: a killed child normally also surfaces
	// as a non-nil waitErr/readErr, but the cause is the context, not the
	// child.
	if ctx.Err() == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}

	if readErr != nil {
		return errs.Execution("failed reading runner output", readErr)
	}
	if waitErr != nil {
		return errs.Execution("runner exited non-zero", waitErr)
	}

	// DONE.
	return nil
}

// removeWithRetry unlinks path, retrying up to 3 times on transient
// failures without ever blocking past the caller's return, per spec.md §3
// ("guaranteed unlinked on every exit path... with retry for transient
// unlink failures").
func removeWithRetry(path string) {
	for i := 0; i < 3; i++ {
		if err := os.Remove(path); err == nil || os.IsNotExist(err) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
