package worker

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/luis198755/execgateway/internal/cache"
	"github.com/luis198755/execgateway/internal/executor"
	"github.com/luis198755/execgateway/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSandbox struct{ output string }

func (s *stubSandbox) Run(ctx context.Context, opts executor.RunOptions, out io.Writer) error {
	_, err := out.Write([]byte(s.output))
	return err
}

func TestWorkerProcessesSubmittedJob(t *testing.T) {
	logger := zerolog.Nop()
	exec := executor.New(&stubSandbox{output: "42"}, "go", 1000, &logger)
	rc := cache.New(exec, 10, time.Minute)

	manager := queue.NewManager(4)
	w := NewWorker(1, rc, manager, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	var out bytes.Buffer
	done := make(chan error, 1)
	require.NoError(t, manager.Submit(context.Background(), &queue.Job{
		ID:     "job-1",
		Ctx:    context.Background(),
		Source: "package main",
		Writer: &out,
		Done:   done,
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not complete job in time")
	}
	assert.Equal(t, "42", out.String())
}
