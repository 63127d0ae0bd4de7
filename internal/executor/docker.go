package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/luis198755/execgateway/internal/errs"
	"github.com/luis198755/execgateway/internal/metrics"
	"github.com/rs/zerolog"
)

// DockerSandbox runs a submission inside a short-lived, hardened
// container instead of a bare host subprocess, grounded on
// _examples/itstheanurag-executioner/internal/sandbox/docker.go. It is an
// opt-in alternate Sandbox, selected by SANDBOX_BACKEND=docker, for
// deployments that want a second isolation layer in front of the outer
// container spec.md already assumes.
type DockerSandbox struct {
	cli        *client.Client
	logger     *zerolog.Logger
	image      string
	sourceFile string
	compileCmd []string
	runCmd     []string
}

// DockerConfig fixes the toolchain image and commands used to build and
// run the gateway's single supported language inside the container.
type DockerConfig struct {
	Image      string
	SourceFile string
	CompileCmd []string
	RunCmd     []string
}

// DefaultDockerConfig targets the same Go toolchain ProcessSandbox invokes
// directly, so switching backends changes isolation, not semantics.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:      "golang:1.24-alpine",
		SourceFile: "main.go",
		CompileCmd: nil, // run compiles implicitly
		RunCmd:     []string{"go", "run", "main.go"},
	}
}

// NewDockerSandbox dials the local Docker daemon via the environment
// (DOCKER_HOST and friends), negotiating the API version.
func NewDockerSandbox(cfg DockerConfig, logger *zerolog.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.Internal("failed to create docker client", err)
	}
	return &DockerSandbox{
		cli:        cli,
		logger:     logger,
		image:      cfg.Image,
		sourceFile: cfg.SourceFile,
		compileCmd: cfg.CompileCmd,
		runCmd:     cfg.RunCmd,
	}, nil
}

// EnsureImage pulls d.image if it isn't already present locally. Call
// this once at startup rather than per-execution.
func (d *DockerSandbox) EnsureImage(ctx context.Context) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, d.image)
	if err == nil {
		return nil
	}

	d.logger.Info().Str("image", d.image).Msg("pulling docker image")
	reader, err := d.cli.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return errs.Internal("failed to pull sandbox image", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// Run implements Sandbox by creating a network-disabled, capability-dropped
// container per submission, writing the source in via exec (CopyToContainer
// does not work against tmpfs mounts), running it, and streaming the
// demuxed stdout+stderr through a shared boundedWriter.
func (d *DockerSandbox) Run(ctx context.Context, opts RunOptions, out io.Writer) error {
	start := time.Now()

	pidsLimit := int64(64)
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:           d.image,
		Cmd:             []string{"sleep", "infinity"},
		Tty:             false,
		OpenStdin:       true,
		StdinOnce:       true,
		NetworkDisabled: true,
		WorkingDir:      "/home/sandbox",
		User:            "nobody",
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:     256 * 1024 * 1024,
			MemorySwap: 256 * 1024 * 1024,
			CPUQuota:   100000,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/home/sandbox": "rw,exec,nosuid,size=64m,mode=1777",
			"/tmp":          "rw,noexec,nosuid,size=16m,mode=1777",
		},
	}, nil, nil, "")
	if err != nil {
		return errs.Execution("failed to create sandbox container", err)
	}
	defer d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	metrics.ContainerCreationTime.Observe(float64(time.Since(start).Milliseconds()))

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return errs.Execution("failed to start sandbox container", err)
	}

	if err := d.writeSource(ctx, resp.ID, opts.Source); err != nil {
		return err
	}

	if len(d.compileCmd) > 0 {
		if failed, err := d.runStep(ctx, resp.ID, d.compileCmd, nil, out, opts.MaxOutputLength); err != nil {
			return err
		} else if failed {
			return errs.Execution("sandbox compile step failed", nil)
		}
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		select {
		case <-ctx.Done():
			_ = d.cli.ContainerKill(context.Background(), resp.ID, "SIGKILL")
		case <-watchCtx.Done():
		}
	}()

	_, err = d.runStep(ctx, resp.ID, d.runCmd, nil, out, opts.MaxOutputLength)
	return err
}

// writeSource streams source into the container's working directory via a
// `sh -c "cat > file"` exec, since CopyToContainer cannot target a tmpfs
// mount.
func (d *DockerSandbox) writeSource(ctx context.Context, containerID, source string) error {
	writeCmd := []string{"sh", "-c", fmt.Sprintf("cat > /home/sandbox/%s", d.sourceFile)}
	execResp, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:         writeCmd,
		AttachStdin: true,
	})
	if err != nil {
		return errs.Execution("failed to create write exec", err)
	}

	attachResp, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return errs.Execution("failed to attach write exec", err)
	}
	defer attachResp.Close()

	if _, err := attachResp.Conn.Write([]byte(source)); err != nil {
		return errs.Execution("failed to write source into container", err)
	}
	attachResp.CloseWrite()

	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return errs.Execution("failed to inspect write exec", err)
		}
		if !inspect.Running {
			break
		}
	}
	return nil
}

// runStep execs cmd inside containerID, demuxes its combined output through
// a fresh boundedWriter onto out, and reports whether the step itself
// failed (non-zero exit), as distinct from an infrastructure error.
func (d *DockerSandbox) runStep(ctx context.Context, containerID string, cmd []string, stdin []byte, out io.Writer, maxOutputLength int) (bool, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   "/home/sandbox",
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  len(stdin) > 0,
	})
	if err != nil {
		return false, errs.Execution("failed to create exec", err)
	}

	attachResp, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return false, errs.Execution("failed to attach exec", err)
	}
	defer attachResp.Close()

	if len(stdin) > 0 {
		_, _ = attachResp.Conn.Write(stdin)
		_ = attachResp.CloseWrite()
	}

	bounded := newBoundedWriter(out, maxOutputLength)
	done := make(chan error, 1)
	go func() {
		_, cerr := stdcopy.StdCopy(bounded, bounded, attachResp.Reader)
		done <- cerr
	}()

	select {
	case cerr := <-done:
		if cerr != nil {
			return false, errs.Execution("failed reading sandbox output", cerr)
		}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return false, context.DeadlineExceeded
		}
		return false, context.Canceled
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return false, errs.Execution("failed to inspect exec", err)
	}
	return inspect.ExitCode != 0, nil
}
