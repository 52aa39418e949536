package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// Sandbox is a Transport that runs each Execute call inside an ephemeral
// Docker container, for local development and testing of
// supports_tool_observation / supports_sandbox steps (spec §4.3, §7) without
// a real model backend touching the host filesystem. It writes the prompt
// to a script mounted at /ctx/prompt.sh, runs it with /bin/sh inside Image,
// and reports the container's combined stdout/stderr as the final message.
type Sandbox struct {
	cli   *client.Client
	Image string

	// WorkspaceDir is bind-mounted read-write at /workspace inside the
	// container; steps that declare file-producing output land here.
	WorkspaceDir string
}

// NewSandbox constructs a Sandbox backed by the Docker daemon reachable from
// the environment (DOCKER_HOST or the default socket). image is the
// container image to run each step in (e.g. "alpine:3.20").
func NewSandbox(image, workspaceDir string) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "init docker client", err)
	}
	return &Sandbox{cli: cli, Image: image, WorkspaceDir: workspaceDir}, nil
}

// Capabilities reports sandbox support plus tool observation (the shell
// command's stdout/stderr stand in for a tool result) but no structured
// output, streaming, hooks, or interrupts: a container run is an opaque,
// synchronous box.
func (s *Sandbox) Capabilities() Capabilities {
	return Capabilities{
		SupportsToolObservation: true,
		SupportsSandbox:         true,
	}
}

// Execute stages prompt as a host context directory, runs it as a shell
// script inside a fresh container bind-mounted onto WorkspaceDir, waits for
// exit, and emits the demuxed container log as one EventMessage followed by
// EventResult. The container is always removed before Execute returns.
func (s *Sandbox) Execute(ctx context.Context, prompt string, opts Options) (<-chan Event, error) {
	ch := make(chan Event, 2)
	go func() {
		defer close(ch)
		text, err := s.run(ctx, prompt, opts)
		if err != nil {
			ch <- Event{Kind: EventError, Err: err}
			return
		}
		ch <- Event{Kind: EventMessage, Text: text}
		ch <- Event{Kind: EventResult, FinalText: text}
	}()
	return ch, nil
}

func (s *Sandbox) run(ctx context.Context, prompt string, opts Options) (string, error) {
	name := fmt.Sprintf("harness-step-%d", time.Now().UnixNano())

	hostCtxDir := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(hostCtxDir, 0o755); err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "stage context dir", err)
	}
	defer os.RemoveAll(hostCtxDir)

	scriptPath := filepath.Join(hostCtxDir, "prompt.sh")
	if err := os.WriteFile(scriptPath, []byte(prompt), 0o644); err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "write prompt script", err)
	}

	if err := os.MkdirAll(s.WorkspaceDir, 0o755); err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "create workspace dir", err)
	}

	containerConfig := &container.Config{
		Image:      s.Image,
		Cmd:        []string{"/bin/sh", "/ctx/prompt.sh"},
		Tty:        false,
		WorkingDir: "/workspace",
		Env:        []string{fmt.Sprintf("HARNESS_STEP_TIMEOUT_MS=%d", opts.Timeout)},
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: hostCtxDir, Target: "/ctx", ReadOnly: true},
			{Type: mount.TypeBind, Source: s.WorkspaceDir, Target: "/workspace"},
		},
		AutoRemove: false,
	}

	resp, err := s.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "create container", err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "start container", err)
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "wait for container", err)
		}
	case <-statusCh:
	case <-ctx.Done():
		return "", harnesserr.Wrap(harnesserr.KindTimeout, "transport.sandbox", "container execution", ctx.Err())
	}

	out, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "read container logs", err)
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil {
		return "", harnesserr.Wrap(harnesserr.KindTransport, "transport.sandbox", "demux container logs", err)
	}

	if stderr.Len() > 0 {
		return stdout.String() + "\n" + stderr.String(), nil
	}
	return stdout.String(), nil
}

// Interrupt is unsupported: a container run is synchronous from Execute's
// perspective and has no in-flight handle to cancel short of the caller's
// own ctx.
func (s *Sandbox) Interrupt(context.Context) error {
	return harnesserr.New(harnesserr.KindTransport, "transport.sandbox", "interrupt unsupported by Sandbox transport")
}
