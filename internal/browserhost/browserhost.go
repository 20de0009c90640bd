// Package browserhost launches and tears down the containerized
// browser engine that backs a single run's session, so the browser
// context stays exclusive to one run and never leaks across tenants
// (spec §5).
package browserhost

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const devtoolsPort = "3000/tcp"

// Host is one run's exclusive browser container (spec §5).
type Host struct {
	cli         *client.Client
	containerID string
	hostPort    string
}

// Options configures how a run's browser container is launched.
type Options struct {
	Image       string
	Headless    bool
	EvidenceDir string // bind-mounted so the container can drop trace/HAR files directly
}

func defaultImage(opts Options) string {
	if opts.Image != "" {
		return opts.Image
	}
	return "browserless/chrome:latest"
}

// Launch starts a fresh, single-run browser container and returns a
// Host bound to its published DevTools port. Grounded on the teacher's
// DockerDispatcher.Dispatch (internal/dispatch/docker.go): one
// container per unit of work, created, started, and later torn down
// explicitly by the caller rather than left to age out.
func Launch(ctx context.Context, opts Options, runID string) (*Host, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("browserhost: docker client: %w", err)
	}

	containerConfig := &container.Config{
		Image:        defaultImage(opts),
		ExposedPorts: nat.PortSet{devtoolsPort: struct{}{}},
		Env: []string{
			"CONCURRENT=1",
			fmt.Sprintf("HEADLESS=%t", opts.Headless),
		},
	}

	var mounts []mount.Mount
	if opts.EvidenceDir != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: opts.EvidenceDir, Target: "/evidence"})
	}

	hostConfig := &container.HostConfig{
		Mounts: mounts,
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
		AutoRemove: false,
	}

	name := fmt.Sprintf("cometlocal-browser-%s", runID)
	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("browserhost: create container: %w", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("browserhost: start container: %w", err)
	}

	inspect, err := cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("browserhost: inspect container: %w", err)
	}
	bindings, ok := inspect.NetworkSettings.Ports[nat.Port(devtoolsPort)]
	if !ok || len(bindings) == 0 {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("browserhost: no published DevTools port for %s", name)
	}

	return &Host{cli: cli, containerID: resp.ID, hostPort: bindings[0].HostPort}, nil
}

// ControlURL is the CDP WebSocket endpoint a rod.Browser dials into.
func (h *Host) ControlURL() string {
	return fmt.Sprintf("ws://127.0.0.1:%s", h.hostPort)
}

// Alive reports whether the run's container is still running, the
// same inspect-based liveness check as the teacher's
// DockerDispatcher.IsAlive.
func (h *Host) Alive(ctx context.Context) bool {
	inspect, err := h.cli.ContainerInspect(ctx, h.containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// Close tears down the run's exclusive container (spec §5).
func (h *Host) Close(ctx context.Context) error {
	if h == nil || h.cli == nil {
		return nil
	}
	return h.cli.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}
