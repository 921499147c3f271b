package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

const stopTimeout = 10 * time.Second

// Adapter implements ports.ContainerRuntime using the Docker SDK.
type Adapter struct {
	cli *client.Client
	log *slog.Logger
}

// NewAdapter creates a Docker adapter from the environment (DOCKER_HOST
// etc.) with API version negotiation.
func NewAdapter(log *slog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, log: log}, nil
}

// ListContainers returns every container the daemon knows about,
// including stopped ones, with labels and published host ports.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		var public []int
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				public = append(public, int(p.PublicPort))
			}
		}
		result = append(result, domain.Container{
			ID:          c.ID,
			Image:       c.Image,
			State:       c.State,
			Labels:      c.Labels,
			PublicPorts: public,
		})
	}
	return result, nil
}

// CreateContainer pulls the image if needed, then creates a container
// with the spec's port binding, resource ceilings and labels.
func (a *Adapter) CreateContainer(ctx context.Context, spec ports.CreateSpec) (string, error) {
	reader, err := a.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		// The image may already be present locally; let create decide.
		a.log.Warn("image pull failed, trying local image", "image", spec.Image, "error", err)
	} else {
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	natPort := nat.Port(fmt.Sprintf("%d/tcp", spec.ContainerPort))
	pidsLimit := spec.PidsLimit

	resp, err := a.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          spec.Cmd,
			ExposedPorts: nat.PortSet{natPort: struct{}{}},
			Labels:       spec.Labels,
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				natPort: []nat.PortBinding{{HostPort: fmt.Sprintf("%d", spec.HostPort)}},
			},
			Resources: container.Resources{
				Memory:     spec.MemoryBytes,
				MemorySwap: spec.SwapBytes,
				NanoCPUs:   spec.NanoCPUs,
				PidsLimit:  &pidsLimit,
			},
		},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

// ExecContainer runs cmd inside the container and returns the combined
// stdout+stderr output once the stream closes.
func (a *Adapter) ExecContainer(ctx context.Context, id string, cmd []string) (string, error) {
	exec, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", a.wrapNotFound(err, id, "exec create")
	}

	attach, err := a.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to attach to exec in %s: %w", id, err)
	}
	defer attach.Close()

	// The exec stream multiplexes stdout and stderr; demux both into one
	// buffer since callers scan the combined output.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return "", fmt.Errorf("failed to read exec output from %s: %w", id, err)
	}
	return buf.String(), nil
}

func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout+5*time.Second)
	defer cancel()
	seconds := int(stopTimeout.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return a.wrapNotFound(err, id, "stop")
	}
	return nil
}

func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return a.wrapNotFound(err, id, "remove")
	}
	return nil
}

func (a *Adapter) wrapNotFound(err error, id, op string) error {
	if client.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	return fmt.Errorf("failed to %s container %s: %w", op, id, err)
}
