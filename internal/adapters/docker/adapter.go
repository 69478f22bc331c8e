package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
)

// Options tune how containers are started.
type Options struct {
	// StartupGrace is how long a container must stay up before it counts as running.
	StartupGrace time.Duration
	// HostIP is the host interface published ports bind to.
	HostIP string
}

// Adapter implements ports.ContainerService using Docker SDK
type Adapter struct {
	cli    *client.Client
	opts   Options
	logger *zap.SugaredLogger
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(opts Options, logger *zap.SugaredLogger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if opts.HostIP == "" {
		opts.HostIP = domain.WildcardAddress
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Adapter{cli: cli, opts: opts, logger: logger}, nil
}

// Close releases the docker client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// ListContainers returns lighthouse-managed containers with details
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", domain.LabelApp)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		name := c.Labels[domain.LabelApp]
		if name == "" && len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		port, _ := strconv.Atoi(c.Labels[domain.LabelPort])

		var ip string
		if c.NetworkSettings != nil {
			for _, n := range c.NetworkSettings.Networks {
				if n != nil && n.IPAddress != "" {
					ip = n.IPAddress
					break
				}
			}
		}

		result = append(result, domain.Container{
			ID:        domain.ShortID(c.ID),
			Name:      name,
			Image:     c.Image,
			Status:    c.Status,
			State:     c.State,
			IPAddress: ip,
			Port:      port,
		})
	}
	return result, nil
}

// StartContainer creates and starts a container from spec.Image, exposing and
// publishing spec.Port on the same host port. The container must still be
// running after the startup grace period; otherwise a *domain.StartError
// carrying its exit code and log tail is returned.
func (a *Adapter) StartContainer(ctx context.Context, spec ports.RunSpec) (string, error) {
	if spec.Image == "" {
		return "", errors.New("image is required")
	}
	port, err := nat.NewPort("tcp", strconv.Itoa(spec.Port))
	if err != nil {
		return "", fmt.Errorf("invalid port %d: %w", spec.Port, err)
	}

	// 1. Image Pull
	if spec.Pull {
		if err := a.pull(ctx, spec.Image); err != nil {
			return "", err
		}
	}

	// 2. Create Container
	name := spec.Name
	if name == "" {
		name = appName(spec.Image)
	}
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			domain.LabelApp:  name,
			domain.LabelPort: strconv.Itoa(spec.Port),
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: a.opts.HostIP, HostPort: port.Port()}},
		},
	}, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	// 3. Start Container
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", &domain.StartError{ContainerID: resp.ID, Err: err}
	}
	a.logger.Infow("Container started", "container", domain.ShortID(resp.ID), "image", spec.Image, "port", spec.Port)

	// 4. Confirm it stayed up
	if a.opts.StartupGrace > 0 {
		if err := a.confirmRunning(ctx, resp.ID); err != nil {
			return resp.ID, err
		}
	}
	return resp.ID, nil
}

func (a *Adapter) confirmRunning(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.opts.StartupGrace):
	}

	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return &domain.StartError{ContainerID: id, Err: fmt.Errorf("failed to inspect container: %w", err)}
	}
	if info.State != nil && info.State.Running {
		return nil
	}

	startErr := &domain.StartError{ContainerID: id, Output: a.logTail(ctx, id)}
	if info.State != nil {
		startErr.ExitCode = info.State.ExitCode
		if info.State.Error != "" {
			startErr.Err = errors.New(info.State.Error)
		}
	}
	return startErr
}

func (a *Adapter) pull(ctx context.Context, image string) error {
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	out := &zapio.Writer{Log: a.logger.Desugar(), Level: zap.DebugLevel}
	defer out.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	seconds := int(timeout.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// GetContainerLogs returns a stream of container stdout and stderr
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := a.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer rc.Close()
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (a *Adapter) logTail(ctx context.Context, id string) string {
	rc, err := a.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "50",
	})
	if err != nil {
		return ""
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		a.logger.Debugw("Failed to demultiplex container logs", "container", domain.ShortID(id), "error", err)
	}
	return buf.String()
}

// appName derives a label from an image reference: registry/app:tag -> app.
func appName(image string) string {
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ":@"); i >= 0 {
		name = name[:i]
	}
	return name
}
