package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// RunSpec is what a container needs to honour the recipe's port contract.
type RunSpec struct {
	Image string
	Name  string
	// Port is both the exposed container port and the published host port.
	Port int
	// Env overrides baked image variables at start time.
	Env []string
	// Pull fetches Image from its registry before creating the container.
	Pull bool
}

// ContainerService defines the core operations for managing containers.
// This interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	StartContainer(ctx context.Context, spec RunSpec) (string, error)
	StopContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
}
