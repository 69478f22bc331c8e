package ports

import (
	"context"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// BuildRequest is a rendered recipe applied to a prepared build context.
type BuildRequest struct {
	ContextDir string
	Image      string
	Dockerfile []byte
	Labels     map[string]string
}

// BuilderService defines operations for building container images from source code.
type BuilderService interface {
	// FetchSource materialises src on local disk. cleanup removes anything
	// FetchSource created and is always safe to call.
	FetchSource(ctx context.Context, src domain.Source) (dir string, cleanup func(), err error)

	// BuildImage builds and tags req.Image from req.ContextDir using req.Dockerfile.
	// It returns the ID of the built image or a *domain.BuildError.
	BuildImage(ctx context.Context, req BuildRequest) (string, error)
}
