package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/buildctx"
	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/metrics"
)

// Sequencer runs the bootstrap: validate, fetch, build, then start. Steps are
// strictly ordered and never retried; any failure leaves the build record in
// the failed state.
type Sequencer struct {
	builder ports.BuilderService
	runtime ports.ContainerService
	store   ports.BuildStore
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewSequencer wires a sequencer to its builder, runtime and record store.
func NewSequencer(builder ports.BuilderService, runtime ports.ContainerService, store ports.BuildStore, logger *zap.SugaredLogger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sequencer{
		builder: builder,
		runtime: runtime,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// BuildInput names the recipe, where the source lives and the tag to produce.
type BuildInput struct {
	Recipe domain.Recipe
	Source domain.Source
	// Image is the tag to apply. Empty derives one from the recipe and build ID.
	Image string
}

// StartOptions are container-start overrides.
type StartOptions struct {
	Name string
	// Env overrides baked variables as KEY=VALUE.
	Env []string
	// Pull fetches the image from a registry instead of using the local one.
	Pull bool
}

// Build validates the recipe, fetches the source, checks the manifest and
// builds the image. The returned record is in the built state on success.
// Validation errors are returned before a record is created.
func (s *Sequencer) Build(ctx context.Context, in BuildInput) (*domain.Build, error) {
	if err := in.Recipe.Validate(); err != nil {
		return nil, err
	}
	if err := in.Source.Validate(); err != nil {
		return nil, err
	}
	dockerfile, err := Render(in.Recipe)
	if err != nil {
		return nil, err
	}

	now := s.now()
	build := &domain.Build{
		ID:        uuid.NewString(),
		Recipe:    in.Recipe.Name,
		Source:    in.Source,
		Image:     in.Image,
		Port:      in.Recipe.Port,
		PortEnv:   in.Recipe.PortEnv,
		State:     domain.StateImageBuilding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if build.Image == "" {
		build.Image = fmt.Sprintf("lighthouse-%s:%s", in.Recipe.Name, build.ID[:8])
	}
	if err := s.store.Save(ctx, build); err != nil {
		return nil, fmt.Errorf("failed to record build: %w", err)
	}
	log := s.logger.With("build", build.ID, "image", build.Image)
	log.Infow("Build started", "source", in.Source.String(), "recipe", in.Recipe.Name)

	dir, cleanup, err := s.builder.FetchSource(ctx, in.Source)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return build, s.fail(ctx, build, fmt.Errorf("failed to fetch source: %w", err))
	}

	manifest, err := domain.ReadManifest(filepath.Join(dir, filepath.FromSlash(in.Recipe.Manifest)), in.Recipe.Format())
	if err != nil {
		return build, s.fail(ctx, build, err)
	}
	build.Requirements = manifest.Requirements

	digests, err := ContextDigests(dir, in.Recipe.Manifest)
	if err != nil {
		return build, s.fail(ctx, build, err)
	}
	build.Layers = LayerKeys(Plan(in.Recipe), digests)

	started := s.now()
	imageID, err := s.builder.BuildImage(ctx, ports.BuildRequest{
		ContextDir: dir,
		Image:      build.Image,
		Dockerfile: dockerfile,
		Labels: map[string]string{
			domain.LabelBuild:  build.ID,
			domain.LabelRecipe: in.Recipe.Name,
			domain.LabelPort:   fmt.Sprint(in.Recipe.Port),
		},
	})
	metrics.BuildDuration.Observe(s.now().Sub(started).Seconds())
	if err != nil {
		return build, s.fail(ctx, build, err)
	}

	build.ImageID = imageID
	if err := build.Transition(domain.StateBuilt, s.now()); err != nil {
		return build, err
	}
	if err := s.store.Save(ctx, build); err != nil {
		return build, fmt.Errorf("failed to record build: %w", err)
	}
	metrics.BuildsTotal.WithLabelValues(string(domain.StateBuilt)).Inc()
	log.Infow("Build finished", "image_id", imageID, "requirements", len(build.Requirements))
	return build, nil
}

// Start runs the image of a built record with its declared port published.
func (s *Sequencer) Start(ctx context.Context, id string, opts StartOptions) (*domain.Build, error) {
	build, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if build.State != domain.StateBuilt {
		return build, fmt.Errorf("%w: build %s is %s", domain.ErrInvalidTransition, build.ID, build.State)
	}
	if err := domain.CheckPortOverrides(build.PortEnv, build.Port, opts.Env); err != nil {
		return build, err
	}

	if err := build.Transition(domain.StateContainerStarting, s.now()); err != nil {
		return build, err
	}
	if err := s.store.Save(ctx, build); err != nil {
		return build, fmt.Errorf("failed to record build: %w", err)
	}

	image := build.Image
	if image == "" {
		image = build.ImageID
	}
	containerID, err := s.runtime.StartContainer(ctx, ports.RunSpec{
		Image: image,
		Name:  opts.Name,
		Port:  build.Port,
		Env:   opts.Env,
		Pull:  opts.Pull,
	})
	if err != nil {
		metrics.ContainerStarts.WithLabelValues("failed").Inc()
		var startErr *domain.StartError
		if errors.As(err, &startErr) {
			build.ContainerID = startErr.ContainerID
		}
		return build, s.fail(ctx, build, err)
	}

	build.ContainerID = containerID
	if err := build.Transition(domain.StateRunning, s.now()); err != nil {
		return build, err
	}
	if err := s.store.Save(ctx, build); err != nil {
		return build, fmt.Errorf("failed to record build: %w", err)
	}
	metrics.ContainerStarts.WithLabelValues("running").Inc()
	s.logger.Infow("Container running", "build", build.ID, "container", domain.ShortID(containerID), "port", build.Port)
	return build, nil
}

// Up builds and then starts. It stops at the first failure.
func (s *Sequencer) Up(ctx context.Context, in BuildInput, opts StartOptions) (*domain.Build, error) {
	build, err := s.Build(ctx, in)
	if err != nil {
		return build, err
	}
	return s.Start(ctx, build.ID, opts)
}

// Get returns a build record.
func (s *Sequencer) Get(ctx context.Context, id string) (*domain.Build, error) {
	return s.store.Get(ctx, id)
}

// List returns every build record.
func (s *Sequencer) List(ctx context.Context) ([]*domain.Build, error) {
	return s.store.List(ctx)
}

func (s *Sequencer) fail(ctx context.Context, build *domain.Build, cause error) error {
	if err := build.Fail(cause, s.now()); err != nil {
		return errors.Join(cause, err)
	}
	if err := s.store.Save(ctx, build); err != nil {
		s.logger.Errorw("Failed to record build failure", "build", build.ID, "error", err)
	}
	metrics.BuildsTotal.WithLabelValues(string(domain.StateFailed)).Inc()
	s.logger.Errorw("Build failed", "build", build.ID, "state", build.State, "error", cause)
	return cause
}

// ContextDigests hashes the manifest and the whole (non-ignored) context under dir.
func ContextDigests(dir, manifest string) (map[string]string, error) {
	manifestDigest, err := buildctx.DigestFile(filepath.Join(dir, filepath.FromSlash(manifest)))
	if err != nil {
		return nil, fmt.Errorf("failed to hash manifest: %w", err)
	}
	excludes, err := buildctx.ReadIgnorePatterns(dir)
	if err != nil {
		return nil, err
	}
	sourceDigest, err := buildctx.DigestTree(dir, excludes)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		InputManifest: manifestDigest,
		InputSource:   sourceDigest,
	}, nil
}
