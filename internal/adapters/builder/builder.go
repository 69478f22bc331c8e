package builder

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/melih/lighthouse-boot/internal/buildctx"
	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
)

// DockerfileName is the path the rendered Dockerfile takes inside the build
// context. It is injected into the context stream, never written to the source.
const DockerfileName = ".lighthouse.Dockerfile"

// outputTail bounds how much build output a BuildError carries.
const outputTail = 8 << 10

type Adapter struct {
	cli    *client.Client
	logger *zap.SugaredLogger
}

func NewBuilderAdapter(logger *zap.SugaredLogger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Adapter{cli: cli, logger: logger}, nil
}

// Close releases the docker client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// FetchSource shallow-clones a repository into a temporary directory, or
// checks that a local directory exists.
func (a *Adapter) FetchSource(ctx context.Context, src domain.Source) (string, func(), error) {
	noop := func() {}
	if err := src.Validate(); err != nil {
		return "", noop, err
	}

	if src.Dir != "" {
		dir, err := filepath.Abs(src.Dir)
		if err != nil {
			return "", noop, err
		}
		info, err := os.Stat(dir)
		if err != nil {
			return "", noop, fmt.Errorf("failed to open source directory: %w", err)
		}
		if !info.IsDir() {
			return "", noop, fmt.Errorf("source %s is not a directory", dir)
		}
		return dir, noop, nil
	}

	tmpDir, err := os.MkdirTemp("", "lighthouse-build-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	a.logger.Infow("Cloning repository", "repo", src.RepoURL, "dir", tmpDir)
	progress := &zapio.Writer{Log: a.logger.Desugar(), Level: zap.DebugLevel}
	defer progress.Close()
	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:      src.RepoURL,
		Progress: progress,
		Depth:    1, // Shallow clone for speed
	})
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to clone repo: %w", err)
	}
	return tmpDir, cleanup, nil
}

// BuildImage tars the context, injects the rendered Dockerfile and builds.
// The daemon's output stream is read to the end: an error message in it is a
// failed build and no image ID is returned.
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (string, error) {
	excludes, err := buildctx.ReadIgnorePatterns(req.ContextDir)
	if err != nil {
		return "", err
	}

	// 1. Create Build Context (Tar)
	contextTar, err := archive.TarWithOptions(req.ContextDir, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	buildContext := WithDockerfile(contextTar, req.Dockerfile)
	defer buildContext.Close()

	// 2. Build Docker Image
	a.logger.Infow("Building image", "image", req.Image)
	resp, err := a.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{req.Image},
		Dockerfile:  DockerfileName,
		Labels:      req.Labels,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return "", &domain.BuildError{Image: req.Image, Err: err}
	}
	defer resp.Body.Close()

	// 3. Drain the stream; the build is only finished once it is consumed.
	tail := newTailBuffer(outputTail)
	log := &zapio.Writer{Log: a.logger.Desugar().With(zap.String("image", req.Image)), Level: zap.DebugLevel}
	defer log.Close()

	var imageID string
	aux := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var result types.BuildResult
		if err := json.Unmarshal(*msg.Aux, &result); err == nil && result.ID != "" {
			imageID = result.ID
		}
	}
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.MultiWriter(log, tail), 0, false, aux); err != nil {
		return "", &domain.BuildError{Image: req.Image, Output: tail.String(), Err: err}
	}
	if imageID == "" {
		return "", &domain.BuildError{
			Image:  req.Image,
			Output: tail.String(),
			Err:    errors.New("daemon did not report an image ID"),
		}
	}
	return imageID, nil
}

// WithDockerfile adds dockerfile to a context stream under DockerfileName,
// replacing any entry already there.
func WithDockerfile(contextTar io.ReadCloser, dockerfile []byte) io.ReadCloser {
	return archive.ReplaceFileTarWrapper(contextTar, map[string]archive.TarModifierFunc{
		DockerfileName: func(_ string, _ *tar.Header, _ io.Reader) (*tar.Header, []byte, error) {
			return &tar.Header{
				Name:     DockerfileName,
				Mode:     0o600,
				Size:     int64(len(dockerfile)),
				ModTime:  time.Unix(0, 0),
				Typeflag: tar.TypeReg,
			}, dockerfile, nil
		},
	})
}

// tailBuffer keeps the last n bytes written.
type tailBuffer struct {
	buf []byte
	n   int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
