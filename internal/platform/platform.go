// Package platform wires the docker adapters, the build record store and the
// bootstrap sequencer from configuration.
package platform

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/adapters/builder"
	"github.com/melih/lighthouse-boot/internal/adapters/docker"
	"github.com/melih/lighthouse-boot/internal/adapters/memory"
	"github.com/melih/lighthouse-boot/internal/adapters/redis"
	"github.com/melih/lighthouse-boot/internal/config"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

type Platform struct {
	Containers *docker.Adapter
	Builder    *builder.Adapter
	Store      ports.BuildStore
	Sequencer  *bootstrap.Sequencer

	closers []func() error
}

// New initialises every adapter. Redis is used for build records when enabled
// and must be reachable; otherwise records live in memory.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Platform, error) {
	p := &Platform{}

	containers, err := docker.NewAdapter(docker.Options{
		StartupGrace: cfg.Docker.StartupGrace,
		HostIP:       cfg.Docker.HostIP,
	}, logger.Named("docker"))
	if err != nil {
		return nil, err
	}
	p.Containers = containers
	p.closers = append(p.closers, containers.Close)

	b, err := builder.NewBuilderAdapter(logger.Named("builder"))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Builder = b
	p.closers = append(p.closers, b.Close)

	if cfg.Redis.Enabled {
		store := redis.NewBuildStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		p.closers = append(p.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		p.Store = store
	} else {
		p.Store = memory.NewBuildStore()
	}

	p.Sequencer = bootstrap.NewSequencer(p.Builder, p.Containers, p.Store, logger.Named("bootstrap"))
	return p, nil
}

// Close releases clients in reverse order of creation.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
