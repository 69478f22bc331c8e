package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// BuildStore keeps build records in process memory.
type BuildStore struct {
	mu     sync.RWMutex
	builds map[string]domain.Build
}

func NewBuildStore() *BuildStore {
	return &BuildStore{builds: make(map[string]domain.Build)}
}

// Save stores a copy of build so later caller mutations are not visible.
func (s *BuildStore) Save(_ context.Context, build *domain.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[build.ID] = clone(build)
	return nil
}

func (s *BuildStore) Get(_ context.Context, id string) (*domain.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.builds[id]
	if !ok {
		return nil, domain.ErrBuildNotFound
	}
	out := clone(&b)
	return &out, nil
}

// List returns builds newest first.
func (s *BuildStore) List(_ context.Context) ([]*domain.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Build, 0, len(s.builds))
	for _, b := range s.builds {
		c := clone(&b)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func clone(b *domain.Build) domain.Build {
	c := *b
	c.Requirements = append([]domain.Requirement(nil), b.Requirements...)
	c.Layers = append([]domain.Layer(nil), b.Layers...)
	return c
}
