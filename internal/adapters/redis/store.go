package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

const (
	buildKeyPrefix = "lighthouse:build:"
	buildIndexKey  = "lighthouse:builds"
)

// BuildStore keeps build records in redis as msgpack, indexed by creation time.
type BuildStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBuildStore creates a store on addr. A zero ttl keeps records forever.
func NewBuildStore(addr, password string, db int, ttl time.Duration) *BuildStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &BuildStore{client: rdb, ttl: ttl}
}

// Ping checks connectivity.
func (s *BuildStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *BuildStore) Close() error {
	return s.client.Close()
}

func (s *BuildStore) Save(ctx context.Context, build *domain.Build) error {
	b, err := msgpack.Marshal(build)
	if err != nil {
		return fmt.Errorf("failed to encode build: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, buildKeyPrefix+build.ID, b, s.ttl)
		pipe.ZAdd(ctx, buildIndexKey, redis.Z{
			Score:  float64(build.CreatedAt.UnixNano()),
			Member: build.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save build %s: %w", build.ID, err)
	}
	return nil
}

func (s *BuildStore) Get(ctx context.Context, id string) (*domain.Build, error) {
	val, err := s.client.Get(ctx, buildKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrBuildNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load build %s: %w", id, err)
	}
	var build domain.Build
	if err := msgpack.Unmarshal(val, &build); err != nil {
		return nil, fmt.Errorf("failed to decode build %s: %w", id, err)
	}
	return &build, nil
}

// List returns builds newest first. Index entries whose record expired are
// dropped from the index.
func (s *BuildStore) List(ctx context.Context) ([]*domain.Build, error) {
	ids, err := s.client.ZRevRange(ctx, buildIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	builds := make([]*domain.Build, 0, len(ids))
	for _, id := range ids {
		build, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrBuildNotFound) {
			s.client.ZRem(ctx, buildIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	return builds, nil
}
