package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

func TestBuildStore_SaveGet(t *testing.T) {
	s := NewBuildStore()
	ctx := context.Background()
	b := &domain.Build{
		ID:     "b1",
		State:  domain.StateBuilt,
		Layers: []domain.Layer{{Step: "source", Key: "abc"}},
	}

	require.NoError(t, s.Save(ctx, b))
	b.State = domain.StateFailed
	b.Layers[0].Key = "mutated"

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateBuilt, got.State)
	assert.Equal(t, "abc", got.Layers[0].Key)
}

func TestBuildStore_GetUnknown(t *testing.T) {
	_, err := NewBuildStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrBuildNotFound)
}

func TestBuildStore_ListNewestFirst(t *testing.T) {
	s := NewBuildStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "mid": time.Minute, "new": time.Hour}[id]
		require.NoError(t, s.Save(ctx, &domain.Build{ID: id, CreatedAt: base.Add(offset)}), i)
	}

	builds, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, builds, 3)
	assert.Equal(t, "new", builds[0].ID)
	assert.Equal(t, "mid", builds[1].ID)
	assert.Equal(t, "old", builds[2].ID)
}
