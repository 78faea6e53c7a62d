package catalog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	materials map[int64]Material
	gets      int
}

func (r *stubRepo) List(ctx context.Context, includeInactive bool) ([]Material, error) {
	var out []Material
	for _, m := range r.materials {
		if m.Active || includeInactive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubRepo) Get(ctx context.Context, id int64) (Material, error) {
	r.gets++
	m, ok := r.materials[id]
	if !ok {
		return Material{}, ErrNotFound
	}
	return m, nil
}

func (r *stubRepo) Create(ctx context.Context, m Material) (Material, error) {
	m.ID = int64(len(r.materials) + 1)
	r.materials[m.ID] = m
	return m, nil
}

func (r *stubRepo) Update(ctx context.Context, m Material) error {
	if _, ok := r.materials[m.ID]; !ok {
		return ErrNotFound
	}
	r.materials[m.ID] = m
	return nil
}

func (r *stubRepo) Deactivate(ctx context.Context, id int64) error {
	m, ok := r.materials[id]
	if !ok {
		return ErrNotFound
	}
	m.Active = false
	r.materials[id] = m
	return nil
}

func testMaterial() Material {
	return Material{
		ID:            1,
		Name:          "Cobre",
		Unit:          "KG",
		PurchasePrice: decimal.RequireFromString("32"),
		SalePrice:     decimal.RequireFromString("41.50"),
		MinimumStock:  decimal.RequireFromString("20"),
		Active:        true,
	}
}

func newCacheUnderTest(t *testing.T) (*RefCache, *stubRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{materials: map[int64]Material{1: testMaterial()}}
	cache := NewRefCache(client, repo, time.Minute, slog.Default())
	return cache, repo, mr
}

func TestRefCacheReadThrough(t *testing.T) {
	cache, repo, mr := newCacheUnderTest(t)
	ctx := context.Background()

	ref, err := cache.Ref(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Cobre", ref.Name)
	assert.Equal(t, 1, repo.gets)
	assert.True(t, mr.Exists("catalog:ref:1"))

	// Second read is served from the cache.
	ref, err = cache.Ref(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Cobre", ref.Name)
	assert.Equal(t, 1, repo.gets)
}

func TestRefCacheInvalidate(t *testing.T) {
	cache, repo, mr := newCacheUnderTest(t)
	ctx := context.Background()

	_, err := cache.Ref(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists("catalog:ref:1"))

	cache.Invalidate(ctx, 1)
	assert.False(t, mr.Exists("catalog:ref:1"))

	_, err = cache.Ref(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.gets)
}

func TestRefCacheCorruptEntryFallsThrough(t *testing.T) {
	cache, repo, mr := newCacheUnderTest(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("catalog:ref:1", "{not json"))

	ref, err := cache.Ref(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Cobre", ref.Name)
	assert.Equal(t, 1, repo.gets)
}

func TestRefCacheUnknownMaterial(t *testing.T) {
	cache, _, _ := newCacheUnderTest(t)

	_, err := cache.Ref(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefCacheNilClient(t *testing.T) {
	repo := &stubRepo{materials: map[int64]Material{1: testMaterial()}}
	cache := NewRefCache(nil, repo, time.Minute, slog.Default())

	ref, err := cache.Ref(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Cobre", ref.Name)
	cache.Invalidate(context.Background(), 1)
}
