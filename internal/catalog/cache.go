package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefCache is a read-through cache for material reference snapshots, keyed by
// material id. A miss falls through to the repository and populates the
// entry; saves and deactivations invalidate it. Cache failures degrade to
// repository reads, they never fail the lookup.
type RefCache struct {
	client *redis.Client
	repo   Repository
	ttl    time.Duration
	logger *slog.Logger
}

// NewRefCache constructs RefCache. A nil client disables caching entirely.
func NewRefCache(client *redis.Client, repo Repository, ttl time.Duration, logger *slog.Logger) *RefCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RefCache{client: client, repo: repo, ttl: ttl, logger: logger}
}

func refKey(id int64) string {
	return fmt.Sprintf("catalog:ref:%d", id)
}

// Ref resolves the reference snapshot for a material.
func (c *RefCache) Ref(ctx context.Context, id int64) (Ref, error) {
	if c.client != nil {
		data, err := c.client.Get(ctx, refKey(id)).Bytes()
		switch {
		case err == nil:
			var ref Ref
			if jsonErr := json.Unmarshal(data, &ref); jsonErr == nil {
				return ref, nil
			}
			// Corrupt entry, drop it and fall through.
			_ = c.client.Del(ctx, refKey(id)).Err()
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("catalog cache read", slog.Int64("material_id", id), slog.Any("error", err))
		}
	}

	material, err := c.repo.Get(ctx, id)
	if err != nil {
		return Ref{}, err
	}
	ref := material.AsRef()

	if c.client != nil {
		if data, err := json.Marshal(ref); err == nil {
			if err := c.client.Set(ctx, refKey(id), data, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write", slog.Int64("material_id", id), slog.Any("error", err))
			}
		}
	}
	return ref, nil
}

// Invalidate drops the cached snapshot for a material.
func (c *RefCache) Invalidate(ctx context.Context, id int64) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, refKey(id)).Err(); err != nil {
		c.logger.Warn("catalog cache invalidate", slog.Int64("material_id", id), slog.Any("error", err))
	}
}
