package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultFolderCacheTTL = 12 * time.Hour

// FolderPathCache is a best-effort read-through cache mapping
// (user, materialized path) to a folder id. Folders are never renamed or
// deleted by this service, so cached entries cannot go stale; the TTL only
// bounds memory. All Redis failures degrade to cache misses.
type FolderPathCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFolderPathCache connects to Redis at addr.
func NewFolderPathCache(addr, password string, ttl time.Duration) *FolderPathCache {
	if ttl <= 0 {
		ttl = defaultFolderCacheTTL
	}
	return &FolderPathCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Get returns the cached folder id for (userID, path), if present.
func (c *FolderPathCache) Get(ctx context.Context, userID, path string) (string, bool) {
	id, err := c.client.Get(ctx, folderCacheKey(userID, path)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		slog.Warn("folder cache get failed", "path", path, "err", err)
		return "", false
	}
	return id, true
}

// Set records a resolved folder id.
func (c *FolderPathCache) Set(ctx context.Context, userID, path, folderID string) {
	if err := c.client.Set(ctx, folderCacheKey(userID, path), folderID, c.ttl).Err(); err != nil {
		slog.Warn("folder cache set failed", "path", path, "err", err)
	}
}

func folderCacheKey(userID, path string) string {
	return "folders:" + userID + ":" + path
}
