package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const latestKey = "fakestocks:snapshot:latest"

// CachedArchive wraps a primary Archive with a Redis cache of the latest
// snapshot. Writes go to the primary and refresh the cache; Latest reads
// check Redis first and fall back to the primary.
type CachedArchive struct {
	primary Archive
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedArchive creates a cached wrapper around a primary archive.
func NewCachedArchive(primary Archive, rdb *redis.Client, ttl time.Duration) *CachedArchive {
	return &CachedArchive{primary: primary, rdb: rdb, ttl: ttl}
}

func (a *CachedArchive) Save(ctx context.Context, doc Document) error {
	if err := a.primary.Save(ctx, doc); err != nil {
		return err
	}
	a.cache(ctx, doc)
	return nil
}

func (a *CachedArchive) Latest(ctx context.Context) (Document, error) {
	data, err := a.rdb.Get(ctx, latestKey).Bytes()
	if err == nil {
		var doc Document
		if json.Unmarshal(data, &doc) == nil {
			return doc, nil
		}
	}

	// Cache miss: read from primary and re-populate.
	doc, err := a.primary.Latest(ctx)
	if err != nil {
		return Document{}, err
	}
	a.cache(ctx, doc)
	return doc, nil
}

func (a *CachedArchive) cache(ctx context.Context, doc Document) {
	if data, err := json.Marshal(doc); err == nil {
		a.rdb.Set(ctx, latestKey, data, a.ttl)
	}
}
