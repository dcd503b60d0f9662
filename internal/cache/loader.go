package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the authoritative value on a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader puts read-through and write-invalidate semantics in front of a Cache.
// Concurrent misses for the same key share one LoadFunc call.
type Loader struct {
	cache Cache
	group singleflight.Group
	log   zerolog.Logger
}

// NewLoader wraps c.
func NewLoader(c Cache, log zerolog.Logger) *Loader {
	return &Loader{cache: c, log: log}
}

// GetOrLoad returns the cached value for key or loads, stores and returns it.
// A failing cache degrades to a direct load.
func (l *Loader) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load LoadFunc) ([]byte, error) {
	data, err := l.cache.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l.log.Warn().Err(err).Str("key", key).Msg("cache read failed, loading from source")
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(ctx, key, loaded, ttl); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("cache fill failed")
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// PutAndInvalidate runs the authoritative write and then drops the cached
// entry. The entry is left untouched when the write fails.
func (l *Loader) PutAndInvalidate(ctx context.Context, key string, put func(ctx context.Context) error) error {
	if err := put(ctx); err != nil {
		return err
	}
	return l.Invalidate(ctx, key)
}

// Invalidate drops the cached entry for key.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}
