package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"biblioteca/internal/match"
	"biblioteca/internal/metrics"
	"biblioteca/internal/platform/logger"

	goredis "github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by KV.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// KV is the slice of a key-value cache CachedStore needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

type RedisKV struct {
	rdb *goredis.Client
}

func NewRedisKV(rdb *goredis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (k *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := k.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (k *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.rdb.Set(ctx, key, value, ttl).Err()
}

func (k *RedisKV) Incr(ctx context.Context, key string) (int64, error) {
	return k.rdb.Incr(ctx, key).Result()
}

// CachedStore caches search results in front of another Store. Entries are
// keyed by a per-type generation that every successful create bumps, so a
// search issued after a create never reads results computed before it.
// Cache failures fall through to the wrapped store. A type whose bump failed
// is marked dirty and bypasses the cache until a later bump succeeds.
type CachedStore struct {
	Store
	kv      KV
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	dirty map[EntityType]bool
}

func NewCachedStore(inner Store, kv KV, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		Store:   inner,
		kv:      kv,
		ttl:     ttl,
		log:     log.With("component", "catalog_cache"),
		metrics: m,
		dirty:   map[EntityType]bool{},
	}
}

func generationKey(typ EntityType) string {
	return "catalog:gen:" + string(typ)
}

func (c *CachedStore) generation(ctx context.Context, typ EntityType) (int64, error) {
	v, err := c.kv.Get(ctx, generationKey(typ))
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// bump reports whether the generation of typ moved. On failure typ stays
// dirty until a later bump succeeds.
func (c *CachedStore) bump(ctx context.Context, typ EntityType) bool {
	_, err := c.kv.Incr(context.WithoutCancel(ctx), generationKey(typ))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Error("cache invalidation failed", "type", typ, "error", err)
		c.dirty[typ] = true
		return false
	}
	delete(c.dirty, typ)
	return true
}

func (c *CachedStore) isDirty(typ EntityType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[typ]
}

func cachedSearch[T any](ctx context.Context, c *CachedStore, typ EntityType, query string, fetch func() ([]T, error)) ([]T, error) {
	if c.isDirty(typ) && !c.bump(ctx, typ) {
		return fetch()
	}

	gen, err := c.generation(ctx, typ)
	if err != nil {
		c.log.Warn("cache unavailable, bypassing", "type", typ, "error", err)
		return fetch()
	}
	key := fmt.Sprintf("catalog:search:%s:%d:%s", typ, gen, query)

	if raw, err := c.kv.Get(ctx, key); err == nil {
		var out []T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			c.metrics.CacheHit()
			return out, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("cache read failed", "key", key, "error", err)
	}
	c.metrics.CacheMiss()

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.kv.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.log.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

func (c *CachedStore) SearchBooks(ctx context.Context, q BookQuery) ([]Book, error) {
	key := match.Normalize(q.Title)
	if len(q.AuthorNames) > 0 {
		names := make([]string, len(q.AuthorNames))
		for i, n := range q.AuthorNames {
			names[i] = match.Normalize(n)
		}
		key += "|" + strings.Join(names, ",")
	}
	if len(q.AuthorIDs) > 0 {
		ids := make([]string, len(q.AuthorIDs))
		for i, id := range q.AuthorIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		key += "#" + strings.Join(ids, ",")
	}
	return cachedSearch(ctx, c, TypeBook, key, func() ([]Book, error) {
		return c.Store.SearchBooks(ctx, q)
	})
}

func (c *CachedStore) SearchAuthors(ctx context.Context, name string) ([]Author, error) {
	return cachedSearch(ctx, c, TypeAuthor, match.Normalize(name), func() ([]Author, error) {
		return c.Store.SearchAuthors(ctx, name)
	})
}

func (c *CachedStore) SearchPublishers(ctx context.Context, name string) ([]Publisher, error) {
	return cachedSearch(ctx, c, TypePublisher, match.Normalize(name), func() ([]Publisher, error) {
		return c.Store.SearchPublishers(ctx, name)
	})
}

func (c *CachedStore) SearchSeries(ctx context.Context, name string) ([]Series, error) {
	return cachedSearch(ctx, c, TypeSeries, match.Normalize(name), func() ([]Series, error) {
		return c.Store.SearchSeries(ctx, name)
	})
}

func (c *CachedStore) SearchGenres(ctx context.Context, name string) ([]Genre, error) {
	return cachedSearch(ctx, c, TypeGenre, match.Normalize(name), func() ([]Genre, error) {
		return c.Store.SearchGenres(ctx, name)
	})
}

func (c *CachedStore) CreateBook(ctx context.Context, b Book) (Book, error) {
	out, err := c.Store.CreateBook(ctx, b)
	if err == nil {
		c.bump(ctx, TypeBook)
	}
	return out, err
}

func (c *CachedStore) CreateAuthor(ctx context.Context, a Author) (Author, error) {
	out, err := c.Store.CreateAuthor(ctx, a)
	if err == nil {
		c.bump(ctx, TypeAuthor)
	}
	return out, err
}

func (c *CachedStore) CreatePublisher(ctx context.Context, p Publisher) (Publisher, error) {
	out, err := c.Store.CreatePublisher(ctx, p)
	if err == nil {
		c.bump(ctx, TypePublisher)
	}
	return out, err
}

func (c *CachedStore) CreateSeries(ctx context.Context, s Series) (Series, error) {
	out, err := c.Store.CreateSeries(ctx, s)
	if err == nil {
		c.bump(ctx, TypeSeries)
	}
	return out, err
}
