// Package listcache caches entry listings in Redis.
//
// Keys embed a generation counter that every write bumps, so a write
// invalidates every cached listing at once without scanning keys. Redis
// failures are logged and treated as misses; the store stays the source of
// truth.
package listcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"bandalloc/models"

	"github.com/redis/go-redis/v9"
)

const generationKey = "entries:gen"

// Key identifies one cached listing at the generation it was looked up in.
type Key struct {
	gen    int64
	userID string
	sort   string
}

func (k Key) String() string {
	return fmt.Sprintf("entries:v%d:%s:%s", k.gen, k.userID, k.sort)
}

type Cache interface {
	// Lookup returns the cached listing for userID and sort, if any, plus the
	// key a fresh listing should be stored under.
	Lookup(ctx context.Context, userID, sort string) (Key, []models.Entry, bool)
	Store(ctx context.Context, key Key, entries []models.Entry)
	// Invalidate drops every cached listing.
	Invalidate(ctx context.Context)
}

// New returns a Redis backed cache for redisURL, or a no-op cache when the
// URL is empty.
func New(redisURL string, ttl time.Duration) (Cache, error) {
	if redisURL == "" {
		return Noop{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedis(redis.NewClient(opts), ttl), nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Lookup(ctx context.Context, userID, sort string) (Key, []models.Entry, bool) {
	gen, err := r.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("listcache: read generation: %v", err)
		return Key{userID: userID, sort: sort, gen: -1}, nil, false
	}
	key := Key{gen: gen, userID: userID, sort: sort}
	raw, err := r.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("listcache: get %s: %v", key, err)
		}
		return key, nil, false
	}
	var entries []models.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("listcache: decode %s: %v", key, err)
		return key, nil, false
	}
	return key, entries, true
}

func (r *Redis) Store(ctx context.Context, key Key, entries []models.Entry) {
	if key.gen < 0 {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		log.Printf("listcache: encode %s: %v", key, err)
		return
	}
	if err := r.client.Set(ctx, key.String(), raw, r.ttl).Err(); err != nil {
		log.Printf("listcache: set %s: %v", key, err)
	}
}

func (r *Redis) Invalidate(ctx context.Context) {
	if err := r.client.Incr(ctx, generationKey).Err(); err != nil {
		log.Printf("listcache: bump generation: %v", err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop never caches anything.
type Noop struct{}

func (Noop) Lookup(_ context.Context, userID, sort string) (Key, []models.Entry, bool) {
	return Key{userID: userID, sort: sort}, nil, false
}

func (Noop) Store(context.Context, Key, []models.Entry) {}

func (Noop) Invalidate(context.Context) {}
