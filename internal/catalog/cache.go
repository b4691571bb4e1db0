package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// writeHold is how long after a write read-through fills for the product are
// refused, so a read that fetched the old item before the write cannot put
// it back.
const writeHold = 5 * time.Second

// fillScript caches ARGV[1] under KEYS[1] unless KEYS[2], the write hold
// marker, is set.
var fillScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// CachedRepository is a cache-aside decorator over a Repository. Reads go to
// redis first; writes go to the store and then evict the cached entry.
// Redis failures are logged and reads fall through to the store.
type CachedRepository struct {
	Repository
	rdb    redis.Cmdable
	ttl    time.Duration
	hold   time.Duration
	logger zerolog.Logger
}

var _ Repository = (*CachedRepository)(nil)

func NewCachedRepository(repo Repository, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedRepository {
	return &CachedRepository{
		Repository: repo,
		rdb:        rdb,
		ttl:        ttl,
		hold:       writeHold,
		logger:     logger.With().Str("component", "product_cache").Logger(),
	}
}

func cacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func holdKey(id string) string {
	return fmt.Sprintf("product:%s:hold", id)
}

func (r *CachedRepository) Get(ctx context.Context, id string) (*Product, error) {
	raw, err := r.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var p Product
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
		r.logger.Warn().Str("product_id", id).Msg("dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		r.logger.Warn().Err(err).Str("product_id", id).Msg("cache read failed")
	}

	p, err := r.Repository.Get(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	r.store(ctx, *p)
	return p, nil
}

func (r *CachedRepository) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	found := make(map[string]Product, len(ids))
	misses := ids
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn().Err(err).Msg("cache multi-read failed")
	} else {
		misses = nil
		for i, v := range vals {
			s, ok := v.(string)
			var p Product
			if !ok || json.Unmarshal([]byte(s), &p) != nil {
				misses = append(misses, ids[i])
				continue
			}
			found[p.ID] = p
		}
	}
	if len(misses) == 0 {
		return found, nil
	}

	loaded, err := r.Repository.GetMany(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, p := range loaded {
		found[id] = p
		r.store(ctx, p)
	}
	return found, nil
}

func (r *CachedRepository) Update(ctx context.Context, p Product) error {
	if err := r.Repository.Update(ctx, p); err != nil {
		return err
	}
	r.evict(ctx, p.ID)
	return nil
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

func (r *CachedRepository) store(ctx context.Context, p Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	keys := []string{cacheKey(p.ID), holdKey(p.ID)}
	if err := fillScript.Run(ctx, r.rdb, keys, raw, r.ttl.Milliseconds()).Err(); err != nil {
		r.logger.Warn().Err(err).Str("product_id", p.ID).Msg("cache write failed")
	}
}

// evict drops the cached product and holds off refills for r.hold.
func (r *CachedRepository) evict(ctx context.Context, id string) {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, holdKey(id), 1, r.hold)
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("product_id", id).Msg("cache evict failed")
	}
}
