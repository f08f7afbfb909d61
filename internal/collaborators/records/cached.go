package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"orqon-dispatch/internal/common/database"
	"orqon-dispatch/internal/models"
)

// CachedSource keeps the record list in Redis in front of a slower Source.
// Cache failures are logged and bypassed; only the inner source can fail a
// List. Concurrent misses share one inner call.
type CachedSource struct {
	inner  Source
	cache  *database.RedisClient
	key    string
	ttl    time.Duration
	logger Logger
	group  singleflight.Group
}

func NewCachedSource(inner Source, cache *database.RedisClient, keyPrefix string, ttl time.Duration, log Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		cache:  cache,
		key:    keyPrefix + ":records:all",
		ttl:    ttl,
		logger: log,
	}
}

func (c *CachedSource) List(ctx context.Context) ([]models.Record, error) {
	raw, err := c.cache.Get(ctx, c.key)
	switch {
	case err == nil:
		var recs []models.Record
		if uerr := json.Unmarshal([]byte(raw), &recs); uerr == nil {
			c.logger.Debug("record cache hit", map[string]interface{}{"records": len(recs)})
			return recs, nil
		}
		c.logger.Warn("discarding unreadable record cache entry", map[string]interface{}{"key": c.key})
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("record cache read failed", map[string]interface{}{"error": err.Error()})
	}

	v, err, _ := c.group.Do(c.key, func() (interface{}, error) {
		recs, err := c.inner.List(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, recs)
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	recs := v.([]models.Record)
	out := make([]models.Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (c *CachedSource) store(ctx context.Context, recs []models.Record) {
	body, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.key, body, c.ttl); err != nil {
		c.logger.Warn("record cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Invalidate drops the cached list so the next List reads through.
func (c *CachedSource) Invalidate(ctx context.Context) {
	if err := c.cache.Del(ctx, c.key); err != nil {
		c.logger.Warn("record cache invalidate failed", map[string]interface{}{"error": err.Error()})
	}
}

// InsertTrades writes through to the inner source when it is a TradeStore
// and invalidates the cache on success.
func (c *CachedSource) InsertTrades(ctx context.Context, tickets []models.TradeTicket) error {
	store, ok := c.inner.(TradeStore)
	if !ok {
		return errors.New("record source does not accept trades")
	}
	if err := store.InsertTrades(ctx, tickets); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}
