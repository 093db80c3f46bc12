package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"calendar-countdown/domain"
)

// Backend is everything the service needs from an event store.
type Backend interface {
	domain.EventStore
	domain.AdminStorage
}

// Cache wraps a Backend with Redis-backed caching of single-event reads.
// Writes go to the backend first and then evict the cached entry.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
	loc   *time.Location
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration, loc *time.Location) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{base: base, redis: client, ttl: ttl, loc: loc}
}

type cachedEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ScheduledAt string `json:"scheduledAt"`
}

func eventCacheKey(id int64) string {
	return "event:" + strconv.FormatInt(id, 10)
}

func (c *Cache) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	if ev, ok := c.load(ctx, id); ok {
		return ev, nil
	}
	ev, err := c.base.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	c.store(ctx, ev)
	return ev, nil
}

func (c *Cache) QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]domain.Event, error) {
	return c.base.QueryAscendingFrom(ctx, from, excludeIDs, offset, limit)
}

func (c *Cache) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return c.base.ListEvents(ctx)
}

func (c *Cache) CreateEvent(ctx context.Context, title string, at time.Time) (domain.Event, error) {
	return c.base.CreateEvent(ctx, title, at)
}

func (c *Cache) UpdateEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.UpdateEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, ev.ID)
	return nil
}

func (c *Cache) UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error {
	if err := c.base.UpdateScheduledAt(ctx, id, at); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) load(ctx context.Context, id int64) (domain.Event, bool) {
	if c.redis == nil {
		return domain.Event{}, false
	}
	data, err := c.redis.Get(ctx, eventCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
		}
		return domain.Event{}, false
	}
	var ce cachedEvent
	if err := json.Unmarshal(data, &ce); err != nil {
		_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
		return domain.Event{}, false
	}
	at, err := time.ParseInLocation(domain.StorageLayout, ce.ScheduledAt, c.loc)
	if err != nil {
		_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
		return domain.Event{}, false
	}
	return domain.Event{ID: ce.ID, Title: ce.Title, ScheduledAt: at}, true
}

func (c *Cache) store(ctx context.Context, ev domain.Event) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedEvent{ID: ev.ID, Title: ev.Title, ScheduledAt: ev.ScheduledAt.In(c.loc).Format(domain.StorageLayout)})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, eventCacheKey(ev.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
}
