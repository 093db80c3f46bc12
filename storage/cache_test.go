package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"calendar-countdown/domain"
)

type stubBackend struct {
	*Memory
	gets int
}

func (s *stubBackend) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	s.gets++
	return s.Memory.GetEvent(ctx, id)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheGetEventMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	loc := time.FixedZone("site", 2*3600)
	at := time.Date(2031, 5, 6, 7, 8, 9, 0, loc)
	backend := &stubBackend{Memory: NewMemory(loc)}
	backend.Seed(domain.Event{ID: 4, Title: "Launch", ScheduledAt: at})

	cache := NewCache(backend, client, time.Minute, loc)
	ctx := context.Background()

	ev, err := cache.GetEvent(ctx, 4)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.Title != "Launch" || !ev.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ttl := mr.TTL(eventCacheKey(4)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.GetEvent(ctx, 4)
	if err != nil {
		t.Fatalf("get cached event: %v", err)
	}
	if cached.ID != 4 || cached.Title != "Launch" || !cached.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected cached event: %+v", cached)
	}
	if cached.ScheduledAt.Location() != loc {
		t.Fatalf("expected cached event in site zone, got %v", cached.ScheduledAt.Location())
	}
	if backend.gets != 1 {
		t.Fatalf("expected cached read to avoid backend, gets=%d", backend.gets)
	}
}

func TestCacheEvictsOnUpdate(t *testing.T) {
	mr, client := newTestRedis(t)
	backend := &stubBackend{Memory: NewMemory(time.UTC)}
	backend.Seed(domain.Event{ID: 1, Title: "Old", ScheduledAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)})
	cache := NewCache(backend, client, time.Minute, time.UTC)
	ctx := context.Background()

	if _, err := cache.GetEvent(ctx, 1); err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !mr.Exists(eventCacheKey(1)) {
		t.Fatalf("expected cached entry")
	}
	if err := cache.UpdateEvent(ctx, domain.Event{ID: 1, Title: "New", ScheduledAt: time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("update event: %v", err)
	}
	if mr.Exists(eventCacheKey(1)) {
		t.Fatalf("expected entry evicted after update")
	}
	ev, err := cache.GetEvent(ctx, 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.Title != "New" {
		t.Fatalf("expected fresh title, got %q", ev.Title)
	}

	if err := cache.UpdateScheduledAt(ctx, 1, time.Date(2031, 1, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("update scheduled at: %v", err)
	}
	if mr.Exists(eventCacheKey(1)) {
		t.Fatalf("expected entry evicted after roll")
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	backend := &stubBackend{Memory: NewMemory(time.UTC)}
	backend.Seed(domain.Event{ID: 2, Title: "Gala", ScheduledAt: time.Date(2030, 3, 1, 18, 0, 0, 0, time.UTC)})
	cache := NewCache(backend, client, time.Minute, time.UTC)
	mr.Close()

	ev, err := cache.GetEvent(context.Background(), 2)
	if err != nil {
		t.Fatalf("expected fallback to backend, got %v", err)
	}
	if ev.Title != "Gala" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestCacheDoesNotCacheMisses(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewCache(&stubBackend{Memory: NewMemory(time.UTC)}, client, time.Minute, time.UTC)

	_, err := cache.GetEvent(context.Background(), 9)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(eventCacheKey(9)) {
		t.Fatalf("missing event must not be cached")
	}
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	backend := &stubBackend{Memory: NewMemory(time.UTC)}
	backend.Seed(domain.Event{ID: 3, Title: "Fair", ScheduledAt: time.Date(2030, 8, 1, 9, 0, 0, 0, time.UTC)})
	cache := NewCache(backend, client, time.Minute, time.UTC)
	if err := mr.Set(eventCacheKey(3), "not-json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	ev, err := cache.GetEvent(context.Background(), 3)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.Title != "Fair" || backend.gets != 1 {
		t.Fatalf("expected backend read, event=%+v gets=%d", ev, backend.gets)
	}
}
