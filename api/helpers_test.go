package api

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"calendar-countdown/domain"
)

var testSecret = []byte("nonce-test-secret")

// stepClock is a settable clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stepClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stepClock) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
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

type spyResolver struct {
	mu        sync.Mutex
	ev        domain.Event
	err       error
	nextCalls int
	atCalls   int
	excludes  []int64
	offsets   []int
}

func (s *spyResolver) ResolveNext(ctx context.Context, now time.Time, excludeID int64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCalls++
	s.excludes = append(s.excludes, excludeID)
	return s.ev, s.err
}

func (s *spyResolver) ResolveAt(ctx context.Context, now time.Time, offset int) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atCalls++
	s.offsets = append(s.offsets, offset)
	return s.ev, s.err
}

func (s *spyResolver) NextCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCalls
}

func decodeLookup(t *testing.T, body []byte) lookupResponse {
	t.Helper()
	var resp lookupResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
	return resp
}
