package api

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
	"calendar-countdown/domain"
	"calendar-countdown/storage"
)

var nonceAttr = regexp.MustCompile(`data-nonce="([^"]+)"`)

func newTestApp(t *testing.T, store *storage.Memory, now time.Time) *echo.Echo {
	t.Helper()
	return newTestAppWithClock(t, store, clock.NewFixed(now), 10*time.Minute)
}

func newTestAppWithClock(t *testing.T, store *storage.Memory, clk clock.Clock, nonceTTL time.Duration) *echo.Echo {
	t.Helper()
	_, client := newTestRedis(t)
	norm := domain.NewNormalizer(store, RollCounter{})

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	e := echo.New()
	Register(e, Deps{
		Resolver:   domain.NewResolver(store, norm),
		Normalizer: norm,
		Admin:      domain.NewAdminService(store, time.UTC),
		Tokens:     NewNonces(testSecret, nonceTTL, client, clk),
		Limiter:    NewRedisLimiter(client, 10, time.Minute),
		Auth:       NewLocalAuth([]byte(adminSecret), "", ""),
		Clock:      clk,
	}, logger)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestEndToEndRenderThenLookupNext(t *testing.T) {
	now := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	store := storage.NewMemory(time.UTC)
	store.Seed(
		domain.Event{ID: 1, Title: "First", ScheduledAt: now.Add(time.Hour)},
		domain.Event{ID: 2, Title: "Second", ScheduledAt: now.Add(2 * time.Hour)},
	)
	e := newTestApp(t, store, now)

	rec := get(e, "/countdown?offset=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("render status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h3>First</h3>") || !strings.Contains(body, `data-event-id="1"`) {
		t.Fatalf("expected first event in fragment: %s", body)
	}
	if !strings.Contains(body, `data-datetime="2030-03-10T10:00:00"`) {
		t.Fatalf("expected wire datetime in fragment: %s", body)
	}
	m := nonceAttr.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("fragment carries no nonce: %s", body)
	}

	rec = get(e, "/api/next-event?exclude=1&nonce="+m[1])
	resp := decodeLookup(t, rec.Body.Bytes())
	if !resp.Success || resp.ID != 2 || resp.Title != "Second" {
		t.Fatalf("expected event 2, got %+v", resp)
	}
	if resp.Datetime != "2030-03-10T11:00:00" {
		t.Fatalf("unexpected datetime %q", resp.Datetime)
	}
}

func TestEndToEndCountdownOutlivesNonceTTL(t *testing.T) {
	start := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	clk := &stepClock{now: start}
	store := storage.NewMemory(time.UTC)
	store.Seed(
		domain.Event{ID: 1, Title: "Launch", ScheduledAt: start.Add(48 * time.Hour)},
		domain.Event{ID: 2, Title: "Review", ScheduledAt: start.Add(72 * time.Hour)},
		domain.Event{ID: 3, Title: "Party", ScheduledAt: start.Add(96 * time.Hour)},
	)
	e := newTestAppWithClock(t, store, clk, 30*time.Minute)

	body := get(e, "/countdown").Body.String()
	m := nonceAttr.FindStringSubmatch(body)
	if m == nil || !strings.Contains(body, `data-event-id="1"`) {
		t.Fatalf("expected event 1 with a nonce: %s", body)
	}

	clk.Advance(48*time.Hour + time.Second)
	rec := get(e, "/api/next-event?exclude=1&nonce="+m[1])
	resp := decodeLookup(t, rec.Body.Bytes())
	if !resp.Success || resp.ID != 2 {
		t.Fatalf("countdown must advance to event 2 after waiting for event 1, got %+v", resp)
	}

	// a retry after a lost response sees the same answer
	if again := get(e, "/api/next-event?exclude=1&nonce="+m[1]); again.Body.String() != rec.Body.String() {
		t.Fatalf("retry must repeat the answer\nfirst: %s\nretry: %s", rec.Body, again.Body)
	}

	clk.Advance(24 * time.Hour)
	resp = decodeLookup(t, get(e, "/api/next-event?exclude=2&nonce="+resp.Nonce).Body.Bytes())
	if !resp.Success || resp.ID != 3 || resp.Title != "Party" {
		t.Fatalf("countdown must advance to event 3, got %+v", resp)
	}

	clk.Advance(24 * time.Hour)
	resp = decodeLookup(t, get(e, "/api/next-event?exclude=3&nonce="+resp.Nonce).Body.Bytes())
	if resp != lookupFailure {
		t.Fatalf("nothing left after event 3, got %+v", resp)
	}
}

func TestEndToEndStaleEventRolledForward(t *testing.T) {
	now := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	original := now.AddDate(-1, 0, 3)
	store := storage.NewMemory(time.UTC)
	store.Seed(domain.Event{ID: 1, Title: "Anniversary", ScheduledAt: original})
	e := newTestApp(t, store, now)

	rec := get(e, "/api/countdown")
	resp := decodeLookup(t, rec.Body.Bytes())
	if !resp.Success || resp.ID != 1 {
		t.Fatalf("expected the rolled event, got %+v", resp)
	}
	want := domain.FormatWire(original.AddDate(1, 0, 0))
	if resp.Datetime != want {
		t.Fatalf("expected datetime shifted by one year %q, got %q", want, resp.Datetime)
	}

	rec = get(e, "/api/next-event?exclude=1&nonce="+resp.Nonce)
	next := decodeLookup(t, rec.Body.Bytes())
	if !next.Success || next.ID != 1 || next.Datetime != want {
		t.Fatalf("only event must resurface after exclusion, got %+v", next)
	}
}

func TestEndToEndNothingUpcoming(t *testing.T) {
	now := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	store := storage.NewMemory(time.UTC)
	store.Seed(domain.Event{ID: 1, Title: "Earlier today", ScheduledAt: now.Add(-time.Hour)})
	e := newTestApp(t, store, now)

	rec := get(e, "/countdown")
	if strings.TrimSpace(rec.Body.String()) != "<p>No upcoming events.</p>" {
		t.Fatalf("unexpected fallback fragment: %q", rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token bearing responses must not be cached")
	}

	rec = get(e, "/api/countdown")
	if resp := decodeLookup(t, rec.Body.Bytes()); resp != lookupFailure {
		t.Fatalf("expected failure seed, got %+v", resp)
	}
}

func TestRenderOffsetAndEscaping(t *testing.T) {
	now := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	store := storage.NewMemory(time.UTC)
	store.Seed(
		domain.Event{ID: 1, Title: "One", ScheduledAt: now.Add(time.Hour)},
		domain.Event{ID: 2, Title: `<b>"Two"</b>`, ScheduledAt: now.Add(2 * time.Hour)},
	)
	e := newTestApp(t, store, now)

	body := get(e, "/countdown?offset=1").Body.String()
	if !strings.Contains(body, `data-event-id="2"`) {
		t.Fatalf("offset 1 should select event 2: %s", body)
	}
	if strings.Contains(body, "<b>") || !strings.Contains(body, "&lt;b&gt;") {
		t.Fatalf("title must be escaped: %s", body)
	}
	if !strings.Contains(body, `class="calendar-countdown"`) || !strings.Contains(body, `<div class="countdown-timer"></div>`) {
		t.Fatalf("missing countdown markup: %s", body)
	}
	if !regexp.MustCompile(`id="calendar_[0-9a-f]{32}"`).MatchString(body) {
		t.Fatalf("missing unique container id: %s", body)
	}

	body = get(e, "/countdown?offset=-4").Body.String()
	if !strings.Contains(body, `data-event-id="1"`) {
		t.Fatalf("negative offset should be treated as 0: %s", body)
	}
}

func TestCountdownScriptServed(t *testing.T) {
	e := newTestApp(t, storage.NewMemory(time.UTC), time.Now())
	rec := get(e, "/assets/countdown.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("script status %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "application/javascript") {
		t.Fatalf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Body.String(), "calendar-countdown") {
		t.Fatalf("unexpected script body")
	}
}
