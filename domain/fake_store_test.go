package domain

import (
	"context"
	"errors"
	"sort"
	"time"
)

type fakeStore struct {
	events    []Event
	failIDs   map[int64]bool
	listErr   error
	queryErr  error
	updates   []int64
	queries   int
	lastQuery []int64
}

func (f *fakeStore) QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]Event, error) {
	f.queries++
	f.lastQuery = excludeIDs
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	skip := map[int64]bool{}
	for _, id := range excludeIDs {
		skip[id] = true
	}
	var out []Event
	for _, ev := range f.events {
		if skip[ev.ID] || ev.ScheduledAt.Before(from) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListEvents(ctx context.Context) ([]Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Event(nil), f.events...), nil
}

func (f *fakeStore) UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error {
	if f.failIDs[id] {
		return errors.New("write failed")
	}
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].ScheduledAt = at
			f.updates = append(f.updates, id)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) GetEvent(ctx context.Context, id int64) (Event, error) {
	for _, ev := range f.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return Event{}, ErrNotFound
}

func (f *fakeStore) CreateEvent(ctx context.Context, title string, at time.Time) (Event, error) {
	ev := Event{ID: int64(len(f.events) + 1), Title: title, ScheduledAt: at}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeStore) UpdateEvent(ctx context.Context, ev Event) error {
	for i := range f.events {
		if f.events[i].ID == ev.ID {
			f.events[i] = ev
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) get(id int64) Event {
	ev, _ := f.GetEvent(context.Background(), id)
	return ev
}

type countingNormalizer struct {
	inner YearNormalizer
	calls int
	years []int
}

func (c *countingNormalizer) NormalizeAll(ctx context.Context, year int) int {
	c.calls++
	c.years = append(c.years, year)
	if c.inner == nil {
		return 0
	}
	return c.inner.NormalizeAll(ctx, year)
}

type recordingObserver struct {
	rolled []Event
	err    error
}

func (r *recordingObserver) EventRolled(ctx context.Context, ev Event, from time.Time) error {
	r.rolled = append(r.rolled, ev)
	return r.err
}
