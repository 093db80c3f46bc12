package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"calendar-countdown/domain"
)

// Memory is a process-local event store for tests and single-instance development.
type Memory struct {
	mu     sync.Mutex
	events []domain.Event
	nextID int64
	loc    *time.Location
}

func NewMemory(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{loc: loc}
}

// Seed inserts events as given, keeping their IDs when set.
func (m *Memory) Seed(events ...domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		if ev.ID <= 0 {
			m.nextID++
			ev.ID = m.nextID
		} else if ev.ID > m.nextID {
			m.nextID = ev.ID
		}
		ev.ScheduledAt = ev.ScheduledAt.In(m.loc)
		m.events = append(m.events, ev)
	}
}

func (m *Memory) sorted(keep func(domain.Event) bool) []domain.Event {
	out := make([]domain.Event, 0, len(m.events))
	for _, ev := range m.events {
		if keep == nil || keep(ev) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out
}

func (m *Memory) QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]domain.Event, error) {
	skip := make(map[int64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.sorted(func(ev domain.Event) bool {
		if _, ok := skip[ev.ID]; ok {
			return false
		}
		return !ev.ScheduledAt.Before(from)
	})
	return page(events, offset, limit), nil
}

func (m *Memory) ListEvents(ctx context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(nil), nil
}

func (m *Memory) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return domain.Event{}, domain.ErrNotFound
}

func (m *Memory) CreateEvent(ctx context.Context, title string, at time.Time) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev := domain.Event{ID: m.nextID, Title: title, ScheduledAt: at.In(m.loc)}
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *Memory) UpdateEvent(ctx context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == ev.ID {
			ev.ScheduledAt = ev.ScheduledAt.In(m.loc)
			m.events[i] = ev
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *Memory) UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].ScheduledAt = at.In(m.loc)
			return nil
		}
	}
	return domain.ErrNotFound
}
