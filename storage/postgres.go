package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"calendar-countdown/domain"
)

// Postgres stores events in a `timestamp without time zone` column holding the
// site wall clock.
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewPostgres(pool *pgxpool.Pool, loc *time.Location) *Postgres {
	if loc == nil {
		loc = time.UTC
	}
	return &Postgres{pool: pool, loc: loc}
}

// Connect opens a pool for dsn and verifies it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// wall drops the zone, keeping the site wall clock.
func (p *Postgres) wall(t time.Time) time.Time {
	t = t.In(p.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func (p *Postgres) local(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.loc)
}

func (p *Postgres) scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()
	events := []domain.Event{}
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ScheduledAt = p.local(ev.ScheduledAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (p *Postgres) QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]domain.Event, error) {
	const query = `
SELECT id, title, scheduled_at
FROM events
WHERE scheduled_at >= $1 AND NOT (id = ANY($2))
ORDER BY scheduled_at ASC, id ASC
OFFSET $3
LIMIT $4`
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	if offset < 0 {
		offset = 0
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := p.pool.Query(ctx, query, p.wall(from), excludeIDs, offset, lim)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	return p.scanEvents(rows)
}

func (p *Postgres) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
SELECT id, title, scheduled_at
FROM events
ORDER BY scheduled_at ASC, id ASC`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return p.scanEvents(rows)
}

func (p *Postgres) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	const query = `SELECT id, title, scheduled_at FROM events WHERE id = $1`
	var ev domain.Event
	err := p.pool.QueryRow(ctx, query, id).Scan(&ev.ID, &ev.Title, &ev.ScheduledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	ev.ScheduledAt = p.local(ev.ScheduledAt)
	return ev, nil
}

func (p *Postgres) CreateEvent(ctx context.Context, title string, at time.Time) (domain.Event, error) {
	const stmt = `
INSERT INTO events (title, scheduled_at)
VALUES ($1, $2)
RETURNING id`
	ev := domain.Event{Title: title, ScheduledAt: p.local(p.wall(at))}
	if err := p.pool.QueryRow(ctx, stmt, title, p.wall(at)).Scan(&ev.ID); err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

func (p *Postgres) UpdateEvent(ctx context.Context, ev domain.Event) error {
	const stmt = `UPDATE events SET title = $2, scheduled_at = $3 WHERE id = $1`
	tag, err := p.pool.Exec(ctx, stmt, ev.ID, ev.Title, p.wall(ev.ScheduledAt))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error {
	const stmt = `UPDATE events SET scheduled_at = $2 WHERE id = $1`
	tag, err := p.pool.Exec(ctx, stmt, id, p.wall(at))
	if err != nil {
		return fmt.Errorf("update scheduled_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
