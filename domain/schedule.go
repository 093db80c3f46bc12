package domain

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventStore is the persistence needed by the resolver and the normalizer.
type EventStore interface {
	// QueryAscendingFrom returns events scheduled at or after from, skipping excludeIDs,
	// ordered by ScheduledAt then ID, paged by offset and limit.
	QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error
}

// RollObserver is told about every event moved forward by the normalizer.
type RollObserver interface {
	EventRolled(ctx context.Context, ev Event, from time.Time) error
}

// YearNormalizer rolls stale events into the given year.
type YearNormalizer interface {
	NormalizeAll(ctx context.Context, currentYear int) int
}

// Normalizer advances events scheduled in past years to the current year.
type Normalizer struct {
	store     EventStore
	observers []RollObserver
}

func NewNormalizer(store EventStore, observers ...RollObserver) *Normalizer {
	return &Normalizer{store: store, observers: observers}
}

// NormalizeAll rolls every event whose year is before currentYear forward by the
// missing number of years. Failed updates are logged and skipped. It returns the
// number of events rolled.
func (n *Normalizer) NormalizeAll(ctx context.Context, currentYear int) int {
	events, err := n.store.ListEvents(ctx)
	if err != nil {
		log.WithError(err).Error("normalize: list events")
		return 0
	}
	rolled := 0
	for _, ev := range events {
		year := ev.ScheduledAt.Year()
		if year >= currentYear {
			continue
		}
		from := ev.ScheduledAt
		ev.ScheduledAt = RollYears(from, currentYear-year)
		if err := n.store.UpdateScheduledAt(ctx, ev.ID, ev.ScheduledAt); err != nil {
			log.WithFields(log.Fields{"event": ev.ID, "from": from.Format(StorageLayout)}).WithError(err).Error("normalize: update event")
			continue
		}
		rolled++
		log.WithFields(log.Fields{"event": ev.ID, "from": from.Format(StorageLayout), "to": ev.ScheduledAt.Format(StorageLayout)}).Info("event rolled forward")
		for _, o := range n.observers {
			if err := o.EventRolled(ctx, ev, from); err != nil {
				log.WithField("event", ev.ID).WithError(err).Warn("normalize: roll observer failed")
			}
		}
	}
	return rolled
}

// Resolver finds the nearest upcoming event.
type Resolver struct {
	store EventStore
	norm  YearNormalizer
}

func NewResolver(store EventStore, norm YearNormalizer) *Resolver {
	return &Resolver{store: store, norm: norm}
}

// ResolveNext returns the earliest event at or after now other than excludeID
// (excludeID <= 0 means no exclusion). When nothing qualifies, stale events are
// normalized once and the query is repeated without the exclusion.
func (r *Resolver) ResolveNext(ctx context.Context, now time.Time, excludeID int64) (Event, error) {
	var exclude []int64
	if excludeID > 0 {
		exclude = []int64{excludeID}
	}
	return r.resolve(ctx, now, exclude, 0)
}

// ResolveAt returns the event at position offset in the ascending list of upcoming
// events, with the same normalize-and-retry fallback as ResolveNext.
func (r *Resolver) ResolveAt(ctx context.Context, now time.Time, offset int) (Event, error) {
	if offset < 0 {
		offset = 0
	}
	return r.resolve(ctx, now, nil, offset)
}

func (r *Resolver) resolve(ctx context.Context, now time.Time, exclude []int64, offset int) (Event, error) {
	events, err := r.store.QueryAscendingFrom(ctx, now, exclude, offset, 1)
	if err != nil {
		return Event{}, fmt.Errorf("query upcoming: %w", err)
	}
	if len(events) > 0 {
		return events[0], nil
	}

	// Retried without the exclusion: the excluded event may be the one rolled forward.
	if r.norm != nil {
		r.norm.NormalizeAll(ctx, now.Year())
	}
	events, err = r.store.QueryAscendingFrom(ctx, now, nil, offset, 1)
	if err != nil {
		return Event{}, fmt.Errorf("query upcoming after normalize: %w", err)
	}
	if len(events) == 0 {
		return Event{}, ErrNotFound
	}
	return events[0], nil
}
