package domain

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// AdminStorage defines the methods editors need to manage events.
type AdminStorage interface {
	ListEvents(ctx context.Context) ([]Event, error)
	GetEvent(ctx context.Context, id int64) (Event, error)
	CreateEvent(ctx context.Context, title string, at time.Time) (Event, error)
	UpdateEvent(ctx context.Context, ev Event) error
}

// EventInput carries editor changes. Nil fields are left untouched.
type EventInput struct {
	Title       *string `json:"title,omitempty"`
	ScheduledAt *string `json:"scheduledAt,omitempty"`
}

// AdminService creates and edits events on behalf of editors.
type AdminService struct {
	st  AdminStorage
	loc *time.Location
}

func NewAdminService(st AdminStorage, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminService{st: st, loc: loc}
}

func (s *AdminService) ListEvents(ctx context.Context) ([]Event, error) {
	return s.st.ListEvents(ctx)
}

func (s *AdminService) GetEvent(ctx context.Context, id int64) (Event, error) {
	if id <= 0 {
		return Event{}, ErrNotFound
	}
	return s.st.GetEvent(ctx, id)
}

// CreateEvent stores a new event. Both a title and a parseable datetime are required.
func (s *AdminService) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
	}
	if title == "" {
		return Event{}, ErrInvalidTitle
	}
	if in.ScheduledAt == nil {
		return Event{}, ErrInvalidDatetime
	}
	at, err := ParseScheduledAt(*in.ScheduledAt, s.loc)
	if err != nil {
		return Event{}, err
	}
	return s.st.CreateEvent(ctx, title, at)
}

// UpdateEvent applies editor changes. An empty title or an unparseable datetime is
// ignored and the stored value kept; the editor is not told.
func (s *AdminService) UpdateEvent(ctx context.Context, id int64, in EventInput) (Event, error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if in.Title != nil {
		if title := strings.TrimSpace(*in.Title); title != "" {
			ev.Title = title
		}
	}
	if in.ScheduledAt != nil {
		at, err := ParseScheduledAt(*in.ScheduledAt, s.loc)
		if err != nil {
			log.WithFields(log.Fields{"event": id, "input": *in.ScheduledAt}).Debug("ignoring invalid datetime")
		} else {
			ev.ScheduledAt = at
		}
	}
	if err := s.st.UpdateEvent(ctx, ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
