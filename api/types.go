package api

import (
	"context"
	"time"

	"calendar-countdown/domain"
)

// Resolver picks the event a countdown should target.
type Resolver interface {
	ResolveNext(ctx context.Context, now time.Time, excludeID int64) (domain.Event, error)
	ResolveAt(ctx context.Context, now time.Time, offset int) (domain.Event, error)
}

// Tokens issues and checks the verification tokens carried by lookup requests.
type Tokens interface {
	// Issue signs a token that stays valid until past notAfter.
	Issue(ctx context.Context, notAfter time.Time) (string, error)
	// Verify fails for malformed, expired or foreign tokens and for tokens
	// whose lookup is still in flight. A token answered before comes back with
	// its stored answer.
	Verify(ctx context.Context, token string) (Receipt, error)
	Settle(ctx context.Context, r Receipt, answer []byte) error
	Release(ctx context.Context, r Receipt) error
}

// Limiter decides whether another request from key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Authenticator is implemented by types able to extract the caller from headers.
type Authenticator interface {
	SubjectFromAuthHeader(string) (string, error)
}

// EventAdmin is the editor facing event service.
type EventAdmin interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	CreateEvent(ctx context.Context, in domain.EventInput) (domain.Event, error)
	UpdateEvent(ctx context.Context, id int64, in domain.EventInput) (domain.Event, error)
}
