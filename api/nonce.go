package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"calendar-countdown/clock"
)

const (
	nonceAudience   = "calendar-countdown"
	nonceKeyPrefix  = "nonce:"
	defaultNonceTTL = 30 * time.Minute

	// ledger value while a lookup holding the token is in flight
	noncePending = "pending"
)

var (
	ErrInvalidNonce  = errors.New("invalid nonce")
	ErrExpiredNonce  = errors.New("nonce expired")
	ErrReplayedNonce = errors.New("nonce already used")
)

// Receipt is a verified token. Answer is set when the token was already
// answered and holds that response.
type Receipt struct {
	ID        string
	ExpiresAt time.Time
	Answer    []byte
}

// Nonces issues single-use HS256 tokens scoped to the countdown lookup. The
// Redis ledger keeps the response given for each token ID until the token
// would have expired anyway, so a client retrying after a lost response gets
// the same answer back.
type Nonces struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
	clock  clock.Clock
	parser *jwt.Parser
}

// NewNonces creates a token service. A non-positive ttl selects the default.
func NewNonces(secret []byte, ttl time.Duration, client *redis.Client, clk clock.Clock) *Nonces {
	if len(secret) == 0 {
		panic("api.NewNonces: empty secret")
	}
	if client == nil {
		panic("api.NewNonces: redis client is nil")
	}
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	return &Nonces{
		secret: secret,
		ttl:    ttl,
		redis:  client,
		clock:  clk,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
	}
}

// Issue signs a token valid for ttl past the later of now and notAfter. A
// countdown passes its target time so the token outlives the wait.
func (n *Nonces) Issue(ctx context.Context, notAfter time.Time) (string, error) {
	now := n.clock.Now()
	from := now
	if notAfter.After(from) {
		from = notAfter
	}
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{nonceAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(from.Add(n.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
}

// Verify checks the signature and claims against the injected clock, then
// reserves the token ID. A token whose lookup was answered before comes back
// with that answer. A token still in flight is reported as replayed.
func (n *Nonces) Verify(ctx context.Context, token string) (Receipt, error) {
	if token == "" {
		return Receipt{}, ErrInvalidNonce
	}
	var claims jwt.RegisteredClaims
	if _, err := n.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return n.secret, nil
	}); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}

	now := n.clock.Now()
	if !claims.VerifyExpiresAt(now, true) {
		return Receipt{}, ErrExpiredNonce
	}
	if !claims.VerifyAudience(nonceAudience, true) || claims.ID == "" {
		return Receipt{}, ErrInvalidNonce
	}

	r := Receipt{ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}
	key := nonceKeyPrefix + claims.ID
	fresh, err := n.redis.SetNX(ctx, key, noncePending, r.ExpiresAt.Sub(now)).Result()
	if err != nil {
		return Receipt{}, fmt.Errorf("record nonce: %w", err)
	}
	if fresh {
		return r, nil
	}

	answer, err := n.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Receipt{}, ErrReplayedNonce
		}
		return Receipt{}, fmt.Errorf("load nonce answer: %w", err)
	}
	if string(answer) == noncePending {
		return Receipt{}, ErrReplayedNonce
	}
	r.Answer = answer
	return r, nil
}

// Settle stores the response given for a verified token.
func (n *Nonces) Settle(ctx context.Context, r Receipt, answer []byte) error {
	ttl := r.ExpiresAt.Sub(n.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return n.redis.Set(ctx, nonceKeyPrefix+r.ID, answer, ttl).Err()
}

// Release forgets a verified token so it can be presented again.
func (n *Nonces) Release(ctx context.Context, r Receipt) error {
	return n.redis.Del(ctx, nonceKeyPrefix+r.ID).Err()
}
