package api

import (
	"errors"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
	"calendar-countdown/domain"
)

// lookupResponse is shared by the lookup endpoint and the JSON countdown seed.
// Failures of any kind carry only success:false.
type lookupResponse struct {
	Success  bool   `json:"success"`
	Datetime string `json:"datetime,omitempty"`
	Title    string `json:"title,omitempty"`
	ID       int64  `json:"id,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
}

var lookupFailure = lookupResponse{Success: false}

func foundResponse(ev domain.Event, nonce string) lookupResponse {
	return lookupResponse{
		Success:  true,
		Datetime: html.EscapeString(domain.FormatWire(ev.ScheduledAt)),
		Title:    html.EscapeString(ev.Title),
		ID:       ev.ID,
		Nonce:    nonce,
	}
}

// nonNegativeInt parses raw, mapping anything that is not a non-negative integer to 0.
func nonNegativeInt(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func getNextEvent(resolver Resolver, tokens Tokens, limiter Limiter, clk clock.Clock, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newLookupMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		verifyStart := time.Now()
		receipt, verifyErr := tokens.Verify(ctx, c.QueryParam("nonce"))
		metrics.ObserveVerify(time.Since(verifyStart))
		if verifyErr != nil {
			metrics.SetOutcome(outcomeInvalidToken)
			logger.WithError(verifyErr).Debug("lookup rejected")
			return c.JSON(http.StatusOK, lookupFailure)
		}
		if receipt.Answer != nil {
			metrics.SetOutcome(outcomeReplayed)
			return c.JSONBlob(http.StatusOK, receipt.Answer)
		}

		// unavailable lets the client retry with the same token
		unavailable := func(cause error, msg string) error {
			metrics.SetError(cause)
			logger.WithError(cause).Error(msg)
			if relErr := tokens.Release(ctx, receipt); relErr != nil {
				logger.WithError(relErr).Warn("release nonce")
			}
			return c.JSON(http.StatusServiceUnavailable, lookupFailure)
		}

		allowed, limitErr := limiter.Allow(ctx, c.RealIP())
		if limitErr != nil {
			logger.WithError(limitErr).Warn("rate limiter unavailable; allowing request")
		}
		if !allowed {
			metrics.SetOutcome(outcomeRateLimited)
			if relErr := tokens.Release(ctx, receipt); relErr != nil {
				logger.WithError(relErr).Warn("release nonce")
			}
			return c.JSON(http.StatusOK, lookupFailure)
		}

		exclude := nonNegativeInt(c.QueryParam("exclude"))
		metrics.SetExclude(exclude)

		resolveStart := time.Now()
		ev, resolveErr := resolver.ResolveNext(ctx, clk.Now(), exclude)
		metrics.ObserveResolve(time.Since(resolveStart))

		var resp lookupResponse
		switch {
		case resolveErr == nil:
			nonce, issueErr := tokens.Issue(ctx, ev.ScheduledAt)
			if issueErr != nil {
				return unavailable(issueErr, "issue nonce")
			}
			metrics.SetEventID(ev.ID)
			metrics.SetOutcome(outcomeFound)
			resp = foundResponse(ev, nonce)
		case errors.Is(resolveErr, domain.ErrNotFound):
			metrics.SetOutcome(outcomeNotFound)
			resp = lookupFailure
		default:
			return unavailable(resolveErr, "resolve next event")
		}

		body, err := sonic.ConfigStd.Marshal(resp)
		if err != nil {
			return unavailable(err, "encode lookup response")
		}
		if err := tokens.Settle(ctx, receipt, body); err != nil {
			logger.WithError(err).Warn("store lookup answer")
		}
		return c.JSONBlob(http.StatusOK, body)
	}
}
