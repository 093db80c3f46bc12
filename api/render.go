package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
	"calendar-countdown/domain"
)

//go:embed templates/*.html
var templateFiles embed.FS

var countdownTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

const countdownScriptPath = "/assets/countdown.js"

type countdownView struct {
	ElementID string
	Datetime  string
	EventID   int64
	Title     string
	Nonce     string
	LookupURL string
	ScriptURL string
}

// seedCountdown resolves the event at offset and issues the first lookup token.
func seedCountdown(ctx context.Context, resolver Resolver, tokens Tokens, clk clock.Clock, offset int) (domain.Event, string, error) {
	ev, err := resolver.ResolveAt(ctx, clk.Now(), offset)
	if err != nil {
		return domain.Event{}, "", err
	}
	nonce, err := tokens.Issue(ctx, ev.ScheduledAt)
	if err != nil {
		return domain.Event{}, "", err
	}
	return ev, nonce, nil
}

func renderCountdown(resolver Resolver, tokens Tokens, clk clock.Clock, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		offset := int(nonNegativeInt(c.QueryParam("offset")))
		ev, nonce, err := seedCountdown(c.Request().Context(), resolver, tokens, clk, offset)

		var buf bytes.Buffer
		switch {
		case err == nil:
			err = countdownTemplates.ExecuteTemplate(&buf, "countdown", countdownView{
				ElementID: "calendar_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
				Datetime:  domain.FormatWire(ev.ScheduledAt),
				EventID:   ev.ID,
				Title:     ev.Title,
				Nonce:     nonce,
				LookupURL: lookupRoute,
				ScriptURL: countdownScriptPath,
			})
		case errors.Is(err, domain.ErrNotFound):
			err = countdownTemplates.ExecuteTemplate(&buf, "empty", nil)
		default:
			logger.WithError(err).Error("render countdown")
			err = countdownTemplates.ExecuteTemplate(&buf, "empty", nil)
		}
		if err != nil {
			return c.String(http.StatusInternalServerError, "render failed")
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	}
}

func getCountdownSeed(resolver Resolver, tokens Tokens, clk clock.Clock, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		offset := int(nonNegativeInt(c.QueryParam("offset")))
		ev, nonce, err := seedCountdown(c.Request().Context(), resolver, tokens, clk, offset)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.WithError(err).Error("countdown seed")
			}
			return c.JSON(http.StatusOK, lookupFailure)
		}
		return c.JSON(http.StatusOK, foundResponse(ev, nonce))
	}
}
