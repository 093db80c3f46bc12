package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
	"calendar-countdown/domain"
)

// Deps collects what the routes need.
type Deps struct {
	Resolver   Resolver
	Normalizer domain.YearNormalizer
	Admin      EventAdmin
	Tokens     Tokens
	Limiter    Limiter
	Auth       Authenticator
	Clock      clock.Clock
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps, logger *log.Logger) {
	if d.Clock == nil {
		d.Clock = clock.NewSystem(nil)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	noStore := NoStore()
	e.GET(lookupRoute, getNextEvent(d.Resolver, d.Tokens, d.Limiter, d.Clock, logger), noStore)
	e.GET("/countdown", renderCountdown(d.Resolver, d.Tokens, d.Clock, logger), noStore)
	e.GET("/api/countdown", getCountdownSeed(d.Resolver, d.Tokens, d.Clock, logger), noStore)
	e.GET(countdownScriptPath, getCountdownScript())

	e.GET("/api/events", listEvents(d.Admin, d.Auth))
	e.GET("/api/events/:id", getEvent(d.Admin, d.Auth))
	e.POST("/api/events", createEvent(d.Admin, d.Auth))
	e.PUT("/api/events/:id", updateEvent(d.Admin, d.Auth))
	e.POST("/api/events/normalize", normalizeEvents(d.Normalizer, d.Auth, d.Clock))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}
