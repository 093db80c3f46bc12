package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"calendar-countdown/clock"
	"calendar-countdown/domain"
)

const adminMaxBodySize = 16 << 10

type eventView struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ScheduledAt string `json:"scheduledAt"`
}

type normalizeResponse struct {
	Rolled int `json:"rolled"`
}

func toEventView(ev domain.Event) eventView {
	return eventView{ID: ev.ID, Title: ev.Title, ScheduledAt: domain.FormatWire(ev.ScheduledAt)}
}

func authorize(c echo.Context, auth Authenticator) error {
	_, err := auth.SubjectFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	return err
}

func eventIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeEventInput(c echo.Context) (domain.EventInput, error) {
	lr := io.LimitReader(c.Request().Body, adminMaxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()

	var in domain.EventInput
	err := dec.Decode(&in)
	return in, err
}

func adminError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "event not found")
	case errors.Is(err, domain.ErrInvalidTitle), errors.Is(err, domain.ErrInvalidDatetime):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "internal error")
	}
}

func listEvents(admin EventAdmin, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		events, err := admin.ListEvents(c.Request().Context())
		if err != nil {
			return adminError(c, err)
		}
		views := make([]eventView, 0, len(events))
		for _, ev := range events {
			views = append(views, toEventView(ev))
		}
		return c.JSON(http.StatusOK, views)
	}
}

func getEvent(admin EventAdmin, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id, ok := eventIDParam(c)
		if !ok {
			return c.String(http.StatusNotFound, "event not found")
		}
		ev, err := admin.GetEvent(c.Request().Context(), id)
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, toEventView(ev))
	}
}

func createEvent(admin EventAdmin, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		in, err := decodeEventInput(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ev, err := admin.CreateEvent(c.Request().Context(), in)
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusCreated, toEventView(ev))
	}
}

func updateEvent(admin EventAdmin, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id, ok := eventIDParam(c)
		if !ok {
			return c.String(http.StatusNotFound, "event not found")
		}
		in, err := decodeEventInput(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ev, err := admin.UpdateEvent(c.Request().Context(), id, in)
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, toEventView(ev))
	}
}

func normalizeEvents(norm domain.YearNormalizer, auth Authenticator, clk clock.Clock) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		rolled := norm.NormalizeAll(c.Request().Context(), clk.Now().Year())
		return c.JSON(http.StatusOK, normalizeResponse{Rolled: rolled})
	}
}
