package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (h *apiHandler) stats(c echo.Context) error {
	tzName := c.QueryParam("tz")
	if tzName == "" {
		tzName = h.cfg.TZ
	}
	loc := time.UTC
	if tzName != "" {
		if parsed, err := time.LoadLocation(tzName); err == nil {
			loc = parsed
		}
	}
	st, err := h.store.Stats(c.Request().Context(), loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}
