package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/brightgate/relwatch/store"
)

const userContextKey = "relwatch_user"

func (h *apiHandler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		user, err := h.auth.CurrentUser(c.Request().Context(), token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func (h *apiHandler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, _ := c.Get(userContextKey).(store.User)
		if !user.IsAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin privileges required")
		}
		return next(c)
	}
}

func currentUser(c echo.Context) store.User {
	user, _ := c.Get(userContextKey).(store.User)
	return user
}
