package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/brightgate/relwatch/store"
)

func (h *apiHandler) listSettings(c echo.Context) error {
	settings, err := h.store.ListSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, settings)
}

func (h *apiHandler) putSetting(c echo.Context) error {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	if err := h.store.PutSetting(c.Request().Context(), req.Key, req.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{req.Key: req.Value})
}

func (h *apiHandler) deleteSetting(c echo.Context) error {
	if err := h.store.DeleteSetting(c.Request().Context(), c.Param("key")); err != nil {
		if store.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "setting not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// settingsEnv peeks at a fixed, non-exhaustive set of process environment
// variables the admin UI cares about; JWT_SECRET and ENCRYPTION_KEY are
// masked, never returned whole.
func (h *apiHandler) settingsEnv(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"TZ":             h.cfg.TZ,
		"LOG_LEVEL":      h.cfg.LogLevel,
		"FRONTEND_URL":   h.cfg.FrontendURL,
		"LISTEN_ADDR":    h.cfg.ListenAddr,
		"JWT_SECRET":     maskSecret(h.cfg.JWTSecret),
		"ENCRYPTION_KEY": maskSecret(h.cfg.EncryptionKey),
	})
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return "••••"
	}
	return v[:2] + "…" + v[len(v)-2:]
}

// configSnapshot aggregates store totals with every tracker and notifier
// config, for the admin "everything at a glance" view.
func (h *apiHandler) configSnapshot(c echo.Context) error {
	ctx := c.Request().Context()

	sources, err := h.store.ListSources(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	notifiers, err := h.store.ListNotifiers(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	stats, err := h.store.Stats(ctx, time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"store": map[string]interface{}{
			"total_trackers": stats.TotalTrackers,
			"total_releases": stats.TotalReleases,
		},
		"trackers":  sources,
		"notifiers": notifiers,
	})
}
