// Package httpapi implements the administrative HTTP surface: thin
// handlers over store.DataStore and scheduler.Scheduler, built around one
// small struct holding the collaborators every handler method needs.
package httpapi

import (
	"net/http"
	"strings"

	apachelog "github.com/lestrrat-go/apache-logformat/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brightgate/relwatch/authsvc"
	"github.com/brightgate/relwatch/config"
	"github.com/brightgate/relwatch/notifier"
	"github.com/brightgate/relwatch/oidcsvc"
	"github.com/brightgate/relwatch/scheduler"
	"github.com/brightgate/relwatch/store"
)

// apiHandler bundles the collaborators every route handler needs.
type apiHandler struct {
	store      store.DataStore
	scheduler  *scheduler.Scheduler
	auth       *authsvc.Service
	oidc       *oidcsvc.Service
	dispatcher *notifier.Dispatcher
	cfg        config.Cfg
	log        *zap.Logger
}

// NewServer builds the echo.Echo with every route and middleware wired.
func NewServer(ds store.DataStore, sched *scheduler.Scheduler, auth *authsvc.Service, oidc *oidcsvc.Service, dispatcher *notifier.Dispatcher, cfg config.Cfg, log *zap.Logger) *echo.Echo {
	h := &apiHandler{store: ds, scheduler: sched, auth: auth, oidc: oidc, dispatcher: dispatcher, cfg: cfg, log: log}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(echo.WrapMiddleware(apachelog.CombinedLog.Wrap))
	e.Use(middleware.Gzip())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", h.healthz)

	auth1 := e.Group("/auth")
	auth1.POST("/register", h.register)
	auth1.POST("/login", h.login)
	auth1.POST("/token", h.login)
	auth1.POST("/refresh", h.refresh)
	auth1.POST("/logout", h.logout, h.requireAuth)
	auth1.GET("/me", h.me, h.requireAuth)
	auth1.POST("/change-password", h.changePassword, h.requireAuth)
	auth1.GET("/oidc/providers", h.listPublicOIDCProviders)
	auth1.GET("/oidc/:provider/authorize", h.oidcBegin)
	auth1.GET("/oidc/:provider/callback", h.oidcCallback)
	auth1.GET("/:provider", h.oidcBegin)
	auth1.GET("/:provider/callback", h.oidcCallback)

	api := e.Group("/api/v1", h.requireAuth)

	api.GET("/sources", h.listSources)
	api.POST("/sources", h.putSource)
	api.GET("/sources/:name", h.getSource)
	api.PUT("/sources/:name", h.putSource)
	api.DELETE("/sources/:name", h.deleteSource)
	api.POST("/sources/:name/check", h.checkSource)
	api.GET("/sources/:name/status", h.getSourceStatus)
	api.GET("/sources/:name/releases", h.listReleases)

	api.GET("/trackers", h.listTrackers)
	api.POST("/trackers", h.putSource)
	api.GET("/trackers/:name", h.getSource)
	api.PUT("/trackers/:name", h.putSource)
	api.DELETE("/trackers/:name", h.deleteSource)
	api.GET("/trackers/:name/config", h.getSource)
	api.POST("/trackers/:name/check", h.checkSource)

	api.GET("/statuses", h.listStatuses)
	api.GET("/stats", h.stats)

	api.GET("/releases", h.listAllReleases)
	api.GET("/releases/latest", h.latestReleases)

	api.GET("/credentials", h.listCredentials)
	api.POST("/credentials", h.createCredential)
	api.PUT("/credentials/:name", h.putCredential)
	api.DELETE("/credentials/:name", h.deleteCredential)
	api.GET("/credentials/id/:id", h.getCredentialByID)
	api.PUT("/credentials/id/:id", h.putCredentialByID)
	api.DELETE("/credentials/id/:id", h.deleteCredentialByID)

	api.GET("/notifiers", h.listNotifiers)
	api.POST("/notifiers", h.putNotifier)
	api.PUT("/notifiers/:id", h.putNotifier)
	api.DELETE("/notifiers/:id", h.deleteNotifier)
	api.POST("/notifiers/:id/test", h.testNotifier)

	api.GET("/settings", h.listSettings)
	api.POST("/settings", h.putSetting)
	api.DELETE("/settings/:key", h.deleteSetting)
	api.GET("/settings/env", h.settingsEnv)

	api.GET("/config", h.configSnapshot)

	admin := api.Group("", h.requireAdmin)
	admin.GET("/oauth-providers", h.listOAuthProviders)
	admin.PUT("/oauth-providers/:slug", h.putOAuthProvider)
	admin.DELETE("/oauth-providers/:slug", h.deleteOAuthProvider)

	return e
}

func (h *apiHandler) healthz(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
