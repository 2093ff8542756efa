package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markbates/goth/gothic"

	"github.com/brightgate/relwatch/store"
)

// oidcProviderSummary is what the public provider list exposes: enough for
// a login page to render a button, nothing from the stored client secret.
type oidcProviderSummary struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
}

// listPublicOIDCProviders lists enabled SSO providers for the login page,
// unauthenticated.
func (h *apiHandler) listPublicOIDCProviders(c echo.Context) error {
	providers, err := h.store.ListOAuthProviders(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]oidcProviderSummary, 0, len(providers))
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		out = append(out, oidcProviderSummary{Slug: p.Slug, DisplayName: p.DisplayName})
	}
	return c.JSON(http.StatusOK, out)
}

// oidcBegin starts the authorize round trip for the named provider. A
// fresh CSRF state is minted and stashed in the oauth_states table before
// handing off to gothic, which redirects the browser upstream.
func (h *apiHandler) oidcBegin(c echo.Context) error {
	slug := c.Param("provider")
	if _, err := h.store.GetOAuthProvider(c.Request().Context(), slug); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	}

	state, err := h.oidc.BeginState(c.Request().Context(), slug, c.QueryParam("redirect_uri"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not start sso")
	}

	q := c.Request().URL.Query()
	q.Set("state", state)
	c.Request().URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Response(), c.Request())
	return nil
}

// oidcCallback completes the round trip: validates state, exchanges the
// code for an identity, and either links it to an existing local user (by
// oauth_sub) or provisions a new one.
func (h *apiHandler) oidcCallback(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("provider")

	state := c.QueryParam("state")
	if _, err := h.oidc.CompleteState(ctx, state); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired sso state")
	}

	gothUser, err := gothic.CompleteUserAuth(c.Response(), c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "sso provider rejected the login")
	}

	user, err := h.store.GetUserByOIDCSub(ctx, slug, gothUser.UserID)
	if err != nil {
		user, err = h.store.CreateUser(ctx, store.User{
			Username:      gothUser.NickName,
			Email:         gothUser.Email,
			OAuthProvider: slug,
			OAuthSub:      gothUser.UserID,
			AvatarURL:     gothUser.AvatarURL,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "provisioning sso user")
		}
	}

	pair, err := h.auth.IssueSessionFor(ctx, user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "issuing session")
	}
	return c.JSON(http.StatusOK, pair)
}
