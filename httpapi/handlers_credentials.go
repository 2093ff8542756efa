package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/brightgate/relwatch/relmodel"
	"github.com/brightgate/relwatch/store"
)

// maskedCredential is what the list/get endpoints return: the token is
// always masked per the data model invariant that a raw token is never
// echoed back through the API after creation.
type maskedCredential struct {
	relmodel.Credential
	Token string `json:"token"`
}

func mask(c relmodel.Credential) maskedCredential {
	m := maskedCredential{Credential: c}
	m.Token = c.Masked()
	return m
}

func (h *apiHandler) listCredentials(c echo.Context) error {
	creds, err := h.store.ListCredentials(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]maskedCredential, len(creds))
	for i, cr := range creds {
		out[i] = mask(cr)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *apiHandler) putCredential(c echo.Context) error {
	var cred relmodel.Credential
	if err := c.Bind(&cred); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cred.Name = c.Param("name")
	if cred.Name == "" || cred.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and token are required")
	}
	if err := h.store.PutCredential(c.Request().Context(), cred); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, mask(cred))
}

func (h *apiHandler) deleteCredential(c echo.Context) error {
	if err := h.store.DeleteCredential(c.Request().Context(), c.Param("name")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *apiHandler) createCredential(c echo.Context) error {
	var cred relmodel.Credential
	if err := c.Bind(&cred); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cred.Name == "" || cred.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and token are required")
	}
	if err := h.store.PutCredential(c.Request().Context(), cred); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	saved, err := h.store.GetCredential(c.Request().Context(), cred.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, mask(saved))
}

func (h *apiHandler) getCredentialByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credential id")
	}
	cred, err := h.store.GetCredentialByID(c.Request().Context(), id)
	if store.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "credential not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, mask(cred))
}

// putCredentialByID updates an existing credential by id. The name is
// immutable; the token is left unchanged when the request omits it.
func (h *apiHandler) putCredentialByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credential id")
	}
	existing, err := h.store.GetCredentialByID(c.Request().Context(), id)
	if store.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "credential not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var req struct {
		Token       string `json:"token"`
		Kind        string `json:"kind"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated := existing
	if req.Token != "" {
		updated.Token = req.Token
	}
	if req.Kind != "" {
		updated.Kind = req.Kind
	}
	updated.Description = req.Description

	if err := h.store.PutCredential(c.Request().Context(), updated); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, mask(updated))
}

func (h *apiHandler) deleteCredentialByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credential id")
	}
	if err := h.store.DeleteCredentialByID(c.Request().Context(), id); err != nil {
		if store.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "credential not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *apiHandler) listNotifiers(c echo.Context) error {
	notifiers, err := h.store.ListNotifiers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, notifiers)
}

func (h *apiHandler) putNotifier(c echo.Context) error {
	var n relmodel.Notifier
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if idParam := c.Param("id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid notifier id")
		}
		n.ID = id
	}
	if n.Name == "" || n.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and url are required")
	}
	saved, err := h.store.PutNotifier(c.Request().Context(), n)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *apiHandler) deleteNotifier(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notifier id")
	}
	if err := h.store.DeleteNotifier(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// testNotifier sends a synthetic release event straight to one notifier,
// bypassing its enabled/event-subscription filters so an operator can
// confirm a webhook URL actually works before wiring it into the fan-out.
func (h *apiHandler) testNotifier(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notifier id")
	}
	notifiers, err := h.store.ListNotifiers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var target *relmodel.Notifier
	for i := range notifiers {
		if notifiers[i].ID == id {
			target = &notifiers[i]
			break
		}
	}
	if target == nil {
		return echo.NewHTTPError(http.StatusNotFound, "notifier not found")
	}

	sample := relmodel.Release{
		Name: "test release", Tag: "v0.0.0-test", Version: "0.0.0-test",
		PublishedAt: time.Now(), Body: "This is a synthetic test notification :tada:",
	}
	if err := h.dispatcher.DispatchTo(c.Request().Context(), *target, "relwatch", relmodel.EventNewRelease, sample); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "test delivery failed: "+err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *apiHandler) listOAuthProviders(c echo.Context) error {
	providers, err := h.store.ListOAuthProviders(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for i := range providers {
		providers[i].ClientSecretEncrypted = ""
	}
	return c.JSON(http.StatusOK, providers)
}

func (h *apiHandler) putOAuthProvider(c echo.Context) error {
	var p store.OAuthProvider
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.Slug = c.Param("slug")
	if err := h.store.PutOAuthProvider(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.oidc.RegisterProviders(c.Request().Context(), frontendBaseURL(c)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "provider saved but registration failed: "+err.Error())
	}
	p.ClientSecretEncrypted = ""
	return c.JSON(http.StatusOK, p)
}

func (h *apiHandler) deleteOAuthProvider(c echo.Context) error {
	if err := h.store.DeleteOAuthProvider(c.Request().Context(), c.Param("slug")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func frontendBaseURL(c echo.Context) string {
	scheme := "https"
	if c.Request().TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request().Host
}
