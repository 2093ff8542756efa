// Package oidcsvc wires generic OIDC single sign-on via goth/gothic. Rather
// than registering one goth provider per well-known service (Auth0, Google),
// it registers one openidConnect provider per operator-configured
// OAuthProvider row, so the set of providers is fully dynamic.
package oidcsvc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/openidconnect"
	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/store"
)

const stateTTL = 10 * time.Minute

// Service manages the live set of goth providers and the CSRF state table
// backing the authorize/callback round trip.
type Service struct {
	store       store.OIDCStore
	frontendURL string
}

// New builds a Service and points gothic's session store at a cookie store
// keyed by sessionSecret. This cookie only ever carries the short-lived
// state/nonce pair for the SSO round trip, never ongoing API auth.
func New(os store.OIDCStore, frontendURL, sessionSecret string) *Service {
	gothic.Store = sessions.NewCookieStore([]byte(sessionSecret))
	return &Service{store: os, frontendURL: frontendURL}
}

// RegisterProviders (re)builds goth's global provider set from the
// currently enabled OAuthProvider rows. Call this at startup and whenever
// provider configuration changes.
func (s *Service) RegisterProviders(ctx context.Context, callbackBaseURL string) error {
	providers, err := s.store.ListOAuthProviders(ctx)
	if err != nil {
		return errors.Wrap(err, "listing oauth providers")
	}

	goth.ClearProviders()
	var live []goth.Provider
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		provider, err := openidconnect.New(
			p.ClientID,
			p.ClientSecretEncrypted, // already decrypted by the store layer
			callbackBaseURL+"/auth/"+p.Slug+"/callback",
			p.IssuerURL,
		)
		if err != nil {
			return errors.Wrapf(err, "configuring oidc provider %q", p.Slug)
		}
		provider.SetName(p.Slug)
		live = append(live, provider)
	}
	goth.UseProviders(live...)
	return nil
}

// BeginState issues and persists a fresh CSRF state token for the
// authorize step.
func (s *Service) BeginState(ctx context.Context, providerSlug, redirectURI string) (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	nonce, err := randomToken()
	if err != nil {
		return "", err
	}
	err = s.store.CreateOAuthState(ctx, store.OAuthState{
		State: state, ProviderSlug: providerSlug, Nonce: nonce,
		RedirectURI: redirectURI, ExpiresAt: time.Now().Add(stateTTL),
	})
	return state, err
}

// CompleteState validates and consumes a callback's state parameter,
// returning the consumed state row (provider slug, nonce, redirect URI).
func (s *Service) CompleteState(ctx context.Context, state string) (store.OAuthState, error) {
	return s.store.ConsumeOAuthState(ctx, state)
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
