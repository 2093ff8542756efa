package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthProviderCRUD_RoundTripsSecretThroughEncryption(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.PutOAuthProvider(ctx, OAuthProvider{
		Slug: "okta", DisplayName: "Okta", IssuerURL: "https://okta.example/oidc",
		ClientID: "client-1", ClientSecretEncrypted: "super-secret", Enabled: true,
	}))

	got, err := ds.GetOAuthProvider(ctx, "okta")
	require.NoError(t, err)
	assert.Equal(t, "super-secret", got.ClientSecretEncrypted)
	assert.True(t, got.Enabled)

	all, err := ds.ListOAuthProviders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, ds.DeleteOAuthProvider(ctx, "okta"))
	_, err = ds.GetOAuthProvider(ctx, "okta")
	assert.True(t, IsNotFound(err))
}

func TestOAuthState_ConsumeIsSingleUse(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.CreateOAuthState(ctx, OAuthState{
		State: "state-1", ProviderSlug: "okta", Nonce: "nonce-1", ExpiresAt: time.Now().Add(time.Minute),
	}))

	got, err := ds.ConsumeOAuthState(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "okta", got.ProviderSlug)

	_, err = ds.ConsumeOAuthState(ctx, "state-1")
	assert.True(t, IsNotFound(err), "a state row must not be consumable twice")
}

func TestOAuthState_ExpiredIsRejected(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.CreateOAuthState(ctx, OAuthState{
		State: "stale", ProviderSlug: "okta", Nonce: "n", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := ds.ConsumeOAuthState(ctx, "stale")
	assert.Error(t, err)
}

func TestSettingsPutAndGet(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.PutSetting(ctx, "timezone", "America/Denver"))
	v, err := ds.GetSetting(ctx, "timezone")
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", v)

	require.NoError(t, ds.PutSetting(ctx, "timezone", "UTC"))
	v, err = ds.GetSetting(ctx, "timezone")
	require.NoError(t, err)
	assert.Equal(t, "UTC", v)
}
