package oidcsvc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightgate/relwatch/crypto"
	"github.com/brightgate/relwatch/store"
)

func newTestStore(t *testing.T) store.DataStore {
	t.Helper()
	dir := t.TempDir()
	dsn := "sqlite://" + filepath.Join(dir, "test.db")

	box, err := crypto.NewBox("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", zap.NewNop())
	require.NoError(t, err)

	ds, err := store.Open(context.Background(), dsn, box, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestBeginStateThenCompleteState(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "http://frontend.example", "test-session-secret")
	ctx := context.Background()

	state, err := svc.BeginState(ctx, "okta", "http://frontend.example/done")
	require.NoError(t, err)
	assert.NotEmpty(t, state)

	got, err := svc.CompleteState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "okta", got.ProviderSlug)
	assert.Equal(t, "http://frontend.example/done", got.RedirectURI)
}

func TestCompleteState_IsSingleUse(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "http://frontend.example", "test-session-secret")
	ctx := context.Background()

	state, err := svc.BeginState(ctx, "okta", "http://frontend.example/done")
	require.NoError(t, err)

	_, err = svc.CompleteState(ctx, state)
	require.NoError(t, err)

	_, err = svc.CompleteState(ctx, state)
	assert.Error(t, err, "a state token must not be consumable twice")
}

func TestCompleteState_UnknownStateFails(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "http://frontend.example", "test-session-secret")

	_, err := svc.CompleteState(context.Background(), "never-issued")
	assert.Error(t, err)
}

func TestRegisterProviders_OnlyRegistersEnabledProviders(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "http://frontend.example", "test-session-secret")
	ctx := context.Background()

	require.NoError(t, ds.PutOAuthProvider(ctx, store.OAuthProvider{
		Slug: "okta", DisplayName: "Okta", IssuerURL: "https://okta.example/",
		ClientID: "client-1", ClientSecretEncrypted: "secret-1", Enabled: true,
	}))
	require.NoError(t, ds.PutOAuthProvider(ctx, store.OAuthProvider{
		Slug: "disabled-idp", DisplayName: "Disabled", IssuerURL: "https://disabled.example/",
		ClientID: "client-2", ClientSecretEncrypted: "secret-2", Enabled: false,
	}))

	require.NoError(t, svc.RegisterProviders(ctx, "http://relwatch.example"))

	_, err := goth.GetProvider("okta")
	assert.NoError(t, err)

	_, err = goth.GetProvider("disabled-idp")
	assert.Error(t, err, "a disabled OAuthProvider row must not be registered with goth")
}
