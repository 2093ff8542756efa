package credentialresolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brightgate/relwatch/crypto"
	"github.com/brightgate/relwatch/relmodel"
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

func TestResolve_EmptyNameReturnsEmptyToken(t *testing.T) {
	ds := newTestStore(t)
	r := New(ds, zap.NewNop())
	require.Empty(t, r.Resolve(context.Background(), ""))
}

func TestResolve_ReturnsDecryptedToken(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ds.PutCredential(ctx, relmodel.Credential{
		Name: "forge-a-token", Kind: "forge-a", Token: "ghp_abc123",
	}))

	r := New(ds, zap.NewNop())
	require.Equal(t, "ghp_abc123", r.Resolve(ctx, "forge-a-token"))
}

func TestResolve_MissingCredentialLogsAndReturnsEmpty(t *testing.T) {
	ds := newTestStore(t)
	core, logs := observer.New(zap.WarnLevel)
	r := New(ds, zap.New(core))

	got := r.Resolve(context.Background(), "does-not-exist")
	require.Empty(t, got)
	require.Equal(t, 1, logs.Len())
}
