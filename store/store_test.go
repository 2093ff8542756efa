package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightgate/relwatch/crypto"
)

func newTestStore(t *testing.T) DataStore {
	t.Helper()
	dir := t.TempDir()
	dsn := "sqlite://" + filepath.Join(dir, "test.db")

	box, err := crypto.NewBox("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", zap.NewNop())
	require.NoError(t, err)

	ds, err := Open(context.Background(), dsn, box, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}
