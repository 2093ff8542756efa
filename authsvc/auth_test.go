package authsvc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func TestRegisterLoginCurrentUser(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter22")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "different")
	assert.Error(t, err, "duplicate username must be rejected")

	user, pair, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	current, err := svc.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)
}

func TestLogin_WrongPasswordFails(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob", "correct-horse")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogout_RevokesSessionImmediately(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol", "hunter22")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "carol", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))

	_, err = svc.CurrentUser(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "the JWT is still cryptographically valid, but its session row is gone")
}

func TestCurrentUser_ExpiredSessionIsRejectedAndPurged(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave", "hunter22")
	require.NoError(t, err)

	token, err := svc.sign("dave", "access", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, ds.CreateSession(ctx, store.Session{
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err = svc.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = ds.GetSessionByTokenHash(ctx, hashToken(token))
	assert.Error(t, err, "an expired session is deleted on first use, not merely rejected")
}

func TestRefresh_MintsNewPairWithoutRequiringLiveSession(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "erin", "hunter22")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "erin", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
}

func TestRefresh_RejectsAccessTokenPassedAsRefresh(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "frank", "hunter22")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "frank", "hunter22")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "gina", "old-password")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "gina", "old-password")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, pair.AccessToken, "old-password", "new-password"))

	_, _, err = svc.Login(ctx, "gina", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "gina", "new-password")
	assert.NoError(t, err)
}

func TestIssueSessionFor_SkipsPasswordCheck(t *testing.T) {
	ds := newTestStore(t)
	svc := New(ds, "test-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, "hank", "hunter22")
	require.NoError(t, err)

	pair, err := svc.IssueSessionFor(ctx, user)
	require.NoError(t, err)

	current, err := svc.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)
}
