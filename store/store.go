// Package store is the persistence layer: a DataStore interface with two
// backends (sqlite, postgres) selected by DSN scheme, split into
// per-concern sub-interfaces so callers depend on the interface, never on
// a concrete driver.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/brightgate/relwatch/crypto"
	"github.com/brightgate/relwatch/relmodel"
)

// NotFoundError is returned by lookups that find no matching row.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err (or its cause) is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(NotFoundError)
	return ok
}

// DataStore is the full persistence surface consumed by the rest of the
// service. Sources, Releases, Credentials, Notifiers, Auth and Settings are
// split out as embedded interfaces so a caller can depend on only the slice
// it needs, the way appliancedb.DataStore composes its sub-interfaces.
type DataStore interface {
	SourceStore
	ReleaseStore
	CredentialStore
	NotifierStore
	AuthStore
	SettingsStore
	OIDCStore

	Ping(ctx context.Context) error
	Close() error
}

// SourceStore manages Source configuration and its derived status.
type SourceStore interface {
	ListSources(ctx context.Context) ([]relmodel.Source, error)
	GetSource(ctx context.Context, name string) (relmodel.Source, error)
	PutSource(ctx context.Context, s relmodel.Source) error
	DeleteSource(ctx context.Context, name string) error
	GetStatus(ctx context.Context, name string) (relmodel.SourceStatus, error)
	PutStatus(ctx context.Context, st relmodel.SourceStatus) error
	ListStatuses(ctx context.Context) ([]relmodel.SourceStatus, error)
}

// ReleaseStore manages Release/ReleaseHistory rows and derived stats.
type ReleaseStore interface {
	Save(ctx context.Context, sourceName string, d relmodel.Draft) (relmodel.Verdict, error)
	ListReleases(ctx context.Context, filter ReleaseFilter) ([]relmodel.Release, int, error)
	GetRelease(ctx context.Context, sourceName, tag string) (relmodel.Release, error)
	RecentPerSource(ctx context.Context, sourceNames []string, perSourceLimit int) (map[string][]relmodel.Release, error)
	LatestAcrossChannels(ctx context.Context, sourceName string, channels []relmodel.Channel) (relmodel.Release, error)
	Stats(ctx context.Context, tz *time.Location) (Stats, error)
}

// CredentialStore manages Credential rows, decrypting tokens on read.
type CredentialStore interface {
	ListCredentials(ctx context.Context) ([]relmodel.Credential, error)
	GetCredential(ctx context.Context, name string) (relmodel.Credential, error)
	GetCredentialByID(ctx context.Context, id int64) (relmodel.Credential, error)
	PutCredential(ctx context.Context, c relmodel.Credential) error
	DeleteCredential(ctx context.Context, name string) error
	DeleteCredentialByID(ctx context.Context, id int64) error
}

// NotifierStore manages Notifier rows.
type NotifierStore interface {
	ListNotifiers(ctx context.Context) ([]relmodel.Notifier, error)
	PutNotifier(ctx context.Context, n relmodel.Notifier) (relmodel.Notifier, error)
	DeleteNotifier(ctx context.Context, id int64) error
}

// AuthStore manages Users and Sessions.
type AuthStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByOIDCSub(ctx context.Context, provider, sub string) (User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	LinkOIDCIdentity(ctx context.Context, id, provider, sub, avatarURL string) error

	CreateSession(ctx context.Context, s Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SettingsStore is a small operator key/value store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
	DeleteSetting(ctx context.Context, key string) error
}

// OIDCStore manages SSO provider configuration and the CSRF state table.
type OIDCStore interface {
	ListOAuthProviders(ctx context.Context) ([]OAuthProvider, error)
	GetOAuthProvider(ctx context.Context, slug string) (OAuthProvider, error)
	PutOAuthProvider(ctx context.Context, p OAuthProvider) error
	DeleteOAuthProvider(ctx context.Context, slug string) error

	CreateOAuthState(ctx context.Context, s OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error)
}

// sqlStore is the sqlx-backed implementation shared by both drivers; only
// placeholder rebinding and driver-specific DDL differ between them.
type sqlStore struct {
	db      *sqlx.DB
	driver  string
	box     *crypto.Box
	log     *zap.Logger
}

// Open dispatches on the DSN scheme ("sqlite://" or "postgres://") and
// returns a ready DataStore with migrations applied.
func Open(ctx context.Context, dsn string, box *crypto.Box, log *zap.Logger) (DataStore, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s store", driver)
	}
	db.SetMaxOpenConns(maxConnsFor(driver))

	if driver == "sqlite3" {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			return nil, errors.Wrap(err, "enabling sqlite foreign key enforcement")
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrapf(err, "pinging %s store", driver)
	}

	s := &sqlStore{db: db, driver: driver, box: box, log: log}
	if err := s.migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "applying migrations")
	}
	return s, nil
}

func maxConnsFor(driver string) int {
	if driver == "sqlite3" {
		// sqlite serializes writers regardless; a single connection
		// avoids "database is locked" errors under concurrent access.
		return 1
	}
	return 10
}

func parseDSN(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	default:
		return "", "", errors.Errorf("unrecognized store DSN scheme in %q", dsn)
	}
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// rebind adapts a query written with '?' placeholders to the driver's
// native placeholder style (sqlx.Rebind handles the $1, $2... rewrite for
// postgres).
func (s *sqlStore) rebind(query string) string {
	return s.db.Rebind(query)
}

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}
