package store

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// migration is one additive, idempotent schema step. Steps are never
// edited after release; a new behavior gets a new step appended instead of
// an ad hoc "ALTER TABLE if column missing" check at startup.
type migration struct {
	id  int
	ddl map[string]string // driver -> statement
}

var migrations = []migration{
	{
		id: 1,
		ddl: map[string]string{
			"sqlite3": `
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	locator TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	interval_minutes INTEGER NOT NULL DEFAULT 15,
	credential_name TEXT,
	channels TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS source_status (
	source_name TEXT PRIMARY KEY REFERENCES sources(name) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	enabled BOOLEAN NOT NULL,
	last_check TIMESTAMP,
	last_known_version TEXT,
	last_error TEXT
);
CREATE TABLE IF NOT EXISTS releases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_name TEXT NOT NULL REFERENCES sources(name) ON DELETE CASCADE,
	name TEXT NOT NULL,
	tag TEXT NOT NULL,
	version TEXT NOT NULL,
	published_at TIMESTAMP NOT NULL,
	url TEXT,
	is_prerelease BOOLEAN NOT NULL DEFAULT 0,
	body TEXT,
	channel_name TEXT,
	commit_sha TEXT,
	republish_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_name, tag)
);
CREATE TABLE IF NOT EXISTS release_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	release_id INTEGER NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
	name TEXT,
	commit_sha TEXT,
	published_at TIMESTAMP,
	body TEXT,
	channel_name TEXT,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
			"postgres": `
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	locator TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT true,
	interval_minutes INTEGER NOT NULL DEFAULT 15,
	credential_name TEXT,
	channels TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS source_status (
	source_name TEXT PRIMARY KEY REFERENCES sources(name) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	enabled BOOLEAN NOT NULL,
	last_check TIMESTAMPTZ,
	last_known_version TEXT,
	last_error TEXT
);
CREATE TABLE IF NOT EXISTS releases (
	id BIGSERIAL PRIMARY KEY,
	source_name TEXT NOT NULL REFERENCES sources(name) ON DELETE CASCADE,
	name TEXT NOT NULL,
	tag TEXT NOT NULL,
	version TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	url TEXT,
	is_prerelease BOOLEAN NOT NULL DEFAULT false,
	body TEXT,
	channel_name TEXT,
	commit_sha TEXT,
	republish_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(source_name, tag)
);
CREATE TABLE IF NOT EXISTS release_history (
	id BIGSERIAL PRIMARY KEY,
	release_id BIGINT NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
	name TEXT,
	commit_sha TEXT,
	published_at TIMESTAMPTZ,
	body TEXT,
	channel_name TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
		},
	},
	{
		id: 2,
		ddl: map[string]string{
			"sqlite3": `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	token TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS notifiers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	url TEXT NOT NULL,
	events TEXT NOT NULL DEFAULT '[]',
	enabled BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
			"postgres": `
CREATE TABLE IF NOT EXISTS credentials (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	token TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS notifiers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	url TEXT NOT NULL,
	events TEXT NOT NULL DEFAULT '[]',
	enabled BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
		},
	},
	{
		id: 3,
		ddl: map[string]string{
			"sqlite3": `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	password_hash TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	oauth_provider TEXT,
	oauth_sub TEXT,
	avatar_url TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS users_oauth_identity ON users(oauth_provider, oauth_sub);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS oauth_providers (
	slug TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	issuer_url TEXT NOT NULL,
	client_id TEXT NOT NULL,
	client_secret_encrypted TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS oauth_states (
	state TEXT PRIMARY KEY,
	provider_slug TEXT NOT NULL,
	nonce TEXT NOT NULL,
	redirect_uri TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at TIMESTAMP NOT NULL
);
`,
			"postgres": `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	password_hash TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT false,
	oauth_provider TEXT,
	oauth_sub TEXT,
	avatar_url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_oauth_identity ON users(oauth_provider, oauth_sub);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS oauth_providers (
	slug TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	issuer_url TEXT NOT NULL,
	client_id TEXT NOT NULL,
	client_secret_encrypted TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS oauth_states (
	state TEXT PRIMARY KEY,
	provider_slug TEXT NOT NULL,
	nonce TEXT NOT NULL,
	redirect_uri TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);
`,
		},
	},
}

func (s *sqlStore) migrate(ctx context.Context) error {
	trackDDL := map[string]string{
		"sqlite3":  `CREATE TABLE IF NOT EXISTS schema_migrations (id INTEGER PRIMARY KEY, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
		"postgres": `CREATE TABLE IF NOT EXISTS schema_migrations (id INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
	}
	if _, err := s.db.ExecContext(ctx, trackDDL[s.driver]); err != nil {
		return errors.Wrap(err, "creating schema_migrations")
	}

	for _, m := range migrations {
		var already int
		err := s.db.GetContext(ctx, &already, s.rebind(`SELECT COUNT(*) FROM schema_migrations WHERE id = ?`), m.id)
		if err != nil {
			return errors.Wrapf(err, "checking migration %d", m.id)
		}
		if already > 0 {
			continue
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "beginning migration %d", m.id)
		}
		if _, err := tx.ExecContext(ctx, m.ddl[s.driver]); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "applying migration %d", m.id)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations (id) VALUES (?)`), m.id); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "recording migration %d", m.id)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "committing migration %d", m.id)
		}
		if s.log != nil {
			s.log.Info("applied schema migration", zap.Int("id", m.id))
		}
	}
	return nil
}
