package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/satori/uuid"
)

type userRow struct {
	ID            string         `db:"id"`
	Username      string         `db:"username"`
	Email         sql.NullString `db:"email"`
	PasswordHash  string         `db:"password_hash"`
	IsAdmin       bool           `db:"is_admin"`
	OAuthProvider sql.NullString `db:"oauth_provider"`
	OAuthSub      sql.NullString `db:"oauth_sub"`
	AvatarURL     sql.NullString `db:"avatar_url"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r userRow) toModel() User {
	return User{
		ID: r.ID, Username: r.Username, Email: r.Email.String, PasswordHash: r.PasswordHash,
		IsAdmin: r.IsAdmin, OAuthProvider: r.OAuthProvider.String, OAuthSub: r.OAuthSub.String,
		AvatarURL: r.AvatarURL.String, CreatedAt: r.CreatedAt,
	}
}

func (s *sqlStore) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewV4().String()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, username, email, password_hash, is_admin, oauth_provider, oauth_sub, avatar_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsAdmin, nullable(u.OAuthProvider), nullable(u.OAuthSub), nullable(u.AvatarURL))
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *sqlStore) getUserWhere(ctx context.Context, clause string, args ...interface{}) (User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM users WHERE `+clause), args...)
	if isNoRows(err) {
		return User{}, NotFoundError{Entity: "user", Key: clause}
	}
	if err != nil {
		return User{}, errors.Wrap(err, "getting user")
	}
	return row.toModel(), nil
}

func (s *sqlStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUserWhere(ctx, "username = ?", username)
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *sqlStore) GetUserByOIDCSub(ctx context.Context, provider, sub string) (User, error) {
	return s.getUserWhere(ctx, "oauth_provider = ? AND oauth_sub = ?", provider, sub)
}

func (s *sqlStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), passwordHash, id)
	return errors.Wrap(err, "updating password")
}

func (s *sqlStore) LinkOIDCIdentity(ctx context.Context, id, provider, sub, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE users SET oauth_provider = ?, oauth_sub = ?, avatar_url = ? WHERE id = ?`),
		provider, sub, avatarURL, id)
	return errors.Wrap(err, "linking oidc identity")
}

type sessionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r sessionRow) toModel() Session {
	return Session{ID: r.ID, UserID: r.UserID, TokenHash: r.TokenHash, ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt}
}

func (s *sqlStore) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewV4().String()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, user_id, token_hash, expires_at) VALUES (?, ?, ?, ?)`),
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt)
	return errors.Wrap(err, "creating session")
}

func (s *sqlStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM sessions WHERE token_hash = ?`), tokenHash)
	if isNoRows(err) {
		return Session{}, NotFoundError{Entity: "session", Key: tokenHash}
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "getting session")
	}
	return row.toModel(), nil
}

func (s *sqlStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE token_hash = ?`), tokenHash)
	return errors.Wrap(err, "deleting session")
}

func (s *sqlStore) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE expires_at < ?`), now)
	if err != nil {
		return 0, errors.Wrap(err, "purging expired sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
