// Package authsvc implements password and token authentication: bcrypt
// password hashing, signed access/refresh JWTs, and the session-row
// revocation check described in the persistence design (every
// authenticated request must also find a live Session row, so logout is
// instant rather than waiting out the token's natural expiry).
package authsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/brightgate/relwatch/store"
)

const (
	accessTokenTTL  = 30 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// ErrInvalidCredentials covers bad username/password and an invalid or
// revoked token, deliberately without distinguishing which — the caller
// should not be able to enumerate valid usernames from the error.
var ErrInvalidCredentials = errors.New("invalid credentials")

type tokenClaims struct {
	jwt.StandardClaims
	Type string `json:"typ"`
}

// Service mints and verifies tokens and manages the backing session rows.
type Service struct {
	store     store.AuthStore
	secretKey []byte
}

// New builds a Service. secretKey is the raw JWT_SECRET.
func New(as store.AuthStore, secretKey string) *Service {
	return &Service{store: as, secretKey: []byte(secretKey)}
}

// TokenPair is returned on login, SSO session issue, and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Register creates a new local user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return store.User{}, errors.New("username already exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, errors.Wrap(err, "hashing password")
	}
	return s.store.CreateUser(ctx, store.User{Username: username, PasswordHash: string(hash)})
}

// Login verifies credentials and mints a fresh token pair backed by a new
// Session row.
func (s *Service) Login(ctx context.Context, username, password string) (store.User, TokenPair, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return store.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return store.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, expiresAt, err := s.mintPair(user.Username)
	if err != nil {
		return store.User{}, TokenPair{}, err
	}

	if err := s.store.CreateSession(ctx, store.Session{
		UserID:    user.ID,
		TokenHash: hashToken(pair.AccessToken),
		ExpiresAt: expiresAt,
	}); err != nil {
		return store.User{}, TokenPair{}, errors.Wrap(err, "creating session")
	}
	return user, pair, nil
}

// IssueSessionFor mints a fresh token pair and backing Session row for a
// user that has already been authenticated by some other means (SSO),
// without re-checking a password.
func (s *Service) IssueSessionFor(ctx context.Context, user store.User) (TokenPair, error) {
	pair, expiresAt, err := s.mintPair(user.Username)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.CreateSession(ctx, store.Session{
		UserID:    user.ID,
		TokenHash: hashToken(pair.AccessToken),
		ExpiresAt: expiresAt,
	}); err != nil {
		return TokenPair{}, errors.Wrap(err, "creating session")
	}
	return pair, nil
}

// Logout revokes the session backing token, so it is rejected immediately
// even though the JWT itself remains cryptographically valid until expiry.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	return s.store.DeleteSessionByTokenHash(ctx, hashToken(accessToken))
}

// ChangePassword verifies the old password and replaces the stored hash.
func (s *Service) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	user, err := s.CurrentUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return errors.New("invalid old password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return s.store.UpdateUserPassword(ctx, user.ID, string(hash))
}

// Refresh verifies a refresh token and mints a new pair. It does not
// require a live session for the refresh token itself.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil || claims.Type != "refresh" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.IssueSessionFor(ctx, user)
}

// CurrentUser resolves an access token to its owning user, requiring both
// a valid signature and a live (non-expired, non-revoked) session row.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (store.User, error) {
	claims, err := s.parse(accessToken)
	if err != nil || claims.Type != "access" {
		return store.User{}, ErrInvalidCredentials
	}

	session, err := s.store.GetSessionByTokenHash(ctx, hashToken(accessToken))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByTokenHash(ctx, session.TokenHash)
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) mintPair(username string) (TokenPair, time.Time, error) {
	now := time.Now()
	accessExp := now.Add(accessTokenTTL)

	access, err := s.sign(username, "access", accessExp)
	if err != nil {
		return TokenPair{}, time.Time{}, err
	}
	refresh, err := s.sign(username, "refresh", now.Add(refreshTokenTTL))
	if err != nil {
		return TokenPair{}, time.Time{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(accessTokenTTL.Seconds()),
	}, accessExp, nil
}

func (s *Service) sign(username, typ string, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   username,
			ExpiresAt: expiresAt.Unix(),
		},
		Type: typ,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *Service) parse(raw string) (tokenClaims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	})
	if err != nil {
		return tokenClaims{}, err
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
