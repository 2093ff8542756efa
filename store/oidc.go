package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

type oauthProviderRow struct {
	Slug                  string `db:"slug"`
	DisplayName           string `db:"display_name"`
	IssuerURL             string `db:"issuer_url"`
	ClientID              string `db:"client_id"`
	ClientSecretEncrypted string `db:"client_secret_encrypted"`
	Enabled               bool   `db:"enabled"`
}

func (s *sqlStore) toProviderModel(r oauthProviderRow) OAuthProvider {
	return OAuthProvider{
		Slug: r.Slug, DisplayName: r.DisplayName, IssuerURL: r.IssuerURL,
		ClientID: r.ClientID, ClientSecretEncrypted: s.box.Open(r.ClientSecretEncrypted), Enabled: r.Enabled,
	}
}

func (s *sqlStore) ListOAuthProviders(ctx context.Context) ([]OAuthProvider, error) {
	var rows []oauthProviderRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM oauth_providers ORDER BY slug`); err != nil {
		return nil, errors.Wrap(err, "listing oauth providers")
	}
	out := make([]OAuthProvider, len(rows))
	for i, r := range rows {
		out[i] = s.toProviderModel(r)
	}
	return out, nil
}

func (s *sqlStore) GetOAuthProvider(ctx context.Context, slug string) (OAuthProvider, error) {
	var row oauthProviderRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM oauth_providers WHERE slug = ?`), slug)
	if isNoRows(err) {
		return OAuthProvider{}, NotFoundError{Entity: "oauth_provider", Key: slug}
	}
	if err != nil {
		return OAuthProvider{}, errors.Wrap(err, "getting oauth provider")
	}
	return s.toProviderModel(row), nil
}

func (s *sqlStore) PutOAuthProvider(ctx context.Context, p OAuthProvider) error {
	sealed, err := s.box.Seal(p.ClientSecretEncrypted)
	if err != nil {
		return errors.Wrap(err, "sealing oauth client secret")
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO oauth_providers (slug, display_name, issuer_url, client_id, client_secret_encrypted, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			display_name = excluded.display_name, issuer_url = excluded.issuer_url,
			client_id = excluded.client_id, client_secret_encrypted = excluded.client_secret_encrypted,
			enabled = excluded.enabled`),
		p.Slug, p.DisplayName, p.IssuerURL, p.ClientID, sealed, p.Enabled)
	return errors.Wrap(err, "upserting oauth provider")
}

func (s *sqlStore) DeleteOAuthProvider(ctx context.Context, slug string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM oauth_providers WHERE slug = ?`), slug)
	return errors.Wrap(err, "deleting oauth provider")
}

type oauthStateRow struct {
	State        string       `db:"state"`
	ProviderSlug string       `db:"provider_slug"`
	Nonce        string       `db:"nonce"`
	RedirectURI  sql.NullString `db:"redirect_uri"`
	CreatedAt    time.Time    `db:"created_at"`
	ExpiresAt    time.Time    `db:"expires_at"`
}

func (r oauthStateRow) toModel() OAuthState {
	return OAuthState{
		State: r.State, ProviderSlug: r.ProviderSlug, Nonce: r.Nonce,
		RedirectURI: r.RedirectURI.String, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt,
	}
}

func (s *sqlStore) CreateOAuthState(ctx context.Context, st OAuthState) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO oauth_states (state, provider_slug, nonce, redirect_uri, expires_at)
		VALUES (?, ?, ?, ?, ?)`), st.State, st.ProviderSlug, st.Nonce, st.RedirectURI, st.ExpiresAt)
	return errors.Wrap(err, "creating oauth state")
}

// ConsumeOAuthState atomically fetches and deletes a state row, so a replayed
// callback can never succeed twice.
func (s *sqlStore) ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return OAuthState{}, errors.Wrap(err, "beginning state consume tx")
	}
	defer tx.Rollback()

	var row oauthStateRow
	err = tx.GetContext(ctx, &row, s.rebind(`SELECT * FROM oauth_states WHERE state = ?`), state)
	if isNoRows(err) {
		return OAuthState{}, NotFoundError{Entity: "oauth_state", Key: state}
	}
	if err != nil {
		return OAuthState{}, errors.Wrap(err, "getting oauth state")
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM oauth_states WHERE state = ?`), state); err != nil {
		return OAuthState{}, errors.Wrap(err, "deleting oauth state")
	}
	if err := tx.Commit(); err != nil {
		return OAuthState{}, errors.Wrap(err, "committing state consume")
	}

	if time.Now().After(row.ExpiresAt) {
		return OAuthState{}, errors.Errorf("oauth state %q expired", state)
	}
	return row.toModel(), nil
}
