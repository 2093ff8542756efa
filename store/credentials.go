package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

type credentialRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Kind        string         `db:"kind"`
	Token       string         `db:"token"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (s *sqlStore) toCredentialModel(r credentialRow) relmodel.Credential {
	return relmodel.Credential{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        r.Kind,
		Token:       s.box.Open(r.Token),
		Description: r.Description.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *sqlStore) ListCredentials(ctx context.Context) ([]relmodel.Credential, error) {
	var rows []credentialRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM credentials ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "listing credentials")
	}
	out := make([]relmodel.Credential, len(rows))
	for i, r := range rows {
		out[i] = s.toCredentialModel(r)
	}
	return out, nil
}

func (s *sqlStore) GetCredential(ctx context.Context, name string) (relmodel.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM credentials WHERE name = ?`), name)
	if isNoRows(err) {
		return relmodel.Credential{}, NotFoundError{Entity: "credential", Key: name}
	}
	if err != nil {
		return relmodel.Credential{}, errors.Wrap(err, "getting credential")
	}
	return s.toCredentialModel(row), nil
}

func (s *sqlStore) PutCredential(ctx context.Context, c relmodel.Credential) error {
	sealed, err := s.box.Seal(c.Token)
	if err != nil {
		return errors.Wrap(err, "sealing credential token")
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO credentials (name, kind, token, description, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET
			kind = excluded.kind, token = excluded.token, description = excluded.description,
			updated_at = excluded.updated_at`),
		c.Name, c.Kind, sealed, c.Description)
	if err != nil {
		return errors.Wrap(err, "upserting credential")
	}
	return nil
}

func (s *sqlStore) DeleteCredential(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE name = ?`), name)
	if err != nil {
		return errors.Wrap(err, "deleting credential")
	}
	return nil
}

func (s *sqlStore) GetCredentialByID(ctx context.Context, id int64) (relmodel.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM credentials WHERE id = ?`), id)
	if isNoRows(err) {
		return relmodel.Credential{}, NotFoundError{Entity: "credential", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return relmodel.Credential{}, errors.Wrap(err, "getting credential by id")
	}
	return s.toCredentialModel(row), nil
}

func (s *sqlStore) DeleteCredentialByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting credential by id")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "credential", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}
