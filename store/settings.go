package store

import (
	"context"

	"github.com/pkg/errors"
)

func (s *sqlStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.rebind(`SELECT value FROM settings WHERE key = ?`), key)
	if isNoRows(err) {
		return "", NotFoundError{Entity: "setting", Key: key}
	}
	if err != nil {
		return "", errors.Wrap(err, "getting setting")
	}
	return value, nil
}

func (s *sqlStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value)
	return errors.Wrap(err, "upserting setting")
}

func (s *sqlStore) ListSettings(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings`); err != nil {
		return nil, errors.Wrap(err, "listing settings")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *sqlStore) DeleteSetting(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM settings WHERE key = ?`), key)
	if err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "setting", Key: key}
	}
	return nil
}
