package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

type notifierRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Kind      string    `db:"kind"`
	URL       string    `db:"url"`
	Events    string    `db:"events"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r notifierRow) toModel() (relmodel.Notifier, error) {
	var events []relmodel.EventKind
	if err := json.Unmarshal([]byte(r.Events), &events); err != nil {
		return relmodel.Notifier{}, errors.Wrap(err, "decoding notifier events")
	}
	return relmodel.Notifier{
		ID: r.ID, Name: r.Name, Kind: r.Kind, URL: r.URL, Events: events,
		Enabled: r.Enabled, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *sqlStore) ListNotifiers(ctx context.Context) ([]relmodel.Notifier, error) {
	var rows []notifierRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM notifiers ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "listing notifiers")
	}
	out := make([]relmodel.Notifier, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *sqlStore) PutNotifier(ctx context.Context, n relmodel.Notifier) (relmodel.Notifier, error) {
	events, err := json.Marshal(n.Events)
	if err != nil {
		return relmodel.Notifier{}, errors.Wrap(err, "encoding notifier events")
	}

	if n.ID == 0 {
		res, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO notifiers (name, kind, url, events, enabled)
			VALUES (?, ?, ?, ?, ?)`), n.Name, n.Kind, n.URL, string(events), n.Enabled)
		if err != nil {
			return relmodel.Notifier{}, errors.Wrap(err, "inserting notifier")
		}
		n.ID, _ = res.LastInsertId()
		return n, nil
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		UPDATE notifiers SET name = ?, kind = ?, url = ?, events = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`), n.Name, n.Kind, n.URL, string(events), n.Enabled, n.ID)
	if err != nil {
		return relmodel.Notifier{}, errors.Wrap(err, "updating notifier")
	}
	return n, nil
}

func (s *sqlStore) DeleteNotifier(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM notifiers WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting notifier")
	}
	return nil
}
