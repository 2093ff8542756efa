package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

type sourceRow struct {
	Name            string         `db:"name"`
	Kind            string         `db:"kind"`
	Locator         string         `db:"locator"`
	Enabled         bool           `db:"enabled"`
	IntervalMinutes int            `db:"interval_minutes"`
	CredentialName  sql.NullString `db:"credential_name"`
	Channels        string         `db:"channels"`
}

func (r sourceRow) toModel() (relmodel.Source, error) {
	var loc relmodel.Locator
	if err := json.Unmarshal([]byte(r.Locator), &loc); err != nil {
		return relmodel.Source{}, errors.Wrap(err, "decoding source locator")
	}
	var channels []relmodel.Channel
	if err := json.Unmarshal([]byte(r.Channels), &channels); err != nil {
		return relmodel.Source{}, errors.Wrap(err, "decoding source channels")
	}
	return relmodel.Source{
		Name:            r.Name,
		Kind:            relmodel.SourceKind(r.Kind),
		Locator:         loc,
		Enabled:         r.Enabled,
		IntervalMinutes: r.IntervalMinutes,
		CredentialName:  r.CredentialName.String,
		Channels:        channels,
	}, nil
}

func fromModel(s relmodel.Source) (sourceRow, error) {
	loc, err := json.Marshal(s.Locator)
	if err != nil {
		return sourceRow{}, errors.Wrap(err, "encoding source locator")
	}
	channels, err := json.Marshal(s.Channels)
	if err != nil {
		return sourceRow{}, errors.Wrap(err, "encoding source channels")
	}
	return sourceRow{
		Name:            s.Name,
		Kind:            string(s.Kind),
		Locator:         string(loc),
		Enabled:         s.Enabled,
		IntervalMinutes: s.IntervalMinutes,
		CredentialName:  sql.NullString{String: s.CredentialName, Valid: s.CredentialName != ""},
		Channels:        string(channels),
	}, nil
}

func (s *sqlStore) ListSources(ctx context.Context) ([]relmodel.Source, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sources ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "listing sources")
	}
	out := make([]relmodel.Source, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *sqlStore) GetSource(ctx context.Context, name string) (relmodel.Source, error) {
	var row sourceRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM sources WHERE name = ?`), name)
	if isNoRows(err) {
		return relmodel.Source{}, NotFoundError{Entity: "source", Key: name}
	}
	if err != nil {
		return relmodel.Source{}, errors.Wrap(err, "getting source")
	}
	return row.toModel()
}

func (s *sqlStore) PutSource(ctx context.Context, src relmodel.Source) error {
	row, err := fromModel(src)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO sources (name, kind, locator, enabled, interval_minutes, credential_name, channels)
		VALUES (:name, :kind, :locator, :enabled, :interval_minutes, :credential_name, :channels)
		ON CONFLICT (name) DO UPDATE SET
			kind = excluded.kind, locator = excluded.locator, enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes, credential_name = excluded.credential_name,
			channels = excluded.channels`, row)
	if err != nil {
		return errors.Wrap(err, "upserting source")
	}
	return nil
}

func (s *sqlStore) DeleteSource(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sources WHERE name = ?`), name)
	if err != nil {
		return errors.Wrap(err, "deleting source")
	}
	return nil
}

type statusRow struct {
	SourceName       string         `db:"source_name"`
	Kind             string         `db:"kind"`
	Enabled          bool           `db:"enabled"`
	LastCheck        sql.NullTime   `db:"last_check"`
	LastKnownVersion sql.NullString `db:"last_known_version"`
	LastError        sql.NullString `db:"last_error"`
}

func (s *sqlStore) GetStatus(ctx context.Context, name string) (relmodel.SourceStatus, error) {
	var row statusRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT * FROM source_status WHERE source_name = ?`), name)
	if isNoRows(err) {
		return relmodel.SourceStatus{}, NotFoundError{Entity: "source_status", Key: name}
	}
	if err != nil {
		return relmodel.SourceStatus{}, errors.Wrap(err, "getting source status")
	}
	return statusFromRow(row, s.channelCount(ctx, name)), nil
}

func statusFromRow(row statusRow, channelCount int) relmodel.SourceStatus {
	var lastCheck time.Time
	if row.LastCheck.Valid {
		lastCheck = row.LastCheck.Time
	}
	return relmodel.SourceStatus{
		SourceName:       row.SourceName,
		Kind:             relmodel.SourceKind(row.Kind),
		Enabled:          row.Enabled,
		LastCheck:        lastCheck,
		LastKnownVersion: row.LastKnownVersion.String,
		LastError:        row.LastError.String,
		ChannelCount:     channelCount,
	}
}

func (s *sqlStore) channelCount(ctx context.Context, name string) int {
	src, err := s.GetSource(ctx, name)
	if err != nil {
		return 0
	}
	return len(src.Channels)
}

func (s *sqlStore) PutStatus(ctx context.Context, st relmodel.SourceStatus) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO source_status (source_name, kind, enabled, last_check, last_known_version, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_name) DO UPDATE SET
			kind = excluded.kind, enabled = excluded.enabled, last_check = excluded.last_check,
			last_known_version = excluded.last_known_version, last_error = excluded.last_error`),
		st.SourceName, string(st.Kind), st.Enabled, st.LastCheck, st.LastKnownVersion, st.LastError)
	if err != nil {
		return errors.Wrap(err, "upserting source status")
	}
	return nil
}

func (s *sqlStore) ListStatuses(ctx context.Context) ([]relmodel.SourceStatus, error) {
	var rows []statusRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM source_status ORDER BY source_name`); err != nil {
		return nil, errors.Wrap(err, "listing source statuses")
	}
	out := make([]relmodel.SourceStatus, len(rows))
	for i, r := range rows {
		out[i] = statusFromRow(r, s.channelCount(ctx, r.SourceName))
	}
	return out, nil
}
