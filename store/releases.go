package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/channelfilter"
	"github.com/brightgate/relwatch/detector"
	"github.com/brightgate/relwatch/relmodel"
)

// ReleaseFilter narrows ListReleases. A zero-value filter lists current
// (non-history) releases across all sources, at most 50 of them (the
// default page size when Limit is unset).
type ReleaseFilter struct {
	SourceName     string
	Search         string
	IsPrerelease   *bool
	IncludeHistory bool
	Limit          int
	Offset         int
}

// releaseRow mirrors relmodel.Release for sqlx scanning; it exists
// separately only because nullable columns need sql.Null* wrappers that
// relmodel.Release, as the public DTO, is kept free of.
type releaseRow struct {
	ID             int64          `db:"id"`
	SourceName     string         `db:"source_name"`
	Name           string         `db:"name"`
	Tag            string         `db:"tag"`
	Version        string         `db:"version"`
	PublishedAt    time.Time      `db:"published_at"`
	URL            sql.NullString `db:"url"`
	IsPrerelease   bool           `db:"is_prerelease"`
	Body           sql.NullString `db:"body"`
	ChannelName    sql.NullString `db:"channel_name"`
	CommitSHA      sql.NullString `db:"commit_sha"`
	RepublishCount int            `db:"republish_count"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r releaseRow) toModel() relmodel.Release {
	return relmodel.Release{
		ID:             r.ID,
		SourceName:     r.SourceName,
		Name:           r.Name,
		Tag:            r.Tag,
		Version:        r.Version,
		PublishedAt:    r.PublishedAt,
		URL:            r.URL.String,
		IsPrerelease:   r.IsPrerelease,
		Body:           r.Body.String,
		ChannelName:    r.ChannelName.String,
		CommitSHA:      r.CommitSHA.String,
		RepublishCount: r.RepublishCount,
		CreatedAt:      r.CreatedAt,
	}
}

// Save persists a classified draft for sourceName, running the republish
// detector against any existing row for the same tag, recording a history
// snapshot on republish, and reporting the verdict so the caller can decide
// whether to fan out a notification.
func (s *sqlStore) Save(ctx context.Context, sourceName string, d relmodel.Draft) (relmodel.Verdict, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return relmodel.Verdict{}, errors.Wrap(err, "beginning save tx")
	}
	defer tx.Rollback()

	var existingRow releaseRow
	err = tx.GetContext(ctx, &existingRow, s.rebind(
		`SELECT * FROM releases WHERE source_name = ? AND tag = ?`), sourceName, d.Tag)

	var existing *relmodel.Release
	switch {
	case err == nil:
		m := existingRow.toModel()
		existing = &m
	case isNoRows(err):
		existing = nil
	default:
		return relmodel.Verdict{}, errors.Wrap(err, "loading existing release")
	}

	verdict := detector.Decide(existing, d)

	switch verdict.Kind {
	case relmodel.VerdictNew:
		row := releaseRow{
			SourceName:   sourceName,
			Name:         d.Name,
			Tag:          d.Tag,
			Version:      d.Version,
			PublishedAt:  d.PublishedAt,
			URL:          sql.NullString{String: d.URL, Valid: d.URL != ""},
			IsPrerelease: d.IsPrerelease,
			Body:         sql.NullString{String: d.Body, Valid: d.Body != ""},
			ChannelName:  sql.NullString{String: d.ChannelName, Valid: d.ChannelName != ""},
			CommitSHA:    sql.NullString{String: d.CommitSHA, Valid: d.CommitSHA != ""},
		}
		res, err := tx.NamedExecContext(ctx, s.insertReleaseSQL(), row)
		if err != nil {
			return relmodel.Verdict{}, errors.Wrap(err, "inserting release")
		}
		id, _ := res.LastInsertId()
		row.ID = id
		verdict.Release = row.toModel()

	case relmodel.VerdictRepublish:
		// Snapshot the pre-overwrite row into history, then overwrite in place.
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO release_history (release_id, name, commit_sha, published_at, body, channel_name)
			VALUES (?, ?, ?, ?, ?, ?)`),
			existing.ID, existing.Name, existing.CommitSHA, existing.PublishedAt, existing.Body, existing.ChannelName)
		if err != nil {
			return relmodel.Verdict{}, errors.Wrap(err, "recording release history")
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE releases
			SET name = ?, version = ?, published_at = ?, url = ?, is_prerelease = ?,
			    body = ?, channel_name = ?, commit_sha = ?, republish_count = republish_count + 1
			WHERE id = ?`),
			d.Name, d.Version, d.PublishedAt, d.URL, d.IsPrerelease,
			d.Body, d.ChannelName, d.CommitSHA, existing.ID)
		if err != nil {
			return relmodel.Verdict{}, errors.Wrap(err, "updating republished release")
		}

		updated := *existing
		updated.Name, updated.Version, updated.PublishedAt = d.Name, d.Version, d.PublishedAt
		updated.URL, updated.IsPrerelease, updated.Body = d.URL, d.IsPrerelease, d.Body
		updated.ChannelName, updated.CommitSHA = d.ChannelName, d.CommitSHA
		updated.RepublishCount++
		verdict.Release = updated

	case relmodel.VerdictMetadata:
		commitSHA := d.CommitSHA
		if commitSHA == "" {
			commitSHA = existing.CommitSHA
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE releases
			SET name = ?, url = ?, body = ?, channel_name = ?,
			    version = ?, published_at = ?, is_prerelease = ?, commit_sha = ?
			WHERE id = ?`),
			d.Name, d.URL, d.Body, d.ChannelName,
			d.Version, d.PublishedAt, d.IsPrerelease, commitSHA, existing.ID)
		if err != nil {
			return relmodel.Verdict{}, errors.Wrap(err, "updating release metadata")
		}
		updated := *existing
		updated.Name, updated.URL, updated.Body, updated.ChannelName = d.Name, d.URL, d.Body, d.ChannelName
		updated.Version, updated.PublishedAt, updated.IsPrerelease, updated.CommitSHA = d.Version, d.PublishedAt, d.IsPrerelease, commitSHA
		verdict.Release = updated
	}

	if err := tx.Commit(); err != nil {
		return relmodel.Verdict{}, errors.Wrap(err, "committing save")
	}
	return verdict, nil
}

func (s *sqlStore) insertReleaseSQL() string {
	return `INSERT INTO releases
		(source_name, name, tag, version, published_at, url, is_prerelease, body, channel_name, commit_sha)
		VALUES (:source_name, :name, :tag, :version, :published_at, :url, :is_prerelease, :body, :channel_name, :commit_sha)`
}

// ListReleases returns current releases matching filter, most-recent first,
// alongside the total count of matching current rows (ignoring limit/offset,
// so callers can paginate). When filter.IncludeHistory is set, all
// release_history snapshots for filter.SourceName (or for every source when
// it is empty) are appended, marked Historical; the Search, IsPrerelease,
// Limit and Offset fields do not apply to them. The
// combined set is re-sorted by published_at; the returned total still
// reflects current rows only, matching the original's pagination contract.
func (s *sqlStore) ListReleases(ctx context.Context, filter ReleaseFilter) ([]relmodel.Release, int, error) {
	where := []string{}
	args := []interface{}{}

	if filter.SourceName != "" {
		where = append(where, "source_name = ?")
		args = append(args, filter.SourceName)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		where = append(where, "(name LIKE ? OR tag LIKE ? OR version LIKE ?)")
		args = append(args, like, like, like)
	}
	if filter.IsPrerelease != nil {
		where = append(where, "is_prerelease = ?")
		args = append(args, *filter.IsPrerelease)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM releases %s`, whereSQL)
	if err := s.db.GetContext(ctx, &total, s.rebind(countQuery), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting releases")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	listQuery := fmt.Sprintf(`SELECT * FROM releases %s ORDER BY published_at DESC LIMIT ? OFFSET ?`, whereSQL)
	listArgs := append(append([]interface{}{}, args...), limit, filter.Offset)

	var rows []releaseRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(listQuery), listArgs...); err != nil {
		return nil, 0, errors.Wrap(err, "listing releases")
	}
	out := make([]relmodel.Release, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}

	if filter.IncludeHistory {
		histWhere := []string{}
		histArgs := []interface{}{}
		if filter.SourceName != "" {
			histWhere = append(histWhere, "r.source_name = ?")
			histArgs = append(histArgs, filter.SourceName)
		}
		histWhereSQL := ""
		if len(histWhere) > 0 {
			histWhereSQL = "WHERE " + strings.Join(histWhere, " AND ")
		}
		histQuery := fmt.Sprintf(`
			SELECT h.release_id AS release_id, r.source_name AS source_name, r.tag AS tag,
			       h.name AS name, h.commit_sha AS commit_sha, h.published_at AS published_at,
			       h.body AS body, h.channel_name AS channel_name
			FROM release_history h
			JOIN releases r ON r.id = h.release_id
			%s
			ORDER BY h.published_at DESC`, histWhereSQL)

		var histRows []struct {
			ReleaseID   int64          `db:"release_id"`
			SourceName  string         `db:"source_name"`
			Tag         string         `db:"tag"`
			Name        string         `db:"name"`
			CommitSHA   sql.NullString `db:"commit_sha"`
			PublishedAt time.Time      `db:"published_at"`
			Body        sql.NullString `db:"body"`
			ChannelName sql.NullString `db:"channel_name"`
		}
		if err := s.db.SelectContext(ctx, &histRows, s.rebind(histQuery), histArgs...); err != nil {
			return nil, 0, errors.Wrap(err, "listing release history")
		}
		for _, h := range histRows {
			out = append(out, relmodel.Release{
				ID:          h.ReleaseID,
				SourceName:  h.SourceName,
				Name:        h.Name,
				Tag:         h.Tag,
				PublishedAt: h.PublishedAt,
				Body:        h.Body.String,
				ChannelName: h.ChannelName.String,
				CommitSHA:   h.CommitSHA.String,
				Historical:  true,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	}

	return out, total, nil
}

// RecentPerSource returns, for every name in sourceNames, up to perSourceLimit most
// recent current releases for that source, via a single windowed-ranking
// query rather than one query per source. Used by the admin UI to avoid
// N+1 queries when rendering the tracker list.
func (s *sqlStore) RecentPerSource(ctx context.Context, sourceNames []string, perSourceLimit int) (map[string][]relmodel.Release, error) {
	out := make(map[string][]relmodel.Release, len(sourceNames))
	if len(sourceNames) == 0 {
		return out, nil
	}
	if perSourceLimit <= 0 {
		perSourceLimit = 1
	}

	type rankedRow struct {
		releaseRow
		Rn int `db:"rn"`
	}

	placeholders := make([]string, len(sourceNames))
	args := make([]interface{}, 0, len(sourceNames)+1)
	for i, name := range sourceNames {
		placeholders[i] = "?"
		args = append(args, name)
	}
	args = append(args, perSourceLimit)

	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT r.*, ROW_NUMBER() OVER (PARTITION BY source_name ORDER BY published_at DESC) AS rn
			FROM releases r
			WHERE source_name IN (%s)
		) ranked
		WHERE rn <= ?`, strings.Join(placeholders, ","))

	var rows []rankedRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "computing recent releases per source")
	}
	for _, r := range rows {
		m := r.releaseRow.toModel()
		out[m.SourceName] = append(out[m.SourceName], m)
	}
	return out, nil
}

// LatestAcrossChannels computes the "headline" current version for a
// source: the most recent ≤100 current releases, re-run through the
// Channel Filter against channels, with the greatest published_at among
// the surviving candidates winning.
func (s *sqlStore) LatestAcrossChannels(ctx context.Context, sourceName string, channels []relmodel.Channel) (relmodel.Release, error) {
	var rows []releaseRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT * FROM releases WHERE source_name = ?
		ORDER BY published_at DESC LIMIT 100`), sourceName)
	if err != nil {
		return relmodel.Release{}, errors.Wrap(err, "loading recent releases")
	}

	var best *relmodel.Release
	for _, row := range rows {
		m := row.toModel()
		draft := relmodel.Draft{
			Tag: m.Tag, Version: m.Version, IsPrerelease: m.IsPrerelease, PublishedAt: m.PublishedAt,
		}
		if _, included := channelfilter.Classify(channels, draft, nil); !included {
			continue
		}
		if best == nil || m.PublishedAt.After(best.PublishedAt) {
			best = &m
		}
	}
	if best == nil {
		return relmodel.Release{}, NotFoundError{Entity: "release", Key: sourceName}
	}
	return *best, nil
}

func (s *sqlStore) GetRelease(ctx context.Context, sourceName, tag string) (relmodel.Release, error) {
	var row releaseRow
	err := s.db.GetContext(ctx, &row, s.rebind(
		`SELECT * FROM releases WHERE source_name = ? AND tag = ?`), sourceName, tag)
	if isNoRows(err) {
		return relmodel.Release{}, NotFoundError{Entity: "release", Key: sourceName + "/" + tag}
	}
	if err != nil {
		return relmodel.Release{}, errors.Wrap(err, "getting release")
	}
	return row.toModel(), nil
}
