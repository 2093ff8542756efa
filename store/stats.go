package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Stats computes the dashboard summary. The 7-day daily breakdown is
// bucketed in tz, but queried over a 10-day SQL window first: a plain
// 7-day WHERE clause in UTC can silently drop or duplicate a day's edge
// rows once the operator's timezone shifts the bucket boundary, so the
// window is padded and then trimmed in Go. DailyByChannel holds only
// (day, channel) pairs with at least one release; days without releases
// have no entry.
func (s *sqlStore) Stats(ctx context.Context, tz *time.Location) (Stats, error) {
	if tz == nil {
		tz = time.UTC
	}
	var st Stats

	if err := s.db.GetContext(ctx, &st.TotalTrackers, `SELECT COUNT(*) FROM sources`); err != nil {
		return st, errors.Wrap(err, "counting trackers")
	}

	if err := s.db.GetContext(ctx, &st.TotalReleases, s.rebind(`
		SELECT
			(SELECT COUNT(*) FROM releases) +
			(SELECT COUNT(*) FROM release_history)
	`)); err != nil {
		return st, errors.Wrap(err, "counting total releases")
	}

	since24h := time.Now().Add(-24 * time.Hour)
	if err := s.db.GetContext(ctx, &st.RecentReleases, s.rebind(
		`SELECT COUNT(*) FROM releases WHERE created_at > ?`), since24h); err != nil {
		return st, errors.Wrap(err, "counting recent releases")
	}

	var latest time.Time
	err := s.db.GetContext(ctx, &latest, `SELECT MAX(published_at) FROM releases`)
	if err == nil && !latest.IsZero() {
		st.LatestPublished = &latest
	}

	// 10-day SQL window.
	since10d := time.Now().Add(-10 * 24 * time.Hour)
	type dayRow struct {
		PublishedAt time.Time `db:"published_at"`
		ChannelName string    `db:"channel_name"`
	}
	var dayRows []dayRow
	if err := s.db.SelectContext(ctx, &dayRows, s.rebind(`
		SELECT published_at, COALESCE(channel_name, '') AS channel_name
		FROM releases WHERE published_at > ?
		UNION ALL
		SELECT published_at, COALESCE(channel_name, '') AS channel_name
		FROM release_history WHERE published_at > ?`), since10d, since10d); err != nil {
		return st, errors.Wrap(err, "querying daily window")
	}

	today := time.Now().In(tz)
	buckets := map[string]map[string]int{}
	var days []string
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		days = append(days, day)
		buckets[day] = map[string]int{}
	}
	for _, r := range dayRows {
		day := r.PublishedAt.In(tz).Format("2006-01-02")
		if _, ok := buckets[day]; !ok {
			continue // outside the 7-day render window
		}
		channel := r.ChannelName
		if channel == "" {
			channel = "stable"
		}
		buckets[day][channel]++
	}
	for _, day := range days {
		for channel, count := range buckets[day] {
			st.DailyByChannel = append(st.DailyByChannel, DailyChannelCount{Day: day, Channel: channel, Count: count})
		}
	}

	type channelTotal struct {
		ChannelName string `db:"channel_name"`
		Count       int    `db:"count"`
	}
	var totals []channelTotal
	if err := s.db.SelectContext(ctx, &totals, `
		SELECT channel AS channel_name, COUNT(*) AS count FROM (
			SELECT COALESCE(channel_name, CASE WHEN is_prerelease THEN 'prerelease' ELSE 'stable' END) AS channel
			FROM releases
			UNION ALL
			SELECT COALESCE(rh.channel_name, CASE WHEN r.is_prerelease THEN 'prerelease' ELSE 'stable' END) AS channel
			FROM release_history rh JOIN releases r ON r.id = rh.release_id
		) GROUP BY channel`); err != nil {
		return st, errors.Wrap(err, "computing channel totals")
	}
	st.ChannelTotals = map[string]int{}
	for _, t := range totals {
		st.ChannelTotals[t.ChannelName] = t.Count
	}

	var prereleaseTotal, stableTotal struct {
		Count int `db:"count"`
	}
	if err := s.db.GetContext(ctx, &prereleaseTotal, `
		SELECT COUNT(*) AS count FROM (
			SELECT is_prerelease FROM releases WHERE is_prerelease = true
			UNION ALL
			SELECT r.is_prerelease FROM release_history rh JOIN releases r ON r.id = rh.release_id WHERE r.is_prerelease = true
		) t`); err != nil {
		return st, errors.Wrap(err, "computing prerelease total")
	}
	if err := s.db.GetContext(ctx, &stableTotal, `
		SELECT COUNT(*) AS count FROM (
			SELECT is_prerelease FROM releases WHERE is_prerelease = false
			UNION ALL
			SELECT r.is_prerelease FROM release_history rh JOIN releases r ON r.id = rh.release_id WHERE r.is_prerelease = false
		) t`); err != nil {
		return st, errors.Wrap(err, "computing stable total")
	}
	st.PrereleaseTotal = prereleaseTotal.Count
	st.StableTotal = stableTotal.Count

	return st, nil
}
