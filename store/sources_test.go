package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate/relwatch/relmodel"
)

func TestSourceCRUD(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	src := relmodel.Source{
		Name:            "example",
		Kind:            relmodel.SourceKindForgeB,
		Locator:         relmodel.Locator{Project: "widget", Instance: "forge.example.com"},
		Enabled:         true,
		IntervalMinutes: 30,
		Channels: []relmodel.Channel{
			{Name: "stable", Type: relmodel.ChannelTypeRelease, Enabled: true},
			{Name: "canary", IncludePattern: "-rc", Enabled: true},
		},
	}
	require.NoError(t, ds.PutSource(ctx, src))

	got, err := ds.GetSource(ctx, "example")
	require.NoError(t, err)
	assert.Equal(t, src.Kind, got.Kind)
	assert.Equal(t, src.Locator, got.Locator)
	assert.Len(t, got.Channels, 2)

	src.Enabled = false
	require.NoError(t, ds.PutSource(ctx, src))
	got, err = ds.GetSource(ctx, "example")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	all, err := ds.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, ds.DeleteSource(ctx, "example"))
	_, err = ds.GetSource(ctx, "example")
	assert.True(t, IsNotFound(err))
}

func TestDeleteSource_CascadesReleasesHistoryAndStatus(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.PutSource(ctx, relmodel.Source{Name: "example", Kind: relmodel.SourceKindForgeA, Enabled: true, IntervalMinutes: 15}))
	require.NoError(t, ds.PutStatus(ctx, relmodel.SourceStatus{SourceName: "example", Kind: relmodel.SourceKindForgeA, Enabled: true}))

	published := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := ds.Save(ctx, "example", relmodel.Draft{Tag: "v1.0.0", Version: "1.0.0", PublishedAt: published, CommitSHA: "a"})
	require.NoError(t, err)
	_, err = ds.Save(ctx, "example", relmodel.Draft{Tag: "v1.0.0", Version: "1.0.0", PublishedAt: published, CommitSHA: "b"})
	require.NoError(t, err)

	sqlDS := ds.(*sqlStore)
	var releaseCount, historyCount, statusCount int
	require.NoError(t, sqlDS.db.GetContext(ctx, &releaseCount, `SELECT COUNT(*) FROM releases WHERE source_name = 'example'`))
	require.NoError(t, sqlDS.db.GetContext(ctx, &historyCount, `SELECT COUNT(*) FROM release_history`))
	require.NoError(t, sqlDS.db.GetContext(ctx, &statusCount, `SELECT COUNT(*) FROM source_status WHERE source_name = 'example'`))
	require.Equal(t, 1, releaseCount)
	require.Equal(t, 1, historyCount)
	require.Equal(t, 1, statusCount)

	require.NoError(t, ds.DeleteSource(ctx, "example"))

	require.NoError(t, sqlDS.db.GetContext(ctx, &releaseCount, `SELECT COUNT(*) FROM releases WHERE source_name = 'example'`))
	require.NoError(t, sqlDS.db.GetContext(ctx, &historyCount, `SELECT COUNT(*) FROM release_history`))
	require.NoError(t, sqlDS.db.GetContext(ctx, &statusCount, `SELECT COUNT(*) FROM source_status WHERE source_name = 'example'`))
	assert.Equal(t, 0, releaseCount, "deleting a source must cascade to its releases")
	assert.Equal(t, 0, historyCount, "deleting a source must cascade to release history via its releases")
	assert.Equal(t, 0, statusCount, "deleting a source must cascade to its status row")
}

func TestSourceStatus_ChannelCountReflectsCurrentSource(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.PutSource(ctx, relmodel.Source{
		Name: "example",
		Kind: relmodel.SourceKindChartIndex,
		Channels: []relmodel.Channel{
			{Name: "stable", Enabled: true},
			{Name: "beta", Enabled: true},
			{Name: "nightly", Enabled: true},
		},
	}))

	require.NoError(t, ds.PutStatus(ctx, relmodel.SourceStatus{
		SourceName: "example",
		Kind:       relmodel.SourceKindChartIndex,
		Enabled:    true,
	}))

	st, err := ds.GetStatus(ctx, "example")
	require.NoError(t, err)
	assert.Equal(t, 3, st.ChannelCount)

	all, err := ds.ListStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 3, all[0].ChannelCount)
}

func TestGetStatus_NotFound(t *testing.T) {
	ds := newTestStore(t)
	_, err := ds.GetStatus(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}
