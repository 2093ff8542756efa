package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate/relwatch/relmodel"
)

func TestNotifierCRUD(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	created, err := ds.PutNotifier(ctx, relmodel.Notifier{
		Name: "webhook-1", Kind: "webhook", URL: "https://hooks.example/1",
		Events: []relmodel.EventKind{relmodel.EventNewRelease, relmodel.EventRepublish}, Enabled: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	created.URL = "https://hooks.example/1/updated"
	updated, err := ds.PutNotifier(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	all, err := ds.ListNotifiers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://hooks.example/1/updated", all[0].URL)
	assert.True(t, all[0].Subscribes(relmodel.EventNewRelease))
	assert.False(t, all[0].Subscribes(relmodel.EventError))

	require.NoError(t, ds.DeleteNotifier(ctx, created.ID))
	all, err = ds.ListNotifiers(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
