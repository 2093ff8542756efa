package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate/relwatch/relmodel"
)

const testIndexYAML = `
entries:
  widget:
    - version: 2.0.0-beta.1
      created: "2026-01-03T00:00:00Z"
      urls: ["https://charts.example/widget-2.0.0-beta.1.tgz"]
    - version: 1.9.0
      created: "2026-01-01T00:00:00Z"
      urls: ["https://charts.example/widget-1.9.0.tgz"]
`

func TestChartIndex_FetchDrafts_SortsNewestFirstAndLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testIndexYAML))
	}))
	defer srv.Close()

	a := chartIndexAdapter{client: srv.Client()}
	src := relmodel.Source{Locator: relmodel.Locator{IndexRepo: srv.URL, Chart: "widget"}}

	drafts, err := a.FetchDrafts(context.Background(), src, "", 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "2.0.0-beta.1", drafts[0].Tag)
	assert.True(t, drafts[0].IsPrerelease)
	assert.Equal(t, "1.9.0", drafts[1].Tag)
	assert.False(t, drafts[1].IsPrerelease)

	limited, err := a.FetchDrafts(context.Background(), src, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "2.0.0-beta.1", limited[0].Tag)
}

func TestChartIndex_FetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testIndexYAML))
	}))
	defer srv.Close()

	a := chartIndexAdapter{client: srv.Client()}
	src := relmodel.Source{Locator: relmodel.Locator{IndexRepo: srv.URL, Chart: "widget"}}

	latest, err := a.FetchLatest(context.Background(), src, "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2.0.0-beta.1", latest.Tag)
}

func TestChartIndex_UnknownChartReturnsNoDrafts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testIndexYAML))
	}))
	defer srv.Close()

	a := chartIndexAdapter{client: srv.Client()}
	src := relmodel.Source{Locator: relmodel.Locator{IndexRepo: srv.URL, Chart: "nonexistent"}}

	drafts, err := a.FetchDrafts(context.Background(), src, "", 0)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestChartIndex_NonOKStatusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := chartIndexAdapter{client: srv.Client()}
	src := relmodel.Source{Locator: relmodel.Locator{IndexRepo: srv.URL, Chart: "widget"}}

	_, err := a.FetchDrafts(context.Background(), src, "", 0)
	require.Error(t, err)
	var upstreamErr UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
}
