package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate/relwatch/relmodel"
)

func TestForgeB_FetchDrafts_EnrichesMissingCommitViaTagLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/repository/tags/"):
			w.Write([]byte(`{"commit": {"id": "abc123"}}`))
		default:
			w.Write([]byte(`[{"name": "v2.0.0", "tag_name": "v2.0.0", "released_at": "2026-03-01T00:00:00Z", "description": "notes"}]`))
		}
	}))
	defer srv.Close()

	a := forgeBAdapter{client: srv.Client(), instanceOverride: srv.URL}
	src := relmodel.Source{Locator: relmodel.Locator{Project: "42", Instance: srv.URL}}

	drafts, err := a.FetchDrafts(context.Background(), src, "", 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "v2.0.0", drafts[0].Tag)
	assert.Equal(t, "abc123", drafts[0].CommitSHA)
}

func TestForgeB_FetchDrafts_WorksWithoutCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("PRIVATE-TOKEN"))
		w.Write([]byte(`[{"name": "v1.0.0", "tag_name": "v1.0.0", "created_at": "2026-01-01T00:00:00Z", "commit": {"id": "xyz"}}]`))
	}))
	defer srv.Close()

	a := forgeBAdapter{client: srv.Client(), instanceOverride: srv.URL}
	src := relmodel.Source{Locator: relmodel.Locator{Project: "42"}}

	drafts, err := a.FetchDrafts(context.Background(), src, "", 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "xyz", drafts[0].CommitSHA)
}

func TestForgeB_UnauthorizedIsAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := forgeBAdapter{client: srv.Client(), instanceOverride: srv.URL}
	src := relmodel.Source{Locator: relmodel.Locator{Project: "42"}}

	_, err := a.FetchDrafts(context.Background(), src, "bad", 10)
	require.Error(t, err)
	var authErr AuthRequiredError
	require.ErrorAs(t, err, &authErr)
}

func TestPerPage(t *testing.T) {
	assert.Equal(t, "100", perPage(0))
	assert.Equal(t, "100", perPage(150))
	assert.Equal(t, "5", perPage(5))
}
