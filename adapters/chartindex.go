package adapters

import (
	"context"
	"net/http"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/brightgate/relwatch/relmodel"
)

// chartIndexAdapter polls a Helm-style chart repository index.yaml and
// extracts the version history of a single named chart. No credential is
// required: chart indexes are static files served over plain HTTP(S).
type chartIndexAdapter struct {
	client *http.Client
}

type chartIndex struct {
	Entries map[string][]chartEntry `yaml:"entries"`
}

type chartEntry struct {
	Version string   `yaml:"version"`
	Created string   `yaml:"created"`
	URLs    []string `yaml:"urls"`
	Digest  string   `yaml:"digest"`
}

func (a chartIndexAdapter) FetchDrafts(ctx context.Context, src relmodel.Source, credential string, limit int) ([]relmodel.Draft, error) {
	idx, err := a.fetchIndex(ctx, src)
	if err != nil {
		return nil, err
	}

	entries := idx.Entries[src.Locator.Chart]
	if len(entries) == 0 {
		return nil, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created > entries[j].Created
	})

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	drafts := make([]relmodel.Draft, 0, len(entries))
	for _, e := range entries {
		drafts = append(drafts, chartEntryToDraft(src.Locator.Chart, e))
	}
	return drafts, nil
}

func (a chartIndexAdapter) FetchLatest(ctx context.Context, src relmodel.Source, credential string) (*relmodel.Draft, error) {
	drafts, err := a.FetchDrafts(ctx, src, credential, 1)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}

func (a chartIndexAdapter) fetchIndex(ctx context.Context, src relmodel.Source) (chartIndex, error) {
	var idx chartIndex

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Locator.IndexRepo, nil)
	if err != nil {
		return idx, errors.Wrap(err, "building index.yaml request")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return idx, errors.Wrap(err, "fetching chart index")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return idx, UpstreamError{Upstream: "chart-index", StatusCode: resp.StatusCode}
	}

	if err := yaml.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return idx, errors.Wrap(err, "decoding chart index")
	}
	return idx, nil
}

func chartEntryToDraft(chart string, e chartEntry) relmodel.Draft {
	var url string
	if len(e.URLs) > 0 {
		url = e.URLs[0]
	}
	return relmodel.Draft{
		Name:         chart + " " + e.Version,
		Tag:          e.Version,
		Version:      relmodel.DeriveVersion(e.Version),
		PublishedAt:  parseRFC3339Lenient(e.Created),
		URL:          url,
		IsPrerelease: relmodel.ParsePrerelease(e.Version),
	}
}
