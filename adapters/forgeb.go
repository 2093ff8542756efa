package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

// forgeBAdapter polls a GitLab-like forge's REST releases API. A token is
// optional: without one, requests still succeed against public projects at
// a lower rate limit. Some releases come back without embedded commit
// info; those are enriched with a secondary per-tag request, run
// concurrently since there's no batch endpoint for it.
type forgeBAdapter struct {
	client *http.Client

	instanceOverride string
}

type forgeBRelease struct {
	Name        string `json:"name"`
	TagName     string `json:"tag_name"`
	ReleasedAt  string `json:"released_at"`
	CreatedAt   string `json:"created_at"`
	Description string `json:"description"`
	Commit      *struct {
		ID string `json:"id"`
	} `json:"commit"`
}

type forgeBTag struct {
	Commit struct {
		ID string `json:"id"`
	} `json:"commit"`
}

func (a forgeBAdapter) instance(src relmodel.Source) string {
	if a.instanceOverride != "" {
		return a.instanceOverride
	}
	if src.Locator.Instance != "" {
		return src.Locator.Instance
	}
	return "https://forge-b.example"
}

func (a forgeBAdapter) headers(credential string) http.Header {
	h := http.Header{}
	if credential != "" {
		h.Set("PRIVATE-TOKEN", credential)
	}
	return h
}

func (a forgeBAdapter) FetchDrafts(ctx context.Context, src relmodel.Source, credential string, limit int) ([]relmodel.Draft, error) {
	projectID := url.QueryEscape(src.Locator.Project)
	base := a.instance(src)
	listURL := base + "/api/v4/projects/" + projectID + "/releases?per_page=" + perPage(limit)

	var releases []forgeBRelease
	if err := a.getJSON(ctx, listURL, credential, &releases); err != nil {
		return nil, err
	}

	a.enrichMissingCommits(ctx, base, projectID, credential, releases)

	drafts := make([]relmodel.Draft, 0, len(releases))
	for _, r := range releases {
		drafts = append(drafts, forgeBToDraft(src, r))
		if len(drafts) >= limit {
			break
		}
	}
	return drafts, nil
}

func (a forgeBAdapter) FetchLatest(ctx context.Context, src relmodel.Source, credential string) (*relmodel.Draft, error) {
	drafts, err := a.FetchDrafts(ctx, src, credential, 1)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}

// enrichMissingCommits fetches tag details, in parallel, for any release
// whose commit info the releases endpoint omitted. Failures are tolerated
// per-release: a release that can't be enriched is still returned, just
// without a commit SHA.
func (a forgeBAdapter) enrichMissingCommits(ctx context.Context, base, projectID, credential string, releases []forgeBRelease) {
	var wg sync.WaitGroup
	for i := range releases {
		if releases[i].Commit != nil {
			continue
		}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tagURL := base + "/api/v4/projects/" + projectID + "/repository/tags/" + url.QueryEscape(releases[i].TagName)
			var tag forgeBTag
			if err := a.getJSON(ctx, tagURL, credential, &tag); err == nil && tag.Commit.ID != "" {
				releases[i].Commit = &struct {
					ID string `json:"id"`
				}{ID: tag.Commit.ID}
			}
		}()
	}
	wg.Wait()
}

func (a forgeBAdapter) getJSON(ctx context.Context, rawURL, credential string, out interface{}) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	for k, vs := range a.headers(credential) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling forge-b api")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return AuthRequiredError{Upstream: "forge-b"}
	}
	if resp.StatusCode != http.StatusOK {
		return UpstreamError{Upstream: "forge-b", StatusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func forgeBToDraft(src relmodel.Source, r forgeBRelease) relmodel.Draft {
	published := r.ReleasedAt
	if published == "" {
		published = r.CreatedAt
	}
	name := r.Name
	if name == "" {
		name = r.TagName
	}
	var sha string
	if r.Commit != nil {
		sha = r.Commit.ID
	}
	return relmodel.Draft{
		Name:        name,
		Tag:         r.TagName,
		Version:     relmodel.DeriveVersion(r.TagName),
		PublishedAt: parseRFC3339Lenient(published),
		URL:         releaseURL(src, r.TagName),
		// forge-b has no explicit prerelease flag on a release; the
		// legacy keyword heuristic classifies it downstream.
		IsPrerelease: false,
		Body:         r.Description,
		CommitSHA:    sha,
	}
}

func releaseURL(src relmodel.Source, tag string) string {
	instance := src.Locator.Instance
	if instance == "" {
		instance = "https://forge-b.example"
	}
	return instance + "/" + src.Locator.Project + "/-/releases/" + tag
}

func perPage(limit int) string {
	if limit <= 0 || limit > 100 {
		return "100"
	}
	return strconv.Itoa(limit)
}
