package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

// forgeAAdapter polls a GitHub-like forge's GraphQL API. A credential is
// mandatory: the GraphQL endpoint refuses unauthenticated requests outright,
// unlike forge-b's REST API which degrades gracefully to anonymous rate
// limits.
type forgeAAdapter struct {
	client *http.Client

	// endpoint overrides the GraphQL URL in tests.
	endpoint string
}

const forgeAGraphQLEndpoint = "https://api.forge-a.example/graphql"

const forgeAQuery = `
query($owner: String!, $name: String!, $count: Int!) {
  repository(owner: $owner, name: $name) {
    releases(first: $count, orderBy: {field: CREATED_AT, direction: DESC}) {
      nodes {
        name
        tagName
        url
        isPrerelease
        publishedAt
        descriptionHTML
        tagCommit { oid }
      }
    }
  }
}`

type forgeAReleaseNode struct {
	Name         string `json:"name"`
	TagName      string `json:"tagName"`
	URL          string `json:"url"`
	IsPrerelease bool   `json:"isPrerelease"`
	PublishedAt  string `json:"publishedAt"`
	Description  string `json:"descriptionHTML"`
	TagCommit    struct {
		OID string `json:"oid"`
	} `json:"tagCommit"`
}

type forgeAResponse struct {
	Data struct {
		Repository struct {
			Releases struct {
				Nodes []forgeAReleaseNode `json:"nodes"`
			} `json:"releases"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a forgeAAdapter) FetchDrafts(ctx context.Context, src relmodel.Source, credential string, limit int) ([]relmodel.Draft, error) {
	if credential == "" {
		return nil, AuthRequiredError{Upstream: "forge-a"}
	}

	owner, repo, err := splitOwnerRepo(src.Locator.Repo)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"query": forgeAQuery,
		"variables": map[string]interface{}{
			"owner": owner,
			"name":  repo,
			"count": limit,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding graphql request")
	}

	endpoint := a.endpoint
	if endpoint == "" {
		endpoint = forgeAGraphQLEndpoint
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building graphql request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling forge-a graphql api")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, AuthRequiredError{Upstream: "forge-a"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, UpstreamError{Upstream: "forge-a", StatusCode: resp.StatusCode}
	}

	var decoded forgeAResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decoding graphql response")
	}
	if len(decoded.Errors) > 0 {
		return nil, errors.Errorf("forge-a graphql error: %s", decoded.Errors[0].Message)
	}

	nodes := decoded.Data.Repository.Releases.Nodes
	drafts := make([]relmodel.Draft, 0, len(nodes))
	for _, n := range nodes {
		drafts = append(drafts, forgeANodeToDraft(n))
	}
	return drafts, nil
}

func (a forgeAAdapter) FetchLatest(ctx context.Context, src relmodel.Source, credential string) (*relmodel.Draft, error) {
	drafts, err := a.FetchDrafts(ctx, src, credential, 1)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}

func forgeANodeToDraft(n forgeAReleaseNode) relmodel.Draft {
	published := parseRFC3339Lenient(n.PublishedAt)
	name := n.Name
	if name == "" {
		name = n.TagName
	}
	return relmodel.Draft{
		Name:         name,
		Tag:          n.TagName,
		Version:      relmodel.DeriveVersion(n.TagName),
		PublishedAt:  published,
		URL:          n.URL,
		IsPrerelease: n.IsPrerelease,
		Body:         n.Description,
		CommitSHA:    n.TagCommit.OID,
	}
}

func splitOwnerRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("forge-a repo locator %q must be in owner/name form", repo)
}
