// Package adapters implements the per-upstream Source Adapters: fetching a
// bounded batch of candidate releases (or falling back to a single latest
// one) from a forge or chart index, normalized into relmodel.Draft values.
package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/brightgate/relwatch/relmodel"
)

// requestTimeout bounds every outbound adapter call.
const requestTimeout = 10 * time.Second

// AuthRequiredError means the upstream rejected the request for lack of (or
// an invalid) credential. The Scheduler Core surfaces this verbatim in
// Source Status rather than retrying.
type AuthRequiredError struct {
	Upstream string
}

func (e AuthRequiredError) Error() string {
	return e.Upstream + ": authentication required"
}

// UpstreamError wraps a non-2xx response from the upstream.
type UpstreamError struct {
	Upstream   string
	StatusCode int
}

func (e UpstreamError) Error() string {
	return errors.Errorf("%s: unexpected status %d", e.Upstream, e.StatusCode).Error()
}

// Adapter is implemented once per relmodel.SourceKind.
type Adapter interface {
	// FetchDrafts returns up to limit candidate releases, newest first.
	FetchDrafts(ctx context.Context, src relmodel.Source, credential string, limit int) ([]relmodel.Draft, error)

	// FetchLatest returns the single most recent release, used as a
	// fallback when FetchDrafts comes back empty.
	FetchLatest(ctx context.Context, src relmodel.Source, credential string) (*relmodel.Draft, error)
}

// For builds the adapter for a source kind.
func For(kind relmodel.SourceKind) (Adapter, error) {
	switch kind {
	case relmodel.SourceKindForgeA:
		return forgeAAdapter{client: newHTTPClient()}, nil
	case relmodel.SourceKindForgeB:
		return forgeBAdapter{client: newHTTPClient()}, nil
	case relmodel.SourceKindChartIndex:
		return chartIndexAdapter{client: newHTTPClient()}, nil
	default:
		return nil, errors.Errorf("no adapter for source kind %q", kind)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, requestTimeout)
}
