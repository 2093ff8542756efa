package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate/relwatch/relmodel"
)

type fakeNotifierStore struct {
	notifiers []relmodel.Notifier
}

func (f fakeNotifierStore) ListNotifiers(ctx context.Context) ([]relmodel.Notifier, error) {
	return f.notifiers, nil
}
func (f fakeNotifierStore) PutNotifier(ctx context.Context, n relmodel.Notifier) (relmodel.Notifier, error) {
	return n, nil
}
func (f fakeNotifierStore) DeleteNotifier(ctx context.Context, id int64) error { return nil }

func TestDispatch_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := fakeNotifierStore{notifiers: []relmodel.Notifier{
		{Name: "hook", URL: srv.URL, Enabled: true, Events: []relmodel.EventKind{relmodel.EventNewRelease}},
	}}
	d := New(store, nil)

	d.Dispatch(context.Background(), "src", relmodel.EventNewRelease, relmodel.Release{Tag: "v1.0.0"})

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatch_SkipsUnsubscribedAndDisabled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := fakeNotifierStore{notifiers: []relmodel.Notifier{
		{Name: "disabled", URL: srv.URL, Enabled: false, Events: []relmodel.EventKind{relmodel.EventNewRelease}},
		{Name: "wrong-event", URL: srv.URL, Enabled: true, Events: []relmodel.EventKind{relmodel.EventError}},
	}}
	d := New(store, nil)
	d.Dispatch(context.Background(), "src", relmodel.EventNewRelease, relmodel.Release{})

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDispatchTo_BypassesDisabledAndSubscriptionChecks(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := New(fakeNotifierStore{}, nil)
	target := relmodel.Notifier{Name: "disabled", URL: srv.URL, Enabled: false, Events: []relmodel.EventKind{relmodel.EventError}}

	err := d.DispatchTo(context.Background(), target, "widget", relmodel.EventNewRelease, relmodel.Release{Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBuildPayload_StableReleaseUsesGreenAndExpandsEmoji(t *testing.T) {
	p := buildPayload("widget", relmodel.EventNewRelease, relmodel.Release{
		Tag: "v1.2.0", Version: "1.2.0", Body: "Fixed stuff :tada:", ChannelName: "stable",
	})
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, colorStable, p.Embeds[0].Color)
	assert.Contains(t, p.Embeds[0].Description, "🎉")
	assert.NotContains(t, p.Embeds[0].Description, ":tada:")
	assert.Equal(t, "widget", p.Tracker)
	assert.Equal(t, "1.2.0", p.Version)
	assert.NotEmpty(t, p.Content)
	assert.NotEmpty(t, p.Text)
}

func TestBuildPayload_PrereleaseUsesOrangeAndTruncatesLongBody(t *testing.T) {
	longBody := strings.Repeat("x", maxDescriptionLength+500)
	p := buildPayload("widget", relmodel.EventRepublish, relmodel.Release{
		Tag: "v1.2.0-rc.1", Version: "1.2.0-rc.1", Body: longBody, IsPrerelease: true,
	})
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, colorPrerelease, p.Embeds[0].Color)
	assert.Len(t, p.Embeds[0].Description, maxDescriptionLength)
	assert.Equal(t, "prerelease", p.Embeds[0].Fields[1].Value)
}

func TestRetryAfterDuration_HeaderTakesPriority(t *testing.T) {
	got := retryAfterDuration("2", []byte(`{"retry_after": 99}`))
	assert.Equal(t, 2*time.Second, got)
}

func TestRetryAfterDuration_BodyFieldAboveSixtyTreatedAsMilliseconds(t *testing.T) {
	got := retryAfterDuration("", []byte(`{"retry_after": 1500}`))
	assert.Equal(t, 1500*time.Millisecond, got)
}

func TestRetryAfterDuration_DefaultWhenNothingPresent(t *testing.T) {
	got := retryAfterDuration("", nil)
	assert.Equal(t, defaultRetryAfter, got)
}

func TestDispatch_NonRetryableStatusIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := fakeNotifierStore{notifiers: []relmodel.Notifier{
		{Name: "hook", URL: srv.URL, Enabled: true, Events: []relmodel.EventKind{relmodel.EventNewRelease}},
	}}
	d := New(store, nil)
	d.Dispatch(context.Background(), "src", relmodel.EventNewRelease, relmodel.Release{})

	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-429 errors must not be retried")
}
