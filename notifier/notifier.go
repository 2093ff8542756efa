// Package notifier implements the Notifier Fan-out: delivering a release
// event to every subscribed notifier, with the upstream's exact retry
// semantics for rate limiting and transient failure.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightgate/relwatch/relmodel"
	"github.com/brightgate/relwatch/store"
)

const (
	maxAttempts       = 4
	rateLimitMargin   = 500 * time.Millisecond
	maxTotalWait      = 30 * time.Second
	defaultRetryAfter = 1 * time.Second

	maxDescriptionLength = 2000

	// colorPrerelease and colorStable are the fixed embed accent colors
	// (decimal RGB, the common chat-webhook convention): a muted orange
	// for prerelease releases, a green for stable releases.
	colorPrerelease = 15258703
	colorStable     = 5763719
)

// Dispatcher sends events to every enabled, subscribed notifier. It always
// re-reads the notifier list from the store before dispatching, rather
// than caching it, to avoid delivering to a notifier that was disabled or
// reconfigured moments ago.
type Dispatcher struct {
	store  store.NotifierStore
	client *http.Client
	log    *zap.Logger
}

// New builds a Dispatcher.
func New(ns store.NotifierStore, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:  ns,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

// payload is the wire shape posted to every webhook notifier: flat fields
// for simple text-only consumers, plus a chat-webhook-style embed for
// clients that render one.
type payload struct {
	Event   relmodel.EventKind `json:"event"`
	Tracker string             `json:"tracker"`
	Version string             `json:"version"`
	Content string             `json:"content"`
	Text    string             `json:"text"`
	Embeds  []embed            `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// emojiShortcodes is the fixed expansion table used on release body text.
var emojiShortcodes = map[string]string{
	":smile:":    "😄",
	":tada:":     "🎉",
	":rocket:":   "🚀",
	":warning:":  "⚠️",
	":bug:":      "🐛",
	":fire:":     "🔥",
	":+1:":       "👍",
	":-1:":       "👎",
	":sparkles:": "✨",
	":lock:":     "🔒",
}

var shortcodePattern = regexp.MustCompile(`:[a-zA-Z0-9_+-]+:`)

func expandEmoji(s string) string {
	return shortcodePattern.ReplaceAllStringFunc(s, func(code string) string {
		if expanded, ok := emojiShortcodes[code]; ok {
			return expanded
		}
		return code
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func buildPayload(sourceName string, kind relmodel.EventKind, release relmodel.Release) payload {
	verb := "New release"
	if kind == relmodel.EventRepublish {
		verb = "Republished release"
	}
	message := fmt.Sprintf("%s: %s %s", verb, sourceName, release.Version)

	color := colorStable
	if release.IsPrerelease {
		color = colorPrerelease
	}

	channel := release.ChannelName
	if channel == "" {
		channel = "stable"
		if release.IsPrerelease {
			channel = "prerelease"
		}
	}

	return payload{
		Event:   kind,
		Tracker: sourceName,
		Version: release.Version,
		Content: message,
		Text:    message,
		Embeds: []embed{{
			Title:       fmt.Sprintf("%s %s", sourceName, release.Version),
			Description: expandEmoji(truncate(release.Body, maxDescriptionLength)),
			URL:         release.URL,
			Color:       color,
			Fields: []embedField{
				{Name: "tag", Value: release.Tag, Inline: true},
				{Name: "channel", Value: channel, Inline: true},
				{Name: "published_at", Value: release.PublishedAt.UTC().Format(time.RFC3339), Inline: true},
			},
			Footer:    embedFooter{Text: strings.TrimSpace(verb + " via " + sourceName)},
			Timestamp: release.PublishedAt.UTC().Format(time.RFC3339),
		}},
	}
}

// Dispatch fans an event out to every notifier subscribed to kind. Failures
// are logged and swallowed per-notifier; one notifier's outage never
// prevents delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, sourceName string, kind relmodel.EventKind, release relmodel.Release) {
	notifiers, err := d.store.ListNotifiers(ctx)
	if err != nil {
		if d.log != nil {
			d.log.Error("listing notifiers for dispatch", zap.Error(err))
		}
		return
	}

	body, err := json.Marshal(buildPayload(sourceName, kind, release))
	if err != nil {
		if d.log != nil {
			d.log.Error("encoding notification payload", zap.Error(err))
		}
		return
	}

	for _, n := range notifiers {
		if !n.Enabled || !n.Subscribes(kind) {
			continue
		}
		if err := d.deliver(ctx, n, body); err != nil && d.log != nil {
			d.log.Warn("notification delivery failed", zap.String("notifier", n.Name), zap.Error(err))
		}
	}
}

// DispatchTo sends a single payload directly to n, bypassing the
// enabled/subscription checks Dispatch applies during normal fan-out. Used
// by the "send test notification" admin action.
func (d *Dispatcher) DispatchTo(ctx context.Context, n relmodel.Notifier, sourceName string, kind relmodel.EventKind, release relmodel.Release) error {
	body, err := json.Marshal(buildPayload(sourceName, kind, release))
	if err != nil {
		return err
	}
	return d.deliver(ctx, n, body)
}

// deliver sends body to n.URL with the retry policy: up to maxAttempts
// tries total. A 429 waits per Retry-After (header first, then a JSON
// `retry_after` body field) and resends the identical request without
// re-marshaling; any other HTTP status is terminal. A transport/network
// error retries with exponential backoff (1s, 2s, 4s).
func (d *Dispatcher) deliver(ctx context.Context, n relmodel.Notifier, body []byte) error {
	var totalWait time.Duration
	backoff := 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			if attempt == maxAttempts {
				return err
			}
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			continue
		}

		status := resp.StatusCode
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if status == http.StatusTooManyRequests {
			if attempt == maxAttempts {
				return errTooManyRetries(n.URL)
			}
			wait := retryAfterDuration(resp.Header.Get("Retry-After"), respBody) + rateLimitMargin
			if totalWait+wait > maxTotalWait {
				wait = maxTotalWait - totalWait
			}
			if wait <= 0 {
				return errTooManyRetries(n.URL)
			}
			totalWait += wait
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		if status >= 200 && status < 300 {
			return nil
		}
		return httpStatusError(n.URL, status)
	}
	return errTooManyRetries(n.URL)
}

// retryAfterDuration parses the 429 backoff hint: the Retry-After header as
// float seconds first, else a JSON `retry_after` field in the body, else
// the default. A retry_after value over 60 is assumed to be milliseconds
// rather than seconds, matching upstreams that don't follow RFC 7231.
func retryAfterDuration(header string, body []byte) time.Duration {
	if header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}

	var parsed struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		v := parsed.RetryAfter
		if v > 60 {
			v = v / 1000
		}
		return time.Duration(v * float64(time.Second))
	}

	return defaultRetryAfter
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
