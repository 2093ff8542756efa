// Package relmodel defines the closed set of domain types shared across the
// polling pipeline: source configuration, channel rules, release drafts and
// the persisted release shapes. Keeping them here (rather than letting each
// package define its own view) is what lets the adapters, channel filter,
// store and notifier agree on a single vocabulary.
package relmodel

import "time"

// SourceKind is the closed set of upstreams this service knows how to poll.
type SourceKind string

// The three supported source kinds. There is deliberately no "unknown"
// variant: an invalid kind is a config error, not a runtime state.
const (
	SourceKindForgeA     SourceKind = "forge-a"
	SourceKindForgeB     SourceKind = "forge-b"
	SourceKindChartIndex SourceKind = "chart-index"
)

// ChannelType constrains a Channel's platform-type predicate.
type ChannelType string

const (
	ChannelTypeRelease    ChannelType = "release"
	ChannelTypePrerelease ChannelType = "prerelease"
	ChannelTypeAny        ChannelType = ""
)

// Channel is a named classification rule embedded in a Source.
type Channel struct {
	Name            string      `json:"name" db:"name"`
	Type            ChannelType `json:"type,omitempty" db:"type"`
	IncludePattern  string      `json:"include_pattern,omitempty" db:"include_pattern"`
	ExcludePattern  string      `json:"exclude_pattern,omitempty" db:"exclude_pattern"`
	Enabled         bool        `json:"enabled" db:"enabled"`
}

// Locator carries the kind-specific addressing fields for a Source. Only
// the fields relevant to Kind are ever populated; this is the typed
// replacement for the loosely-keyed config blob the original carried.
type Locator struct {
	// forge-a
	Repo string `json:"repo,omitempty"`

	// forge-b
	Project  string `json:"project,omitempty"`
	Instance string `json:"instance,omitempty"`

	// chart-index
	IndexRepo string `json:"index_repo,omitempty"`
	Chart     string `json:"chart,omitempty"`
}

// Source is a poll target as configured by an operator.
type Source struct {
	Name            string     `json:"name" db:"name"`
	Kind            SourceKind `json:"kind" db:"kind"`
	Locator         Locator    `json:"locator"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	IntervalMinutes int        `json:"interval_minutes" db:"interval_minutes"`
	CredentialName  string     `json:"credential_name,omitempty" db:"credential_name"`
	Channels        []Channel  `json:"channels"`
}

// Draft is a release as produced by an adapter, before channel tagging and
// persistence. CommitSHA and PublishedAt may legitimately be the adapter's
// only handle on identity/recency; both are optional.
type Draft struct {
	Name         string
	Tag          string
	Version      string
	PublishedAt  time.Time
	URL          string
	IsPrerelease bool
	Body         string
	CommitSHA    string

	// ChannelName is set by the Channel Filter, not by the adapter.
	ChannelName string
}

// Release is the current (non-historical) row for a (source, tag) pair.
type Release struct {
	ID              int64     `db:"id" json:"id"`
	SourceName      string    `db:"source_name" json:"source_name"`
	Name            string    `db:"name" json:"name"`
	Tag             string    `db:"tag" json:"tag"`
	Version         string    `db:"version" json:"version"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
	URL             string    `db:"url" json:"url"`
	IsPrerelease    bool      `db:"is_prerelease" json:"is_prerelease"`
	Body            string    `db:"body" json:"body,omitempty"`
	ChannelName     string    `db:"channel_name" json:"channel_name,omitempty"`
	CommitSHA       string    `db:"commit_sha" json:"commit_sha,omitempty"`
	RepublishCount  int       `db:"republish_count" json:"republish_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	// Historical marks a row synthesized from release_history rather than
	// the current releases row; only ListReleases with IncludeHistory set.
	Historical bool `json:"historical,omitempty"`
}

// ReleaseHistory is the pre-overwrite snapshot recorded by a republish.
type ReleaseHistory struct {
	ID          int64     `db:"id" json:"id"`
	ReleaseID   int64     `db:"release_id" json:"release_id"`
	Name        string    `db:"name" json:"name"`
	CommitSHA   string    `db:"commit_sha" json:"commit_sha,omitempty"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	Body        string    `db:"body" json:"body,omitempty"`
	ChannelName string    `db:"channel_name" json:"channel_name,omitempty"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
}

// VerdictKind is the outcome of a Save.
type VerdictKind string

const (
	VerdictNew       VerdictKind = "new"
	VerdictRepublish VerdictKind = "republish"
	VerdictMetadata  VerdictKind = "metadata"
)

// Verdict is returned by a Save call and consumed by the Notifier Fan-out.
type Verdict struct {
	Kind      VerdictKind
	OldCommit string
	Release   Release
}

// EventKind is the set of notifiable events.
type EventKind string

const (
	EventNewRelease EventKind = "new-release"
	EventRepublish  EventKind = "republish"
	EventError      EventKind = "error"
)

// Notifier is a configured delivery target.
type Notifier struct {
	ID        int64       `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Kind      string      `db:"kind" json:"kind"`
	URL       string      `db:"url" json:"url"`
	Events    []EventKind `json:"events"`
	Enabled   bool        `db:"enabled" json:"enabled"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Subscribes reports whether the notifier is subscribed to kind.
func (n Notifier) Subscribes(kind EventKind) bool {
	for _, k := range n.Events {
		if k == kind {
			return true
		}
	}
	return false
}

// Credential is an upstream token referenced by name from a Source.
type Credential struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Kind        string    `db:"kind" json:"kind"`
	Token       string    `db:"token" json:"token,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Masked returns the token as first-four...last-four. Tokens of 8
// characters or fewer are masked entirely.
func (c Credential) Masked() string {
	t := c.Token
	if len(t) <= 8 {
		return "••••••••"
	}
	return t[:4] + "…" + t[len(t)-4:]
}

// SourceStatus is the mutable per-source summary rewritten after every check.
type SourceStatus struct {
	SourceName       string    `db:"source_name" json:"source_name"`
	Kind             SourceKind `db:"kind" json:"kind"`
	Enabled          bool      `db:"enabled" json:"enabled"`
	LastCheck        time.Time `db:"last_check" json:"last_check"`
	LastKnownVersion string    `db:"last_known_version" json:"last_known_version,omitempty"`
	LastError        string    `db:"last_error" json:"last_error,omitempty"`
	ChannelCount     int       `json:"channel_count"`
}
