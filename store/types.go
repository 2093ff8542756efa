package store

import "time"

// User is an operator account, local or SSO-linked.
type User struct {
	ID            string    `db:"id"`
	Username      string    `db:"username"`
	Email         string    `db:"email"`
	PasswordHash  string    `db:"password_hash"`
	IsAdmin       bool      `db:"is_admin"`
	OAuthProvider string    `db:"oauth_provider"`
	OAuthSub      string    `db:"oauth_sub"`
	AvatarURL     string    `db:"avatar_url"`
	CreatedAt     time.Time `db:"created_at"`
}

// Session backs instant-revocation bearer auth: a live row keyed by the
// sha256 of the issued access token must exist for the token to be honored.
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// OAuthProvider is a configured generic-OIDC identity provider.
type OAuthProvider struct {
	Slug                  string `db:"slug"`
	DisplayName           string `db:"display_name"`
	IssuerURL             string `db:"issuer_url"`
	ClientID              string `db:"client_id"`
	ClientSecretEncrypted string `db:"client_secret_encrypted"`
	Enabled               bool   `db:"enabled"`
}

// OAuthState is a short-lived CSRF/nonce token for the authorize->callback
// round trip.
type OAuthState struct {
	State        string    `db:"state"`
	ProviderSlug string    `db:"provider_slug"`
	Nonce        string    `db:"nonce"`
	RedirectURI  string    `db:"redirect_uri"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Stats is the dashboard summary computed by ReleaseStore.Stats.
type Stats struct {
	TotalTrackers    int                    `json:"total_trackers"`
	TotalReleases    int                    `json:"total_releases"`
	RecentReleases   int                    `json:"recent_releases"`
	LatestPublished  *time.Time             `json:"latest_published,omitempty"`
	DailyByChannel   []DailyChannelCount    `json:"daily_by_channel"`
	ChannelTotals    map[string]int         `json:"channel_totals"`
	PrereleaseTotal  int                    `json:"prerelease_total"`
	StableTotal      int                    `json:"stable_total"`
}

// DailyChannelCount is one (day, channel) bucket in the 7-day breakdown.
type DailyChannelCount struct {
	Day     string `json:"day"`
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}
