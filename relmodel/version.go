package relmodel

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// legacyPrereleaseKeywords is the fallback keyword list used when a source
// has no channel configured: a tag is treated as a prerelease if its
// derived version contains any of these, case-insensitively, as a
// substring.
var legacyPrereleaseKeywords = []string{"alpha", "beta", "rc", "pre", "dev", "snapshot"}

// DeriveVersion strips a single leading 'v' from a tag, matching the
// display convention used across all three adapters.
func DeriveVersion(tag string) string {
	if len(tag) > 1 && (tag[0] == 'v' || tag[0] == 'V') {
		return tag[1:]
	}
	return tag
}

// LooksLikePrerelease applies the legacy keyword fallback against a derived
// version string. Used when a source has no channel list to consult.
func LooksLikePrerelease(version string) bool {
	lower := strings.ToLower(version)
	for _, kw := range legacyPrereleaseKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ParsePrerelease uses hashicorp/go-version to decide whether a tag is a
// semver prerelease, falling back to the legacy keyword heuristic when the
// tag does not parse as a version at all (e.g. chart versions with build
// metadata a strict parser rejects).
func ParsePrerelease(tag string) bool {
	v, err := goversion.NewVersion(tag)
	if err != nil {
		return LooksLikePrerelease(DeriveVersion(tag))
	}
	return v.Prerelease() != ""
}
