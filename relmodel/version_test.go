package relmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveVersion_StripsLeadingV(t *testing.T) {
	assert.Equal(t, "1.2.3", DeriveVersion("v1.2.3"))
	assert.Equal(t, "1.2.3", DeriveVersion("V1.2.3"))
	assert.Equal(t, "1.2.3", DeriveVersion("1.2.3"))
	assert.Equal(t, "v", DeriveVersion("v"))
}

func TestLooksLikePrerelease_MatchesKeywordsCaseInsensitively(t *testing.T) {
	assert.True(t, LooksLikePrerelease("1.2.3-BETA.1"))
	assert.True(t, LooksLikePrerelease("2.0.0-rc1"))
	assert.True(t, LooksLikePrerelease("3.0.0-snapshot"))
	assert.False(t, LooksLikePrerelease("1.2.3"))
}

func TestParsePrerelease_UsesSemverWhenItParses(t *testing.T) {
	assert.True(t, ParsePrerelease("v1.2.3-beta.1"))
	assert.False(t, ParsePrerelease("v1.2.3"))
}

func TestParsePrerelease_FallsBackToKeywordHeuristicOnUnparsableTag(t *testing.T) {
	assert.True(t, ParsePrerelease("release-2024-dev-build"))
}
