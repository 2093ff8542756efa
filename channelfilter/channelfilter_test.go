package channelfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightgate/relwatch/relmodel"
)

func TestClassify_NoChannelsFallsBackToLegacyKeywords(t *testing.T) {
	name, included := Classify(nil, relmodel.Draft{Version: "2.0.0-beta.1"}, nil)
	assert.True(t, included)
	assert.Equal(t, "prerelease", name)

	name, included = Classify(nil, relmodel.Draft{Version: "2.0.0"}, nil)
	assert.True(t, included)
	assert.Equal(t, "stable", name)
}

func TestClassify_TypePredicate(t *testing.T) {
	channels := []relmodel.Channel{
		{Name: "stable", Type: relmodel.ChannelTypeRelease, Enabled: true},
	}
	_, included := Classify(channels, relmodel.Draft{Version: "1.0.0", IsPrerelease: true}, nil)
	assert.False(t, included)

	name, included := Classify(channels, relmodel.Draft{Version: "1.0.0", IsPrerelease: false}, nil)
	assert.True(t, included)
	assert.Equal(t, "stable", name)
}

func TestClassify_IncludeThenExcludePattern(t *testing.T) {
	channels := []relmodel.Channel{
		{Name: "lts", IncludePattern: `^v\d+\.0\.`, ExcludePattern: `-rc`, Enabled: true},
	}
	name, included := Classify(channels, relmodel.Draft{Tag: "v3.0.1", Version: "3.0.1"}, nil)
	assert.True(t, included)
	assert.Equal(t, "lts", name)

	_, included = Classify(channels, relmodel.Draft{Tag: "v3.1.0", Version: "3.1.0"}, nil)
	assert.False(t, included)

	_, included = Classify(channels, relmodel.Draft{Tag: "v3.0.1-rc", Version: "3.0.1-rc"}, nil)
	assert.False(t, included, "exclude pattern must win over include")
}

func TestClassify_MatchesAgainstTagNotVersion(t *testing.T) {
	channels := []relmodel.Channel{
		{Name: "prefixed", IncludePattern: `^release-`, Enabled: true},
	}
	// This draft's Version omits the "release-" prefix; only the raw tag
	// carries it, so a match here proves the pattern runs against Tag
	// rather than Version.
	name, included := Classify(channels, relmodel.Draft{Tag: "release-1.2.3", Version: "1.2.3"}, nil)
	assert.True(t, included)
	assert.Equal(t, "prefixed", name)

	_, included = Classify(channels, relmodel.Draft{Tag: "1.2.3", Version: "1.2.3"}, nil)
	assert.False(t, included, "the include pattern must not match against Version")
}

func TestClassify_MalformedPatternTreatedAsNoConstraint(t *testing.T) {
	channels := []relmodel.Channel{
		{Name: "broken", IncludePattern: "(unterminated", Enabled: true},
	}
	name, included := Classify(channels, relmodel.Draft{Tag: "v1.0.0", Version: "1.0.0"}, nil)
	assert.True(t, included)
	assert.Equal(t, "broken", name)
}

func TestClassify_DisabledChannelNeverMatches(t *testing.T) {
	channels := []relmodel.Channel{
		{Name: "off", Enabled: false},
	}
	_, included := Classify(channels, relmodel.Draft{Version: "1.0.0"}, nil)
	assert.False(t, included)
}
