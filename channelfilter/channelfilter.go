// Package channelfilter decides which configured channel (if any) a draft
// release belongs to, mirroring the original tracker's
// should_include_in_channel predicate order: type, then include pattern,
// then exclude pattern (exclude always wins). A malformed regex is logged
// and treated as "no constraint" rather than rejecting the channel.
package channelfilter

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/brightgate/relwatch/relmodel"
)

// Classify returns the name of the first configured, enabled channel that
// the draft matches. If no channel matches and none are configured at all,
// it falls back to the legacy two-bucket classification (prerelease vs
// stable) driven by the keyword heuristic.
func Classify(channels []relmodel.Channel, d relmodel.Draft, log *zap.Logger) (channelName string, included bool) {
	if len(channels) == 0 {
		return legacyChannel(d), true
	}

	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if matches(ch, d, log) {
			return ch.Name, true
		}
	}
	return "", false
}

func matches(ch relmodel.Channel, d relmodel.Draft, log *zap.Logger) bool {
	switch ch.Type {
	case relmodel.ChannelTypeRelease:
		if d.IsPrerelease {
			return false
		}
	case relmodel.ChannelTypePrerelease:
		if !d.IsPrerelease {
			return false
		}
	}

	if ch.IncludePattern != "" {
		re, err := regexp.Compile(ch.IncludePattern)
		if err != nil {
			logBadPattern(log, ch.Name, "include", ch.IncludePattern, err)
		} else if !re.MatchString(d.Tag) {
			return false
		}
	}

	if ch.ExcludePattern != "" {
		re, err := regexp.Compile(ch.ExcludePattern)
		if err != nil {
			logBadPattern(log, ch.Name, "exclude", ch.ExcludePattern, err)
		} else if re.MatchString(d.Tag) {
			return false
		}
	}

	return true
}

func legacyChannel(d relmodel.Draft) string {
	if d.IsPrerelease || relmodel.LooksLikePrerelease(d.Version) {
		return "prerelease"
	}
	return "stable"
}

func logBadPattern(log *zap.Logger, channel, kind, pattern string, err error) {
	if log == nil {
		return
	}
	log.Warn("malformed channel pattern, treating as no constraint",
		zap.String("channel", channel), zap.String("kind", kind),
		zap.String("pattern", pattern), zap.Error(err))
}
