// Package detector implements the republish decision: given the previously
// saved release (if any) for a (source, tag) pair and a freshly fetched
// draft, decide whether this is a brand new release, a republish of an
// existing one, or merely a metadata refresh that doesn't warrant a
// notification.
package detector

import (
	"time"

	"github.com/brightgate/relwatch/relmodel"
)

// Decide classifies a draft against the existing release row for the same
// (source, tag), or nil if there is none.
//
// Republish detection rule (deliberately chosen over the alternative where
// a one-sided-missing commit SHA still falls back to a timestamp
// comparison): if BOTH the old and new commit SHAs are present, a mismatch
// is a republish. If NEITHER is present, a changed published_at is treated
// as a republish. If exactly ONE side has a commit SHA, that is never
// treated as a republish — there isn't enough information to be confident,
// so it's recorded as a metadata update only.
func Decide(existing *relmodel.Release, d relmodel.Draft) relmodel.Verdict {
	if existing == nil {
		return relmodel.Verdict{Kind: relmodel.VerdictNew}
	}

	oldSHA, newSHA := existing.CommitSHA, d.CommitSHA
	switch {
	case oldSHA != "" && newSHA != "":
		if oldSHA != newSHA {
			return relmodel.Verdict{Kind: relmodel.VerdictRepublish, OldCommit: oldSHA}
		}
	case oldSHA == "" && newSHA == "":
		if !samePublishedAt(existing.PublishedAt, d.PublishedAt) {
			return relmodel.Verdict{Kind: relmodel.VerdictRepublish, OldCommit: oldSHA}
		}
	}
	return relmodel.Verdict{Kind: relmodel.VerdictMetadata}
}

func samePublishedAt(a, b time.Time) bool {
	return a.Equal(b)
}
