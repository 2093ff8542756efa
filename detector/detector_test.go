package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brightgate/relwatch/relmodel"
)

func TestDecide_NewRelease(t *testing.T) {
	v := Decide(nil, relmodel.Draft{Tag: "v1.0.0"})
	assert.Equal(t, relmodel.VerdictNew, v.Kind)
}

func TestDecide_RepublishWhenBothSHAsPresentAndDiffer(t *testing.T) {
	existing := &relmodel.Release{CommitSHA: "aaa", PublishedAt: fixedTime()}
	v := Decide(existing, relmodel.Draft{CommitSHA: "bbb", PublishedAt: fixedTime()})
	assert.Equal(t, relmodel.VerdictRepublish, v.Kind)
	assert.Equal(t, "aaa", v.OldCommit)
}

func TestDecide_MetadataWhenBothSHAsPresentAndMatch(t *testing.T) {
	existing := &relmodel.Release{CommitSHA: "aaa"}
	v := Decide(existing, relmodel.Draft{CommitSHA: "aaa"})
	assert.Equal(t, relmodel.VerdictMetadata, v.Kind)
}

func TestDecide_RepublishWhenNeitherSHAPresentAndTimestampChanges(t *testing.T) {
	existing := &relmodel.Release{PublishedAt: fixedTime()}
	v := Decide(existing, relmodel.Draft{PublishedAt: fixedTime().Add(time.Hour)})
	assert.Equal(t, relmodel.VerdictRepublish, v.Kind)
}

func TestDecide_MetadataWhenNeitherSHAPresentAndTimestampUnchanged(t *testing.T) {
	existing := &relmodel.Release{PublishedAt: fixedTime()}
	v := Decide(existing, relmodel.Draft{PublishedAt: fixedTime()})
	assert.Equal(t, relmodel.VerdictMetadata, v.Kind)
}

// One-sided missing SHA is never a republish, even if the timestamp moved:
// a partial commit SHA is treated as missing data, not as a signal.
func TestDecide_OneSidedMissingSHAIsNeverRepublish(t *testing.T) {
	existing := &relmodel.Release{CommitSHA: "aaa", PublishedAt: fixedTime()}
	v := Decide(existing, relmodel.Draft{CommitSHA: "", PublishedAt: fixedTime().Add(time.Hour)})
	assert.Equal(t, relmodel.VerdictMetadata, v.Kind)

	existing2 := &relmodel.Release{CommitSHA: "", PublishedAt: fixedTime()}
	v2 := Decide(existing2, relmodel.Draft{CommitSHA: "bbb", PublishedAt: fixedTime().Add(time.Hour)})
	assert.Equal(t, relmodel.VerdictMetadata, v2.Kind)
}

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}
