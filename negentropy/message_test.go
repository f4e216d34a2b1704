package negentropy

import (
	"strings"
	"testing"

	"github.com/asmogo/nostrpool/nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(suffix string) nostr.EventID {
	parsed, err := nostr.ParseEventID(strings.Repeat("0", 64-len(suffix)) + suffix)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestFingerprintEncoderEncodeBuckets(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: id("3"), Timestamp: 3},
		{ID: id("1"), Timestamp: 1},
		{ID: id("2"), Timestamp: 2},
	}

	enc := NewFingerprintEncoder(2)
	msg := enc.Encode(items)

	require.Len(t, msg.Ranges, 2)
	assert.Equal(t, nostr.Timestamp(2), msg.Ranges[0].Upper)
	assert.Equal(t, nostr.Timestamp(3), msg.Ranges[1].Upper)
	assert.NotNil(t, msg.Ranges[0].Fingerprint)
	assert.NotNil(t, msg.Ranges[1].Fingerprint)
}

func TestFingerprintEncoderDefaultBucketSize(t *testing.T) {
	t.Parallel()

	enc := NewFingerprintEncoder(0)
	assert.Equal(t, BatchSizeDown, enc.BucketSize)
}

func TestFingerprintEncoderEncodeIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := []Item{{ID: id("1"), Timestamp: 1}, {ID: id("2"), Timestamp: 2}}
	b := []Item{{ID: id("2"), Timestamp: 2}, {ID: id("1"), Timestamp: 1}}

	enc := NewFingerprintEncoder(10)
	assert.Equal(t, enc.Encode(a), enc.Encode(b))
}

func TestFingerprintEncoderDiffMatchingSetsHaveNoDiff(t *testing.T) {
	t.Parallel()

	items := []Item{{ID: id("1"), Timestamp: 1}, {ID: id("2"), Timestamp: 2}}
	enc := NewFingerprintEncoder(10)

	local := enc.Encode(items)
	remote := enc.Encode(items)

	have, need := enc.Diff(local, remote, items)
	assert.Empty(t, have)
	assert.Empty(t, need)
}

func TestFingerprintEncoderDiffSurfacesLiteralIDRanges(t *testing.T) {
	t.Parallel()

	enc := NewFingerprintEncoder(10)

	localOnly := id("aa")
	remoteOnly := id("bb")

	local := Message{Ranges: []Range{{Upper: 1, IDs: []nostr.EventID{localOnly}}}}
	remote := Message{Ranges: []Range{{Upper: 2, IDs: []nostr.EventID{remoteOnly}}}}

	have, need := enc.Diff(local, remote, nil)
	assert.Equal(t, []nostr.EventID{localOnly}, have)
	assert.Equal(t, []nostr.EventID{remoteOnly}, need)
}

func TestFingerprintEncoderDiffMismatchedFingerprintsAtSameBoundary(t *testing.T) {
	t.Parallel()

	enc := NewFingerprintEncoder(10)

	fp1 := Fingerprint{1}
	fp2 := Fingerprint{2}

	local := Message{Ranges: []Range{{Upper: 5, Fingerprint: &fp1}}}
	remote := Message{Ranges: []Range{{Upper: 5, Fingerprint: &fp2, IDs: []nostr.EventID{id("cc")}}}}

	have, need := enc.Diff(local, remote, nil)
	assert.Empty(t, have)
	assert.Equal(t, []nostr.EventID{id("cc")}, need)
}
