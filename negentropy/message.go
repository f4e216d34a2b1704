package negentropy

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/asmogo/nostrpool/nostr"
)

// Item is one entry in a reconciliation set: an event identified by
// its id and ordered by its creation time, the two fields negentropy
// ranges are built over.
type Item struct {
	ID        nostr.EventID
	Timestamp nostr.Timestamp
}

// Fingerprint summarizes a contiguous range of Items so two peers can
// compare ranges without exchanging every id in them.
type Fingerprint [32]byte

// Range is one bucket of a reconciliation message: either a
// Fingerprint standing in for every Item between the previous
// boundary and Upper, or the literal IDs when a mismatch has been
// narrowed down far enough to be worth listing directly.
type Range struct {
	Upper       nostr.Timestamp
	Fingerprint *Fingerprint
	IDs         []nostr.EventID
}

// Message is what one side of a reconciliation sends the other: an
// ordered list of Ranges covering the full timestamp space.
type Message struct {
	Ranges []Range
}

// RangeEncoder turns a sorted Item set into a Message and back. It is
// an interface rather than a concrete algorithm so the accurate
// varint/frame-bucket encoding NIP-77 specifies can be dropped in
// later without touching Session's reconciliation loop.
type RangeEncoder interface {
	Encode(items []Item) Message
	// Diff compares a locally computed Message for the same range
	// against one received from a peer, returning the IDs each side
	// has that the other doesn't appear to.
	Diff(local, remote Message, localItems []Item) (haveNotTheirs, needNotOurs []nostr.EventID)
}

// FingerprintEncoder is the default RangeEncoder: it buckets items
// into fixed-size chunks and fingerprints every chunk, the final one
// included, with SHA-256 over its sorted timestamps and ids. Encode
// never fills Range.IDs, so Diff only reports ids carried by ranges
// that list them literally.
type FingerprintEncoder struct {
	BucketSize int
}

// NewFingerprintEncoder returns a FingerprintEncoder with the given
// bucket size; bucketSize <= 0 defaults to BatchSizeDown.
func NewFingerprintEncoder(bucketSize int) FingerprintEncoder {
	if bucketSize <= 0 {
		bucketSize = BatchSizeDown
	}
	return FingerprintEncoder{BucketSize: bucketSize}
}

func (e FingerprintEncoder) Encode(items []Item) Message {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	var ranges []Range
	for start := 0; start < len(sorted); start += e.BucketSize {
		end := start + e.BucketSize
		if end > len(sorted) {
			end = len(sorted)
		}
		bucket := sorted[start:end]
		fp := fingerprintOf(bucket)
		ranges = append(ranges, Range{
			Upper:       bucket[len(bucket)-1].Timestamp,
			Fingerprint: &fp,
		})
	}
	return Message{Ranges: ranges}
}

func fingerprintOf(items []Item) Fingerprint {
	h := sha256.New()
	var buf [8]byte
	for _, it := range items {
		binary.BigEndian.PutUint64(buf[:], uint64(it.Timestamp))
		h.Write(buf[:])
		h.Write(it.ID[:])
	}
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

func (e FingerprintEncoder) Diff(local, remote Message, localItems []Item) (haveNotTheirs, needNotOurs []nostr.EventID) {
	localByUpper := make(map[nostr.Timestamp]Range, len(local.Ranges))
	for _, r := range local.Ranges {
		localByUpper[r.Upper] = r
	}
	remoteUppers := make(map[nostr.Timestamp]bool, len(remote.Ranges))

	for _, rr := range remote.Ranges {
		remoteUppers[rr.Upper] = true
		lr, ok := localByUpper[rr.Upper]
		if !ok {
			// We have no bucket aligned with this boundary: everything
			// in it is something we might be missing.
			needNotOurs = append(needNotOurs, rr.IDs...)
			continue
		}
		if lr.Fingerprint != nil && rr.Fingerprint != nil && *lr.Fingerprint == *rr.Fingerprint {
			continue // bucket contents agree, nothing to reconcile
		}
		needNotOurs = append(needNotOurs, rr.IDs...)
	}

	for _, lr := range local.Ranges {
		if !remoteUppers[lr.Upper] {
			haveNotTheirs = append(haveNotTheirs, lr.IDs...)
		}
	}
	return haveNotTheirs, needNotOurs
}
