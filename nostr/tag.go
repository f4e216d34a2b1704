package nostr

import "strings"

// Tag is a non-empty ordered sequence of strings exactly as it appears
// on the wire. The leading element names the variant; the rest are
// variant-specific.
type Tag []string

// Key returns the leading element, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the second element (the most common "payload" slot),
// or "" if absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Clone returns an independent copy of t.
func (t Tag) Clone() Tag {
	c := make(Tag, len(t))
	copy(c, t)
	return c
}

// TagVariant names the recognized tag variants from NIP-01/NIP-12 and
// friends. Generic covers every leading token this package doesn't
// special-case, which keeps unknown future tags round-trippable.
type TagVariant string

const (
	TagEventRef   TagVariant = "e"
	TagPubKeyRef  TagVariant = "p"
	TagCoordinate TagVariant = "a"
	TagIdentifier TagVariant = "d"
	TagHashtag    TagVariant = "t"
	TagReference  TagVariant = "r"
	TagNonce      TagVariant = "nonce"
	TagDelegation TagVariant = "delegation"
	TagAmount     TagVariant = "amount"
	TagLnurl      TagVariant = "lnurl"
	TagRelays     TagVariant = "relays"
	TagGeneric    TagVariant = ""
)

// ParsedTag is a tagged-union view over a Tag, exposing the variant
// alongside convenient typed accessors. It never errors: malformed or
// unrecognized payloads simply surface as strings via Raw.
type ParsedTag struct {
	Variant TagVariant
	Raw     Tag
}

// Parse classifies t into its ParsedTag variant.
func (t Tag) Parse() ParsedTag {
	switch t.Key() {
	case string(TagEventRef), string(TagPubKeyRef), string(TagCoordinate),
		string(TagIdentifier), string(TagHashtag), string(TagReference),
		string(TagNonce), string(TagDelegation), string(TagAmount),
		string(TagLnurl), string(TagRelays):
		return ParsedTag{Variant: TagVariant(t.Key()), Raw: t}
	default:
		return ParsedTag{Variant: TagGeneric, Raw: t}
	}
}

// EventID returns the referenced event id for an "e" tag.
func (p ParsedTag) EventID() (EventID, error) { return ParseEventID(p.Raw.Value()) }

// PubKey returns the referenced pubkey for a "p" tag.
func (p ParsedTag) PubKey() (PublicKey, error) { return ParsePublicKey(p.Raw.Value()) }

// Identifier returns the "d" tag's identifier value.
func (p ParsedTag) Identifier() string { return p.Raw.Value() }

// Tags is an ordered collection of Tag.
type Tags []Tag

// Clone returns a deep copy of ts.
func (ts Tags) Clone() Tags {
	c := make(Tags, len(ts))
	for i, t := range ts {
		c[i] = t.Clone()
	}
	return c
}

// GetFirst returns the first tag whose key equals name, and whether
// one was found.
func (ts Tags) GetFirst(name string) (Tag, bool) {
	for _, t := range ts {
		if t.Key() == name {
			return t, true
		}
	}
	return nil, false
}

// GetD returns the value of the first "d" tag, or "" if absent.
func (ts Tags) GetD() string {
	if t, ok := ts.GetFirst(string(TagIdentifier)); ok {
		return t.Value()
	}
	return ""
}

// ContainsAny reports whether any tag has key == name and one of its
// remaining elements equal to one of values.
func (ts Tags) ContainsAny(name string, values []string) bool {
	for _, t := range ts {
		if t.Key() != name || len(t) < 2 {
			continue
		}
		for _, v := range t[1:] {
			for _, want := range values {
				if v == want {
					return true
				}
			}
		}
	}
	return false
}

// String renders the tags as a human-readable debugging aid.
func (ts Tags) String() string {
	var sb strings.Builder
	for i, t := range ts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('[')
		sb.WriteString(strings.Join(t, ","))
		sb.WriteByte(']')
	}
	return sb.String()
}

// SingleLetterTag is a single ASCII letter (A-Z, a-z), the element
// that identifies a filter's dynamic "#X" key. Equality is case
// sensitive: 'p' and 'P' are distinct tags.
type SingleLetterTag struct {
	Letter byte
}

// ParseSingleLetterTag validates that c is a single ASCII letter and
// returns its SingleLetterTag.
func ParseSingleLetterTag(c byte) (SingleLetterTag, bool) {
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return SingleLetterTag{Letter: c}, true
	}
	return SingleLetterTag{}, false
}

// String returns the single character, e.g. "p" or "P".
func (s SingleLetterTag) String() string { return string(s.Letter) }

// Key returns the filter JSON key form, e.g. "#p".
func (s SingleLetterTag) Key() string { return "#" + string(s.Letter) }
