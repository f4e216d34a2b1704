package nostr

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate addresses a replaceable or parameterized-replaceable
// event by (kind, pubkey, identifier) rather than by EventID, so a
// reference survives the event being replaced. Relays is an optional
// set of hint URLs carried alongside the coordinate in "a" tags.
type Coordinate struct {
	Kind       Kind
	PubKey     PublicKey
	Identifier string
	Relays     []string
}

// ParseCoordinate parses the "kind:pubkey:identifier" form used as the
// value of an "a" tag. Identifier may be empty (for kind 0/3) but the
// two separating colons must be present.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: expected kind:pubkey:identifier", s)
	}
	kindNum, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid coordinate kind %q: %w", parts[0], err)
	}
	pk, err := ParsePublicKey(parts[1])
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid coordinate pubkey: %w", err)
	}
	return Coordinate{Kind: Kind(kindNum), PubKey: pk, Identifier: parts[2]}, nil
}

// String renders the "kind:pubkey:identifier" wire form.
func (c Coordinate) String() string {
	return fmt.Sprintf("%d:%s:%s", c.Kind, c.PubKey, c.Identifier)
}

// Tag renders c as an "a" tag, appending the first relay hint when
// Relays is non-empty; any further relays are not included.
func (c Coordinate) Tag() Tag {
	t := Tag{string(TagCoordinate), c.String()}
	if len(c.Relays) > 0 {
		t = append(t, c.Relays[0])
	}
	return t
}

// Filter builds a Filter selecting exactly the event(s) this
// coordinate addresses: matching kind and author, narrowed by a "#d"
// tag when Identifier is non-empty.
func (c Coordinate) Filter() Filter {
	f := Filter{
		Kinds:   []Kind{c.Kind},
		Authors: []PublicKey{c.PubKey},
	}
	if c.Identifier != "" {
		f.Tags = TagMap{"d": {c.Identifier}}
	}
	return f
}

// FromEvent derives the Coordinate addressing evt, which must be of a
// replaceable or parameterized-replaceable kind.
func FromEvent(evt *Event) Coordinate {
	return Coordinate{
		Kind:       evt.Kind,
		PubKey:     evt.PubKey,
		Identifier: evt.Tags.GetD(),
	}
}
