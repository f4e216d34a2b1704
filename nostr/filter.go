package nostr

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

// TagMap holds a filter's dynamic "#<letter>" constraints, keyed by
// the bare letter (no leading "#"). A "#p" filter match requires the
// event to carry a "p" tag whose value is one of the listed strings.
type TagMap map[string][]string

// Filter selects events a relay should return or notify on. A nil or
// empty slice/map field means "no constraint on this dimension"; all
// present fields are ANDed together, and within a field, OR'd.
type Filter struct {
	IDs     []EventID
	Authors []PublicKey
	Kinds   []Kind
	Tags    TagMap
	Since   *Timestamp
	Until   *Timestamp
	Limit   *int
	Search  string
}

// filterWire is the JSON shape of Filter sans its dynamic "#X" keys,
// which are spliced in and out by MarshalJSON/UnmarshalJSON.
type filterWire struct {
	IDs     []EventID   `json:"ids,omitempty"`
	Authors []PublicKey `json:"authors,omitempty"`
	Kinds   []Kind      `json:"kinds,omitempty"`
	Since   *Timestamp  `json:"since,omitempty"`
	Until   *Timestamp  `json:"until,omitempty"`
	Limit   *int        `json:"limit,omitempty"`
	Search  string      `json:"search,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(filterWire{
		IDs:     f.IDs,
		Authors: f.Authors,
		Kinds:   f.Kinds,
		Since:   f.Since,
		Until:   f.Until,
		Limit:   f.Limit,
		Search:  f.Search,
	})
	if err != nil {
		return nil, err
	}
	if len(f.Tags) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for letter, values := range f.Tags {
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		merged["#"+letter] = raw
	}
	return json.Marshal(merged)
}

func (f *Filter) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var wire filterWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	f.IDs = wire.IDs
	f.Authors = wire.Authors
	f.Kinds = wire.Kinds
	f.Since = wire.Since
	f.Until = wire.Until
	f.Limit = wire.Limit
	f.Search = wire.Search

	for key, val := range raw {
		if len(key) < 2 || key[0] != '#' {
			continue
		}
		letter := key[1:]
		if len(letter) != 1 {
			continue
		}
		var values []string
		if err := json.Unmarshal(val, &values); err != nil {
			return fmt.Errorf("invalid %q filter values: %w", key, err)
		}
		if f.Tags == nil {
			f.Tags = TagMap{}
		}
		f.Tags[letter] = values
	}
	return nil
}

// GenericTagValue coerces a single tag value string according to the
// single-letter tag it is being matched against, so that filter
// matching compares decoded identifiers rather than raw hex strings.
// Lowercase "e" and "p" carry references that are always EventID and
// PublicKey respectively; uppercase "P" is also a PublicKey; every
// other letter is left as an opaque string.
type GenericTagValue struct {
	EventID   *EventID
	PublicKey *PublicKey
	String    string
}

// NewGenericTagValue decodes raw under the coercion rule for letter.
func NewGenericTagValue(letter byte, raw string) GenericTagValue {
	switch letter {
	case 'e':
		if id, err := ParseEventID(raw); err == nil {
			return GenericTagValue{EventID: &id}
		}
	case 'p', 'P':
		if pk, err := ParsePublicKey(raw); err == nil {
			return GenericTagValue{PublicKey: &pk}
		}
	}
	return GenericTagValue{String: raw}
}

// Equal reports whether v and other denote the same logical value,
// comparing by decoded identifier when both coerced the same way and
// falling back to raw string comparison otherwise.
func (v GenericTagValue) Equal(other GenericTagValue) bool {
	switch {
	case v.EventID != nil && other.EventID != nil:
		return *v.EventID == *other.EventID
	case v.PublicKey != nil && other.PublicKey != nil:
		return *v.PublicKey == *other.PublicKey
	default:
		return v.String == other.String
	}
}

// Matches reports whether evt satisfies every constraint in f.
func (f Filter) Matches(evt *Event) bool {
	if len(f.IDs) > 0 && !containsID(f.IDs, evt.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsPubKey(f.Authors, evt.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, evt.Kind) {
		return false
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	for letter, wanted := range f.Tags {
		if !tagMatches(evt.Tags, letter, wanted) {
			return false
		}
	}
	return true
}

func tagMatches(tags Tags, letter string, wanted []string) bool {
	if len(letter) != 1 {
		return false
	}
	for _, t := range tags {
		if t.Key() != letter || len(t) < 2 {
			continue
		}
		for _, w := range wanted {
			wantedVal := NewGenericTagValue(letter[0], w)
			gotVal := NewGenericTagValue(letter[0], t[1])
			if wantedVal.Equal(gotVal) {
				return true
			}
		}
	}
	return false
}

func containsID(ids []EventID, id EventID) bool {
	return lo.Contains(ids, id)
}

func containsPubKey(pks []PublicKey, pk PublicKey) bool {
	return lo.Contains(pks, pk)
}

func containsKind(kinds []Kind, k Kind) bool {
	return lo.Contains(kinds, k)
}
