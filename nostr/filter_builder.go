package nostr

import "github.com/samber/lo"

// NewFilter returns the empty Filter, which matches every event (see
// Matches). The With* methods below take the receiver by value and
// return it, mirroring ZapRequestData's builder style, so a Filter
// can be composed without any shared mutable state:
//
//	f := nostr.NewFilter().WithKind(0).WithKind(1).WithKinds([]nostr.Kind{4, 0, 30023})
//
// ends up with the same kind set as WithKinds([]nostr.Kind{0, 1, 4, 30023}).
func NewFilter() Filter { return Filter{} }

// WithID adds a single event id to the filter's id set.
func (f Filter) WithID(id EventID) Filter { return f.WithIDs([]EventID{id}) }

// WithIDs merges more into the filter's id set, deduplicating by
// value.
func (f Filter) WithIDs(more []EventID) Filter {
	f.IDs = lo.Uniq(append(append([]EventID(nil), f.IDs...), more...))
	return f
}

// WithoutID removes id from the filter's id set, if present.
func (f Filter) WithoutID(id EventID) Filter {
	f.IDs = lo.Reject(f.IDs, func(v EventID, _ int) bool { return v == id })
	return f
}

// WithAuthor adds a single author to the filter's author set.
func (f Filter) WithAuthor(pk PublicKey) Filter { return f.WithAuthors([]PublicKey{pk}) }

// WithAuthors merges more into the filter's author set, deduplicating
// by value.
func (f Filter) WithAuthors(more []PublicKey) Filter {
	f.Authors = lo.Uniq(append(append([]PublicKey(nil), f.Authors...), more...))
	return f
}

// WithoutAuthor removes pk from the filter's author set, if present.
func (f Filter) WithoutAuthor(pk PublicKey) Filter {
	f.Authors = lo.Reject(f.Authors, func(v PublicKey, _ int) bool { return v == pk })
	return f
}

// WithKind adds a single kind to the filter's kind set.
func (f Filter) WithKind(k Kind) Filter { return f.WithKinds([]Kind{k}) }

// WithKinds merges more into the filter's kind set, deduplicating by
// value.
func (f Filter) WithKinds(more []Kind) Filter {
	f.Kinds = lo.Uniq(append(append([]Kind(nil), f.Kinds...), more...))
	return f
}

// WithoutKind removes k from the filter's kind set, if present.
func (f Filter) WithoutKind(k Kind) Filter {
	f.Kinds = lo.Reject(f.Kinds, func(v Kind, _ int) bool { return v == k })
	return f
}

// WithTag adds value to the dynamic "#<letter>" constraint for
// letter, deduplicating against whatever values are already set.
func (f Filter) WithTag(letter SingleLetterTag, value string) Filter {
	return f.WithTagValues(letter, []string{value})
}

// WithTagValues merges values into the dynamic "#<letter>" constraint
// for letter.
func (f Filter) WithTagValues(letter SingleLetterTag, values []string) Filter {
	key := letter.String()
	tags := make(TagMap, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = v
	}
	tags[key] = lo.Uniq(append(append([]string(nil), tags[key]...), values...))
	f.Tags = tags
	return f
}

// WithSince sets the lower bound (inclusive) on created_at.
func (f Filter) WithSince(ts Timestamp) Filter {
	f.Since = &ts
	return f
}

// WithUntil sets the upper bound (inclusive) on created_at.
func (f Filter) WithUntil(ts Timestamp) Filter {
	f.Until = &ts
	return f
}

// WithLimit caps the number of events a relay should return for this
// filter; it is a relay-side hint and is not enforced by Matches.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = &n
	return f
}

// WithSearch sets the relay-evaluated full text search term. It is
// always satisfied by Matches, since text search is relay-side.
func (f Filter) WithSearch(term string) Filter {
	f.Search = term
	return f
}

// Clone returns an independent deep copy of f.
func (f Filter) Clone() Filter {
	c := f
	c.IDs = append([]EventID(nil), f.IDs...)
	c.Authors = append([]PublicKey(nil), f.Authors...)
	c.Kinds = append([]Kind(nil), f.Kinds...)
	if f.Since != nil {
		since := *f.Since
		c.Since = &since
	}
	if f.Until != nil {
		until := *f.Until
		c.Until = &until
	}
	if f.Limit != nil {
		limit := *f.Limit
		c.Limit = &limit
	}
	if f.Tags != nil {
		c.Tags = make(TagMap, len(f.Tags))
		for k, v := range f.Tags {
			c.Tags[k] = append([]string(nil), v...)
		}
	}
	return c
}

// Equal reports whether f and other select the same events, comparing
// every field as a set rather than an ordered sequence.
func (f Filter) Equal(other Filter) bool {
	if f.Search != other.Search {
		return false
	}
	if !tsPtrEqual(f.Since, other.Since) || !tsPtrEqual(f.Until, other.Until) || !intPtrEqual(f.Limit, other.Limit) {
		return false
	}
	if !setEqual(f.IDs, other.IDs) || !setEqual(f.Authors, other.Authors) || !setEqual(f.Kinds, other.Kinds) {
		return false
	}
	if len(f.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range f.Tags {
		ov, ok := other.Tags[k]
		if !ok || !setEqual(v, ov) {
			return false
		}
	}
	return true
}

func tsPtrEqual(a, b *Timestamp) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func setEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[T]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
