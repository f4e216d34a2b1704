package nostr

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexID(suffix string) EventID {
	id, err := ParseEventID(strings.Repeat("0", 64-len(suffix)) + suffix)
	if err != nil {
		panic(err)
	}
	return id
}

func hexPK(suffix string) PublicKey {
	pk, err := ParsePublicKey(strings.Repeat("0", 64-len(suffix)) + suffix)
	if err != nil {
		panic(err)
	}
	return pk
}

func TestFilterMarshalDynamicTagKeys(t *testing.T) {
	t.Parallel()

	f := Filter{
		Kinds: []Kind{KindTextNote},
		Tags:  TagMap{"p": {"abcd"}, "e": {"1234"}},
	}

	b, err := json.Marshal(f)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "#p")
	assert.Contains(t, raw, "#e")
	assert.Contains(t, raw, "kinds")
}

func TestFilterUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()

	original := Filter{
		Kinds:   []Kind{KindTextNote, KindReaction},
		Authors: []PublicKey{hexPK("aa")},
		Tags:    TagMap{"t": {"nostr", "golang"}},
	}

	b, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Filter
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.ElementsMatch(t, original.Kinds, decoded.Kinds)
	assert.ElementsMatch(t, original.Authors, decoded.Authors)
	assert.ElementsMatch(t, original.Tags["t"], decoded.Tags["t"])
}

func TestFilterMatchesEmpty(t *testing.T) {
	t.Parallel()

	evt := Event{ID: hexID("01"), Kind: KindTextNote}
	assert.True(t, Filter{}.Matches(&evt))
}

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	author := hexPK("aa")
	evt := Event{
		ID:        hexID("01"),
		PubKey:    author,
		Kind:      KindTextNote,
		CreatedAt: 1000,
		Tags:      Tags{{"p", hexPK("bb").String()}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "author match", filter: Filter{Authors: []PublicKey{author}}, want: true},
		{name: "author mismatch", filter: Filter{Authors: []PublicKey{hexPK("cc")}}, want: false},
		{name: "kind match", filter: Filter{Kinds: []Kind{KindTextNote}}, want: true},
		{name: "kind mismatch", filter: Filter{Kinds: []Kind{KindReaction}}, want: false},
		{name: "since satisfied", filter: Filter{Since: tsPtr(500)}, want: true},
		{name: "since violated", filter: Filter{Since: tsPtr(2000)}, want: false},
		{name: "until violated", filter: Filter{Until: tsPtr(500)}, want: false},
		{name: "tag match", filter: Filter{Tags: TagMap{"p": {hexPK("bb").String()}}}, want: true},
		{name: "tag mismatch", filter: Filter{Tags: TagMap{"p": {hexPK("cc").String()}}}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.filter.Matches(&evt))
		})
	}
}

func tsPtr(v Timestamp) *Timestamp { return &v }
