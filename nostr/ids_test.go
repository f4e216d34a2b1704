package nostr

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventID(t *testing.T) {
	t.Parallel()

	valid := strings.Repeat("0", 62) + "01"
	notHex := "zz" + strings.Repeat("0", 62)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: valid},
		{name: "too short", input: "abcd", wantErr: true},
		{name: "not hex", input: notHex, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := ParseEventID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestEventIDJSONRoundTrip(t *testing.T) {
	t.Parallel()

	want, err := ParseEventID("ab" + strings.Repeat("0", 60) + "01")
	require.NoError(t, err)

	b, err := json.Marshal(want)
	require.NoError(t, err)

	var got EventID
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, want, got)
}

func TestPublicKeyCompare(t *testing.T) {
	t.Parallel()

	a := PublicKey{0x01}
	b := PublicKey{0x02}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, EventID{}.IsZero())
	assert.False(t, PublicKey{0x01}.IsZero())
}
