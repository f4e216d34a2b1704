package nostr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapRequestDataTagsAndParse(t *testing.T) {
	t.Parallel()

	id := hexID("ee")
	d := NewZapRequestData(hexPK("aa"), []string{"wss://relay.example.com"}).
		WithAmount(21000).
		WithLnurl("lnurl1dp68gurn8ghj7").
		WithEventID(id)

	evt := NewZapRequest(d, "nice post")
	assert.Equal(t, KindZapRequest, evt.Kind)

	parsed, err := ParseZapRequestData(evt)
	require.NoError(t, err)

	assert.Equal(t, d.PublicKey, parsed.PublicKey)
	assert.Equal(t, d.Relays, parsed.Relays)
	assert.Equal(t, *d.Amount, *parsed.Amount)
	assert.Equal(t, d.Lnurl, parsed.Lnurl)
	require.NotNil(t, parsed.EventID)
	assert.Equal(t, id, *parsed.EventID)
}

func TestParseZapRequestDataMissingPubKey(t *testing.T) {
	t.Parallel()

	_, err := ParseZapRequestData(Event{Kind: KindZapRequest})
	assert.Error(t, err)
}
