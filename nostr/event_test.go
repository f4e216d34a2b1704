package nostr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSignAndVerify(t *testing.T) {
	t.Parallel()

	signer, err := NewPrivateKeySigner(strings64("11"))
	require.NoError(t, err)

	evt := Event{Kind: KindTextNote, Content: "hello nostr"}
	require.NoError(t, evt.Sign(signer))

	assert.Equal(t, signer.PublicKey(), evt.PubKey)
	assert.False(t, evt.ID.IsZero())

	ok, err := evt.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	signer, err := NewPrivateKeySigner(strings64("22"))
	require.NoError(t, err)

	evt := Event{Kind: KindTextNote, Content: "original"}
	require.NoError(t, evt.Sign(signer))

	evt.Content = "tampered"
	ok, err := evt.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventJSONRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewPrivateKeySigner(strings64("33"))
	require.NoError(t, err)

	evt := Event{Kind: KindTextNote, Content: "round trip", Tags: Tags{{"t", "go"}}}
	require.NoError(t, evt.Sign(signer))

	b, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, evt.PubKey, decoded.PubKey)
	assert.Equal(t, evt.Sig, decoded.Sig)
	assert.Equal(t, evt.Content, decoded.Content)

	ok, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSerializationArrayDoesNotHTMLEscape(t *testing.T) {
	t.Parallel()

	evt := Event{Content: "<b>&друзья</b>", Tags: Tags{{"r", "https://a.example/x?y=1&z=2"}}}
	ser, err := evt.serializationArray()
	require.NoError(t, err)

	assert.Contains(t, string(ser), "<b>&друзья</b>", "content must appear literally, not HTML-escaped")
	assert.Contains(t, string(ser), "y=1&z=2", "tag values must not be HTML-escaped either")
}

// strings64 pads a short hex suffix out to a valid 32-byte secret key
// for test fixtures; it's not a real key.
func strings64(suffix string) string {
	out := make([]byte, 64-len(suffix))
	for i := range out {
		out[i] = '0'
	}
	return string(out) + suffix
}
