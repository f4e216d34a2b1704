package nostr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReqMessageMarshal(t *testing.T) {
	t.Parallel()

	msg := ReqMessage{SubscriptionID: "sub1", Filters: []Filter{{Kinds: []Kind{KindTextNote}}}}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &arr))
	require.Len(t, arr, 3)

	var label string
	require.NoError(t, json.Unmarshal(arr[0], &label))
	assert.Equal(t, "REQ", label)
}

func TestParseRelayMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "eose", raw: `["EOSE","sub1"]`},
		{name: "notice", raw: `["NOTICE","hello"]`},
		{name: "auth", raw: `["AUTH","challenge-string"]`},
		{name: "count", raw: `["COUNT","sub1",{"count":3}]`},
		{name: "unrecognized", raw: `["WAT"]`, wantErr: true},
		{name: "not an array", raw: `{"foo":"bar"}`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRelayMessage([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseRelayMessageOK(t *testing.T) {
	t.Parallel()

	id := hexID("42")
	raw := `["OK","` + id.String() + `",true,"stored"]`
	msg, err := ParseRelayMessage([]byte(raw))
	require.NoError(t, err)

	ok, isOK := msg.(OKResponse)
	require.True(t, isOK)
	assert.Equal(t, id, ok.EventID)
	assert.True(t, ok.Saved)
	assert.Equal(t, "stored", ok.Message)
}
