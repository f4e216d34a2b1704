package nostr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	pk := strings.Repeat("37", 30) + "dfdf" // 64 hex chars, matches spec example shape

	raw := "30023:" + pk + ":my-article"
	c, err := ParseCoordinate(raw)
	require.NoError(t, err)

	assert.Equal(t, Kind(30023), c.Kind)
	assert.Equal(t, pk, c.PubKey.String())
	assert.Equal(t, "my-article", c.Identifier)
}

func TestCoordinateStringRoundTrip(t *testing.T) {
	t.Parallel()

	c := Coordinate{Kind: KindLongFormContent, PubKey: hexPK("aa"), Identifier: "my-article"}
	parsed, err := ParseCoordinate(c.String())
	require.NoError(t, err)
	assert.Equal(t, c.Kind, parsed.Kind)
	assert.Equal(t, c.PubKey, parsed.PubKey)
	assert.Equal(t, c.Identifier, parsed.Identifier)
}

func TestCoordinateFilter(t *testing.T) {
	t.Parallel()

	c := Coordinate{Kind: KindLongFormContent, PubKey: hexPK("aa"), Identifier: "my-article"}
	f := c.Filter()

	assert.Equal(t, []Kind{KindLongFormContent}, f.Kinds)
	assert.Equal(t, []PublicKey{hexPK("aa")}, f.Authors)
	assert.Equal(t, []string{"my-article"}, f.Tags["d"])
}

func TestParseCoordinateInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseCoordinate("not-a-coordinate")
	assert.Error(t, err)
}
