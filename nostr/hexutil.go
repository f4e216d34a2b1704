package nostr

import "encoding/hex"

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecodeFixed(s string, n int) ([]byte, error) {
	return decodeFixedHex(s, n)
}
