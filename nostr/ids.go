// Package nostr implements the wire-format data model of the Nostr
// protocol: events, filters, tags, coordinates and the client/relay
// message envelopes. It has no knowledge of sockets or relays.
package nostr

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	idLen     = 32
	pubKeyLen = 32
)

// EventID is the 32-byte SHA-256 digest identifying an event.
type EventID [idLen]byte

// ParseEventID decodes a 64-char lowercase hex string into an EventID.
func ParseEventID(s string) (EventID, error) {
	var id EventID
	b, err := decodeFixedHex(s, idLen)
	if err != nil {
		return id, fmt.Errorf("invalid event id: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// String returns the canonical lowercase hex form.
func (id EventID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is the zero value.
func (id EventID) IsZero() bool { return id == EventID{} }

func (id EventID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

func (id *EventID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseEventID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PublicKey is a 32-byte x-only secp256k1 point.
type PublicKey [pubKeyLen]byte

// ParsePublicKey decodes a 64-char lowercase hex string into a PublicKey.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := decodeFixedHex(s, pubKeyLen)
	if err != nil {
		return pk, fmt.Errorf("invalid public key: %w", err)
	}
	copy(pk[:], b)
	return pk, nil
}

func (pk PublicKey) String() string { return hex.EncodeToString(pk[:]) }

func (pk PublicKey) IsZero() bool { return pk == PublicKey{} }

// Compare returns -1, 0 or 1 comparing pk to other by byte value, so
// PublicKeys can be sorted or used as a stable ordering key.
func (pk PublicKey) Compare(other PublicKey) int {
	for i := range pk {
		if pk[i] != other[i] {
			if pk[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (pk PublicKey) MarshalJSON() ([]byte, error) { return json.Marshal(pk.String()) }

func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

func decodeFixedHex(s string, n int) ([]byte, error) {
	if len(s) != n*2 {
		return nil, fmt.Errorf("expected %d hex chars, got %d", n*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
