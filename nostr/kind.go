package nostr

// Kind is the nostr event type code, an unsigned 16-bit integer.
type Kind uint16

// Well-known kinds. See https://github.com/nostr-protocol/nips.
const (
	KindMetadata               Kind = 0
	KindTextNote               Kind = 1
	KindRecommendServer        Kind = 2
	KindContactList            Kind = 3
	KindEncryptedDirectMessage Kind = 4
	KindDeletion               Kind = 5
	KindRepost                 Kind = 6
	KindReaction               Kind = 7
	KindChannelCreation        Kind = 40
	KindChannelMessage         Kind = 42
	KindZapRequest             Kind = 9734
	KindZapReceipt             Kind = 9735
	KindRelayListMetadata      Kind = 10002
	KindClientAuthentication   Kind = 22242
	KindLongFormContent        Kind = 30023
)

// IsRegular reports whether events of this kind are expected to be
// stored and returned by relays without any replace semantics.
// Range: 1000 <= kind < 10000 (excluding the ephemeral range, which
// starts above it, this is simply "not special").
func (k Kind) IsRegular() bool {
	return k >= 1000 && k < 10000
}

// IsReplaceable reports whether only the latest event for a given
// (kind, pubkey) should be retained: kinds 0, 3 and 10000..20000.
func (k Kind) IsReplaceable() bool {
	return k == KindMetadata || k == KindContactList || (k >= 10000 && k < 20000)
}

// IsEphemeral reports whether events of this kind are not expected to
// be stored by relays at all: 20000..30000.
func (k Kind) IsEphemeral() bool {
	return k >= 20000 && k < 30000
}

// IsParameterizedReplaceable reports whether only the latest event for
// a given (kind, pubkey, d-tag) should be retained: 30000..40000.
func (k Kind) IsParameterizedReplaceable() bool {
	return k >= 30000 && k < 40000
}
