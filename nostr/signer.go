package nostr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer produces Schnorr signatures over event IDs and exposes the
// public key they verify against. A *PrivateKeySigner is the only
// implementation here; remote signers (NIP-46) can satisfy the same
// interface without this package needing to know about them.
type Signer interface {
	PublicKey() PublicKey
	Sign(id EventID) ([64]byte, error)
}

// PrivateKeySigner signs directly with an in-memory secp256k1 key.
type PrivateKeySigner struct {
	key    *btcec.PrivateKey
	pubKey PublicKey
}

// NewPrivateKeySigner builds a signer from a 32-byte hex-encoded
// secret key.
func NewPrivateKeySigner(secretKeyHex string) (*PrivateKeySigner, error) {
	raw, err := decodeFixedHex(secretKeyHex, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	var pk PublicKey
	copy(pk[:], schnorr.SerializePubKey(pub))
	return &PrivateKeySigner{key: priv, pubKey: pk}, nil
}

func (s *PrivateKeySigner) PublicKey() PublicKey { return s.pubKey }

func (s *PrivateKeySigner) Sign(id EventID) ([64]byte, error) {
	var out [64]byte
	sig, err := schnorr.Sign(s.key, id[:])
	if err != nil {
		return out, err
	}
	copy(out[:], sig.Serialize())
	return out, nil
}

// VerifySignature checks that sig is a valid Schnorr signature over
// id by pubKey.
func VerifySignature(pubKey PublicKey, id EventID, sig [64]byte) (bool, error) {
	pk, err := schnorr.ParsePubKey(pubKey[:])
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	parsedSig, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return parsedSig.Verify(id[:], pk), nil
}
