package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of a decoded public key.
const PubkeyLength = 32

// ParsePubkey decodes a base58 address and checks its length.
func ParsePubkey(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", address, err)
	}
	if len(decoded) != PubkeyLength {
		return nil, fmt.Errorf("address %q has %d bytes, want %d", address, len(decoded), PubkeyLength)
	}
	return decoded, nil
}

// IsValidAddress reports whether address is a well-formed public key.
func IsValidAddress(address string) bool {
	_, err := ParsePubkey(address)
	return err == nil
}

// IsOnCurve reports whether address is a point on the ed25519 curve, i.e. an account
// that can sign. Program-derived addresses are off the curve.
func IsOnCurve(address string) bool {
	decoded, err := ParsePubkey(address)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}

// EncodePubkey encodes raw key bytes as a base58 address.
func EncodePubkey(key []byte) string {
	return base58.Encode(key)
}
