// Package signature implements the recover-and-compare contract the
// registries depend on. Given a message digest and a compact signature,
// recovery yields the signing address; callers compare it to the expected
// principal. The curve arithmetic itself is delegated to the secp256k1
// library; this package only fixes the digest and address conventions.
package signature

import (
	"golang.org/x/crypto/sha3"

	"tokengate/pkg/domain"
)

// Verifier recovers the signing address from a digest and signature.
// Implementations must fail on malformed signatures rather than returning a
// zero address.
type Verifier interface {
	Recover(digest []byte, sig []byte) (domain.Address, error)
}

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
