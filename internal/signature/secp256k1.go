package signature

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"tokengate/pkg/domain"
)

// ErrInvalidSignature is returned for malformed or unrecoverable signatures.
var ErrInvalidSignature = errors.New("invalid signature")

const compactSigLen = 65

// Secp256k1Verifier recovers addresses from 65-byte compact signatures
// (recovery code first, then r and s).
type Secp256k1Verifier struct{}

// NewVerifier returns the production signature verifier.
func NewVerifier() *Secp256k1Verifier {
	return &Secp256k1Verifier{}
}

// Recover returns the address whose key produced sig over digest.
func (Secp256k1Verifier) Recover(digest []byte, sig []byte) (domain.Address, error) {
	if len(sig) != compactSigLen {
		return "", fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignature, compactSigLen, len(sig))
	}
	pub, _, err := secpecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return AddressOf(pub), nil
}

// AddressOf derives the ledger address for a public key: the low 20 bytes
// of the keccak-256 hash of the uncompressed key material.
func AddressOf(pub *secp256k1.PublicKey) domain.Address {
	raw := pub.SerializeUncompressed()
	sum := Keccak256(raw[1:])
	addr, _ := domain.AddressFromBytes(sum[12:])
	return addr
}

// Sign produces a compact recoverable signature over digest. The registries
// only verify; signing lives here so clients and tests share one convention.
func Sign(priv *secp256k1.PrivateKey, digest []byte) []byte {
	return secpecdsa.SignCompact(priv, digest, false)
}
