// Package domain defines the identifier and value types shared across the
// registry modules. Keeping them in one place prevents accidental mixing of
// community, channel and message identifiers in service signatures.
package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 20-byte ledger address rendered as a 0x-prefixed lowercase
// hex string. The zero value of the underlying bytes is the ZeroAddress
// sentinel used throughout the registries to mean "unset".
type Address string

// ZeroAddress is the unset-address sentinel.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

const addressHexLen = 40

// ParseAddress validates and normalizes a 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address must be 0x-prefixed: %q", s)
	}
	body := s[2:]
	if len(body) != addressHexLen {
		return "", fmt.Errorf("address must be %d hex characters, got %d", addressHexLen, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address is not valid hex: %w", err)
	}
	return Address("0x" + strings.ToLower(body)), nil
}

// AddressFromBytes renders a 20-byte value as an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != addressHexLen/2 {
		return "", fmt.Errorf("address must be %d bytes, got %d", addressHexLen/2, len(b))
	}
	return Address("0x" + hex.EncodeToString(b)), nil
}

// IsZero reports whether the address is unset or the zero sentinel.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// Bytes decodes the address into its 20-byte form.
func (a Address) Bytes() ([]byte, error) {
	norm, err := ParseAddress(string(a))
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(string(norm)[2:])
}

func (a Address) String() string { return string(a) }

// CommunityID identifies a community. IDs are assigned from a monotonic
// sequence starting at zero and are never reused, matching the append-only
// retention model.
type CommunityID uint64

// ChannelID identifies a channel within the global channel arena.
type ChannelID uint64

// MessageID is the caller-supplied unique message identifier, a 0x-prefixed
// hex digest. The empty string is the unset sentinel; an occupied id rejects
// any further posting under it.
type MessageID string

// IsZero reports whether the message id is the unset sentinel.
func (m MessageID) IsZero() bool { return m == "" }

// ParseMessageID validates a caller-supplied message id.
func ParseMessageID(s string) (MessageID, error) {
	if !strings.HasPrefix(s, "0x") || len(s) < 4 {
		return "", fmt.Errorf("message id must be a 0x-prefixed hex digest: %q", s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("message id is not valid hex: %w", err)
	}
	return MessageID(strings.ToLower(s)), nil
}

// FeeAmount is a payment amount in micro-units of the native fee unit
// (1 native unit = 1_000_000 micro-units).
type FeeAmount uint64

// DelegatedKey is the hex-encoded derived signing key published by the user
// registry. Empty means no key.
type DelegatedKey string

// IsZero reports whether the key is unset.
func (k DelegatedKey) IsZero() bool { return k == "" }
