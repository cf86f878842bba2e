package service

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/suite"

	"tokengate/internal/identity/store"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

type IdentityServiceSuite struct {
	suite.Suite
	service *Service
	priv    *secp256k1.PrivateKey
	caller  domain.Address
	now     time.Time
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	priv, err := secp256k1.GeneratePrivateKey()
	s.Require().NoError(err)
	s.priv = priv
	s.caller = signature.AddressOf(priv.PubKey())
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.service = New(store.NewMemory(), signature.NewVerifier(), tx.NewSerialRunner(), "tokengate-test")
}

func (s *IdentityServiceSuite) ctxAt(t time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), s.caller)
	return requestcontext.WithTime(ctx, t)
}

// register previews the key at the given instant, signs the canonical
// message, and submits the registration at that same instant.
func (s *IdentityServiceSuite) register(t time.Time) ([]byte, error) {
	ctx := s.ctxAt(t)
	key, err := s.service.PreviewDelegatedKey(ctx, s.caller)
	s.Require().NoError(err)
	nonce, err := s.service.CurrentNonce(ctx, s.caller)
	s.Require().NoError(err)

	sig := signature.Sign(s.priv, RegistrationDigest(key, s.caller, nonce))
	_, err = s.service.RegisterUser(ctx, sig)
	return sig, err
}

func (s *IdentityServiceSuite) TestPreviewRegisterRoundTrip() {
	_, err := s.register(s.now)
	s.Require().NoError(err)

	active, err := s.service.HasActiveDelegation(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.True(active)

	key, err := s.service.GetDelegatedKey(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.NotEmpty(key)

	owner, err := s.service.GetUserFromKey(s.ctxAt(s.now), key)
	s.Require().NoError(err)
	s.Equal(s.caller, owner)

	rec, err := s.service.GetRegistration(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.Equal(uint64(1), rec.Nonce, "stored nonce is incremented past the signed one")
	s.Equal(s.now, rec.RegisteredAt)
}

func (s *IdentityServiceSuite) TestStalePreviewRejected() {
	ctx := s.ctxAt(s.now)
	key, err := s.service.PreviewDelegatedKey(ctx, s.caller)
	s.Require().NoError(err)
	sig := signature.Sign(s.priv, RegistrationDigest(key, s.caller, 0))

	// Submitting one instant later re-derives a different key, so the
	// signature no longer covers the canonical message.
	later := s.ctxAt(s.now.Add(time.Nanosecond))
	_, err = s.service.RegisterUser(later, sig)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid signature")
}

func (s *IdentityServiceSuite) TestWrongSignerRejected() {
	other, err := secp256k1.GeneratePrivateKey()
	s.Require().NoError(err)

	ctx := s.ctxAt(s.now)
	key, err := s.service.PreviewDelegatedKey(ctx, s.caller)
	s.Require().NoError(err)
	sig := signature.Sign(other, RegistrationDigest(key, s.caller, 0))

	_, err = s.service.RegisterUser(ctx, sig)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *IdentityServiceSuite) TestMalformedSignatureRejected() {
	_, err := s.service.RegisterUser(s.ctxAt(s.now), []byte("not a signature"))
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid signature")
}

func (s *IdentityServiceSuite) TestDoubleRegistrationConflicts() {
	_, err := s.register(s.now)
	s.Require().NoError(err)

	_, err = s.register(s.now.Add(time.Hour))
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "already registered")
}

func (s *IdentityServiceSuite) TestRevocation() {
	_, err := s.register(s.now)
	s.Require().NoError(err)
	key, err := s.service.GetDelegatedKey(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)

	s.Require().NoError(s.service.RevokeDelegation(s.ctxAt(s.now)))

	// The revoked key resolves to the zero sentinel, not the old owner.
	owner, err := s.service.GetUserFromKey(s.ctxAt(s.now), key)
	s.Require().NoError(err)
	s.True(owner.IsZero())

	_, err = s.service.GetDelegatedKey(s.ctxAt(s.now), s.caller)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	// Forward record survives for history.
	rec, err := s.service.GetRegistration(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.False(rec.Active)
	s.Equal(uint64(1), rec.Nonce)
}

func (s *IdentityServiceSuite) TestRevokeUnregistered() {
	err := s.service.RevokeDelegation(s.ctxAt(s.now))
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
	s.Contains(err.Error(), "not registered")
}

func (s *IdentityServiceSuite) TestDoubleRevocation() {
	_, err := s.register(s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.service.RevokeDelegation(s.ctxAt(s.now)))

	err = s.service.RevokeDelegation(s.ctxAt(s.now))
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *IdentityServiceSuite) TestReRegistrationBumpsNonce() {
	oldSig, err := s.register(s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.service.RevokeDelegation(s.ctxAt(s.now)))

	// A signature over the old nonce no longer matches, even at the same
	// instant: the nonce advanced with the first registration.
	_, err = s.service.RegisterUser(s.ctxAt(s.now), oldSig)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	_, err = s.register(s.now.Add(time.Minute))
	s.Require().NoError(err)

	rec, err := s.service.GetRegistration(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.Equal(uint64(2), rec.Nonce)
	s.True(rec.Active)
}

func (s *IdentityServiceSuite) TestPreviewZeroAddress() {
	_, err := s.service.PreviewDelegatedKey(s.ctxAt(s.now), domain.ZeroAddress)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *IdentityServiceSuite) TestHasActiveDelegationUnknown() {
	active, err := s.service.HasActiveDelegation(s.ctxAt(s.now), s.caller)
	s.Require().NoError(err)
	s.False(active)
}

func (s *IdentityServiceSuite) TestGetUserFromUnknownKey() {
	owner, err := s.service.GetUserFromKey(s.ctxAt(s.now), domain.DelegatedKey("0xdeadbeef"))
	s.Require().NoError(err)
	s.True(owner.IsZero())
}
