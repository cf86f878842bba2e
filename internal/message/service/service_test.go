package service

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/suite"

	"tokengate/internal/message/store"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

const contentHash = "0x6f1c3b7a90de1fce48616c6c6f20776f726c6421aaabbbcccdddeeefff000111"

type MessageServiceSuite struct {
	suite.Suite
	service *Service
	priv    *secp256k1.PrivateKey
	caller  domain.Address
	now     time.Time
}

func TestMessageServiceSuite(t *testing.T) {
	suite.Run(t, new(MessageServiceSuite))
}

func (s *MessageServiceSuite) SetupTest() {
	priv, err := secp256k1.GeneratePrivateKey()
	s.Require().NoError(err)
	s.priv = priv
	s.caller = signature.AddressOf(priv.PubKey())
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.service = New(store.NewMemory(), signature.NewVerifier(), tx.NewSerialRunner())
}

func (s *MessageServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithCaller(context.Background(), s.caller)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *MessageServiceSuite) signedInput(id domain.MessageID) PostMessageInput {
	in := PostMessageInput{
		ID:          id,
		CommunityID: 3,
		ChannelID:   7,
		ContentHash: contentHash,
	}
	in.Signature = signature.Sign(s.priv, MessageDigest(in.ID, in.CommunityID, in.ChannelID, in.ContentHash))
	return in
}

func (s *MessageServiceSuite) TestPostMessage() {
	msg, err := s.service.PostMessage(s.ctx(), s.signedInput("0xabc123"))
	s.Require().NoError(err)
	s.Equal(s.caller, msg.Author)
	s.Equal(s.now, msg.Timestamp)
	s.True(msg.ParentID.IsZero(), "threading is reserved, parent id stays unset")

	got, err := s.service.GetMessage(s.ctx(), "0xabc123")
	s.Require().NoError(err)
	s.Equal(msg, got)
}

func (s *MessageServiceSuite) TestDuplicateIDLeavesFirstRecordUnchanged() {
	first, err := s.service.PostMessage(s.ctx(), s.signedInput("0xabc123"))
	s.Require().NoError(err)

	// Second anchoring under the same id, different payload.
	in := PostMessageInput{
		ID:          "0xabc123",
		CommunityID: 9,
		ChannelID:   1,
		ContentHash: "0x" + "ff" + contentHash[4:],
	}
	in.Signature = signature.Sign(s.priv, MessageDigest(in.ID, in.CommunityID, in.ChannelID, in.ContentHash))
	_, err = s.service.PostMessage(s.ctx(), in)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	s.Contains(err.Error(), "message rejected")

	got, err := s.service.GetMessage(s.ctx(), "0xabc123")
	s.Require().NoError(err)
	s.Equal(first, got, "first record must survive a duplicate attempt untouched")
}

func (s *MessageServiceSuite) TestSignerMismatchRejected() {
	other, err := secp256k1.GeneratePrivateKey()
	s.Require().NoError(err)

	in := PostMessageInput{
		ID:          "0xabc123",
		CommunityID: 3,
		ChannelID:   7,
		ContentHash: contentHash,
	}
	in.Signature = signature.Sign(other, MessageDigest(in.ID, in.CommunityID, in.ChannelID, in.ContentHash))

	_, err = s.service.PostMessage(s.ctx(), in)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	s.Contains(err.Error(), "message rejected", "mismatch and duplicate share one undifferentiated error")
}

func (s *MessageServiceSuite) TestTamperedFieldRejected() {
	in := s.signedInput("0xabc123")
	in.ChannelID = 8
	_, err := s.service.PostMessage(s.ctx(), in)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *MessageServiceSuite) TestMalformedSignatureRejected() {
	in := s.signedInput("0xabc123")
	in.Signature = []byte("garbage")
	_, err := s.service.PostMessage(s.ctx(), in)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *MessageServiceSuite) TestValidationErrors() {
	s.Run("empty id", func() {
		in := s.signedInput("")
		_, err := s.service.PostMessage(s.ctx(), in)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("empty content hash", func() {
		in := PostMessageInput{ID: "0xabc123", CommunityID: 3, ChannelID: 7}
		in.Signature = signature.Sign(s.priv, MessageDigest(in.ID, in.CommunityID, in.ChannelID, ""))
		_, err := s.service.PostMessage(s.ctx(), in)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *MessageServiceSuite) TestGetUnknownMessage() {
	_, err := s.service.GetMessage(s.ctx(), "0xdoesnotexist")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}
