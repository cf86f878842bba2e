// Package models defines the anchored message record.
package models

import (
	"strings"
	"time"

	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// Message is a content-addressed message anchor. The record stores only the
// content hash, never the content itself. ParentID is reserved for reply
// threading and is always the zero sentinel.
type Message struct {
	ID          domain.MessageID   `json:"id"`
	Author      domain.Address     `json:"author"`
	CommunityID domain.CommunityID `json:"community_id"`
	ChannelID   domain.ChannelID   `json:"channel_id"`
	ContentHash string             `json:"content_hash"`
	Timestamp   time.Time          `json:"timestamp"`
	ParentID    domain.MessageID   `json:"parent_id"`
}

// NewMessage validates the anchor fields and stamps the record.
func NewMessage(id domain.MessageID, author domain.Address, communityID domain.CommunityID, channelID domain.ChannelID, contentHash string, now time.Time) (*Message, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message id cannot be empty")
	}
	if author.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message author cannot be the zero address")
	}
	if strings.TrimSpace(contentHash) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "content hash cannot be empty")
	}
	return &Message{
		ID:          id,
		Author:      author,
		CommunityID: communityID,
		ChannelID:   channelID,
		ContentHash: contentHash,
		Timestamp:   now,
		ParentID:    "",
	}, nil
}
