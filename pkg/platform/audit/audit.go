// Package audit captures the notifications each registry transition emits.
// Events are transport-agnostic so sinks can fan out; the default sink is
// structured logging.
package audit

import (
	"context"
	"log/slog"
	"time"

	"tokengate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryLifecycle covers community and channel state transitions.
	CategoryLifecycle EventCategory = "lifecycle"
	// CategoryMembership covers join/leave/kick transitions.
	CategoryMembership EventCategory = "membership"
	// CategoryIdentity covers delegation registration and revocation.
	CategoryIdentity EventCategory = "identity"
	// CategoryContent covers message anchoring.
	CategoryContent EventCategory = "content"
	// CategoryTreasury covers fee custody movements.
	CategoryTreasury EventCategory = "treasury"
)

// Kind names a single notification type.
type Kind string

const (
	EventCommunityCreated  Kind = "community_created"
	EventCommunityUpdated  Kind = "community_updated"
	EventCommunityDeleted  Kind = "community_deleted"
	EventCommunityActive   Kind = "community_activated"
	EventChannelCreated    Kind = "channel_created"
	EventChannelActive     Kind = "channel_activated"
	EventChannelDeleted    Kind = "channel_deleted"
	EventCommunityJoined   Kind = "community_joined"
	EventCommunityLeft     Kind = "community_left"
	EventUserKicked        Kind = "user_kicked"
	EventFeesWithdrawn     Kind = "fees_withdrawn"
	EventUserRegistered    Kind = "user_registered"
	EventDelegationRevoked Kind = "delegation_revoked"
	EventMessagePosted     Kind = "message_posted"
)

var kindCategories = map[Kind]EventCategory{
	EventCommunityCreated:  CategoryLifecycle,
	EventCommunityUpdated:  CategoryLifecycle,
	EventCommunityDeleted:  CategoryLifecycle,
	EventCommunityActive:   CategoryLifecycle,
	EventChannelCreated:    CategoryLifecycle,
	EventChannelActive:     CategoryLifecycle,
	EventChannelDeleted:    CategoryLifecycle,
	EventCommunityJoined:   CategoryMembership,
	EventCommunityLeft:     CategoryMembership,
	EventUserKicked:        CategoryMembership,
	EventFeesWithdrawn:     CategoryTreasury,
	EventUserRegistered:    CategoryIdentity,
	EventDelegationRevoked: CategoryIdentity,
	EventMessagePosted:     CategoryContent,
}

// Category resolves the category for a kind, defaulting to lifecycle.
func (k Kind) Category() EventCategory {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryLifecycle
}

// Event is emitted from domain logic to record a committed transition.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Actor     domain.Address
	Subject   string
	RequestID string
	// Attrs carries event-specific key/value detail (ids, names, amounts).
	Attrs map[string]any
}

// Publisher delivers committed events to a sink. Emission failures must not
// fail the transition that produced the event.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// LogPublisher writes events to structured logs.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a Publisher backed by the given logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Emit logs the event with its category and attributes.
func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	args := []any{
		"category", string(event.Kind.Category()),
		"actor", event.Actor.String(),
		"subject", event.Subject,
		"timestamp", event.Timestamp,
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	for k, v := range event.Attrs {
		args = append(args, k, v)
	}
	p.logger.InfoContext(ctx, "audit: "+string(event.Kind), args...)
	return nil
}

// NopPublisher discards events; used when no sink is configured.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
