package redisbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sethvargo/go-retry"

	"reclaim/internal/domain"
)

// schemaVersion tags every outbound payload; bump on breaking changes.
const schemaVersion = "1"

const (
	ChannelMatchDetected  = "match.detected"
	ChannelMatchConfirmed = "match.confirmed"
	ChannelMatchRejected  = "match.rejected"
	ChannelMatchExpired   = "match.expired"
	ChannelClaimInitiated = "claim.initiated"
	ChannelClaimVerified  = "claim.verified"
	ChannelClaimExpired   = "claim.expired"
)

// Bus publishes lifecycle events over Redis pub/sub. Publication retries
// with exponential backoff; payloads carry opaque identifiers only — the
// claimant's contact details stay out of every event by construction.
type Bus struct {
	client *redis.Client
}

func New(client *redis.Client) *Bus { return &Bus{client: client} }

type matchEvent struct {
	SchemaVersion string               `json:"schema_version"`
	MatchID       string               `json:"match_id"`
	LostItemID    string               `json:"lost_item_id"`
	FoundItemID   string               `json:"found_item_id"`
	Confidence    float64              `json:"confidence"`
	Reasons       []domain.MatchReason `json:"reasons,omitempty"`
	Actor         string               `json:"actor,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	WasConfirmed  bool                 `json:"was_confirmed,omitempty"`
}

// claimEvent references the claimant by claim id only; the notification
// collaborator resolves delivery from that reference.
type claimEvent struct {
	SchemaVersion string    `json:"schema_version"`
	ClaimID       string    `json:"claim_id"`
	MatchID       string    `json:"match_id"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (b *Bus) MatchDetected(ctx context.Context, m domain.Match) error {
	return b.publish(ctx, ChannelMatchDetected, matchEvent{
		SchemaVersion: schemaVersion,
		MatchID:       m.ID,
		LostItemID:    m.LostItemID,
		FoundItemID:   m.FoundItemID,
		Confidence:    m.Confidence,
		Reasons:       m.Reasons,
	})
}

func (b *Bus) MatchConfirmed(ctx context.Context, m domain.Match, actor string) error {
	return b.publish(ctx, ChannelMatchConfirmed, matchEvent{
		SchemaVersion: schemaVersion,
		MatchID:       m.ID,
		LostItemID:    m.LostItemID,
		FoundItemID:   m.FoundItemID,
		Confidence:    m.Confidence,
		Actor:         actor,
	})
}

func (b *Bus) MatchRejected(ctx context.Context, m domain.Match, actor, reason string) error {
	return b.publish(ctx, ChannelMatchRejected, matchEvent{
		SchemaVersion: schemaVersion,
		MatchID:       m.ID,
		LostItemID:    m.LostItemID,
		FoundItemID:   m.FoundItemID,
		Confidence:    m.Confidence,
		Actor:         actor,
		Reason:        reason,
	})
}

func (b *Bus) MatchExpired(ctx context.Context, m domain.Match, wasConfirmed bool) error {
	return b.publish(ctx, ChannelMatchExpired, matchEvent{
		SchemaVersion: schemaVersion,
		MatchID:       m.ID,
		LostItemID:    m.LostItemID,
		FoundItemID:   m.FoundItemID,
		Confidence:    m.Confidence,
		WasConfirmed:  wasConfirmed,
	})
}

func (b *Bus) ClaimInitiated(ctx context.Context, c domain.Claim) error {
	return b.publish(ctx, ChannelClaimInitiated, claimEvent{
		SchemaVersion: schemaVersion,
		ClaimID:       c.ID,
		MatchID:       c.MatchID,
		Status:        string(c.Status),
		ExpiresAt:     c.ExpiresAt,
	})
}

func (b *Bus) ClaimVerified(ctx context.Context, c domain.Claim) error {
	return b.publish(ctx, ChannelClaimVerified, claimEvent{
		SchemaVersion: schemaVersion,
		ClaimID:       c.ID,
		MatchID:       c.MatchID,
		Status:        string(c.Status),
		ExpiresAt:     c.ExpiresAt,
	})
}

func (b *Bus) ClaimExpired(ctx context.Context, c domain.Claim) error {
	return b.publish(ctx, ChannelClaimExpired, claimEvent{
		SchemaVersion: schemaVersion,
		ClaimID:       c.ID,
		MatchID:       c.MatchID,
		Status:        string(c.Status),
		ExpiresAt:     c.ExpiresAt,
	})
}

func (b *Bus) publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
