package ports

import (
	"context"

	"reclaim/internal/domain"
)

// Matcher runs the two scoring passes for an item against its candidate set.
type Matcher interface {
	InitialPass(ctx context.Context, itemID string) error
	EnhancedPass(ctx context.Context, itemID string) error
}

// Lifecycle owns the match state machine.
type Lifecycle interface {
	Get(ctx context.Context, matchID string) (domain.Match, error)
	Surfaced(ctx context.Context, itemID string) ([]domain.Match, error)
	Confirm(ctx context.Context, matchID, actorRef string) (domain.Match, error)
	Reject(ctx context.Context, matchID, actorRef, reason string) (domain.Match, error)
}

// Claims runs the claim verification protocol.
type Claims interface {
	Initiate(ctx context.Context, matchID, claimantRef, contactMethod, contactValue string) (domain.Claim, error)
	Verify(ctx context.Context, claimID, code string) (domain.Claim, error)
}
