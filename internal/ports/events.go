package ports

import (
	"context"

	"reclaim/internal/domain"
)

// EventPublisher emits outbound lifecycle notifications. Payloads are
// versioned and carry opaque identifiers only; contact details supplied at
// claim time never cross this boundary.
type EventPublisher interface {
	MatchDetected(ctx context.Context, m domain.Match) error
	MatchConfirmed(ctx context.Context, m domain.Match, actor string) error
	MatchRejected(ctx context.Context, m domain.Match, actor, reason string) error
	MatchExpired(ctx context.Context, m domain.Match, wasConfirmed bool) error
	ClaimInitiated(ctx context.Context, c domain.Claim) error
	ClaimVerified(ctx context.Context, c domain.Claim) error
	ClaimExpired(ctx context.Context, c domain.Claim) error
}
