package ports

import (
	"context"
	"time"

	"reclaim/internal/domain"
)

// ItemRepository keeps read-only snapshots of externally-owned items and
// serves the spatial/temporal candidate pre-filter.
type ItemRepository interface {
	Upsert(ctx context.Context, item domain.Item) error
	ApplyVisualTags(ctx context.Context, itemID string, tags []domain.VisualTag) error
	Get(ctx context.Context, id string) (domain.Item, error)

	// FindCandidates returns active counter-polarity items within maxRadiusM
	// of item and reported within window of its reported-at, capped at limit
	// and ordered by raw distance. Index-backed, never a full scan.
	FindCandidates(ctx context.Context, item domain.Item, maxRadiusM float64, window time.Duration, limit int) ([]domain.Item, error)
}

// MatchRepository persists matches. Transition methods are guarded
// check-and-set operations: when the guard does not hold they return
// domain.ErrInvalidStateTransition and mutate nothing.
type MatchRepository interface {
	Create(ctx context.Context, m domain.Match) error
	Get(ctx context.Context, id string) (domain.Match, error)
	GetByPair(ctx context.Context, lostItemID, foundItemID string) (domain.Match, bool, error)

	// ListByItem returns every non-terminal match referencing the item on
	// either side, highest confidence first.
	ListByItem(ctx context.Context, itemID string) ([]domain.Match, error)

	// UpdateScore replaces confidence and reasons of a still-pending match,
	// preserving its identity. Idempotent for identical inputs.
	UpdateScore(ctx context.Context, id string, confidence float64, reasons []domain.MatchReason, algorithmVersion string) error

	Confirm(ctx context.Context, id, actor string, at time.Time) (domain.Match, error)
	Reject(ctx context.Context, id, actor, reason string, at time.Time) (domain.Match, error)
	MarkClaimed(ctx context.Context, id string) (domain.Match, error)

	// ExpireDue flips every match past its deadline in {pending, confirmed}
	// with no active claim to expired and returns the flipped rows. Safe to
	// re-run: already-expired matches are untouched.
	ExpireDue(ctx context.Context, now time.Time) ([]domain.Match, error)
}

// ClaimRepository persists claims. Create enforces the at-most-one-active-
// claim-per-match invariant and returns domain.ErrDuplicateClaim on
// violation.
type ClaimRepository interface {
	Create(ctx context.Context, c domain.Claim) error
	Get(ctx context.Context, id string) (domain.Claim, error)
	ActiveByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error)

	// ExpireStaleByMatch flips a lapsed pending claim on the match to expired
	// so a fresh claim can be opened without waiting for the sweep. Reports
	// the flipped claim when one existed.
	ExpireStaleByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error)
	IncrementAttempts(ctx context.Context, id string) (attempts int, err error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	ExpireDue(ctx context.Context, now time.Time) ([]domain.Claim, error)
}
