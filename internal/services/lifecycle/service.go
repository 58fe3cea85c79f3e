package lifecycle

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/ports"
)

// Service owns the match state machine:
//
//	pending   -> confirmed | rejected | expired
//	confirmed -> claimed | expired (only without an active claim)
//	rejected, expired, claimed are terminal
//
// Each transition is a single guarded check-and-set in the repository, so
// concurrent user actions on one match linearize: the first committed
// transition wins, the loser gets ErrInvalidStateTransition.
type Service struct {
	matches          ports.MatchRepository
	items            ports.ItemRepository
	events           ports.EventPublisher
	clock            clockwork.Clock
	surfaceThreshold float64
}

func New(matches ports.MatchRepository, items ports.ItemRepository, events ports.EventPublisher, cfg config.Matching, clock clockwork.Clock) *Service {
	return &Service{
		matches:          matches,
		items:            items,
		events:           events,
		clock:            clock,
		surfaceThreshold: cfg.SurfaceThreshold,
	}
}

func (s *Service) Get(ctx context.Context, matchID string) (domain.Match, error) {
	return s.matches.Get(ctx, matchID)
}

// Surfaced lists an item's live matches that cleared the surface threshold,
// highest confidence first. Below-threshold matches stay stored for review
// but are not shown for user action.
func (s *Service) Surfaced(ctx context.Context, itemID string) ([]domain.Match, error) {
	all, err := s.matches.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.Confidence >= s.surfaceThreshold {
			out = append(out, m)
		}
	}
	return out, nil
}

// Confirm moves a pending match to confirmed on behalf of one of the two
// item owners.
func (s *Service) Confirm(ctx context.Context, matchID, actorRef string) (domain.Match, error) {
	if err := s.requireParticipant(ctx, matchID, actorRef); err != nil {
		return domain.Match{}, err
	}
	m, err := s.matches.Confirm(ctx, matchID, actorRef, s.clock.Now())
	if err != nil {
		return domain.Match{}, err
	}
	if err := s.events.MatchConfirmed(ctx, m, actorRef); err != nil {
		log.Printf("lifecycle: confirm event for %s: %v", m.ID, err)
	}
	return m, nil
}

// Reject moves a pending match to rejected, recording the reason. The pair
// is permanently suppressed from re-matching; the remaining item keeps
// matching against other candidates.
func (s *Service) Reject(ctx context.Context, matchID, actorRef, reason string) (domain.Match, error) {
	if err := s.requireParticipant(ctx, matchID, actorRef); err != nil {
		return domain.Match{}, err
	}
	m, err := s.matches.Reject(ctx, matchID, actorRef, reason, s.clock.Now())
	if err != nil {
		return domain.Match{}, err
	}
	if err := s.events.MatchRejected(ctx, m, actorRef, reason); err != nil {
		log.Printf("lifecycle: reject event for %s: %v", m.ID, err)
	}
	return m, nil
}

// ResolveClaim finalizes a verified claim by moving the parent match from
// confirmed to claimed. Called by the claims service only.
func (s *Service) ResolveClaim(ctx context.Context, matchID string) (domain.Match, error) {
	return s.matches.MarkClaimed(ctx, matchID)
}

// SweepExpired expires every due match without an active claim and emits the
// corresponding events. Idempotent: an interrupted sweep can simply re-run.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.matches.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, m := range expired {
		// A confirmed match that quietly timed out is a missed opportunity
		// and gets an active notification; pending ones surface passively.
		wasConfirmed := m.ConfirmedAt != nil
		if err := s.events.MatchExpired(ctx, m, wasConfirmed); err != nil {
			log.Printf("lifecycle: expire event for %s: %v", m.ID, err)
		}
	}
	return len(expired), nil
}

func (s *Service) requireParticipant(ctx context.Context, matchID, actorRef string) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	for _, itemID := range []string{m.LostItemID, m.FoundItemID} {
		item, err := s.items.Get(ctx, itemID)
		if err != nil {
			return fmt.Errorf("load match item %s: %w", itemID, err)
		}
		if item.OwnerRef == actorRef {
			return nil
		}
	}
	return domain.ErrNotParticipant
}
