package matching

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/ports"
	"reclaim/internal/scoring"
)

// Service orchestrates the two scoring passes over one shared pure engine
// core. The initial pass runs on creation with the visual weight
// redistributed; the enhanced pass re-runs full four-factor scoring once
// tags arrive, updating pending matches in place.
type Service struct {
	items    ports.ItemRepository
	matches  ports.MatchRepository
	events   ports.EventPublisher
	initial  *scoring.Engine
	enhanced *scoring.Engine
	cfg      config.Matching
	clock    clockwork.Clock
}

func New(items ports.ItemRepository, matches ports.MatchRepository, events ports.EventPublisher, cfg config.Matching, clock clockwork.Clock) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	weights := scoring.Weights{
		Location: cfg.LocationWeight,
		Visual:   cfg.VisualWeight,
		Text:     cfg.TextWeight,
		Temporal: cfg.TemporalWeight,
	}
	enhanced, err := scoring.NewEngine(weights, cfg)
	if err != nil {
		return nil, err
	}
	initialWeights, err := weights.WithoutVisual()
	if err != nil {
		return nil, err
	}
	initial, err := scoring.NewEngine(initialWeights, cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		items:    items,
		matches:  matches,
		events:   events,
		initial:  initial,
		enhanced: enhanced,
		cfg:      cfg,
		clock:    clock,
	}, nil
}

// InitialPass scores a freshly reported item against its candidate set using
// location, text and temporal signals only.
func (s *Service) InitialPass(ctx context.Context, itemID string) error {
	return s.pass(ctx, itemID, s.initial)
}

// EnhancedPass re-scores with all four factors after visual enrichment. It
// is idempotent: re-applying the same enriched input yields the same
// confidence and reasons on the same match identity.
func (s *Service) EnhancedPass(ctx context.Context, itemID string) error {
	return s.pass(ctx, itemID, s.enhanced)
}

func (s *Service) pass(ctx context.Context, itemID string, engine *scoring.Engine) error {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}
	if item.Status != domain.ItemActive {
		return nil
	}

	radius := s.cfg.MaxRadiusM
	if item.SearchRadiusM != nil && *item.SearchRadiusM < radius {
		radius = *item.SearchRadiusM
	}

	candidates, err := s.items.FindCandidates(ctx, item, radius, s.cfg.CandidateWindow, s.cfg.CandidateLimit)
	if err != nil {
		return fmt.Errorf("find candidates for %s: %w", itemID, err)
	}

	// One bad candidate must not sink the rest of the batch.
	var firstErr error
	for i := range candidates {
		if err := s.evaluate(ctx, engine, &item, &candidates[i]); err != nil {
			log.Printf("matching: item %s vs %s: %v", item.ID, candidates[i].ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) evaluate(ctx context.Context, engine *scoring.Engine, a, b *domain.Item) error {
	cand, err := engine.Score(a, b)
	if err != nil {
		// The repository filters on counter-polarity, so a pairing error here
		// is a bug upstream, not a condition to retry.
		return err
	}
	if cand.Confidence < s.cfg.StoreThreshold {
		return nil
	}

	existing, ok, err := s.matches.GetByPair(ctx, cand.LostItemID, cand.FoundItemID)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	if ok {
		// Rejected pairs stay suppressed permanently; other terminal states
		// and confirmed matches are left alone.
		if existing.Status != domain.MatchPending {
			return nil
		}
		if err := s.matches.UpdateScore(ctx, existing.ID, cand.Confidence, cand.Reasons, cand.AlgorithmVersion); err != nil {
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				// Lost a race with a user action; the transition wins.
				return nil
			}
			return err
		}
		if cand.Confidence >= s.cfg.AutoNotifyThreshold && cand.Confidence > existing.Confidence {
			existing.Confidence = cand.Confidence
			existing.Reasons = cand.Reasons
			existing.AlgorithmVersion = cand.AlgorithmVersion
			if err := s.events.MatchDetected(ctx, existing); err != nil {
				log.Printf("matching: detect event for %s: %v", existing.ID, err)
			}
		}
		return nil
	}

	m := domain.Match{
		ID:               uuid.NewString(),
		LostItemID:       cand.LostItemID,
		FoundItemID:      cand.FoundItemID,
		Confidence:       cand.Confidence,
		Reasons:          cand.Reasons,
		AlgorithmVersion: cand.AlgorithmVersion,
		Status:           domain.MatchPending,
		Version:          1,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.MatchTTL),
	}
	if err := s.matches.Create(ctx, m); err != nil {
		return err
	}
	if m.Confidence >= s.cfg.AutoNotifyThreshold {
		if err := s.events.MatchDetected(ctx, m); err != nil {
			log.Printf("matching: detect event for %s: %v", m.ID, err)
		}
	}
	return nil
}
