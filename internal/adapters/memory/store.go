// Package memory is an in-process adapter with the same guard semantics as
// the Postgres adapter. It backs the service tests and local runs without a
// database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"reclaim/internal/domain"
)

type Store struct {
	mu      sync.Mutex
	items   map[string]domain.Item
	matches map[string]domain.Match
	claims  map[string]domain.Claim
}

func NewStore() *Store {
	return &Store{
		items:   make(map[string]domain.Item),
		matches: make(map[string]domain.Match),
		claims:  make(map[string]domain.Claim),
	}
}

type ItemStore struct{ s *Store }

func (s *Store) Items() *ItemStore { return &ItemStore{s: s} }

type MatchStore struct{ s *Store }

func (s *Store) Matches() *MatchStore { return &MatchStore{s: s} }

type ClaimStore struct{ s *Store }

func (s *Store) Claims() *ClaimStore { return &ClaimStore{s: s} }

// Items

func (r *ItemStore) Upsert(ctx context.Context, item domain.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.items[item.ID]; ok {
		// Enrichment owns visual tags; a re-delivered snapshot keeps them.
		item.VisualTags = existing.VisualTags
	}
	r.s.items[item.ID] = item
	return nil
}

func (r *ItemStore) ApplyVisualTags(ctx context.Context, itemID string, tags []domain.VisualTag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	item.VisualTags = tags
	r.s.items[itemID] = item
	return nil
}

func (r *ItemStore) Get(ctx context.Context, id string) (domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return item, nil
}

func (r *ItemStore) FindCandidates(ctx context.Context, item domain.Item, maxRadiusM float64, window time.Duration, limit int) ([]domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type scored struct {
		item domain.Item
		dist float64
	}
	var hits []scored
	for _, cand := range r.s.items {
		if cand.ID == item.ID || cand.Polarity != item.Polarity.Counter() || cand.Status != domain.ItemActive {
			continue
		}
		gap := cand.ReportedAt.Sub(item.ReportedAt)
		if gap < -window || gap > window {
			continue
		}
		dist := geo.DistanceHaversine(orb.Point{item.Lng, item.Lat}, orb.Point{cand.Lng, cand.Lat})
		if dist > maxRadiusM {
			continue
		}
		hits = append(hits, scored{item: cand, dist: dist})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.Item, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out, nil
}

// Matches

func (r *MatchStore) Create(ctx context.Context, m domain.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.matches {
		if existing.LostItemID == m.LostItemID && existing.FoundItemID == m.FoundItemID {
			return fmt.Errorf("pair already matched: %s/%s", m.LostItemID, m.FoundItemID)
		}
	}
	r.s.matches[m.ID] = m
	return nil
}

func (r *MatchStore) Get(ctx context.Context, id string) (domain.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getLocked(id)
}

func (r *MatchStore) getLocked(id string) (domain.Match, error) {
	m, ok := r.s.matches[id]
	if !ok {
		return domain.Match{}, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (r *MatchStore) GetByPair(ctx context.Context, lostItemID, foundItemID string) (domain.Match, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.matches {
		if m.LostItemID == lostItemID && m.FoundItemID == foundItemID {
			return m, true, nil
		}
	}
	return domain.Match{}, false, nil
}

func (r *MatchStore) ListByItem(ctx context.Context, itemID string) ([]domain.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Match
	for _, m := range r.s.matches {
		if m.LostItemID != itemID && m.FoundItemID != itemID {
			continue
		}
		if m.Status != domain.MatchPending && m.Status != domain.MatchConfirmed {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (r *MatchStore) UpdateScore(ctx context.Context, id string, confidence float64, reasons []domain.MatchReason, algorithmVersion string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, err := r.getLocked(id)
	if err != nil {
		return err
	}
	if m.Status != domain.MatchPending {
		return fmt.Errorf("match %s is %s: %w", id, m.Status, domain.ErrInvalidStateTransition)
	}
	m.Confidence = confidence
	m.Reasons = reasons
	m.AlgorithmVersion = algorithmVersion
	r.s.matches[id] = m
	return nil
}

func (r *MatchStore) Confirm(ctx context.Context, id, actor string, at time.Time) (domain.Match, error) {
	return r.transition(id, domain.MatchPending, func(m *domain.Match) {
		m.Status = domain.MatchConfirmed
		m.ConfirmedAt = &at
		m.ConfirmedBy = &actor
	})
}

func (r *MatchStore) Reject(ctx context.Context, id, actor, reason string, at time.Time) (domain.Match, error) {
	return r.transition(id, domain.MatchPending, func(m *domain.Match) {
		m.Status = domain.MatchRejected
		m.RejectedAt = &at
		m.RejectedBy = &actor
		m.RejectionReason = &reason
	})
}

func (r *MatchStore) MarkClaimed(ctx context.Context, id string) (domain.Match, error) {
	return r.transition(id, domain.MatchConfirmed, func(m *domain.Match) {
		m.Status = domain.MatchClaimed
	})
}

func (r *MatchStore) transition(id string, from domain.MatchStatus, apply func(*domain.Match)) (domain.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, err := r.getLocked(id)
	if err != nil {
		return domain.Match{}, err
	}
	if m.Status != from {
		return domain.Match{}, fmt.Errorf("match %s is %s: %w", id, m.Status, domain.ErrInvalidStateTransition)
	}
	apply(&m)
	m.Version++
	r.s.matches[id] = m
	return m, nil
}

func (r *MatchStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Match
	for id, m := range r.s.matches {
		if m.ExpiresAt.After(now) {
			continue
		}
		if m.Status != domain.MatchPending && m.Status != domain.MatchConfirmed {
			continue
		}
		if r.s.hasActiveClaimLocked(id, now) {
			continue
		}
		m.Status = domain.MatchExpired
		m.Version++
		r.s.matches[id] = m
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) hasActiveClaimLocked(matchID string, now time.Time) bool {
	for _, c := range s.claims {
		if c.MatchID == matchID && c.Active(now) {
			return true
		}
	}
	return false
}

// Claims

func (r *ClaimStore) Create(ctx context.Context, c domain.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.claims {
		if existing.MatchID == c.MatchID && existing.Status == domain.ClaimPendingVerification {
			return domain.ErrDuplicateClaim
		}
	}
	r.s.claims[c.ID] = c
	return nil
}

func (r *ClaimStore) Get(ctx context.Context, id string) (domain.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return domain.Claim{}, fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (r *ClaimStore) ActiveByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.claims {
		if c.MatchID == matchID && c.Active(now) {
			return c, true, nil
		}
	}
	return domain.Claim{}, false, nil
}

func (r *ClaimStore) ExpireStaleByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.claims {
		if c.MatchID != matchID || c.Status != domain.ClaimPendingVerification || c.ExpiresAt.After(now) {
			continue
		}
		c.Status = domain.ClaimExpired
		r.s.claims[id] = c
		return c, true, nil
	}
	return domain.Claim{}, false, nil
}

func (r *ClaimStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return 0, fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	c.Attempts++
	r.s.claims[id] = c
	return c.Attempts, nil
}

func (r *ClaimStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	if c.Status != domain.ClaimPendingVerification || !at.Before(c.ExpiresAt) {
		return fmt.Errorf("claim %s: %w", id, domain.ErrInvalidStateTransition)
	}
	c.Status = domain.ClaimVerified
	c.VerifiedAt = &at
	r.s.claims[id] = c
	return nil
}

func (r *ClaimStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Claim
	for id, c := range r.s.claims {
		if c.Status != domain.ClaimPendingVerification || c.ExpiresAt.After(now) {
			continue
		}
		c.Status = domain.ClaimExpired
		r.s.claims[id] = c
		out = append(out, c)
	}
	return out, nil
}
