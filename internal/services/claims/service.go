package claims

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log"
	"math/big"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/ports"
	"reclaim/internal/services/lifecycle"
)

const codeDigits = 6

// Service runs the claim verification protocol: a short random code is
// delivered out of band to the claimant's contact, and a bounded number of
// verification attempts inside the claim window resolves the parent match to
// claimed. Contact details stay inside this service and the direct
// notification path; they never appear in published events.
type Service struct {
	claims    ports.ClaimRepository
	matches   ports.MatchRepository
	lifecycle *lifecycle.Service
	events    ports.EventPublisher
	clock     clockwork.Clock
	cfg       config.Matching
}

func New(claims ports.ClaimRepository, matches ports.MatchRepository, lc *lifecycle.Service, events ports.EventPublisher, cfg config.Matching, clock clockwork.Clock) *Service {
	return &Service{claims: claims, matches: matches, lifecycle: lc, events: events, clock: clock, cfg: cfg}
}

// Initiate opens a claim on a confirmed match. At most one active claim may
// exist per match; the claim window runs independently of the match window
// and blocks match expiry while it is open.
func (s *Service) Initiate(ctx context.Context, matchID, claimantRef, contactMethod, contactValue string) (domain.Claim, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return domain.Claim{}, err
	}
	if m.Status != domain.MatchConfirmed {
		return domain.Claim{}, fmt.Errorf("%w: claims require a confirmed match, status is %s", domain.ErrInvalidStateTransition, m.Status)
	}

	now := s.clock.Now()
	if _, active, err := s.claims.ActiveByMatch(ctx, matchID, now); err != nil {
		return domain.Claim{}, err
	} else if active {
		return domain.Claim{}, domain.ErrDuplicateClaim
	}

	// A lapsed claim the sweep has not reached yet would still trip the
	// pending-claim uniqueness guard on insert; retire it here.
	if stale, ok, err := s.claims.ExpireStaleByMatch(ctx, matchID, now); err != nil {
		return domain.Claim{}, err
	} else if ok {
		if err := s.events.ClaimExpired(ctx, stale); err != nil {
			log.Printf("claims: expire event for %s: %v", stale.ID, err)
		}
	}

	code, err := generateCode()
	if err != nil {
		return domain.Claim{}, fmt.Errorf("generate verification code: %w", err)
	}
	c := domain.Claim{
		ID:               uuid.NewString(),
		MatchID:          matchID,
		ClaimantRef:      claimantRef,
		ContactMethod:    contactMethod,
		ContactValue:     contactValue,
		VerificationCode: code,
		Status:           domain.ClaimPendingVerification,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.ClaimTTL),
	}
	if err := s.claims.Create(ctx, c); err != nil {
		return domain.Claim{}, err
	}
	if err := s.events.ClaimInitiated(ctx, c); err != nil {
		log.Printf("claims: initiate event for %s: %v", c.ID, err)
	}
	return c, nil
}

// Verify checks the supplied code against the claim. A mismatch burns one of
// the bounded attempts and reports how many remain; the claim fails closed
// once they run out. Success resolves the parent match to claimed.
func (s *Service) Verify(ctx context.Context, claimID, code string) (domain.Claim, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return domain.Claim{}, err
	}
	now := s.clock.Now()
	if c.Status != domain.ClaimPendingVerification {
		return domain.Claim{}, fmt.Errorf("%w: claim is %s", domain.ErrClaimVerificationFailed, c.Status)
	}
	if !now.Before(c.ExpiresAt) {
		return domain.Claim{}, fmt.Errorf("%w: claim window has closed", domain.ErrClaimVerificationFailed)
	}
	if c.Attempts >= s.cfg.MaxVerifyAttempts {
		return domain.Claim{}, fmt.Errorf("%w: attempt limit reached", domain.ErrClaimVerificationFailed)
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(c.VerificationCode)) != 1 {
		attempts, err := s.claims.IncrementAttempts(ctx, claimID)
		if err != nil {
			return domain.Claim{}, err
		}
		remaining := s.cfg.MaxVerifyAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		return domain.Claim{}, fmt.Errorf("%w: incorrect code, %d attempt(s) remaining", domain.ErrClaimVerificationFailed, remaining)
	}

	if err := s.claims.MarkVerified(ctx, claimID, now); err != nil {
		return domain.Claim{}, err
	}
	c.Status = domain.ClaimVerified
	c.VerifiedAt = &now

	if _, err := s.lifecycle.ResolveClaim(ctx, c.MatchID); err != nil {
		return domain.Claim{}, fmt.Errorf("resolve match %s: %w", c.MatchID, err)
	}
	if err := s.events.ClaimVerified(ctx, c); err != nil {
		log.Printf("claims: verify event for %s: %v", c.ID, err)
	}
	return c, nil
}

// SweepExpired expires due claims, emitting claim.expired for each. Expiry
// unblocks the parent match for its own sweep.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.claims.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, c := range expired {
		if err := s.events.ClaimExpired(ctx, c); err != nil {
			log.Printf("claims: expire event for %s: %v", c.ID, err)
		}
	}
	return len(expired), nil
}

// generateCode draws a fresh short numeric code per claim; codes are never
// reused across claims.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
