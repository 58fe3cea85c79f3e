package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reclaim/internal/domain"
)

const claimCols = `id, match_id, claimant_ref, contact_method, contact_value,
	verification_code, attempts, status, created_at, expires_at, verified_at`

// Create inserts a claim. The partial unique index on pending claims per
// match backs the at-most-one-active-claim invariant even under concurrent
// initiations.
func (s *ClaimStore) Create(ctx context.Context, c domain.Claim) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO claims (id, match_id, claimant_ref, contact_method, contact_value, verification_code, attempts, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.MatchID, c.ClaimantRef, c.ContactMethod, c.ContactValue,
		c.VerificationCode, c.Attempts, c.Status, c.CreatedAt, c.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicateClaim
	}
	return wrapTimeout(err)
}

func (s *ClaimStore) Get(ctx context.Context, id string) (domain.Claim, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	return c, wrapTimeout(err)
}

func (s *ClaimStore) ActiveByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT `+claimCols+` FROM claims
		WHERE match_id = $1 AND status = 'pending_verification' AND expires_at > $2
	`, matchID, now)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, wrapTimeout(err)
	}
	return c, true, nil
}

func (s *ClaimStore) ExpireStaleByMatch(ctx context.Context, matchID string, now time.Time) (domain.Claim, bool, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE claims SET status = 'expired'
		WHERE match_id = $1 AND status = 'pending_verification' AND expires_at <= $2
		RETURNING `+claimCols, matchID, now)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, wrapTimeout(err)
	}
	return c, true, nil
}

func (s *ClaimStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.Pool.QueryRow(ctx, `
		UPDATE claims SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts
	`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	return attempts, wrapTimeout(err)
}

func (s *ClaimStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE claims SET status = 'verified', verified_at = $2
		WHERE id = $1 AND status = 'pending_verification' AND expires_at > $2
	`, id, at)
	if err != nil {
		return wrapTimeout(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim %s: %w", id, domain.ErrInvalidStateTransition)
	}
	return nil
}

func (s *ClaimStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Claim, error) {
	rows, err := s.db.Pool.Query(ctx, `
		UPDATE claims SET status = 'expired'
		WHERE status = 'pending_verification' AND expires_at <= $1
		RETURNING `+claimCols, now)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer rows.Close()

	var out []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapTimeout(rows.Err())
}

func scanClaim(row pgx.Row) (domain.Claim, error) {
	var c domain.Claim
	err := row.Scan(&c.ID, &c.MatchID, &c.ClaimantRef, &c.ContactMethod, &c.ContactValue,
		&c.VerificationCode, &c.Attempts, &c.Status, &c.CreatedAt, &c.ExpiresAt, &c.VerifiedAt)
	return c, err
}
