package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reclaim/internal/domain"
)

const matchCols = `id, lost_item_id, found_item_id, confidence, reasons, algorithm_version,
	status, version, created_at, expires_at, confirmed_at, confirmed_by,
	rejected_at, rejected_by, rejection_reason`

func (s *MatchStore) Create(ctx context.Context, m domain.Match) error {
	reasons, err := json.Marshal(m.Reasons)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO matches (id, lost_item_id, found_item_id, confidence, reasons, algorithm_version, status, version, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.LostItemID, m.FoundItemID, m.Confidence, reasons, m.AlgorithmVersion,
		m.Status, m.Version, m.CreatedAt, m.ExpiresAt)
	return wrapTimeout(err)
}

func (s *MatchStore) Get(ctx context.Context, id string) (domain.Match, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+matchCols+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
	}
	return m, wrapTimeout(err)
}

func (s *MatchStore) GetByPair(ctx context.Context, lostItemID, foundItemID string) (domain.Match, bool, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+matchCols+` FROM matches WHERE lost_item_id = $1 AND found_item_id = $2`, lostItemID, foundItemID)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, false, nil
	}
	if err != nil {
		return domain.Match{}, false, wrapTimeout(err)
	}
	return m, true, nil
}

func (s *MatchStore) ListByItem(ctx context.Context, itemID string) ([]domain.Match, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+matchCols+` FROM matches
		WHERE (lost_item_id = $1 OR found_item_id = $1)
		  AND status IN ('pending', 'confirmed')
		ORDER BY confidence DESC
	`, itemID)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, wrapTimeout(rows.Err())
}

// UpdateScore replaces score and reasons while the match is still pending.
// Losing a race with a user transition surfaces as ErrInvalidStateTransition
// so the caller can drop the update.
func (s *MatchStore) UpdateScore(ctx context.Context, id string, confidence float64, reasons []domain.MatchReason, algorithmVersion string) error {
	data, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE matches SET confidence = $2, reasons = $3, algorithm_version = $4
		WHERE id = $1 AND status = 'pending'
	`, id, confidence, data, algorithmVersion)
	if err != nil {
		return wrapTimeout(err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

func (s *MatchStore) Confirm(ctx context.Context, id, actor string, at time.Time) (domain.Match, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE matches SET status = 'confirmed', confirmed_at = $3, confirmed_by = $2, version = version + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING `+matchCols, id, actor, at)
	return s.scanTransition(ctx, id, row)
}

func (s *MatchStore) Reject(ctx context.Context, id, actor, reason string, at time.Time) (domain.Match, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE matches SET status = 'rejected', rejected_at = $4, rejected_by = $2, rejection_reason = $3, version = version + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING `+matchCols, id, actor, reason, at)
	return s.scanTransition(ctx, id, row)
}

func (s *MatchStore) MarkClaimed(ctx context.Context, id string) (domain.Match, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE matches SET status = 'claimed', version = version + 1
		WHERE id = $1 AND status = 'confirmed'
		RETURNING `+matchCols, id)
	return s.scanTransition(ctx, id, row)
}

// ExpireDue sweeps matches past their deadline, skipping any with a live
// claim. Already-expired rows never qualify, so re-running is a no-op.
func (s *MatchStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Match, error) {
	rows, err := s.db.Pool.Query(ctx, `
		UPDATE matches m SET status = 'expired', version = version + 1
		WHERE m.expires_at <= $1
		  AND m.status IN ('pending', 'confirmed')
		  AND NOT EXISTS (
			SELECT 1 FROM claims c
			WHERE c.match_id = m.id
			  AND c.status = 'pending_verification'
			  AND c.expires_at > $1)
		RETURNING `+matchCols, now)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, wrapTimeout(rows.Err())
}

// scanTransition turns a zero-row guarded update into the right sentinel:
// unknown id is not-found, anything else lost the check-and-set.
func (s *MatchStore) scanTransition(ctx context.Context, id string, row pgx.Row) (domain.Match, error) {
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, s.transitionConflict(ctx, id)
	}
	return m, wrapTimeout(err)
}

func (s *MatchStore) transitionConflict(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("match %s is %s: %w", id, current.Status, domain.ErrInvalidStateTransition)
}

func scanMatch(row pgx.Row) (domain.Match, error) {
	var m domain.Match
	var reasons []byte
	err := row.Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.Confidence, &reasons, &m.AlgorithmVersion,
		&m.Status, &m.Version, &m.CreatedAt, &m.ExpiresAt, &m.ConfirmedAt, &m.ConfirmedBy,
		&m.RejectedAt, &m.RejectedBy, &m.RejectionReason)
	if err != nil {
		return m, err
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &m.Reasons); err != nil {
			return m, err
		}
	}
	return m, nil
}
