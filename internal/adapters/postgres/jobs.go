package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"reclaim/internal/ports"
)

func (db *DB) Enqueue(ctx context.Context, kind ports.JobKind, itemID string) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO ingest_jobs (kind, item_id) VALUES ($1, $2) RETURNING id
	`, kind, itemID).Scan(&id)
	return id, wrapTimeout(err)
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it
// running, so any number of workers can drain the queue without stepping on
// each other.
func (db *DB) ClaimNext(ctx context.Context) (job ports.IngestJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id, kind, item_id FROM ingest_jobs
		WHERE status = 'queued'
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&job.ID, &job.Kind, &job.ItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE ingest_jobs SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1
	`, job.ID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = 'completed', finished_at = now() WHERE id = $1
	`, jobID)
	return wrapTimeout(err)
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = 'failed', finished_at = now(), failure_reason = $2 WHERE id = $1
	`, jobID, reason)
	return wrapTimeout(err)
}
