package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"reclaim/internal/domain"
)

type DB struct {
	Pool *pgxpool.Pool
}

// One store per aggregate, all sharing the pool. Keeps repository method
// sets aligned with the ports without name collisions on a single receiver.

type ItemStore struct{ db *DB }

func (db *DB) Items() *ItemStore { return &ItemStore{db: db} }

type MatchStore struct{ db *DB }

func (db *DB) Matches() *MatchStore { return &MatchStore{db: db} }

type ClaimStore struct{ db *DB }

func (db *DB) Claims() *ClaimStore { return &ClaimStore{db: db} }

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() { db.Pool.Close() }

// wrapTimeout maps a deadline-exceeded query error onto the retryable
// timeout sentinel; other errors pass through untouched.
func wrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
