package ports

import "context"

type JobKind string

const (
	JobInitialPass  JobKind = "initial_pass"
	JobEnhancedPass JobKind = "enhanced_pass"
)

type IngestJob struct {
	ID     string
	Kind   JobKind
	ItemID string
}

// JobRepository backs the ingest worker pool with a claimable queue; one job
// per inbound item notification.
type JobRepository interface {
	Enqueue(ctx context.Context, kind JobKind, itemID string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job IngestJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
