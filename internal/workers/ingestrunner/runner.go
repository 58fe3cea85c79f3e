package ingestrunner

import (
	"context"
	"log"
	"time"

	"reclaim/internal/ports"
)

// Processor performs the matching work for one claimed ingest job.
type Processor interface {
	Process(ctx context.Context, job ports.IngestJob) error
}

// PassProcessor routes a job to the matching pass its kind names.
type PassProcessor struct{ Matcher ports.Matcher }

func (p PassProcessor) Process(ctx context.Context, job ports.IngestJob) error {
	if job.Kind == ports.JobEnhancedPass {
		return p.Matcher.EnhancedPass(ctx, job.ItemID)
	}
	return p.Matcher.InitialPass(ctx, job.ItemID)
}

// Run starts worker goroutines that claim ingest jobs and process them.
// Items are independent, so a failed job is marked failed and the rest of
// the queue keeps draining.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan ports.IngestJob, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						log.Printf("ingest: job claim error: %v", err)
						break
					}
					if !found {
						break
					}
					jobsCh <- job
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				err := processor.Process(ctx, job)
				// Bookkeeping runs on its own short context: at shutdown the
				// worker context is already cancelled, and a job claimed just
				// before must not be stranded in running.
				bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err != nil {
					_ = repo.MarkFailed(bctx, job.ID, err.Error())
					log.Printf("ingest: worker %d: job %s failed: %v", idx, job.ID, err)
				} else if err := repo.MarkCompleted(bctx, job.ID); err != nil {
					log.Printf("ingest: worker %d: complete err: %v", idx, err)
				}
				cancel()
			}
		}(i)
	}
}
