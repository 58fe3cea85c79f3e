package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"reclaim/internal/services/claims"
	"reclaim/internal/services/lifecycle"
)

// Run drives the recurring expiry sweep until ctx is cancelled. Claims are
// swept before matches so a claim that lapses in this tick releases its
// match for the same tick. Both sweeps are idempotent, so an interrupted run
// is safe to repeat.
func Run(ctx context.Context, lc *lifecycle.Service, cl *claims.Service, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n, err := cl.SweepExpired(ctx); err != nil {
				log.Printf("sweeper: claims: %v", err)
			} else if n > 0 {
				log.Printf("sweeper: expired %d claim(s)", n)
			}
			if n, err := lc.SweepExpired(ctx); err != nil {
				log.Printf("sweeper: matches: %v", err)
			} else if n > 0 {
				log.Printf("sweeper: expired %d match(es)", n)
			}
		}
	}
}
