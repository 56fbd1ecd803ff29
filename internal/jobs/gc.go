package jobs

import (
	"context"
	"time"
)

// GC removes terminal jobs created more than maxAge ago and returns how many were removed.
// Processing jobs are never collected.
func (r *Registry) GC(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.opts.Now().Add(-maxAge)
	removed := 0
	for id, e := range r.jobs {
		if !e.job.Status.Terminal() || !e.job.CreatedAt.Before(cutoff) {
			continue
		}
		delete(r.jobs, id)
		removed++
	}
	return removed
}

// StartGC runs [Registry.GC] every interval until ctx is done.
func (r *Registry) StartGC(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.GC(maxAge); n > 0 {
					r.logger.Info("collected old jobs", "removed", n, "remaining", r.Len())
				}
			}
		}
	}()
}
