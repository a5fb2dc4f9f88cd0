// Package worker runs orchestrator jobs outside the interactive program,
// where no bubbletea runtime is there to execute commands.
package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcin-skalski/prwatch/internal/poller"
)

// DefaultLimit bounds how many jobs hit the provider at once.
const DefaultLimit = 4

type Pool struct {
	limit  int
	logger *slog.Logger
}

func New(limit int, logger *slog.Logger) *Pool {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Pool{limit: limit, logger: logger}
}

// Run executes jobs concurrently and returns their results in job order. A
// failing job does not cancel the others; its error travels in its Result.
func (p *Pool) Run(ctx context.Context, jobs []poller.Job) []poller.Result {
	results := make([]poller.Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			results[i] = job.Run(ctx)
			if err := results[i].Err; err != nil {
				p.logger.Debug("job failed", "kind", job.Kind, "key", job.Key, "err", err)
			} else {
				p.logger.Debug("job done", "kind", job.Kind, "key", job.Key, "took", time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
