// Package daemon drives the orchestrator without a terminal UI and reports PR
// status changes to the log.
package daemon

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/poller"
	"github.com/marcin-skalski/prwatch/internal/worker"
)

const (
	PollInterval   = time.Second
	StatusInterval = time.Minute

	// maxPasses bounds one round; each pass applies results that may make
	// more work due (bootstrap, then list, then rollups).
	maxPasses = 5
)

// PRStatus is one listed PR with the rollup shown for it, if known.
type PRStatus struct {
	PR       domain.PullRequest
	Category domain.Category
	Known    bool
}

func (s PRStatus) CheckCategory() domain.Category {
	if !s.Known {
		return domain.CategoryPending
	}
	return s.Category
}

type Daemon struct {
	o      *poller.Orchestrator
	pool   *worker.Pool
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]domain.Category // by PR key
	seen map[string]bool
}

func New(o *poller.Orchestrator, pool *worker.Pool, logger *slog.Logger) *Daemon {
	return &Daemon{
		o:      o,
		pool:   pool,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]domain.Category),
		seen:   make(map[string]bool),
	}
}

func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon started", "poll_interval", PollInterval)

	d.Round(ctx)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	statusTicker := time.NewTicker(StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down")
			return nil
		case <-ticker.C:
			d.Round(ctx)
		case <-statusTicker.C:
			d.logSummary()
		}
	}
}

// Round runs whatever is due until nothing is, then logs status changes.
func (d *Daemon) Round(ctx context.Context) {
	for range maxPasses {
		if ctx.Err() != nil {
			return
		}
		jobs := d.o.Due(d.now())
		if len(jobs) == 0 {
			break
		}
		for _, res := range d.pool.Run(ctx, jobs) {
			d.report(d.o.Apply(res))
		}
	}
	d.logChanges()
}

func (d *Daemon) report(out poller.Outcome) {
	if out.Err != nil {
		d.logger.Error("refresh failed", "err", out.Err)
	}
	if out.Info != "" {
		d.logger.Info(out.Info)
	}
	if out.NeedsRepos {
		d.logger.Warn("no repositories configured, add them under repos in the config file")
	}
}

// Snapshot lists the current PRs with their rollups.
func (d *Daemon) Snapshot() []PRStatus {
	prs := d.o.PRs()
	out := make([]PRStatus, 0, len(prs))
	for _, pr := range prs {
		c, ok := d.o.DisplayedRollup(pr)
		out = append(out, PRStatus{PR: pr, Category: c, Known: ok})
	}
	return out
}

func (d *Daemon) logChanges() {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := make(map[string]bool)
	for _, s := range d.Snapshot() {
		key := s.PR.Key()
		current[key] = true
		if !s.Known {
			continue
		}
		prev, had := d.last[key]
		if had && prev == s.Category {
			continue
		}
		d.last[key] = s.Category
		d.logger.Info("PR status",
			"pr", key,
			"title", s.PR.Title,
			"status", s.Category,
			"previous", prev,
			"draft", s.PR.Draft,
			"url", s.PR.URL,
		)
	}

	for key := range d.seen {
		if !current[key] {
			d.logger.Info("PR left the list", "pr", key)
			delete(d.last, key)
		}
	}
	d.seen = current
}

func (d *Daemon) logSummary() {
	snap := d.Snapshot()
	counts := domain.Summarize(snap)
	d.logger.Info("status summary",
		"prs", len(snap),
		"repos", len(d.o.Repos()),
		"failed", counts[domain.CategoryFailed],
		"in_progress", counts[domain.CategoryRunning]+counts[domain.CategoryQueued]+counts[domain.CategoryPending],
		"passed", counts[domain.CategoryPassed],
	)
	for _, s := range snap {
		if s.Known && s.Category == domain.CategoryFailed {
			d.logger.Info("→ failing PR", "pr", s.PR.Key(), "title", s.PR.Title)
		}
	}
}

// Failing returns the keys of PRs whose rollup is failed, sorted.
func (d *Daemon) Failing() []string {
	var keys []string
	for _, s := range d.Snapshot() {
		if s.Known && s.Category == domain.CategoryFailed {
			keys = append(keys, s.PR.Key())
		}
	}
	slices.Sort(keys)
	return keys
}
