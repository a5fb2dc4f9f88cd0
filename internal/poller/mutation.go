package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/marcin-skalski/prwatch/internal/cache"
	"github.com/marcin-skalski/prwatch/internal/domain"
)

// Reconciliation is the follow-up to a remote mutation: patch one cached
// entry right away, invalidate whatever depends on it, then refetch the
// patched entry after a delay to pick up the remote's real state.
type Reconciliation[T any] struct {
	Tier         *cache.Tier[T]
	Key          string
	Patch        func(T) T
	Cascade      []func()
	RefetchAfter time.Duration
}

// Reconcile applies r and returns the outcome that schedules its delayed
// refetch. A missing entry skips the patch but still cascades.
func Reconcile[T any](r Reconciliation[T]) Outcome {
	if r.Patch != nil {
		r.Tier.Update(r.Key, r.Patch)
	}
	for _, invalidate := range r.Cascade {
		invalidate()
	}
	return Outcome{RefetchAfter: r.RefetchAfter, RefetchKey: r.Key}
}

// FailedRunIDs lists the workflow runs of d that are currently failed.
func FailedRunIDs(d DetailData) []int64 {
	var ids []int64
	for _, r := range d.Runs {
		if r.Category == domain.CategoryFailed {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RerunFailed prepares a rerun of the selected PR's failed workflow runs. When
// there is nothing to rerun it returns an empty job and an informational message.
func (o *Orchestrator) RerunFailed() (job Job, info string, err error) {
	pr, ok := o.SelectedPR()
	if !ok {
		return Job{}, "", domain.ErrNoSelection
	}
	detail, _ := o.store.Details.Get(pr.Key())
	ids := FailedRunIDs(detail)
	if len(ids) == 0 {
		return Job{}, "No failed workflow runs to rerun for " + pr.Key(), nil
	}

	key := pr.Key()
	return Job{Kind: JobRerun, Key: key, run: func(ctx context.Context) Result {
		n, err := o.provider.RerunFailedWorkflowRuns(ctx, pr.Owner, pr.Repo, ids)
		return Result{Kind: JobRerun, Key: key, Err: err, RunIDs: ids, Requested: n}
	}}, "", nil
}

func (o *Orchestrator) applyRerun(res Result) Outcome {
	if res.Err != nil {
		o.logger.Error("rerun failed", "key", res.Key, "err", res.Err)
		return Outcome{Err: res.Err}
	}
	o.logger.Info("rerun requested", "key", res.Key, "runs", res.Requested)

	ids := make(map[int64]bool, len(res.RunIDs))
	for _, id := range res.RunIDs {
		ids[id] = true
	}

	out := Reconcile(Reconciliation[DetailData]{
		Tier: o.store.Details,
		Key:  res.Key,
		Patch: func(d DetailData) DetailData {
			return markRequested(d, ids)
		},
		Cascade: []func(){
			o.store.Rollups.InvalidateAll,
			func() { o.store.PRs.Invalidate(ListKey(o.repos, o.viewer)) },
		},
		RefetchAfter: RerunSettleDelay,
	})
	out.Info = rerunInfo(res.Requested)
	return out
}

// markRequested returns a copy of d with the given runs moved back to
// requested and the rollup forced to running.
func markRequested(d DetailData, ids map[int64]bool) DetailData {
	runs := make([]domain.WorkflowRun, len(d.Runs))
	copy(runs, d.Runs)
	for i, r := range runs {
		if !ids[r.ID] {
			continue
		}
		r.Status = "requested"
		r.Conclusion = ""
		r.Category = domain.CategoryPending
		runs[i] = r
	}
	d.Runs = runs
	d.Rollup = domain.CategoryRunning
	return d
}

func rerunInfo(n int) string {
	if n == 1 {
		return "Requested rerun of 1 workflow run"
	}
	return fmt.Sprintf("Requested rerun of %d workflow runs", n)
}

// Open prepares opening pr in the browser.
func (o *Orchestrator) Open(pr domain.PullRequest) Job {
	return Job{Kind: JobOpen, Key: pr.Key(), run: func(ctx context.Context) Result {
		err := o.provider.OpenInBrowser(ctx, pr.Owner, pr.Repo, pr.Number)
		return Result{Kind: JobOpen, Key: pr.Key(), Err: err}
	}}
}
