package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcin-skalski/prwatch/internal/cache"
	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/domain"
)

type JobKind int

const (
	JobBootstrap JobKind = iota
	JobList
	JobRollup
	JobDetail
	JobRerun
	JobOpen
)

func (k JobKind) String() string {
	switch k {
	case JobBootstrap:
		return "bootstrap"
	case JobList:
		return "list"
	case JobRollup:
		return "rollup"
	case JobDetail:
		return "detail"
	case JobRerun:
		return "rerun"
	case JobOpen:
		return "open"
	}
	return "unknown"
}

// Job is one unit of provider work. Run is safe to call off the loop thread;
// its Result must be handed back to Apply on the loop thread.
type Job struct {
	Kind JobKind
	Key  string
	run  func(ctx context.Context) Result
}

func (j Job) Run(ctx context.Context) Result {
	return j.run(ctx)
}

type Result struct {
	Kind JobKind
	Key  string
	Err  error

	// rerun only
	RunIDs    []int64
	Requested int
}

// Outcome tells the caller what changed after Apply.
type Outcome struct {
	ListChanged bool
	Dropped     bool
	Info        string
	Err         error
	// NeedsRepos is set when bootstrap finds nothing to watch.
	NeedsRepos bool

	// RefetchAfter asks the caller to call ForceDetail(RefetchKey) once the
	// delay has passed.
	RefetchAfter time.Duration
	RefetchKey   string
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator decides which tier keys need fetching and folds the results back
// in. Every method except Job.Run is meant to be called from one goroutine.
type Orchestrator struct {
	provider Provider
	configs  ConfigStore
	store    *Store
	logger   *slog.Logger
	now      func() time.Time

	viewer   string
	cfg      *config.Config
	repos    []string
	// reposSet marks repos chosen by the user, which a late bootstrap must
	// not replace with the file's
	reposSet bool
	selected string
	editing  bool

	prs         []domain.PullRequest
	listLanded  bool
	lastRefresh time.Time

	// planned holds jobs handed out by Due and not yet applied
	planned map[string]bool
}

func New(provider Provider, configs ConfigStore, store *Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		configs:  configs,
		store:    store,
		logger:   logger,
		now:      time.Now,
		planned:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func plannedKey(kind JobKind, key string) string {
	return kind.String() + ":" + key
}

func (o *Orchestrator) Store() *Store { return o.store }

func (o *Orchestrator) Viewer() string { return o.viewer }

func (o *Orchestrator) Repos() []string { return slices.Clone(o.repos) }

func (o *Orchestrator) Selected() string { return o.selected }

// PRs is the last successful listing for the current repos and viewer.
func (o *Orchestrator) PRs() []domain.PullRequest { return o.prs }

func (o *Orchestrator) LastRefresh() time.Time { return o.lastRefresh }

func (o *Orchestrator) Booting() bool { return o.viewer == "" }

func (o *Orchestrator) Editing() bool { return o.editing }

// SetEditing pauses list polling while the repo editor is open.
func (o *Orchestrator) SetEditing(editing bool) { o.editing = editing }

func (o *Orchestrator) listEnabled() bool {
	return o.viewer != "" && len(o.repos) > 0
}

func (o *Orchestrator) isPlanned(kind JobKind, key string) bool {
	return o.planned[plannedKey(kind, key)]
}

// Due plans the jobs needed at now. A key that already has a job out is never
// planned twice.
func (o *Orchestrator) Due(now time.Time) []Job {
	var jobs []Job

	if o.viewer == "" {
		if d := o.store.Bootstrap.Decide(BootstrapKey, now); d.Action == cache.Refetch {
			jobs = o.plan(jobs, o.bootstrapJob(), d)
		}
		return jobs
	}

	if o.listEnabled() && !o.editing {
		key := ListKey(o.repos, o.viewer)
		if d := o.store.PRs.Decide(key, now); d.Action == cache.Refetch {
			jobs = o.plan(jobs, o.listJob(key), d)
		}
	}

	// stale rollups are only picked up when a new snapshot lands; between
	// snapshots only missing or invalidated keys are fetched
	landed := o.listLanded
	o.listLanded = false
	seen := make(map[string]bool, len(o.prs))
	for _, pr := range o.prs {
		key := pr.RollupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		d := o.store.Rollups.Decide(key, now)
		if d.Action != cache.Refetch {
			continue
		}
		if !landed && d.Reason == cache.ReasonStale {
			continue
		}
		jobs = o.plan(jobs, o.rollupJob(pr), d)
	}

	if pr, ok := o.SelectedPR(); ok {
		if d := o.store.Details.Decide(pr.Key(), now); d.Action == cache.Refetch {
			jobs = o.plan(jobs, o.detailJob(pr), d)
		}
	}

	return jobs
}

func (o *Orchestrator) plan(jobs []Job, job Job, d cache.Decision) []Job {
	pk := plannedKey(job.Kind, job.Key)
	if o.planned[pk] {
		return jobs
	}
	o.planned[pk] = true
	o.logger.Debug("planned fetch", "tier", job.Kind.String(), "key", job.Key, "reason", string(d.Reason))
	return append(jobs, job)
}

func (o *Orchestrator) bootstrapJob() Job {
	return Job{Kind: JobBootstrap, Key: BootstrapKey, run: func(ctx context.Context) Result {
		_, err := o.store.Bootstrap.Fetch(ctx, BootstrapKey, func(ctx context.Context) (Bootstrap, error) {
			var b Bootstrap
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				viewer, err := o.provider.Viewer(gctx)
				b.Viewer = viewer
				return err
			})
			g.Go(func() error {
				cfg, err := o.configs.Load()
				b.Config = cfg
				return err
			})
			return b, g.Wait()
		})
		return Result{Kind: JobBootstrap, Key: BootstrapKey, Err: err}
	}}
}

func (o *Orchestrator) listJob(key string) Job {
	repos := slices.Clone(o.repos)
	viewer := o.viewer
	return Job{Kind: JobList, Key: key, run: func(ctx context.Context) Result {
		_, err := o.store.PRs.Fetch(ctx, key, func(ctx context.Context) ([]domain.PullRequest, error) {
			return o.provider.ListAuthoredPRs(ctx, repos, viewer)
		})
		return Result{Kind: JobList, Key: key, Err: err}
	}}
}

func (o *Orchestrator) rollupJob(pr domain.PullRequest) Job {
	key := pr.RollupKey()
	return Job{Kind: JobRollup, Key: key, run: func(ctx context.Context) Result {
		_, err := o.store.Rollups.Fetch(ctx, key, func(ctx context.Context) (domain.Category, error) {
			var (
				checks []domain.Check
				runs   []domain.WorkflowRun
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				checks, err = o.provider.ChecksForSHA(gctx, pr.Owner, pr.Repo, pr.HeadSHA)
				return err
			})
			g.Go(func() (err error) {
				runs, err = o.provider.WorkflowRunsForSHA(gctx, pr.Owner, pr.Repo, pr.HeadSHA)
				return err
			})
			if err := g.Wait(); err != nil {
				return "", err
			}
			return domain.Rollup(checks, runs), nil
		})
		return Result{Kind: JobRollup, Key: key, Err: err}
	}}
}

func (o *Orchestrator) detailJob(pr domain.PullRequest) Job {
	key := pr.Key()
	return Job{Kind: JobDetail, Key: key, run: func(ctx context.Context) Result {
		_, err := o.store.Details.Fetch(ctx, key, func(ctx context.Context) (DetailData, error) {
			return fetchDetail(ctx, o.provider, pr)
		})
		return Result{Kind: JobDetail, Key: key, Err: err}
	}}
}

func fetchDetail(ctx context.Context, p Provider, pr domain.PullRequest) (DetailData, error) {
	var (
		checks []domain.Check
		runs   []domain.WorkflowRun
		meta   domain.DetailMeta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		checks, err = p.PRChecks(gctx, pr.Owner, pr.Repo, pr.Number)
		return err
	})
	g.Go(func() (err error) {
		runs, err = p.PRWorkflowRuns(gctx, pr.Owner, pr.Repo, pr.Number)
		return err
	})
	g.Go(func() (err error) {
		meta, err = p.PRDetailMeta(gctx, pr.Owner, pr.Repo, pr.Number)
		return err
	})
	if err := g.Wait(); err != nil {
		return DetailData{}, err
	}

	checks = domain.MarkRequired(checks, meta.RequiredCheckNames)
	return DetailData{
		Checks:         checks,
		Runs:           runs,
		ReviewDecision: meta.ReviewDecision,
		Rollup:         domain.Rollup(checks, runs),
	}, nil
}

// Apply folds a finished job back in. Results whose key no longer matches the
// current list or selection are dropped.
func (o *Orchestrator) Apply(res Result) Outcome {
	delete(o.planned, plannedKey(res.Kind, res.Key))

	switch res.Kind {
	case JobBootstrap:
		return o.applyBootstrap(res)
	case JobList:
		return o.applyList(res)
	case JobRollup:
		return o.applyRollup(res)
	case JobDetail:
		return o.applyDetail(res)
	case JobRerun:
		return o.applyRerun(res)
	case JobOpen:
		if res.Err != nil {
			return Outcome{Err: res.Err}
		}
		return Outcome{Info: "Opened " + res.Key + " in browser"}
	}
	return Outcome{}
}

func (o *Orchestrator) applyBootstrap(res Result) Outcome {
	if res.Err != nil {
		o.logger.Error("bootstrap failed", "err", res.Err)
		return Outcome{Err: res.Err}
	}
	b, ok := o.store.Bootstrap.Get(BootstrapKey)
	if !ok {
		return Outcome{}
	}
	o.viewer = b.Viewer
	cfg := b.Config
	if cfg != nil && o.reposSet {
		next := *cfg
		next.Repos = slices.Clone(o.repos)
		cfg = &next
	}
	o.cfg = cfg
	if cfg != nil {
		o.repos = slices.Clone(cfg.Repos)
		if refresh := cfg.RefreshInterval(); refresh > 0 {
			o.store.PRs.SetPolicy(listPolicy(refresh))
		}
	}
	o.logger.Info("bootstrapped", "viewer", o.viewer, "repos", len(o.repos))
	if len(o.repos) == 0 {
		return Outcome{NeedsRepos: true}
	}
	return Outcome{}
}

func (o *Orchestrator) applyList(res Result) Outcome {
	if res.Key != ListKey(o.repos, o.viewer) {
		o.logger.Debug("dropping stale list result", "key", res.Key)
		return Outcome{Dropped: true}
	}
	if res.Err != nil {
		o.logger.Warn("list fetch failed", "err", res.Err)
		return Outcome{Err: res.Err}
	}
	prs, ok := o.store.PRs.Get(res.Key)
	if !ok {
		return Outcome{}
	}

	o.prs = prs
	o.listLanded = true
	o.lastRefresh = o.now()

	if n := o.store.Rollups.Retain(o.keys(domain.PullRequest.RollupKey)); n > 0 {
		o.logger.Debug("dropped rollups", "count", n)
	}
	o.store.Details.Retain(o.keys(domain.PullRequest.Key))
	o.store.PRs.Retain([]string{res.Key})

	return Outcome{ListChanged: true}
}

func (o *Orchestrator) applyRollup(res Result) Outcome {
	keys := o.keys(domain.PullRequest.RollupKey)
	if !slices.Contains(keys, res.Key) {
		// the commit left the list while its fetch was out
		o.store.Rollups.Retain(keys)
		return Outcome{Dropped: true}
	}
	if res.Err != nil {
		o.logger.Warn("rollup fetch failed", "key", res.Key, "err", res.Err)
	}
	return Outcome{}
}

func (o *Orchestrator) applyDetail(res Result) Outcome {
	pr, ok := o.SelectedPR()
	if !ok || pr.Key() != res.Key {
		o.logger.Debug("dropping detail for unselected PR", "key", res.Key)
		o.store.Details.Retain(o.keys(domain.PullRequest.Key))
		return Outcome{Dropped: true}
	}
	if res.Err != nil {
		o.logger.Warn("detail fetch failed", "key", res.Key, "err", res.Err)
		return Outcome{Err: res.Err}
	}
	detail, ok := o.store.Details.Get(res.Key)
	if !ok {
		return Outcome{}
	}
	// detail carries required markers the periodic rollup lacks, so it wins
	o.store.Rollups.Set(pr.RollupKey(), detail.Rollup)
	return Outcome{}
}

func (o *Orchestrator) keys(key func(domain.PullRequest) string) []string {
	out := make([]string, 0, len(o.prs))
	for _, pr := range o.prs {
		out = append(out, key(pr))
	}
	return out
}

// Select makes key the selected PR. With force the detail tier refetches even
// if its cadence says otherwise.
func (o *Orchestrator) Select(key string, force bool) {
	if key != o.selected {
		o.logger.Debug("selected PR", "key", key)
	}
	o.selected = key
	if force && key != "" {
		o.store.Details.Invalidate(key)
	}
}

// ForceDetail invalidates the detail for key if it is still selected.
func (o *Orchestrator) ForceDetail(key string) {
	if key != "" && key == o.selected {
		o.store.Details.Invalidate(key)
	}
}

// SelectedPR returns the selected PR from the current snapshot. A selection
// whose PR left the list yields false.
func (o *Orchestrator) SelectedPR() (domain.PullRequest, bool) {
	if o.selected == "" {
		return domain.PullRequest{}, false
	}
	for _, pr := range o.prs {
		if pr.Key() == o.selected {
			return pr, true
		}
	}
	return domain.PullRequest{}, false
}

// Detail returns the cached detail for the selected PR.
func (o *Orchestrator) Detail() (DetailData, bool) {
	pr, ok := o.SelectedPR()
	if !ok {
		return DetailData{}, false
	}
	return o.store.Details.Get(pr.Key())
}

// DisplayedRollup picks the category to show for pr. The selected PR prefers
// its detail rollup, then the rollup tier, then pending. Other PRs report false
// until their rollup has been fetched.
func (o *Orchestrator) DisplayedRollup(pr domain.PullRequest) (domain.Category, bool) {
	if pr.Key() == o.selected {
		if d, ok := o.store.Details.Get(pr.Key()); ok {
			return d.Rollup, true
		}
		if c, ok := o.store.Rollups.Get(pr.RollupKey()); ok {
			return c, true
		}
		return domain.CategoryPending, true
	}
	return o.store.Rollups.Get(pr.RollupKey())
}

// Rollups maps every listed PR key to its displayed category.
func (o *Orchestrator) Rollups() map[string]domain.Category {
	out := make(map[string]domain.Category, len(o.prs))
	for _, pr := range o.prs {
		if c, ok := o.DisplayedRollup(pr); ok {
			out[pr.Key()] = c
		}
	}
	return out
}

// Loading reports whether the overview or the selected detail is waiting on a
// fetch with nothing cached to show.
func (o *Orchestrator) Loading() (overview, detail bool) {
	if o.listEnabled() {
		key := ListKey(o.repos, o.viewer)
		_, cached := o.store.PRs.Get(key)
		overview = o.isPlanned(JobList, key) || (!cached && !o.editing)
	}
	if pr, ok := o.SelectedPR(); ok {
		detail = o.isPlanned(JobDetail, pr.Key())
	}
	return overview, detail
}

// Syncing reports whether any job is out.
func (o *Orchestrator) Syncing() bool {
	return len(o.planned) > 0
}

// RefreshNow invalidates the list, every rollup and the selected detail.
func (o *Orchestrator) RefreshNow() {
	if _, ok := o.store.Bootstrap.Get(BootstrapKey); !ok {
		o.store.Bootstrap.Invalidate(BootstrapKey)
	}
	if o.listEnabled() {
		o.store.PRs.Invalidate(ListKey(o.repos, o.viewer))
	}
	o.store.Rollups.InvalidateAll()
	if o.selected != "" {
		o.store.Details.Invalidate(o.selected)
	}
	o.logger.Info("manual refresh")
}

// SetRepos replaces the watched repositories, persists them and forgets the
// previous list, rollups and selection. Before bootstrap has loaded the config
// it is read through the config store first, so the save never drops the
// rest of the file.
func (o *Orchestrator) SetRepos(repos []string) error {
	if o.configs != nil {
		base := o.cfg
		if base == nil {
			loaded, err := o.configs.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			base = loaded
		}
		next := *base
		next.Repos = slices.Clone(repos)
		if err := o.configs.Save(&next); err != nil {
			return fmt.Errorf("save repos: %w", err)
		}
		o.cfg = &next
	}

	o.repos = slices.Clone(repos)
	o.reposSet = true
	o.selected = ""
	o.prs = nil
	o.listLanded = false
	o.store.PRs.Retain(nil)
	o.store.Rollups.Retain(nil)
	o.store.Details.Retain(nil)
	o.logger.Info("watched repos changed", "repos", len(repos))
	return nil
}
