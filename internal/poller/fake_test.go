package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/logging"
)

type fakeProvider struct {
	mu sync.Mutex

	viewer   string
	prs      []domain.PullRequest
	listErr  error
	checks   map[string][]domain.Check
	runs     map[string][]domain.WorkflowRun
	prChecks map[int][]domain.Check
	prRuns   map[int][]domain.WorkflowRun
	meta     map[int]domain.DetailMeta
	rerunErr error

	calls  map[string]int
	reruns [][]int64
	opened []int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		viewer:   "octocat",
		checks:   map[string][]domain.Check{},
		runs:     map[string][]domain.WorkflowRun{},
		prChecks: map[int][]domain.Check{},
		prRuns:   map[int][]domain.WorkflowRun{},
		meta:     map[int]domain.DetailMeta{},
		calls:    map[string]int{},
	}
}

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) Viewer(context.Context) (string, error) {
	f.record("viewer")
	if f.viewer == "" {
		return "", errBoom
	}
	return f.viewer, nil
}

func (f *fakeProvider) ListAuthoredPRs(_ context.Context, _ []string, _ string) ([]domain.PullRequest, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.PullRequest(nil), f.prs...), nil
}

func (f *fakeProvider) ChecksForSHA(_ context.Context, _, _, sha string) ([]domain.Check, error) {
	f.record("checks:" + sha)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks[sha], nil
}

func (f *fakeProvider) WorkflowRunsForSHA(_ context.Context, _, _, sha string) ([]domain.WorkflowRun, error) {
	f.record("runs:" + sha)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[sha], nil
}

func (f *fakeProvider) PRChecks(_ context.Context, _, _ string, number int) ([]domain.Check, error) {
	f.record("pr-checks")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prChecks[number], nil
}

func (f *fakeProvider) PRWorkflowRuns(_ context.Context, _, _ string, number int) ([]domain.WorkflowRun, error) {
	f.record("pr-runs")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prRuns[number], nil
}

func (f *fakeProvider) PRDetailMeta(_ context.Context, _, _ string, number int) (domain.DetailMeta, error) {
	f.record("pr-meta")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[number], nil
}

func (f *fakeProvider) RerunFailedWorkflowRuns(_ context.Context, _, _ string, ids []int64) (int, error) {
	f.record("rerun")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rerunErr != nil {
		return 0, f.rerunErr
	}
	f.reruns = append(f.reruns, ids)
	return len(ids), nil
}

func (f *fakeProvider) OpenInBrowser(_ context.Context, _, _ string, number int) error {
	f.record("open")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, number)
	return nil
}

type fakeConfigs struct {
	cfg     config.Config
	saved   []config.Config
	saveErr error
}

func (f *fakeConfigs) Load() (*config.Config, error) {
	cfg := f.cfg
	return &cfg, nil
}

func (f *fakeConfigs) Save(cfg *config.Config) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *cfg)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	o       *Orchestrator
	gh      *fakeProvider
	configs *fakeConfigs
	clock   *fakeClock
}

func newHarness(t *testing.T, repos ...string) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	gh := newFakeProvider()
	configs := &fakeConfigs{cfg: config.Config{Repos: repos, RefreshSeconds: 5}}
	store := NewStore(5*time.Second, clock.Now)
	o := New(gh, configs, store, logging.Discard(), WithClock(clock.Now))
	return &harness{o: o, gh: gh, configs: configs, clock: clock}
}

// tick plans and runs one round of jobs synchronously and returns the outcomes
// keyed by job kind.
func (h *harness) tick() map[JobKind][]Outcome {
	out := map[JobKind][]Outcome{}
	for _, job := range h.o.Due(h.clock.Now()) {
		res := job.Run(context.Background())
		out[job.Kind] = append(out[job.Kind], h.o.Apply(res))
	}
	return out
}

// boot runs bootstrap and the first listing.
func (h *harness) boot(t *testing.T) {
	t.Helper()
	h.tick()
	if h.o.Booting() {
		t.Fatal("bootstrap did not complete")
	}
	h.tick()
}

func pr(number int, sha string) domain.PullRequest {
	return domain.PullRequest{
		Number:    number,
		Title:     "PR",
		Owner:     "foo",
		Repo:      "bar",
		HeadSHA:   sha,
		UpdatedAt: time.Date(2026, 3, 1, 10, number, 0, 0, time.UTC),
	}
}

func check(name string, c domain.Category) domain.Check {
	return domain.Check{Name: name, Category: c}
}

func run(id int64, c domain.Category) domain.WorkflowRun {
	return domain.WorkflowRun{ID: id, Name: "CI", Status: "completed", Conclusion: "failure", Category: c}
}

var errBoom = errors.New("boom")
