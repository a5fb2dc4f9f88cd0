// Package pollertest provides an in-memory poller.Provider for tests.
package pollertest

import (
	"context"
	"errors"
	"sync"

	"github.com/marcin-skalski/prwatch/internal/domain"
)

var ErrNoViewer = errors.New("gh: not logged in")

// Provider answers from its maps. Lock Mu when changing fields while jobs may
// be running.
type Provider struct {
	Mu sync.Mutex

	Login   string
	PRs     []domain.PullRequest
	ListErr error

	Checks map[string][]domain.Check       // by head sha
	Runs   map[string][]domain.WorkflowRun // by head sha

	DetailChecks map[int][]domain.Check
	DetailRuns   map[int][]domain.WorkflowRun
	Meta         map[int]domain.DetailMeta
	DetailErr    error

	RerunErr error
	OpenErr  error

	// OnChecks runs before ChecksForSHA answers, outside the lock.
	OnChecks func(sha string)

	Reruns      [][]int64
	Opened      []int
	ListedRepos [][]string

	calls map[string]int
}

func New() *Provider {
	return &Provider{
		Login:        "octocat",
		Checks:       map[string][]domain.Check{},
		Runs:         map[string][]domain.WorkflowRun{},
		DetailChecks: map[int][]domain.Check{},
		DetailRuns:   map[int][]domain.WorkflowRun{},
		Meta:         map[int]domain.DetailMeta{},
		calls:        map[string]int{},
	}
}

// SetPRs replaces the listed PRs.
func (p *Provider) SetPRs(prs ...domain.PullRequest) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.PRs = prs
}

// Calls reports how often a method ran: "viewer", "list", "checks",
// "runs", "pr-checks", "pr-runs", "pr-meta", "rerun" or "open".
func (p *Provider) Calls(name string) int {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.calls[name]
}

func (p *Provider) record(name string) {
	p.calls[name]++
}

func (p *Provider) Viewer(context.Context) (string, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("viewer")
	if p.Login == "" {
		return "", ErrNoViewer
	}
	return p.Login, nil
}

func (p *Provider) ListAuthoredPRs(_ context.Context, repos []string, _ string) ([]domain.PullRequest, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("list")
	p.ListedRepos = append(p.ListedRepos, append([]string(nil), repos...))
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return append([]domain.PullRequest(nil), p.PRs...), nil
}

func (p *Provider) ChecksForSHA(_ context.Context, _, _, sha string) ([]domain.Check, error) {
	if p.OnChecks != nil {
		p.OnChecks(sha)
	}
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("checks")
	return p.Checks[sha], nil
}

func (p *Provider) WorkflowRunsForSHA(_ context.Context, _, _, sha string) ([]domain.WorkflowRun, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("runs")
	return p.Runs[sha], nil
}

func (p *Provider) PRChecks(_ context.Context, _, _ string, number int) ([]domain.Check, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("pr-checks")
	if p.DetailErr != nil {
		return nil, p.DetailErr
	}
	return p.DetailChecks[number], nil
}

func (p *Provider) PRWorkflowRuns(_ context.Context, _, _ string, number int) ([]domain.WorkflowRun, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("pr-runs")
	return p.DetailRuns[number], nil
}

func (p *Provider) PRDetailMeta(_ context.Context, _, _ string, number int) (domain.DetailMeta, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("pr-meta")
	return p.Meta[number], nil
}

func (p *Provider) RerunFailedWorkflowRuns(_ context.Context, _, _ string, ids []int64) (int, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("rerun")
	if p.RerunErr != nil {
		return 0, p.RerunErr
	}
	p.Reruns = append(p.Reruns, ids)
	return len(ids), nil
}

func (p *Provider) OpenInBrowser(_ context.Context, _, _ string, number int) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.record("open")
	if p.OpenErr != nil {
		return p.OpenErr
	}
	p.Opened = append(p.Opened, number)
	return nil
}
