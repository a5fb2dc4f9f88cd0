package tui

import (
	"time"

	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/selection"
)

// ViewModel is everything one frame draws. It is rebuilt from the orchestrator
// and selection state on every render and never mutated afterwards.
type ViewModel struct {
	Viewer          string
	Repos           []string
	LastRefresh     time.Time
	LoadingOverview bool
	LoadingDetail   bool
	Syncing         bool

	PRs           []domain.PullRequest
	SelectedIndex int // overview cursor
	SelectedKey   string
	SelectedPR    *domain.PullRequest

	DetailChecks   []domain.Check
	DetailRuns     []domain.WorkflowRun
	DetailRows     []domain.DetailRow
	ReviewDecision domain.ReviewDecision
	DetailCursor   int

	Focus          selection.Pane
	Rollups        map[string]domain.Category // by PR key
	RollupCategory domain.Category            // selected PR

	Info  string
	Error string

	Booting      bool
	EditingRepos bool
	RepoInput    string
}

// Splash reports whether the frame is the full-screen loading screen.
func (vm ViewModel) Splash() bool {
	return vm.Booting || (vm.LoadingOverview && len(vm.PRs) == 0 && len(vm.Repos) > 0)
}

// Dashboard reports whether the two-pane layout is on screen, which is the only
// time mouse input means anything.
func (vm ViewModel) Dashboard() bool {
	return !vm.EditingRepos && !vm.Splash()
}

// ViewModel assembles the current frame's data.
func (m Model) ViewModel() ViewModel {
	o := m.o
	loadingOverview, loadingDetail := o.Loading()
	vm := ViewModel{
		Viewer:          o.Viewer(),
		Repos:           o.Repos(),
		LastRefresh:     o.LastRefresh(),
		LoadingOverview: loadingOverview,
		LoadingDetail:   loadingDetail,
		Syncing:         o.Syncing(),
		PRs:             o.PRs(),
		SelectedIndex:   m.sel.OverviewCursor,
		SelectedKey:     m.sel.SelectedKey,
		Focus:           m.sel.Focus,
		Rollups:         o.Rollups(),
		RollupCategory:  domain.CategoryPending,
		Info:            m.info,
		Error:           m.errText,
		Booting:         o.Booting(),
		EditingRepos:    m.editing,
		RepoInput:       m.editor.Value(),
		ReviewDecision:  domain.ReviewUnknown,
	}

	if pr, ok := o.SelectedPR(); ok {
		vm.SelectedPR = &pr
		if c, ok := o.DisplayedRollup(pr); ok {
			vm.RollupCategory = c
		}
		if d, ok := o.Detail(); ok {
			vm.DetailChecks = d.Checks
			vm.DetailRuns = d.Runs
			vm.ReviewDecision = d.ReviewDecision
			vm.DetailRows = domain.DetailRows(d.Checks, d.Runs)
		}
	}
	vm.DetailCursor = min(max(m.sel.DetailCursor, 0), max(len(vm.DetailRows)-1, 0))
	return vm
}
