package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/input"
	"github.com/marcin-skalski/prwatch/internal/logging"
	"github.com/marcin-skalski/prwatch/internal/poller"
	"github.com/marcin-skalski/prwatch/internal/poller/pollertest"
	"github.com/marcin-skalski/prwatch/internal/selection"
)

var errSave = errors.New("disk full")

type delayed struct {
	d   time.Duration
	msg tea.Msg
}

type harness struct {
	m       Model
	gh      *pollertest.Provider
	configs *pollertest.Configs
	delays  []delayed
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pr(n int, title string) domain.PullRequest {
	return domain.PullRequest{
		Owner: "foo", Repo: "bar", Number: n, Title: title,
		HeadSHA: "sha" + string(rune('0'+n)), UpdatedAt: epoch.Add(-time.Duration(n) * time.Hour),
	}
}

func newHarness(t *testing.T, prs ...domain.PullRequest) *harness {
	t.Helper()
	now := func() time.Time { return epoch }
	h := &harness{gh: pollertest.New(), configs: pollertest.NewConfigs("foo/bar")}
	h.gh.SetPRs(prs...)
	store := poller.NewStore(5*time.Second, now)
	o := poller.New(h.gh, h.configs, store, logging.Discard(), poller.WithClock(now))

	m := NewModel(context.Background(), o, logging.Discard())
	m.now = now
	m.after = func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
		if d != TickInterval {
			h.delays = append(h.delays, delayed{d: d, msg: fn(epoch.Add(d))})
		}
		return nil
	}
	m.width, m.height = 100, 40
	h.m = m
	return h
}

// run executes cmd and feeds every job result back through Update until no
// work is left.
func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			h.run(c)
		}
	case jobDoneMsg:
		h.send(msg)
	}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	if _, isKey := msg.(tea.KeyMsg); !isKey || !h.m.editing {
		h.run(cmd)
		return nil
	}
	return cmd
}

func (h *harness) settle() {
	h.run(h.m.schedule())
}

func (h *harness) press(k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	return h.send(msg)
}

func (h *harness) click(x, y int) {
	h.send(MouseMsg{{Kind: input.LeftRelease, X: x, Y: y}})
}

func TestBootToDashboard(t *testing.T) {
	h := newHarness(t, pr(1, "Fix flaky test"), pr(2, "Add feature"))
	assert.True(t, h.m.ViewModel().Splash())
	assert.Contains(t, h.m.View(), "Fetching PRs")

	h.settle()

	vm := h.m.ViewModel()
	assert.False(t, vm.Booting)
	assert.False(t, vm.Splash())
	assert.Equal(t, "octocat", vm.Viewer)
	require.Len(t, vm.PRs, 2)
	assert.Equal(t, domain.CategoryPassed, vm.Rollups["foo/bar#1"])

	view := h.m.View()
	assert.Contains(t, view, "Fix flaky test")
	assert.Contains(t, view, "foo/bar")
	assert.Contains(t, view, "Select a PR and press enter to load details.")
}

func TestConfirmLoadsDetail(t *testing.T) {
	h := newHarness(t, pr(1, "one"), pr(2, "two"))
	h.gh.DetailChecks[2] = []domain.Check{{Name: "build", Category: domain.CategoryFailed}}
	h.gh.Meta[2] = domain.DetailMeta{ReviewDecision: domain.ReviewApproved, RequiredCheckNames: []string{"build"}}
	h.settle()

	h.press("j")
	h.press("enter")

	vm := h.m.ViewModel()
	assert.Equal(t, selection.Detail, vm.Focus)
	assert.Equal(t, "foo/bar#2", vm.SelectedKey)
	require.NotNil(t, vm.SelectedPR)
	require.Len(t, vm.DetailRows, 1)
	assert.True(t, vm.DetailRows[0].Required)
	assert.Equal(t, domain.CategoryFailed, vm.RollupCategory)
	assert.Equal(t, domain.CategoryFailed, vm.Rollups["foo/bar#2"], "detail rollup wins in the overview")

	view := h.m.View()
	assert.Contains(t, view, "Approved")
	assert.Contains(t, view, "Required")
	assert.Contains(t, view, "[o] Open PR")
}

func TestSelectionFollowsReorder(t *testing.T) {
	h := newHarness(t, pr(1, "one"), pr(2, "two"), pr(3, "three"))
	h.settle()
	h.press("j")
	h.press("enter")

	h.gh.SetPRs(pr(3, "three"), pr(1, "one"), pr(2, "two"))
	h.press("r")

	vm := h.m.ViewModel()
	assert.Equal(t, "foo/bar#2", vm.SelectedKey)
	assert.Equal(t, 2, vm.SelectedIndex)
}

func TestClickFocusesThenSelects(t *testing.T) {
	h := newHarness(t, pr(1, "one"), pr(2, "two"))
	h.settle()

	h.press("tab")
	f := h.m.frame(h.m.ViewModel())
	x := f.TitleCol() + 1
	y := f.OverviewTop + f.Rows[1].Top + 1

	h.click(x, y)
	vm := h.m.ViewModel()
	assert.Equal(t, selection.Overview, vm.Focus, "first click only focuses")
	assert.Empty(t, vm.SelectedKey)
	assert.Equal(t, 0, vm.SelectedIndex)

	h.click(x, y)
	vm = h.m.ViewModel()
	assert.Equal(t, "foo/bar#2", vm.SelectedKey)
	assert.Equal(t, selection.Detail, vm.Focus)
}

func TestClickOnStatusMovesCursorOnly(t *testing.T) {
	h := newHarness(t, pr(1, "one"), pr(2, "two"))
	h.settle()

	f := h.m.frame(h.m.ViewModel())
	h.click(f.Left+1, f.OverviewTop+f.Rows[1].Top+1)

	vm := h.m.ViewModel()
	assert.Equal(t, 1, vm.SelectedIndex)
	assert.Empty(t, vm.SelectedKey)
}

func TestClickOutsideIsIgnored(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()
	before := h.m.sel

	h.click(1, 1)
	h.click(200, 6)
	assert.Equal(t, before, h.m.sel)
}

func TestWheelOverDetailMovesDetailCursor(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.gh.DetailChecks[1] = []domain.Check{
		{Name: "a", Category: domain.CategoryPassed},
		{Name: "b", Category: domain.CategoryPassed},
		{Name: "c", Category: domain.CategoryPassed},
	}
	h.settle()
	h.press("enter")

	f := h.m.frame(h.m.ViewModel())
	h.send(MouseMsg{{Kind: input.WheelDown, X: f.TitleCol() + 1, Y: f.ListTop + 1}})
	h.send(MouseMsg{{Kind: input.WheelDown, X: f.TitleCol() + 1, Y: f.ListTop + 1}})
	assert.Equal(t, 2, h.m.ViewModel().DetailCursor)

	// a click on a detail row of the focused pane moves the cursor there
	h.click(f.TitleCol()+1, f.ListTop+1)
	assert.Equal(t, 0, h.m.ViewModel().DetailCursor)
}

func TestDashboardFitsShortTerminal(t *testing.T) {
	var list []domain.PullRequest
	for n := 1; n <= 9; n++ {
		list = append(list, pr(n, fmt.Sprintf("change %d", n)))
	}
	h := newHarness(t, list...)
	var checks []domain.Check
	for i := range 15 {
		checks = append(checks, domain.Check{Name: fmt.Sprintf("c%02d", i), Category: domain.CategoryPassed})
	}
	h.gh.DetailChecks[1] = checks
	h.m.height = 24
	h.settle()
	h.press("enter")

	// lineOf is the 1-indexed screen row the renderer put text on
	lineOf := func(text string) int {
		lines := strings.Split(h.m.View(), "\n")
		require.LessOrEqual(t, len(lines), 24)
		i := slices.IndexFunc(lines, func(l string) bool { return strings.Contains(l, text) })
		require.GreaterOrEqual(t, i, 0, "%q not drawn", text)
		return i + 1
	}
	x := h.m.frame(h.m.ViewModel()).TitleCol() + 1

	h.click(x, lineOf("c02"))
	assert.Equal(t, 2, h.m.ViewModel().DetailCursor)

	// scroll the overview down to the last PR, then click one drawn above it
	h.press("tab")
	for range 8 {
		h.press("j")
	}
	assert.Equal(t, 8, h.m.ViewModel().SelectedIndex)
	h.click(x, lineOf("change 7"))

	vm := h.m.ViewModel()
	assert.Equal(t, 6, vm.SelectedIndex)
	assert.Equal(t, "foo/bar#7", vm.SelectedKey)
}

func TestRerunFailed(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.gh.DetailRuns[1] = []domain.WorkflowRun{
		{ID: 7, Name: "ci", Category: domain.CategoryFailed},
		{ID: 8, Name: "deploy", Category: domain.CategoryPassed},
	}
	h.settle()
	h.press("enter")

	h.press("f")

	vm := h.m.ViewModel()
	assert.Equal(t, "Requested rerun of 1 workflow run", vm.Info)
	assert.Equal(t, [][]int64{{7}}, h.gh.Reruns)
	require.Len(t, h.delays, 1)
	assert.Equal(t, poller.RerunSettleDelay, h.delays[0].d)
	assert.Equal(t, refetchMsg{key: "foo/bar#1"}, h.delays[0].msg)
	assert.Equal(t, domain.CategoryRunning, vm.RollupCategory)

	// the delayed refetch replaces the optimistic patch with the remote state
	h.send(h.delays[0].msg)
	assert.Equal(t, domain.CategoryFailed, h.m.ViewModel().RollupCategory)
}

func TestRerunWithoutSelection(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()

	h.press("f")
	assert.Equal(t, "Select a PR to rerun failed actions", h.m.ViewModel().Info)
	assert.Empty(t, h.gh.Reruns)
}

func TestOpen(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()

	h.press("o")
	assert.Empty(t, h.gh.Opened, "nothing selected")

	h.press("enter")
	h.press("o")
	assert.Equal(t, []int{1}, h.gh.Opened)
	assert.Equal(t, "Opened foo/bar#1 in browser", h.m.ViewModel().Info)
}

func TestRepoEditor(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()

	h.press("s")
	vm := h.m.ViewModel()
	require.True(t, vm.EditingRepos)
	assert.Equal(t, "foo/bar", vm.RepoInput)
	assert.Contains(t, h.m.View(), "Enter repos to watch")

	h.m.editor.SetValue("foo/bar, nope")
	h.press("enter")
	assert.True(t, h.m.ViewModel().EditingRepos, "invalid input keeps the editor open")
	assert.Contains(t, h.m.ViewModel().Error, "invalid repository identifier")

	h.m.editor.SetValue("https://github.com/baz/qux foo/bar")
	h.press("enter")
	h.settle()

	vm = h.m.ViewModel()
	assert.False(t, vm.EditingRepos)
	assert.Empty(t, vm.Error)
	assert.Equal(t, "Saved watched repositories", vm.Info)
	assert.Equal(t, []string{"baz/qux", "foo/bar"}, vm.Repos)
	require.Len(t, h.configs.Saved, 1)
	assert.Equal(t, []string{"baz/qux", "foo/bar"}, h.configs.Saved[0].Repos)
	assert.Equal(t, []string{"baz/qux", "foo/bar"}, h.gh.ListedRepos[len(h.gh.ListedRepos)-1])
}

func TestEditorOpensWithoutRepos(t *testing.T) {
	h := newHarness(t)
	h.configs.Cfg.Repos = nil
	h.settle()

	vm := h.m.ViewModel()
	require.True(t, vm.EditingRepos)
	assert.Empty(t, vm.RepoInput)
	assert.Contains(t, h.m.View(), "Enter repos to watch")
}

func TestRepoEditorBeforeBootstrap(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.gh.Login = ""
	h.settle()
	require.Contains(t, h.m.ViewModel().Error, "not logged in")

	h.press("s")
	h.m.editor.SetValue("baz/qux")
	h.press("enter")

	vm := h.m.ViewModel()
	assert.False(t, vm.EditingRepos)
	assert.Equal(t, "Saved watched repositories", vm.Info)
	require.Len(t, h.configs.Saved, 1)
	assert.Equal(t, []string{"baz/qux"}, h.configs.Saved[0].Repos)

	h.gh.Mu.Lock()
	h.gh.Login = "octocat"
	h.gh.Mu.Unlock()
	h.press("r")

	vm = h.m.ViewModel()
	assert.Equal(t, "octocat", vm.Viewer)
	assert.Equal(t, []string{"baz/qux"}, vm.Repos)
}

func TestRepoEditorSaveFailure(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()
	h.configs.SaveErr = errSave

	h.press("s")
	h.m.editor.SetValue("baz/qux")
	h.press("enter")

	vm := h.m.ViewModel()
	assert.True(t, vm.EditingRepos)
	assert.Contains(t, vm.Error, "disk full")
	assert.Equal(t, []string{"foo/bar"}, vm.Repos)
}

func TestRepoEditorCancel(t *testing.T) {
	h := newHarness(t, pr(1, "one"))
	h.settle()

	h.press("s")
	h.m.editor.SetValue("baz/qux")
	h.press("esc")

	vm := h.m.ViewModel()
	assert.False(t, vm.EditingRepos)
	assert.Equal(t, []string{"foo/bar"}, vm.Repos)
	assert.Empty(t, h.configs.Saved)
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, findMsg[tea.QuitMsg](cmd))
}

func findMsg[T tea.Msg](cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if found := findMsg[T](c); found != nil {
				return found
			}
		}
		return nil
	}
	if _, ok := msg.(T); ok {
		return msg
	}
	return nil
}

func TestBarSegments(t *testing.T) {
	summary := map[domain.Category]int{
		domain.CategoryRunning: 1,
		domain.CategoryFailed:  1,
		domain.CategoryPassed:  98,
	}
	segs := barSegments(summary, 50)
	require.Len(t, segs, 3)

	total := 0
	for _, s := range segs {
		assert.GreaterOrEqual(t, s.count, 1)
		total += s.count
	}
	assert.Equal(t, 50, total)
	assert.Equal(t, colorYellow, segs[0].color)
	assert.Equal(t, colorGreen, segs[2].color)

	assert.Empty(t, barSegments(map[domain.Category]int{}, 50))
}
