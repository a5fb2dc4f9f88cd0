package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/input"
	"github.com/marcin-skalski/prwatch/internal/layout"
	"github.com/marcin-skalski/prwatch/internal/poller"
	"github.com/marcin-skalski/prwatch/internal/selection"
)

// TickInterval is how often the model asks the orchestrator for due work and
// redraws relative timestamps.
const TickInterval = time.Second

const defaultWidth = 80

type Model struct {
	ctx    context.Context
	o      *poller.Orchestrator
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	editor  textinput.Model

	sel     selection.State
	editing bool
	info    string
	errText string

	width  int
	height int
}

type (
	tickMsg    time.Time
	jobDoneMsg struct{ res poller.Result }
	refetchMsg struct{ key string }
)

// MouseMsg carries decoded mouse events into the program.
type MouseMsg []input.Event

func NewModel(ctx context.Context, o *poller.Orchestrator, logger *slog.Logger) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = infoStyle

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = titleStyle
	ti.TextStyle = titleStyle
	ti.Placeholder = "org/repo"
	ti.PlaceholderStyle = infoStyle

	h := help.New()
	h.Styles.ShortKey = infoStyle
	h.Styles.ShortDesc = helpStyle
	h.Styles.ShortSeparator = helpStyle

	return Model{
		ctx:     ctx,
		o:       o,
		logger:  logger,
		now:     time.Now,
		after:   tea.Tick,
		keys:    defaultKeyMap,
		help:    h,
		spinner: s,
		editor:  ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.schedule(), m.tick(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.schedule(), m.tick())

	case jobDoneMsg:
		cmd := m.apply(msg.res)
		return m, tea.Batch(cmd, m.schedule())

	case refetchMsg:
		m.o.ForceDetail(msg.key)
		return m, m.schedule()

	case MouseMsg:
		for _, ev := range msg {
			m.mouse(ev)
		}
		return m, m.schedule()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditor(msg)
		}
		cmd := m.handleKey(msg)
		return m, tea.Batch(cmd, m.schedule())
	}

	return m, nil
}

func (m Model) tick() tea.Cmd {
	return m.after(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// schedule hands every due job to the runtime. Jobs run off the update loop and
// come back as jobDoneMsg.
func (m Model) schedule() tea.Cmd {
	jobs := m.o.Due(m.now())
	if len(jobs) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(jobs))
	for _, job := range jobs {
		cmds = append(cmds, m.run(job))
	}
	return tea.Batch(cmds...)
}

func (m Model) run(job poller.Job) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return jobDoneMsg{res: job.Run(ctx)}
	}
}

func (m *Model) apply(res poller.Result) tea.Cmd {
	out := m.o.Apply(res)
	if out.Dropped {
		return nil
	}
	if out.Err != nil {
		m.errText = out.Err.Error()
	}
	if out.Info != "" {
		m.info = out.Info
	}
	if out.ListChanged {
		m.errText = ""
		m.sel = m.sel.Reconcile(m.o.PRs())
	}
	if out.NeedsRepos && !m.editing {
		return m.openEditor()
	}
	if out.RefetchAfter > 0 {
		key := out.RefetchKey
		return m.after(out.RefetchAfter, func(time.Time) tea.Msg {
			return refetchMsg{key: key}
		})
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Repos):
		return m.openEditor()

	case key.Matches(msg, m.keys.Refresh):
		m.o.RefreshNow()

	case key.Matches(msg, m.keys.Open):
		pr, ok := m.o.SelectedPR()
		if !ok {
			return nil
		}
		return m.run(m.o.Open(pr))

	case key.Matches(msg, m.keys.Rerun):
		job, info, err := m.o.RerunFailed()
		switch {
		case errors.Is(err, domain.ErrNoSelection):
			m.info = "Select a PR to rerun failed actions"
		case err != nil:
			m.errText = err.Error()
		case info != "":
			m.info = info
		default:
			return m.run(job)
		}

	case key.Matches(msg, m.keys.Focus):
		m.sel = m.sel.ToggleFocus()

	case key.Matches(msg, m.keys.Up):
		m.move(-1)

	case key.Matches(msg, m.keys.Down):
		m.move(1)

	case key.Matches(msg, m.keys.Confirm):
		if m.sel.Focus == selection.Overview {
			m.confirm()
		}
	}
	return nil
}

func (m *Model) move(delta int) {
	vm := m.ViewModel()
	m.sel = m.sel.Move(delta, len(vm.PRs), len(vm.DetailRows))
}

// confirm selects the PR under the overview cursor and always forces its
// detail to refetch.
func (m *Model) confirm() {
	next, force := m.sel.Confirm(m.o.PRs())
	m.sel = next
	if force {
		m.o.Select(next.SelectedKey, true)
	}
}

func (m *Model) openEditor() tea.Cmd {
	m.editing = true
	m.o.SetEditing(true)
	m.editor.SetValue(strings.Join(m.o.Repos(), ", "))
	m.editor.CursorEnd()
	return m.editor.Focus()
}

func (m *Model) closeEditor() {
	m.editing = false
	m.o.SetEditing(false)
	m.editor.Blur()
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Interrupt):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.closeEditor()
		return m, m.schedule()

	case key.Matches(msg, m.keys.Save):
		repos, err := config.ParseRepoInput(m.editor.Value())
		if err != nil {
			m.errText = err.Error()
			return m, nil
		}
		if err := m.o.SetRepos(repos); err != nil {
			m.logger.Error("save repos", "err", err)
			m.errText = err.Error()
			return m, nil
		}
		m.sel = m.sel.ResetForRepos()
		m.errText = ""
		m.info = "Saved watched repositories"
		m.closeEditor()
		return m, m.schedule()
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// mouse applies one decoded mouse event against the frame currently on screen.
func (m *Model) mouse(ev input.Event) {
	vm := m.ViewModel()
	if !vm.Dashboard() {
		return
	}
	hit := m.frame(vm).Hit(ev.X, ev.Y)

	var pane selection.Pane
	switch hit.Pane {
	case layout.PaneOverview:
		pane = selection.Overview
	case layout.PaneDetail:
		pane = selection.Detail
	default:
		return
	}

	switch ev.Kind {
	case input.WheelUp, input.WheelDown:
		delta := 1
		if ev.Kind == input.WheelUp {
			delta = -1
		}
		if pane == selection.Overview {
			m.sel = m.sel.MoveOverview(delta, len(vm.PRs))
		} else {
			m.sel = m.sel.MoveDetail(delta, len(vm.DetailRows))
		}

	case input.LeftRelease:
		next, changed := m.sel.FocusOn(pane)
		m.sel = next
		if changed || hit.Index < 0 {
			return
		}
		if pane == selection.Detail {
			m.sel = m.sel.SetDetailCursor(hit.Index, len(vm.DetailRows))
			return
		}
		m.sel = m.sel.SetOverviewCursor(hit.Index, len(vm.PRs))
		if hit.Region == layout.RegionTitle || hit.Region == layout.RegionTimestamp {
			m.confirm()
		}
	}
}

// frame is the geometry shared by View and the hit-tester.
func (m Model) frame(vm ViewModel) layout.Frame {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	return layout.Compute(width, m.height, vm.PRs, vm.SelectedIndex, len(vm.DetailRows), vm.DetailCursor)
}
