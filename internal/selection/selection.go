// Package selection tracks which PR is chosen, which pane has focus and where
// the cursors sit. State is a value; every transition returns a new one.
package selection

import "github.com/marcin-skalski/prwatch/internal/domain"

type Pane int

const (
	Overview Pane = iota
	Detail
)

func (p Pane) String() string {
	if p == Detail {
		return "detail"
	}
	return "overview"
}

type State struct {
	Focus Pane
	// SelectedKey is the confirmed PR identity. It may name a PR that is no
	// longer listed; only Confirm and ResetForRepos replace it.
	SelectedKey    string
	OverviewCursor int
	DetailCursor   int
}

// Reconcile realigns the overview cursor after a list refresh. A selected PR
// that is still listed pulls the cursor to its new index; otherwise the cursor
// is clamped into the new list.
func (s State) Reconcile(prs []domain.PullRequest) State {
	if len(prs) == 0 {
		s.OverviewCursor = 0
		return s
	}
	if s.SelectedKey != "" {
		for i, pr := range prs {
			if pr.Key() == s.SelectedKey {
				s.OverviewCursor = i
				return s
			}
		}
	}
	s.OverviewCursor = clamp(s.OverviewCursor, len(prs))
	return s
}

// Confirm selects the PR under the overview cursor and moves focus to the
// detail pane. The returned bool is true when a detail refetch must be forced,
// which is every time a PR is confirmed, including the already selected one.
func (s State) Confirm(prs []domain.PullRequest) (State, bool) {
	if len(prs) == 0 {
		return s, false
	}
	s.OverviewCursor = clamp(s.OverviewCursor, len(prs))
	s.SelectedKey = prs[s.OverviewCursor].Key()
	s.DetailCursor = 0
	s.Focus = Detail
	return s, true
}

func (s State) ToggleFocus() State {
	if s.Focus == Overview {
		s.Focus = Detail
	} else {
		s.Focus = Overview
	}
	return s
}

// FocusOn moves focus to pane and reports whether focus changed.
func (s State) FocusOn(pane Pane) (State, bool) {
	changed := s.Focus != pane
	s.Focus = pane
	return s, changed
}

func (s State) MoveOverview(delta, n int) State {
	if n == 0 {
		return s
	}
	s.OverviewCursor = clamp(s.OverviewCursor+delta, n)
	return s
}

func (s State) MoveDetail(delta, n int) State {
	if n == 0 {
		return s
	}
	s.DetailCursor = clamp(s.DetailCursor+delta, n)
	return s
}

// Move shifts the cursor of the focused pane.
func (s State) Move(delta, overviewLen, detailLen int) State {
	if s.Focus == Detail {
		return s.MoveDetail(delta, detailLen)
	}
	return s.MoveOverview(delta, overviewLen)
}

func (s State) SetOverviewCursor(i, n int) State {
	if n == 0 {
		return s
	}
	s.OverviewCursor = clamp(i, n)
	return s
}

func (s State) SetDetailCursor(i, n int) State {
	if n == 0 {
		return s
	}
	s.DetailCursor = clamp(i, n)
	return s
}

// ResetForRepos forgets the selection after the watched repositories change.
func (s State) ResetForRepos() State {
	return State{Focus: Overview}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
