package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/marcin-skalski/prwatch/internal/domain"
	"github.com/marcin-skalski/prwatch/internal/layout"
	"github.com/marcin-skalski/prwatch/internal/selection"
)

const (
	defaultHeight = 24
	openHint      = "[o] Open PR"
	requiredTag   = "Required"
)

var logo = []string{
	"┏━┓┏━┓╻ ╻┏━┓╺┳╸┏━╸╻ ╻",
	"┣━┛┣┳┛┃╻┃┣━┫ ┃ ┃  ┣━┫",
	"╹  ╹┗╸┗┻┛╹ ╹ ╹ ┗━╸╹ ╹",
}

func (m Model) View() string {
	vm := m.ViewModel()
	switch {
	case vm.EditingRepos:
		return m.renderEditor(vm)
	case vm.Splash():
		return m.renderSplash(vm)
	}
	return m.renderDashboard(vm, m.frame(vm), m.now())
}

// renderDashboard draws the two panes. Every line index must agree with
// layout.Frame, which the mouse hit-tester reads.
func (m Model) renderDashboard(vm ViewModel, f layout.Frame, now time.Time) string {
	indent := strings.Repeat(" ", f.Left)
	lines := make([]string, 0, f.DetailTop+f.DetailHeight+layout.FooterLines)

	for len(lines) < f.StatusBarTop {
		lines = append(lines, "")
	}
	lines = append(lines, indent+m.statusBar(vm, f, now), "")

	for _, l := range renderOverview(vm, f, now) {
		lines = append(lines, indent+l)
	}

	border := paint(colorBorder, strings.Repeat("─", max(f.Width-layout.PadLeft, 0)))
	lines = append(lines, "", strings.Repeat(" ", layout.PadLeft)+border, "")

	for _, l := range m.renderDetail(vm, f) {
		lines = append(lines, indent+l)
	}

	lines = append(lines, "",
		indent+infoStyle.Render(truncate(vm.Info, f.Inner)),
		indent+errorStyle.Render(truncate(vm.Error, f.Inner)),
		indent+m.help.ShortHelpView(m.keys.ShortHelp()),
	)

	// a frame taller than the terminal would lose its top lines in the
	// renderer and shift every row away from where Hit expects it
	if f.Height > 0 && len(lines) > f.Height {
		lines = lines[:f.Height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) statusBar(vm ViewModel, f layout.Frame, now time.Time) string {
	repos := "—"
	if len(vm.Repos) > 0 {
		repos = strings.Join(vm.Repos, ", ")
	}
	state := infoStyle.Render("idle")
	if vm.LoadingOverview || vm.LoadingDetail || vm.Syncing {
		state = m.spinner.View() + infoStyle.Render(" syncing")
	}
	text := fmt.Sprintf("%s  |  last refresh: %s  |  ", repos, domain.FormatRelative(now, vm.LastRefresh))
	return infoStyle.Render(truncate(text, max(f.Inner-len(" syncing")-2, 1))) + state
}

func renderOverview(vm ViewModel, f layout.Frame, now time.Time) []string {
	focused := vm.Focus == selection.Overview
	var lines []string

	if len(vm.PRs) == 0 {
		lines = append(lines, paint(muted(focused), truncate("No PRs yet. Press s to set watched repositories.", f.Inner)))
	}

	continuation := strings.Repeat(" ", layout.CursorCols+layout.DotCols)
	for i, pr := range vm.PRs {
		isCursor := i == vm.SelectedIndex
		rowColor := colorBorder
		if focused {
			rowColor = colorDim
			if isCursor {
				rowColor = colorText
			}
		}
		dotColor := colorDim
		if c, ok := vm.Rollups[pr.Key()]; ok {
			dotColor = categoryColor(c)
		}
		cursor := strings.Repeat(" ", layout.CursorCols)
		if isCursor {
			cursor = layout.Fit(">", layout.CursorCols)
		}

		for j, text := range f.Rows[i].Lines {
			if j > 0 {
				lines = append(lines, continuation+paint(rowColor, layout.Fit(text, f.RestWidth)))
				continue
			}
			age := " " + layout.FitLeft(domain.FormatCompactAge(now, pr.UpdatedAt), layout.TimeCols-1)
			lines = append(lines, paint(rowColor, cursor)+
				paint(tone(dotColor, focused), dotGlyph)+" "+
				paint(rowColor, layout.Fit(text, f.FirstWidth))+
				paint(muted(focused), age))
		}
	}

	lines = lines[min(f.OverviewScroll, len(lines)):]
	lines = lines[:min(f.OverviewHeight, len(lines))]
	for len(lines) < f.OverviewHeight {
		lines = append(lines, "")
	}
	return lines
}

func (m Model) renderDetail(vm ViewModel, f layout.Frame) []string {
	focused := vm.Focus == selection.Detail
	if vm.SelectedPR == nil {
		return []string{paint(muted(focused), truncate("Select a PR and press enter to load details.", f.Inner))}
	}

	lines := []string{
		detailHeader(vm, *vm.SelectedPR, f.Inner, focused),
		"",
		progressBar(domain.Summarize(vm.DetailRows), f.Width/2, focused),
		"",
	}

	switch {
	case vm.LoadingDetail && len(vm.DetailRows) == 0:
		lines = append(lines, m.spinner.View()+paint(muted(focused), " loading…"))
	case len(vm.DetailRows) == 0:
		lines = append(lines, paint(muted(focused), "No checks or workflow runs yet."))
	default:
		for i := f.WindowStart; i < f.WindowEnd; i++ {
			selected := focused && i == vm.DetailCursor
			lines = append(lines, detailRow(vm.DetailRows[i], f.Inner, focused, selected))
		}
		if hidden := f.Hidden(); hidden > 0 {
			lines = append(lines, paint(muted(focused), fmt.Sprintf("  %s %d more", moreGlyph, hidden)))
		}
	}
	return lines
}

func detailHeader(vm ViewModel, pr domain.PullRequest, inner int, focused bool) string {
	headerColor := colorBorder
	if focused {
		headerColor = colorText
	}

	review := vm.ReviewDecision.Label()
	titleWidth := inner - layout.DotCols - 1 - runewidth.StringWidth(openHint)
	if review != "" {
		titleWidth -= 2 + runewidth.StringWidth(review)
	}

	var b strings.Builder
	b.WriteString(paint(tone(categoryColor(vm.RollupCategory), focused), dotGlyph))
	b.WriteString(" ")
	b.WriteString(lipgloss.NewStyle().Foreground(headerColor).Bold(focused).Render(layout.Fit(pr.Title, max(titleWidth, 1))))
	if review != "" {
		b.WriteString("  ")
		b.WriteString(paint(tone(reviewColor(vm.ReviewDecision), focused), review))
	}
	b.WriteString(" ")
	b.WriteString(paint(muted(focused), openHint))
	return b.String()
}

func detailRow(row domain.DetailRow, inner int, focused, selected bool) string {
	labelColor := colorBorder
	if focused {
		labelColor = colorDim
		if selected {
			labelColor = colorText
		}
	}

	tag := ""
	if row.Required {
		tag = " " + requiredTag
	}
	labelWidth := inner - layout.DotCols - runewidth.StringWidth(tag)

	return paint(tone(categoryColor(row.Category), focused), dotGlyph) + " " +
		paint(labelColor, layout.Fit(row.Label, max(labelWidth, 1))) +
		paint(muted(focused), tag)
}

type segment struct {
	count int
	color lipgloss.Color
}

// barSegments splits width cells between in-progress, failed, passed and
// skipped/cancelled items. Every non-empty bucket gets at least one cell and
// the last one absorbs rounding.
func barSegments(summary map[domain.Category]int, width int) []segment {
	buckets := []segment{
		{summary[domain.CategoryRunning] + summary[domain.CategoryQueued] + summary[domain.CategoryPending], colorYellow},
		{summary[domain.CategoryFailed], colorRed},
		{summary[domain.CategoryPassed], colorGreen},
		{summary[domain.CategorySkipped] + summary[domain.CategoryCancelled], colorBorder},
	}
	total := 0
	for _, b := range buckets {
		total += b.count
	}
	if total == 0 || width <= 0 {
		return nil
	}

	var out []segment
	used := 0
	for _, b := range buckets {
		if b.count == 0 {
			continue
		}
		n := max(1, int(math.Round(float64(b.count)/float64(total)*float64(width))))
		out = append(out, segment{count: n, color: b.color})
		used += n
	}
	out[len(out)-1].count = max(out[len(out)-1].count+width-used, 0)
	return out
}

func progressBar(summary map[domain.Category]int, width int, focused bool) string {
	var b strings.Builder
	for _, s := range barSegments(summary, width) {
		b.WriteString(paint(tone(s.color, focused), strings.Repeat(barGlyph, s.count)))
	}
	return b.String()
}

func (m Model) renderSplash(vm ViewModel) string {
	body := make([]string, 0, len(logo)+5)
	for _, l := range logo {
		body = append(body, infoStyle.Render(l))
	}
	body = append(body, "", m.spinner.View()+infoStyle.Render(" Fetching PRs"))
	if vm.Error != "" {
		body = append(body, "", errorStyle.Render(vm.Error), infoStyle.Render("Press r to retry, q to quit"))
	}
	return m.screen(body)
}

func (m Model) renderEditor(vm ViewModel) string {
	body := []string{
		titleStyle.Render("Enter repos to watch"),
		"",
		m.editor.View(),
		"",
		helpStyle.Render("comma or space separated · enter save · esc cancel"),
	}
	if vm.Viewer != "" {
		body = append(body, helpStyle.Render("showing PRs authored by @"+vm.Viewer))
	}
	if vm.Error != "" {
		body = append(body, "", errorStyle.Render(vm.Error))
	}
	return m.screen(body)
}

// screen centres body between two borders filling the terminal.
func (m Model) screen(body []string) string {
	width, _, _, _ := layout.Widths(cmpOr(m.width, defaultWidth))
	height := cmpOr(m.height, defaultHeight)
	border := paint(colorBorder, strings.Repeat("─", width))

	lines := []string{border}
	for range max(1, (height-len(body)-2)/2) {
		lines = append(lines, "")
	}
	for _, l := range body {
		lines = append(lines, lipgloss.PlaceHorizontal(width, lipgloss.Center, l))
	}
	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = append(lines, border)
	return strings.Join(lines, "\n")
}

func cmpOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
