package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcin-skalski/prwatch/internal/domain"
)

var (
	colorRed    = lipgloss.Color("#FC5753")
	colorYellow = lipgloss.Color("#E2AA0F")
	colorGreen  = lipgloss.Color("#36C84B")
	colorBorder = lipgloss.Color("#424242") // borders, muted helper text
	colorDim    = lipgloss.Color("#797979") // secondary text
	colorText   = lipgloss.Color("#DCDCDC")

	// the same colours at 20% over the #1E1E1E background, for unfocused panes
	faded = map[lipgloss.Color]lipgloss.Color{
		colorRed:    lipgloss.Color("#4A2929"),
		colorYellow: lipgloss.Color("#453A1B"),
		colorGreen:  lipgloss.Color("#234027"),
		colorBorder: lipgloss.Color("#252525"),
		colorDim:    lipgloss.Color("#303030"),
	}

	infoStyle  = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed)
	titleStyle = lipgloss.NewStyle().Foreground(colorText)
	helpStyle  = lipgloss.NewStyle().Foreground(colorBorder)
)

const (
	dotGlyph  = "●"
	barGlyph  = "▌"
	moreGlyph = "˅"
)

func paint(c lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// tone returns c, or its faded variant when the pane is not focused.
func tone(c lipgloss.Color, focused bool) lipgloss.Color {
	if focused {
		return c
	}
	if f, ok := faded[c]; ok {
		return f
	}
	return c
}

// muted is the colour of secondary text: dim when focused, border otherwise.
func muted(focused bool) lipgloss.Color {
	if focused {
		return colorDim
	}
	return colorBorder
}

func categoryColor(c domain.Category) lipgloss.Color {
	switch c {
	case domain.CategoryRunning, domain.CategoryQueued, domain.CategoryPending:
		return colorYellow
	case domain.CategoryPassed:
		return colorGreen
	case domain.CategoryFailed:
		return colorRed
	default:
		return colorDim
	}
}

func reviewColor(d domain.ReviewDecision) lipgloss.Color {
	switch d {
	case domain.ReviewApproved:
		return colorGreen
	case domain.ReviewChangesRequested:
		return colorRed
	case domain.ReviewRequired:
		return colorYellow
	default:
		return colorDim
	}
}
