// Package layout is the screen geometry shared by the renderer and the mouse
// hit-tester. Both sides must call the same functions so they never disagree
// about where a row starts or how many lines a title takes.
package layout

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Wrap breaks text into lines greedily on spaces. The first line is at most
// first cells wide and the rest at most rest cells. Words longer than a line
// are split. The result always has at least one line.
func Wrap(text string, first, rest int) []string {
	if first < 1 {
		first = 1
	}
	if rest < 1 {
		rest = 1
	}

	var (
		lines []string
		cur   strings.Builder
		used  int
	)
	limit := first
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		used = 0
		limit = rest
	}

	for _, word := range strings.Fields(text) {
		w := runewidth.StringWidth(word)

		if used > 0 && used+1+w <= limit {
			cur.WriteByte(' ')
			cur.WriteString(word)
			used += 1 + w
			continue
		}
		if used > 0 {
			flush()
		}
		for w > limit {
			head := runewidth.Truncate(word, limit, "")
			if head == "" {
				// a single rune wider than the line
				head = string([]rune(word)[:1])
			}
			cur.WriteString(head)
			used = runewidth.StringWidth(head)
			flush()
			word = strings.TrimPrefix(word, head)
			w = runewidth.StringWidth(word)
		}
		if w > 0 {
			cur.WriteString(word)
			used = w
		}
	}
	if used > 0 || len(lines) == 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// Fit truncates s to width cells and pads it with spaces to exactly width.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillRight(s, width)
}

// FitLeft right-aligns s in width cells.
func FitLeft(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillLeft(s, width)
}
