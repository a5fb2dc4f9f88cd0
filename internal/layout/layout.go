package layout

import (
	"github.com/marcin-skalski/prwatch/internal/domain"
)

const (
	MaxWidth = 100
	PadTop   = 2
	PadLeft  = 3
	PadX     = 1

	CursorCols = 3 // cursor marker and two spaces
	DotCols    = 2 // status dot plus a space
	TimeCols   = 8 // space plus right-aligned compact age

	MinOverviewRows = 6
	MinDetailRows   = 4
	MaxVisible      = 12

	// status bar, then a blank line
	headerLines = 2
	// blank, border, blank
	separatorLines = 3
	// title, blank, progress bar, blank
	detailHeaderLines = 4
	// blank, info, error, help
	FooterLines = 4

	fixedLines = PadTop + headerLines + separatorLines + detailHeaderLines + FooterLines

	DraftPrefix = "[draft] "
)

type Pane int

const (
	PaneNone Pane = iota
	PaneOverview
	PaneDetail
)

type Region int

const (
	RegionNone Region = iota
	RegionStatus
	RegionTitle
	RegionTimestamp
)

func (r Region) String() string {
	switch r {
	case RegionStatus:
		return "status"
	case RegionTitle:
		return "title"
	case RegionTimestamp:
		return "timestamp"
	}
	return "none"
}

// Row is one PR in the overview. Top is relative to the first overview line.
type Row struct {
	Top   int
	Lines []string
}

func (r Row) Height() int { return len(r.Lines) }

// Frame is the computed geometry for one render. Rows and columns are
// 0-indexed screen cells.
type Frame struct {
	Width        int // frame width including the left padding
	Height       int // terminal height, 0 when unbounded
	Inner        int // width available to pane content
	Left         int // first content column
	FirstWidth   int // title width on a row's first line
	RestWidth    int // title width on continuation lines
	StatusBarTop int

	OverviewTop    int
	OverviewHeight int
	OverviewScroll int // overview lines scrolled off the top
	Rows           []Row

	BorderTop    int
	DetailTop    int
	DetailHeight int
	ListTop      int
	WindowStart  int
	WindowEnd    int
	DetailCount  int
}

// Title is the text wrapped for pr's row.
func Title(pr domain.PullRequest) string {
	if pr.Draft {
		return DraftPrefix + pr.Title
	}
	return pr.Title
}

// Widths returns the frame width, the pane content width and the title
// widths for a terminal width.
func Widths(termWidth int) (frame, inner, first, rest int) {
	frame = min(termWidth, MaxWidth)
	inner = max(frame-PadLeft-2*PadX, 1)
	rest = max(inner-CursorCols-DotCols, 1)
	first = max(rest-TimeCols, 1)
	return frame, inner, first, rest
}

// Compute lays out the dashboard for a termWidth x termHeight terminal, the
// listed PRs with the overview cursor at cursor, and a detail list of
// detailRows rows with its cursor at detailCursor. A termHeight of 0 leaves
// the height unbounded; otherwise the overview scrolls and the detail window
// shrinks so the frame fits.
func Compute(termWidth, termHeight int, prs []domain.PullRequest, cursor, detailRows, detailCursor int) Frame {
	frame, inner, first, rest := Widths(termWidth)
	f := Frame{
		Width:        frame,
		Height:       max(termHeight, 0),
		Inner:        inner,
		Left:         PadLeft + PadX,
		FirstWidth:   first,
		RestWidth:    rest,
		StatusBarTop: PadTop,
		OverviewTop:  PadTop + headerLines,
		DetailCount:  detailRows,
	}

	top := 0
	f.Rows = make([]Row, len(prs))
	for i, pr := range prs {
		lines := Wrap(Title(pr), first, rest)
		f.Rows[i] = Row{Top: top, Lines: lines}
		top += len(lines)
	}

	overview := max(top, MinOverviewRows)
	visible := MaxVisible
	if f.Height > 0 {
		avail := max(f.Height-fixedLines, 2)
		overview = min(overview, max(avail-detailNeed(detailRows), avail/2, 1))
		visible = detailBudget(detailRows, avail-overview)
	}
	f.OverviewHeight = overview
	f.OverviewScroll = scrollFor(f.Rows, cursor, overview)

	f.BorderTop = f.OverviewTop + f.OverviewHeight + 1
	f.DetailTop = f.OverviewTop + f.OverviewHeight + separatorLines
	f.ListTop = f.DetailTop + detailHeaderLines
	f.WindowStart, f.WindowEnd = DetailWindow(detailCursor, detailRows, visible)

	height := detailHeaderLines + (f.WindowEnd - f.WindowStart)
	if f.WindowEnd < detailRows {
		height++ // "more" line
	}
	if detailRows == 0 {
		height = detailHeaderLines + 1
	}
	f.DetailHeight = max(height, MinDetailRows)
	return f
}

// detailNeed is how many lines the detail list wants below its header.
func detailNeed(n int) int {
	switch {
	case n == 0:
		return 1
	case n <= MaxVisible:
		return n
	}
	return MaxVisible + 1
}

// detailBudget is how many detail rows fit in lines, leaving room for the
// "more" line when not all n rows do.
func detailBudget(n, lines int) int {
	lines = max(lines, 1)
	if n <= min(lines, MaxVisible) {
		return MaxVisible
	}
	return min(MaxVisible, max(lines-1, 1))
}

// scrollFor returns the line offset that keeps the cursor row inside an
// overview of height lines, scrolling as little as possible.
func scrollFor(rows []Row, cursor, height int) int {
	if len(rows) == 0 || height <= 0 {
		return 0
	}
	r := rows[min(max(cursor, 0), len(rows)-1)]
	bottom := r.Top + r.Height()
	if bottom <= height {
		return 0
	}
	return min(r.Top, bottom-height)
}

// DetailWindow returns the half-open range of rows shown for a list of n rows
// with the cursor at cursor, keeping the cursor centred where the list allows.
func DetailWindow(cursor, n, visible int) (start, end int) {
	if n <= 0 || visible <= 0 {
		return 0, 0
	}
	cursor = min(max(cursor, 0), n-1)
	start = max(0, min(cursor-visible/2, n-visible))
	end = min(n, start+visible)
	return start, end
}

// Hidden is how many detail rows sit below the window.
func (f Frame) Hidden() int {
	return f.DetailCount - f.WindowEnd
}

// TimestampCol is the first column of the timestamp on a row's first line.
func (f Frame) TimestampCol() int {
	return f.Left + f.Inner - TimeCols
}

// TitleCol is the first column of PR titles.
func (f Frame) TitleCol() int {
	return f.Left + CursorCols + DotCols
}

type Hit struct {
	Pane   Pane
	Index  int // absolute row index, -1 when the pane was hit outside its rows
	Region Region
}

var miss = Hit{Pane: PaneNone, Index: -1}

// Hit maps a 1-indexed terminal cell to what the frame draws there.
func (f Frame) Hit(x, y int) Hit {
	col, row := x-1, y-1
	if col < f.Left || col >= f.Left+f.Inner {
		return miss
	}

	switch {
	case row >= f.OverviewTop && row < f.OverviewTop+f.OverviewHeight:
		return f.hitOverview(col, row-f.OverviewTop+f.OverviewScroll)
	case row >= f.DetailTop && row < f.DetailTop+f.DetailHeight:
		return f.hitDetail(col, row)
	}
	return miss
}

func (f Frame) hitOverview(col, line int) Hit {
	for i, r := range f.Rows {
		if line < r.Top || line >= r.Top+r.Height() {
			continue
		}
		h := Hit{Pane: PaneOverview, Index: i}
		firstLine := line == r.Top
		switch {
		case col < f.TitleCol():
			h.Region = RegionStatus
		case firstLine && col >= f.TimestampCol():
			h.Region = RegionTimestamp
		case firstLine && col < f.TitleCol()+f.FirstWidth:
			h.Region = RegionTitle
		case !firstLine && col < f.TitleCol()+f.RestWidth:
			h.Region = RegionTitle
		}
		return h
	}
	return Hit{Pane: PaneOverview, Index: -1}
}

func (f Frame) hitDetail(col, row int) Hit {
	visible := f.WindowEnd - f.WindowStart
	if row < f.ListTop || row >= f.ListTop+visible {
		return Hit{Pane: PaneDetail, Index: -1}
	}
	h := Hit{Pane: PaneDetail, Index: f.WindowStart + row - f.ListTop, Region: RegionTitle}
	if col < f.Left+DotCols {
		h.Region = RegionStatus
	}
	return h
}
