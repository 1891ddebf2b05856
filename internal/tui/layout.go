// pattern: Functional Core

package tui

// Region defines a rectangular area within the terminal.
type Region struct {
	X      int // Left position (0-indexed)
	Y      int // Top position (0-indexed)
	Width  int // Width in cells
	Height int // Height in lines
}

// Layout holds computed regions for all UI components.
type Layout struct {
	Header    Region // App title (1 line)
	Tree      Region // Worktree tree (left side, 60% of content width)
	Servers   Region // MCP server status panel (right side, 40%)
	Logs      Region // Log panel when open (60% of content height)
	StatusBar Region // Status bar (1 line)
	Separator Region // Separator between content and logs (1 line when logs open)
}

// Fixed heights for chrome elements
const (
	headerHeight    = 2 // Title + subtitle
	statusBarHeight = 1 // Status bar
	marginHeight    = 2 // Top + bottom margins
	separatorHeight = 1 // Separator when log panel open
)

// ComputeLayout calculates regions based on terminal dimensions.
// The content area splits 60/40 horizontally (tree/servers); when
// logPanelOpen is true the content and log areas split 40/60 vertically.
func ComputeLayout(width, height int, logPanelOpen bool) Layout {
	fixedHeight := headerHeight + statusBarHeight + marginHeight
	availableHeight := height - fixedHeight

	// Ensure minimum usable height
	if availableHeight < 4 {
		availableHeight = 4
	}

	var contentHeight, logsHeight int
	if logPanelOpen {
		contentHeight = int(float64(availableHeight) * 0.4)
		logsHeight = availableHeight - contentHeight
	} else {
		contentHeight = availableHeight
		logsHeight = 0
	}

	// Build layout top-to-bottom
	y := 0

	header := Region{X: 0, Y: y, Width: width, Height: headerHeight}
	y += headerHeight

	treeWidth := int(float64(width) * 0.6)
	tree := Region{X: 0, Y: y, Width: treeWidth, Height: contentHeight}
	servers := Region{X: treeWidth, Y: y, Width: width - treeWidth, Height: contentHeight}
	y += contentHeight

	var separator, logs Region
	if logPanelOpen {
		separator = Region{X: 0, Y: y, Width: width, Height: separatorHeight}
		y += separatorHeight

		logs = Region{X: 0, Y: y, Width: width, Height: logsHeight}
		y += logsHeight
	}

	statusBar := Region{X: 0, Y: y, Width: width, Height: statusBarHeight}

	return Layout{
		Header:    header,
		Tree:      tree,
		Servers:   servers,
		Logs:      logs,
		StatusBar: statusBar,
		Separator: separator,
	}
}

// TreeRows returns the number of worktree rows the tree panel can show
// after accounting for the panel border and title.
func (l Layout) TreeRows() int {
	h := l.Tree.Height - 4
	if h < 1 {
		h = 1
	}
	return h
}
