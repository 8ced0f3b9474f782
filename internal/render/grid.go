package render

import (
	"sync"

	"github.com/SoarinFerret/AttokWarden/internal/eval"
)

// Cell is a rendered card. Its identity survives timer refreshes.
type Cell struct {
	View CellView
}

type GridOptions struct {
	ColumnsMin  int
	ColumnsMax  int
	CardWidthPx int
}

// Grid is a retained-mode model of the board: the thing a widget toolkit or
// browser would hold. Full requests rebuild cells; timer requests relabel.
type Grid struct {
	mu       sync.RWMutex
	opts     GridOptions
	width    int
	columns  int
	view     View
	active   []*Cell
	departed []*Cell
	byName   map[string]*Cell

	rebuilds int
	relabels int
}

func NewGrid(opts GridOptions, widthPx int) *Grid {
	g := &Grid{
		opts:   opts,
		width:  widthPx,
		byName: make(map[string]*Cell),
	}
	g.columns = eval.Columns(widthPx, opts.CardWidthPx, opts.ColumnsMin, opts.ColumnsMax)
	return g
}

// Apply renders a request and returns the mode actually performed. A timer
// request whose composition no longer matches the grid is promoted to full.
func (g *Grid) Apply(r Request) Mode {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Mode == ModeTimer && r.View.Composition() == g.view.Composition() {
		g.relabel(r.View)
		return ModeTimer
	}
	g.rebuild(r.View)
	return ModeFull
}

func (g *Grid) rebuild(v View) {
	g.view = v
	g.active = make([]*Cell, 0, len(v.Active))
	g.departed = make([]*Cell, 0, len(v.Departed))
	g.byName = make(map[string]*Cell, len(v.Active)+len(v.Departed))
	for _, cv := range v.Active {
		c := &Cell{View: cv}
		g.active = append(g.active, c)
		g.byName[cv.Name] = c
	}
	for _, cv := range v.Departed {
		c := &Cell{View: cv}
		g.departed = append(g.departed, c)
		g.byName[cv.Name] = c
	}
	g.rebuilds++
}

func (g *Grid) relabel(v View) {
	g.view = v
	for i, cv := range v.Active {
		g.active[i].View = cv
	}
	for i, cv := range v.Departed {
		g.departed[i].View = cv
	}
	g.relabels++
}

// Resize recolumnises for a new viewport width. It reports whether the
// column count changed, which forces a rebuild.
func (g *Grid) Resize(widthPx int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.width = widthPx
	cols := eval.Columns(widthPx, g.opts.CardWidthPx, g.opts.ColumnsMin, g.opts.ColumnsMax)
	if cols == g.columns {
		return false
	}
	g.columns = cols
	g.rebuild(g.view)
	return true
}

func (g *Grid) Columns() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.columns
}

func (g *Grid) Cell(name string) *Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byName[name]
}

// Rows lays the active cells out row-major in the current column count,
// followed by the departed cells starting on a fresh row.
func (g *Grid) Rows() [][]CellView {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rows [][]CellView
	for _, section := range [][]*Cell{g.active, g.departed} {
		for start := 0; start < len(section); start += g.columns {
			end := min(start+g.columns, len(section))
			row := make([]CellView, 0, end-start)
			for _, c := range section[start:end] {
				row = append(row, c.View)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func (g *Grid) View() View {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.view
}

// Stats reports how many rebuilds and in-place relabels have happened.
func (g *Grid) Stats() (rebuilds, relabels int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rebuilds, g.relabels
}
