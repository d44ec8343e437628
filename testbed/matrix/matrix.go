// Package matrix renders the adjacency relation and applied delays as a
// text grid, one row and column per cluster in ascending id order.
package matrix

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/clusterbed/clusterbed/testbed"
)

// CellKind classifies one grid cell.
type CellKind int

const (
	// NotApplicable is the diagonal.
	NotApplicable CellKind = iota
	// NoEdge marks a non-adjacent pair.
	NoEdge
	// Connected marks an adjacent pair without recorded delay.
	Connected
	// Delayed marks an adjacent pair with recorded delay.
	Delayed
)

// Cell markers.
const (
	markNotApplicable = "-"
	markNoEdge        = "."
	markConnected     = "O"
)

// cellWidth is the right-aligned width of every cell.
const cellWidth = 4

// Cell is one typed grid entry. DelayMs is only meaningful for Delayed.
type Cell struct {
	Kind    CellKind
	DelayMs int
}

// String returns the cell marker or delay value.
func (c Cell) String() string {
	switch c.Kind {
	case NotApplicable:
		return markNotApplicable
	case Connected:
		return markConnected
	case Delayed:
		return strconv.Itoa(c.DelayMs)
	default:
		return markNoEdge
	}
}

// Renderer draws a grid over a catalog and a snapshot of applied delay.
type Renderer struct {
	catalog *testbed.LinkCatalog
	delays  map[testbed.Link]int
	// Colorize highlights delayed cells. Colors are dropped automatically
	// when output is not a terminal.
	Colorize bool
}

// New snapshots delays; later changes to the map do not affect the renderer.
func New(catalog *testbed.LinkCatalog, delays map[testbed.Link]int) *Renderer {
	snapshot := make(map[testbed.Link]int, len(delays))
	for l, ms := range delays {
		snapshot[l] = ms
	}
	return &Renderer{catalog: catalog, delays: snapshot}
}

// Cell returns the entry for the ordered pair (row, col). Delay lookup is
// symmetric: the recorded delay of link (min, max) shows in both cells.
func (r *Renderer) Cell(row, col testbed.ClusterID) Cell {
	if row == col {
		return Cell{Kind: NotApplicable}
	}
	if !r.catalog.Adjacent(row, col) {
		return Cell{Kind: NoEdge}
	}
	if ms, ok := r.delays[testbed.NewLink(row, col)]; ok {
		return Cell{Kind: Delayed, DelayMs: ms}
	}
	return Cell{Kind: Connected}
}

// Render writes the header row, a ruler and one row per cluster.
func (r *Renderer) Render(w io.Writer) error {
	ids := r.catalog.ClusterIDs()
	bw := bufio.NewWriter(w)

	header := make([]string, len(ids))
	for i, id := range ids {
		header[i] = fmt.Sprintf("%*d", cellWidth, int(id))
	}
	fmt.Fprintf(bw, "    %s\n", strings.Join(header, " "))
	fmt.Fprintf(bw, "    %s\n", strings.Repeat("-", (cellWidth+1)*len(ids)))

	highlight := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	for _, row := range ids {
		fmt.Fprintf(bw, "%3d |", int(row))
		for _, col := range ids {
			cell := r.Cell(row, col)
			text := fmt.Sprintf("%*s", cellWidth, cell.String())
			if r.Colorize {
				switch cell.Kind {
				case Delayed:
					text = highlight(text)
				case NoEdge, NotApplicable:
					text = dim(text)
				}
			}
			fmt.Fprintf(bw, "%s ", text)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// String renders the grid without color.
func (r *Renderer) String() string {
	var sb strings.Builder
	plain := *r
	plain.Colorize = false
	_ = plain.Render(&sb)
	return sb.String()
}
