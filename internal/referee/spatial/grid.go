// Package spatial provides the broad phase used to find which robots are
// close enough to be touching each other.
//
// The grid stores robot indices (not pointers) in preallocated cells so a
// tick can rebuild it without allocating.
package spatial

import (
	"math"
)

// Grid buckets robots into square cells covering the turf. Coordinates are
// field coordinates centered on the center mark; points outside the
// covered area are clamped into the border cells.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col])
type Grid struct {
	originX, originY float64
	cellSize         float64
	invCellSize      float64
	cols, rows       int
	cells            [][]uint32
	scratch          []uint32
}

// NewGrid creates a grid covering [-halfX, halfX] x [-halfY, halfY].
// cellSize should be at least the largest query radius.
func NewGrid(halfX, halfY, cellSize float64, maxRobots int) *Grid {
	cols := int(math.Ceil(2 * halfX / cellSize))
	rows := int(math.Ceil(2 * halfY / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	perCell := maxRobots / len(cells)
	if perCell < 4 {
		perCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, perCell)
	}

	return &Grid{
		originX:     -halfX,
		originY:     -halfY,
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 2*maxRobots),
	}
}

// Clear empties every cell, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *Grid) col(x float64) int {
	c := int(math.Floor((x - g.originX) * g.invCellSize))
	return clamp(c, 0, g.cols-1)
}

func (g *Grid) row(y float64) int {
	r := int(math.Floor((y - g.originY) * g.invCellSize))
	return clamp(r, 0, g.rows-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Insert adds robot id at (x, y).
func (g *Grid) Insert(id uint32, x, y float64) {
	idx := g.row(y)*g.cols + g.col(x)
	g.cells[idx] = append(g.cells[idx], id)
}

// QueryRadius returns the robots in every cell overlapping the square
// around (cx, cy). Candidates may lie outside the radius; callers do the
// exact distance check.
//
// The returned slice is reused by the next call.
func (g *Grid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, maxCol := g.col(cx-radius), g.col(cx+radius)
	minRow, maxRow := g.row(cy-radius), g.row(cy+radius)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Stats summarizes cell occupancy for the debug endpoints.
type Stats struct {
	Cells     int `json:"cells"`
	Occupied  int `json:"occupied"`
	Robots    int `json:"robots"`
	MaxInCell int `json:"maxInCell"`
}

// Stats returns current occupancy.
func (g *Grid) Stats() Stats {
	s := Stats{Cells: len(g.cells)}
	for _, cell := range g.cells {
		n := len(cell)
		s.Robots += n
		if n > 0 {
			s.Occupied++
		}
		if n > s.MaxInCell {
			s.MaxInCell = n
		}
	}
	return s
}
