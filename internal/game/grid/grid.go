// Package grid provides the static battlefield geometry: cells, terrain,
// bounds, and the reading-order comparator shared by every tie-break in combat.
package grid

import (
	"errors"
	"fmt"
)

// ErrEmptyGrid is returned when a grid is constructed with no rows or no columns.
var ErrEmptyGrid = errors.New("grid: empty grid")

// ErrNonRectangular is returned when rows of a grid differ in length.
var ErrNonRectangular = errors.New("grid: rows differ in length")

// ErrInvalidTerrain is returned when a grid row contains a terrain other than Wall or Open.
var ErrInvalidTerrain = errors.New("grid: invalid terrain")

// Terrain classifies a cell of the grid.
type Terrain int

const (
	// Absent is reported for cells outside the grid bounds. Callers treat it as impassable.
	Absent Terrain = iota
	Wall
	Open
)

// String returns a human-readable terrain label.
func (t Terrain) String() string {
	switch t {
	case Wall:
		return "wall"
	case Open:
		return "open"
	default:
		return "absent"
	}
}

// Bounds is the inclusive bounding rectangle of a grid.
type Bounds struct {
	MinX, MinY, MaxX, MaxY int
}

// Width returns the number of columns covered by b.
func (b Bounds) Width() int { return b.MaxX - b.MinX + 1 }

// Height returns the number of rows covered by b.
func (b Bounds) Height() int { return b.MaxY - b.MinY + 1 }

// Contains reports whether c lies inside b.
func (b Bounds) Contains(c Cell) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}

// Grid is the immutable terrain of a battlefield.
// Cells are stored row-major so that index order equals reading order.
type Grid struct {
	bounds  Bounds
	terrain []Terrain
}

// New builds a Grid from row-major terrain rows. rows[0][0] is placed at origin.
// The input is copied; later mutation of rows does not affect the Grid.
//
// Precondition: every entry of rows must be Wall or Open.
// Postcondition: Returns a Grid whose Bounds start at origin, or ErrEmptyGrid,
// ErrNonRectangular, or ErrInvalidTerrain.
func New(rows [][]Terrain, origin Cell) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	h, w := len(rows), len(rows[0])
	terrain := make([]Terrain, 0, w*h)
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrNonRectangular, y, len(row), w)
		}
		for x, t := range row {
			if t != Wall && t != Open {
				return nil, fmt.Errorf("%w: %s at row %d column %d", ErrInvalidTerrain, t, y, x)
			}
			terrain = append(terrain, t)
		}
	}
	return &Grid{
		bounds: Bounds{
			MinX: origin.X,
			MinY: origin.Y,
			MaxX: origin.X + w - 1,
			MaxY: origin.Y + h - 1,
		},
		terrain: terrain,
	}, nil
}

// Bounds returns the bounding rectangle of the grid.
func (g *Grid) Bounds() Bounds { return g.bounds }

// Size returns the number of cells in the grid.
func (g *Grid) Size() int { return len(g.terrain) }

// Index maps c to its row-major index.
//
// Postcondition: Returns (index, true) if c is in bounds, or (-1, false) otherwise.
func (g *Grid) Index(c Cell) (int, bool) {
	if !g.bounds.Contains(c) {
		return -1, false
	}
	return (c.Y-g.bounds.MinY)*g.bounds.Width() + (c.X - g.bounds.MinX), true
}

// CellAt is the inverse of Index.
//
// Precondition: 0 <= i < Size().
func (g *Grid) CellAt(i int) Cell {
	w := g.bounds.Width()
	return Cell{X: g.bounds.MinX + i%w, Y: g.bounds.MinY + i/w}
}

// TerrainAt returns the terrain of c, or Absent when c is out of bounds.
func (g *Grid) TerrainAt(c Cell) Terrain {
	i, ok := g.Index(c)
	if !ok {
		return Absent
	}
	return g.terrain[i]
}

// IsOpen reports whether c is in bounds and open floor.
func (g *Grid) IsOpen(c Cell) bool { return g.TerrainAt(c) == Open }
