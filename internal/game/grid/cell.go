package grid

import "fmt"

// Cell is a coordinate on the battlefield. X grows to the right and Y grows downward.
type Cell struct {
	X, Y int
}

// Pt is a convenience constructor for Cell.
func Pt(x, y int) Cell { return Cell{X: x, Y: y} }

// String renders the cell as "(x,y)".
func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Add returns c translated by d.
func (c Cell) Add(d Cell) Cell { return Cell{X: c.X + d.X, Y: c.Y + d.Y} }

// Offsets lists the four orthogonal directions in reading order: up, left, right, down.
// Every neighbor expansion in the combat engine iterates in this order.
var Offsets = [4]Cell{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

// Neighbors returns the four orthogonal neighbors of c in reading order.
func (c Cell) Neighbors() [4]Cell {
	var out [4]Cell
	for i, d := range Offsets {
		out[i] = c.Add(d)
	}
	return out
}

// Adjacent reports whether o is one orthogonal step away from c.
func (c Cell) Adjacent(o Cell) bool {
	dx, dy := c.X-o.X, c.Y-o.Y
	return dx*dx+dy*dy == 1
}

// CompareReading orders cells row-major: smaller Y first, then smaller X.
// It returns a negative number when a precedes b, zero when equal, positive otherwise.
func CompareReading(a, b Cell) int {
	if a.Y != b.Y {
		return a.Y - b.Y
	}
	return a.X - b.X
}

// ReadingLess reports whether a precedes b in reading order.
func ReadingLess(a, b Cell) bool { return CompareReading(a, b) < 0 }
