package combat

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// PlanKind distinguishes the movement decisions a unit can make.
type PlanKind int

const (
	// PlanNoTarget means no cell adjacent to an enemy is reachable. The unit stays put.
	PlanNoTarget PlanKind = iota
	// PlanHold means the unit already stands next to an enemy and attacks in place.
	PlanHold
	// PlanStep means the unit steps one cell toward its destination.
	PlanStep
)

// String returns a human-readable plan label.
func (k PlanKind) String() string {
	switch k {
	case PlanNoTarget:
		return "no target"
	case PlanHold:
		return "hold"
	case PlanStep:
		return "step"
	default:
		return "unknown"
	}
}

// Plan is the movement decision for one unit's turn.
type Plan struct {
	Kind PlanKind
	// Step is the cell to move into. Set only for PlanStep.
	Step grid.Cell
	// Destination is the chosen cell in range of an enemy. For PlanHold it is the unit's own cell.
	Destination grid.Cell
	// Distance is the number of steps from the unit to Destination.
	Distance int
}

// PlanMove decides where unit id moves this turn.
//
// Among the open cells adjacent to any enemy, the destination is the one with
// the fewest steps, ties broken by reading order. The step taken is the
// reading-first neighbor of the unit that lies on some shortest path to that
// destination.
//
// Precondition: id must be a living unit.
// Postcondition: For PlanStep, Step is adjacent to the unit and Passable.
func (s *State) PlanMove(id UnitID) Plan {
	u, ok := s.units.Get(id)
	if !ok {
		return Plan{Kind: PlanNoTarget}
	}
	enemy := u.Faction.Enemy()
	if s.inRange(u.Position, enemy) {
		return Plan{Kind: PlanHold, Destination: u.Position}
	}

	dest, dist, found := s.nearestInRange(u.Position, enemy)
	if !found {
		return Plan{Kind: PlanNoTarget}
	}
	return Plan{
		Kind:        PlanStep,
		Step:        s.firstStep(u.Position, dest, dist),
		Destination: dest,
		Distance:    dist,
	}
}

// nearestInRange floods outward from origin one level at a time and stops at
// the first level containing a cell adjacent to enemy.
func (s *State) nearestInRange(origin grid.Cell, enemy Faction) (grid.Cell, int, bool) {
	visited := make([]bool, s.grid.Size())
	start, _ := s.grid.Index(origin)
	visited[start] = true

	frontier := []grid.Cell{origin}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []grid.Cell
		for _, c := range frontier {
			for _, n := range c.Neighbors() {
				if !s.units.Passable(n) {
					continue
				}
				i, _ := s.grid.Index(n)
				if visited[i] {
					continue
				}
				visited[i] = true
				next = append(next, n)
			}
		}

		var best grid.Cell
		found := false
		for _, c := range next {
			if s.inRange(c, enemy) && (!found || grid.ReadingLess(c, best)) {
				best, found = c, true
			}
		}
		if found {
			return best, depth, true
		}
		frontier = next
	}
	return grid.Cell{}, 0, false
}

// firstStep walks back from dest: a neighbor of origin starts a shortest path
// iff its distance to dest is dist-1. Neighbors are tried in reading order.
func (s *State) firstStep(origin, dest grid.Cell, dist int) grid.Cell {
	back := s.distancesFrom(dest, dist-1)
	for _, n := range origin.Neighbors() {
		if !s.units.Passable(n) {
			continue
		}
		i, _ := s.grid.Index(n)
		if back[i] == dist-1 {
			return n
		}
	}
	panic(fmt.Sprintf("combat: no first step from %s toward %s at distance %d", origin, dest, dist))
}

// distancesFrom returns the step distance from "from" to every passable cell
// within limit steps, indexed by grid index. Unreached cells hold -1.
func (s *State) distancesFrom(from grid.Cell, limit int) []int {
	dist := make([]int, s.grid.Size())
	for i := range dist {
		dist[i] = -1
	}
	start, _ := s.grid.Index(from)
	dist[start] = 0

	queue := []grid.Cell{from}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		ci, _ := s.grid.Index(c)
		d := dist[ci]
		if d >= limit {
			continue
		}
		for _, n := range c.Neighbors() {
			if !s.units.Passable(n) {
				continue
			}
			ni, _ := s.grid.Index(n)
			if dist[ni] >= 0 {
				continue
			}
			dist[ni] = d + 1
			queue = append(queue, n)
		}
	}
	return dist
}
