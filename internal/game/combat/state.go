package combat

import "github.com/cory-johannsen/skirmish/internal/game/grid"

// State is one combat in progress: the shared immutable grid and the unit
// registry it exclusively owns.
type State struct {
	grid  *grid.Grid
	units *Registry
}

// NewState wraps a populated registry as a combat.
//
// Precondition: units must be non-nil.
// Postcondition: The State owns units; callers must not mutate it afterwards.
func NewState(units *Registry) *State {
	return &State{grid: units.Grid(), units: units}
}

// Grid returns the battlefield terrain.
func (s *State) Grid() *grid.Grid { return s.grid }

// Units returns the unit registry.
func (s *State) Units() *Registry { return s.units }

// Clone returns an independent copy suitable for a separate run.
func (s *State) Clone() *State {
	return &State{grid: s.grid, units: s.units.Clone()}
}

// inRange reports whether c is orthogonally adjacent to a living unit of faction enemy.
func (s *State) inRange(c grid.Cell, enemy Faction) bool {
	for _, n := range c.Neighbors() {
		if u, ok := s.units.At(n); ok && u.Faction == enemy {
			return true
		}
	}
	return false
}
