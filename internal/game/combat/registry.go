package combat

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// ErrNotPassable is returned when a unit is placed on a wall or outside the grid.
var ErrNotPassable = errors.New("cell is not open floor")

// ErrCellOccupied is returned when a unit is placed on a cell that already holds a unit.
var ErrCellOccupied = errors.New("cell already occupied")

// ErrInvalidUnit is returned when a unit is added with non-positive hit points,
// attack power below 1, or an unknown faction.
var ErrInvalidUnit = errors.New("invalid unit")

// Registry owns the living units of one combat and the occupancy view of the grid.
// Occupancy is indexed by grid cell and is only mutated together with the unit
// it describes, so the two can never disagree.
//
// Registry is not safe for concurrent use.
type Registry struct {
	grid      *grid.Grid
	units     map[UnitID]*Unit
	occupancy []UnitID
	nextID    UnitID
}

// NewRegistry creates an empty Registry over g.
//
// Precondition: g must be non-nil.
// Postcondition: Returns a Registry with no units whose first issued ID is 1.
func NewRegistry(g *grid.Grid) *Registry {
	return &Registry{
		grid:      g,
		units:     make(map[UnitID]*Unit),
		occupancy: make([]UnitID, g.Size()),
		nextID:    1,
	}
}

// Grid returns the terrain the registry was built over.
func (r *Registry) Grid() *grid.Grid { return r.grid }

// Add places a new unit at pos.
//
// Precondition: pos is open floor and unoccupied; hitPoints > 0; attackPower >= 1.
// Postcondition: Returns the new unit's ID, or ErrNotPassable, ErrCellOccupied, or ErrInvalidUnit.
func (r *Registry) Add(pos grid.Cell, f Faction, hitPoints, attackPower int) (UnitID, error) {
	if f != Elf && f != Goblin {
		return 0, fmt.Errorf("%w: unknown faction %d", ErrInvalidUnit, int(f))
	}
	if hitPoints <= 0 {
		return 0, fmt.Errorf("%w: hit points must be > 0, got %d", ErrInvalidUnit, hitPoints)
	}
	if attackPower < 1 {
		return 0, fmt.Errorf("%w: attack power must be >= 1, got %d", ErrInvalidUnit, attackPower)
	}
	if !r.grid.IsOpen(pos) {
		return 0, fmt.Errorf("adding %s at %s: %w", f, pos, ErrNotPassable)
	}
	idx, _ := r.grid.Index(pos)
	if r.occupancy[idx] != 0 {
		return 0, fmt.Errorf("adding %s at %s: %w", f, pos, ErrCellOccupied)
	}

	id := r.nextID
	r.nextID++
	r.units[id] = &Unit{
		ID:          id,
		Faction:     f,
		Position:    pos,
		HitPoints:   hitPoints,
		AttackPower: attackPower,
	}
	r.occupancy[idx] = id
	return id, nil
}

// Get returns a copy of the unit with the given ID.
//
// Postcondition: Returns (unit, true) for a living unit, or (Unit{}, false) if it died or never existed.
func (r *Registry) Get(id UnitID) (Unit, bool) {
	u, ok := r.units[id]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

// At returns the unit standing on c.
func (r *Registry) At(c grid.Cell) (Unit, bool) {
	idx, ok := r.grid.Index(c)
	if !ok || r.occupancy[idx] == 0 {
		return Unit{}, false
	}
	return *r.units[r.occupancy[idx]], true
}

// Occupied reports whether a unit stands on c.
func (r *Registry) Occupied(c grid.Cell) bool {
	idx, ok := r.grid.Index(c)
	return ok && r.occupancy[idx] != 0
}

// Passable reports whether a unit could step onto c: open floor with nobody on it.
func (r *Registry) Passable(c grid.Cell) bool {
	idx, ok := r.grid.Index(c)
	return ok && r.grid.IsOpen(c) && r.occupancy[idx] == 0
}

// Move steps the unit to an orthogonally adjacent passable cell.
//
// Precondition: id is living; to is adjacent to its position and Passable.
// Postcondition: The old cell is free and to holds the unit.
func (r *Registry) Move(id UnitID, to grid.Cell) {
	u, ok := r.units[id]
	if !ok {
		panic(fmt.Sprintf("combat: Move precondition violated: unit %d not found", id))
	}
	if !u.Position.Adjacent(to) {
		panic(fmt.Sprintf("combat: Move precondition violated: %s is not adjacent to %s", to, u.Position))
	}
	if !r.Passable(to) {
		panic(fmt.Sprintf("combat: Move precondition violated: %s is not passable", to))
	}
	from, _ := r.grid.Index(u.Position)
	dest, _ := r.grid.Index(to)
	r.occupancy[from] = 0
	r.occupancy[dest] = id
	u.Position = to
}

// ApplyDamage reduces the unit's hit points by amount. A unit reduced to 0 or
// below is removed and its cell freed in the same call.
//
// Precondition: id is living; amount >= 0.
// Postcondition: Returns true iff the unit died and is no longer in the registry.
func (r *Registry) ApplyDamage(id UnitID, amount int) bool {
	if amount < 0 {
		panic(fmt.Sprintf("combat: ApplyDamage precondition violated: negative amount %d", amount))
	}
	u, ok := r.units[id]
	if !ok {
		panic(fmt.Sprintf("combat: ApplyDamage precondition violated: unit %d not found", id))
	}
	u.HitPoints -= amount
	if u.HitPoints > 0 {
		return false
	}
	idx, _ := r.grid.Index(u.Position)
	r.occupancy[idx] = 0
	delete(r.units, id)
	return true
}

// SetAttackPower sets the attack power of every unit of faction f.
// It reconfigures a combat between runs and must not be called mid-combat.
//
// Precondition: value >= 1.
func (r *Registry) SetAttackPower(f Faction, value int) {
	if value < 1 {
		panic(fmt.Sprintf("combat: SetAttackPower precondition violated: value %d < 1", value))
	}
	for _, u := range r.units {
		if u.Faction == f {
			u.AttackPower = value
		}
	}
}

// SetUnitAttackPower sets the attack power of a single unit.
//
// Precondition: id is living; value >= 1.
func (r *Registry) SetUnitAttackPower(id UnitID, value int) {
	if value < 1 {
		panic(fmt.Sprintf("combat: SetUnitAttackPower precondition violated: value %d < 1", value))
	}
	u, ok := r.units[id]
	if !ok {
		panic(fmt.Sprintf("combat: SetUnitAttackPower precondition violated: unit %d not found", id))
	}
	u.AttackPower = value
}

// Len returns the number of living units.
func (r *Registry) Len() int { return len(r.units) }

// Count returns the number of living units of faction f.
func (r *Registry) Count(f Faction) int {
	n := 0
	for _, u := range r.units {
		if u.Faction == f {
			n++
		}
	}
	return n
}

// TotalHitPoints returns the summed hit points of every living unit.
func (r *Registry) TotalHitPoints() int {
	total := 0
	for _, u := range r.units {
		total += u.HitPoints
	}
	return total
}

// OrderedBy returns copies of all living units sorted by cmp.
func (r *Registry) OrderedBy(cmp func(a, b Unit) int) []Unit {
	out := make([]Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, *u)
	}
	slices.SortFunc(out, cmp)
	return out
}

// Ordered returns copies of all living units in reading order of their positions.
func (r *Registry) Ordered() []Unit {
	return r.OrderedBy(func(a, b Unit) int {
		return grid.CompareReading(a.Position, b.Position)
	})
}

// Snapshot returns every living unit sorted by ID. Two snapshots are equal iff
// every unit has the same position, hit points, and attack power.
func (r *Registry) Snapshot() Snapshot {
	return r.OrderedBy(func(a, b Unit) int { return int(a.ID - b.ID) })
}

// Clone returns an independent deep copy sharing only the immutable grid.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		grid:      r.grid,
		units:     make(map[UnitID]*Unit, len(r.units)),
		occupancy: slices.Clone(r.occupancy),
		nextID:    r.nextID,
	}
	for id, u := range r.units {
		cp := *u
		c.units[id] = &cp
	}
	return c
}

// CheckConsistency verifies that occupancy and unit positions agree.
//
// Postcondition: Returns nil iff every living unit occupies exactly its own
// cell, no two units share a cell, and every occupied cell is open floor.
func (r *Registry) CheckConsistency() error {
	seen := 0
	for idx, id := range r.occupancy {
		if id == 0 {
			continue
		}
		seen++
		c := r.grid.CellAt(idx)
		u, ok := r.units[id]
		if !ok {
			return fmt.Errorf("cell %s holds dead unit %d", c, id)
		}
		if u.Position != c {
			return fmt.Errorf("cell %s holds unit %d positioned at %s", c, id, u.Position)
		}
		if !r.grid.IsOpen(c) {
			return fmt.Errorf("unit %d stands on %s terrain at %s", id, r.grid.TerrainAt(c), c)
		}
		if u.HitPoints <= 0 {
			return fmt.Errorf("unit %d is in the registry with %d hit points", id, u.HitPoints)
		}
	}
	if seen != len(r.units) {
		return fmt.Errorf("%d units registered but %d cells occupied", len(r.units), seen)
	}
	return nil
}

// Snapshot is an ID-ordered copy of every living unit.
type Snapshot []Unit

// Equal reports whether s and other describe the same units in the same state.
func (s Snapshot) Equal(other Snapshot) bool { return slices.Equal(s, other) }
