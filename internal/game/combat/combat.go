// Package combat implements the deterministic grid combat engine: the unit
// registry, pathfinding, target selection, turn and round resolution, and the
// driver that plays rounds until one faction is eliminated.
package combat

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// Faction is one of the two opposing sides. The zero value is NoFaction.
type Faction int

const (
	NoFaction Faction = iota
	Elf
	Goblin
)

// Factions lists both playable factions in a fixed order.
var Factions = [2]Faction{Elf, Goblin}

// String returns the lower-case faction name.
func (f Faction) String() string {
	switch f {
	case Elf:
		return "elf"
	case Goblin:
		return "goblin"
	default:
		return ""
	}
}

// Glyph returns the map character for f.
func (f Faction) Glyph() rune {
	switch f {
	case Elf:
		return 'E'
	case Goblin:
		return 'G'
	default:
		return '?'
	}
}

// Enemy returns the opposing faction.
//
// Precondition: f is Elf or Goblin.
func (f Faction) Enemy() Faction {
	switch f {
	case Elf:
		return Goblin
	case Goblin:
		return Elf
	default:
		panic(fmt.Sprintf("combat: Enemy precondition violated: faction %d", int(f)))
	}
}

// ParseFaction maps a faction name (case-insensitive) to its Faction.
//
// Postcondition: Returns Elf or Goblin, or a non-nil error for any other name.
func ParseFaction(name string) (Faction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "elf", "elves", "e":
		return Elf, nil
	case "goblin", "goblins", "g":
		return Goblin, nil
	default:
		return NoFaction, fmt.Errorf("unknown faction %q", name)
	}
}

// UnitID identifies a unit for its whole life. IDs start at 1 and are never reused.
type UnitID int

// Unit is a value snapshot of one combatant.
type Unit struct {
	ID          UnitID
	Faction     Faction
	Position    grid.Cell
	HitPoints   int
	AttackPower int
}

// EffectivePower is the damage this unit deals per attack. Units occupy one
// cell each, so it is the attack power alone.
func (u Unit) EffectivePower() int { return u.AttackPower }

// Termination records why a combat stopped.
type Termination int

const (
	// Eliminated means a faction had no living units when a unit began its turn.
	Eliminated Termination = iota
	// Deadlocked means a full round left every unit's position and hit points unchanged.
	Deadlocked
	// RoundLimit means the driver's round budget was exhausted.
	RoundLimit
)

// String returns a human-readable termination label.
func (t Termination) String() string {
	switch t {
	case Eliminated:
		return "eliminated"
	case Deadlocked:
		return "deadlocked"
	case RoundLimit:
		return "round limit"
	default:
		return "unknown"
	}
}

// Outcome is the result of a full combat.
type Outcome struct {
	// Rounds is the number of fully completed rounds.
	Rounds int
	// HitPointsRemaining is the summed hit points of every surviving unit.
	HitPointsRemaining int
	// Score is Rounds * HitPointsRemaining.
	Score int
	// Winner is the only faction left standing, or NoFaction.
	Winner      Faction
	Termination Termination
	// Casualties counts dead units per faction.
	Casualties map[Faction]int
	// Survivors lists surviving units in reading order.
	Survivors []Unit
}

// Flawless reports whether f won without losing a single unit.
func (o Outcome) Flawless(f Faction) bool {
	return o.Winner == f && o.Casualties[f] == 0
}
