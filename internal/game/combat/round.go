package combat

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// TurnStatus reports whether a turn ran or found combat already over.
type TurnStatus int

const (
	TurnComplete TurnStatus = iota
	// TurnCombatEnded means the acting unit found no living enemies; the round stops here.
	TurnCombatEnded
)

// TurnEvent records what one unit did on its turn.
type TurnEvent struct {
	ActorID UnitID
	Faction Faction
	Plan    Plan
	From    grid.Cell
	To      grid.Cell
	// Attacked is false when no enemy was adjacent after moving.
	Attacked bool
	TargetID UnitID
	Damage   int
	// TargetHitPoints is the target's hit points after the attack; <= 0 when Killed.
	TargetHitPoints int
	Killed          bool
}

// Moved reports whether the unit changed cells.
func (e TurnEvent) Moved() bool { return e.From != e.To }

// String returns a one-line narrative of the turn.
func (e TurnEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", e.Faction, e.ActorID)
	if e.Moved() {
		fmt.Fprintf(&b, " moves %s -> %s", e.From, e.To)
	} else {
		fmt.Fprintf(&b, " holds %s", e.From)
	}
	if e.Attacked {
		fmt.Fprintf(&b, ", hits %d for %d", e.TargetID, e.Damage)
		if e.Killed {
			b.WriteString(", killing it")
		}
	}
	return b.String()
}

// TakeTurn runs one unit's turn: move at most one cell, then attack the best
// adjacent enemy. A target reduced to 0 hit points is removed before TakeTurn
// returns, so later turns in the same round never see it.
//
// Precondition: id must be a living unit.
// Postcondition: Returns TurnCombatEnded without mutating state if no enemy of
// the unit remains; otherwise TurnComplete.
func (s *State) TakeTurn(id UnitID) (TurnEvent, TurnStatus) {
	u, ok := s.units.Get(id)
	if !ok {
		panic(fmt.Sprintf("combat: TakeTurn precondition violated: unit %d not found", id))
	}
	ev := TurnEvent{ActorID: id, Faction: u.Faction, From: u.Position, To: u.Position}
	if s.units.Count(u.Faction.Enemy()) == 0 {
		return ev, TurnCombatEnded
	}

	ev.Plan = s.PlanMove(id)
	if ev.Plan.Kind == PlanStep {
		s.units.Move(id, ev.Plan.Step)
		ev.To = ev.Plan.Step
	}

	target, ok := s.SelectTarget(id)
	if !ok {
		return ev, TurnComplete
	}
	ev.Attacked = true
	ev.TargetID = target.ID
	ev.Damage = u.AttackPower
	ev.TargetHitPoints = target.HitPoints - u.AttackPower
	ev.Killed = s.units.ApplyDamage(target.ID, u.AttackPower)
	return ev, TurnComplete
}

// RoundResult is the outcome of one round.
type RoundResult struct {
	// Complete is false when a unit found no enemies left mid-round. Effects of
	// the turns taken before that point are kept.
	Complete bool
	Events   []TurnEvent
}

// ResolveRound gives every living unit one turn in reading order of the
// positions held at the start of the round. Units killed earlier in the round
// are skipped.
//
// Postcondition: Returns the events of every turn taken, in order.
func (s *State) ResolveRound() RoundResult {
	order := s.units.Ordered()
	events := make([]TurnEvent, 0, len(order))
	for _, u := range order {
		if _, alive := s.units.Get(u.ID); !alive {
			continue
		}
		ev, status := s.TakeTurn(u.ID)
		if status == TurnCombatEnded {
			return RoundResult{Complete: false, Events: events}
		}
		events = append(events, ev)
	}
	return RoundResult{Complete: true, Events: events}
}
