package combat

import "github.com/cory-johannsen/skirmish/internal/game/grid"

// SelectTarget picks the enemy unit id attacks this turn from its four
// orthogonal neighbors: lowest hit points, then highest effective power, then
// earliest position in reading order. It does not mutate s.
//
// Postcondition: Returns (target, true) for an adjacent living enemy, or (Unit{}, false).
func (s *State) SelectTarget(id UnitID) (Unit, bool) {
	u, ok := s.units.Get(id)
	if !ok {
		return Unit{}, false
	}
	enemy := u.Faction.Enemy()

	var best Unit
	found := false
	for _, c := range u.Position.Neighbors() {
		cand, ok := s.units.At(c)
		if !ok || cand.Faction != enemy {
			continue
		}
		if !found || preferTarget(cand, best) {
			best, found = cand, true
		}
	}
	return best, found
}

// preferTarget reports whether a is a better target than b.
func preferTarget(a, b Unit) bool {
	if a.HitPoints != b.HitPoints {
		return a.HitPoints < b.HitPoints
	}
	if a.EffectivePower() != b.EffectivePower() {
		return a.EffectivePower() > b.EffectivePower()
	}
	return grid.ReadingLess(a.Position, b.Position)
}
