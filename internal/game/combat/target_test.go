package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// targetFixture places an elf at (3,3) surrounded by four goblins with the given hit points
// in reading order: up, left, right, down.
func targetFixture(t *testing.T, hp [4]int) (*combat.State, combat.UnitID) {
	t.Helper()
	s := mustParse(t,
		"#####",
		"#.G.#",
		"#GEG#",
		"#.G.#",
		"#####",
	)
	for i, n := range grid.Pt(3, 3).Neighbors() {
		u := unitAt(t, s, n.X, n.Y)
		s.Units().ApplyDamage(u.ID, 200-hp[i])
	}
	return s, unitAt(t, s, 3, 3).ID
}

func TestSelectTarget_LowestHitPoints(t *testing.T) {
	s, elf := targetFixture(t, [4]int{9, 4, 2, 2})
	target, ok := s.SelectTarget(elf)
	require.True(t, ok)
	// Right (4,3) and down (3,4) tie at 2; right reads first.
	assert.Equal(t, grid.Pt(4, 3), target.Position)
	assert.Equal(t, 2, target.HitPoints)
}

func TestSelectTarget_ReadingOrderBreaksTies(t *testing.T) {
	s, elf := targetFixture(t, [4]int{200, 200, 200, 200})
	target, ok := s.SelectTarget(elf)
	require.True(t, ok)
	assert.Equal(t, grid.Pt(3, 2), target.Position)
}

func TestSelectTarget_HigherPowerBreaksHitPointTies(t *testing.T) {
	s, elf := targetFixture(t, [4]int{50, 50, 50, 50})
	strong := unitAt(t, s, 3, 4)
	s.Units().SetUnitAttackPower(strong.ID, 12)

	target, ok := s.SelectTarget(elf)
	require.True(t, ok)
	assert.Equal(t, strong.ID, target.ID)
}

func TestSelectTarget_IgnoresAlliesAndDiagonals(t *testing.T) {
	s := mustParse(t,
		"#####",
		"#G.G#",
		"#EE.#",
		"#G..#",
		"#####",
	)
	_, ok := s.SelectTarget(unitAt(t, s, 3, 3).ID)
	assert.False(t, ok, "only diagonal enemies and an ally are near (3,3)")

	target, ok := s.SelectTarget(unitAt(t, s, 2, 3).ID)
	require.True(t, ok)
	assert.Equal(t, grid.Pt(2, 2), target.Position)
}

func TestSelectTarget_DoesNotMutate(t *testing.T) {
	s, elf := targetFixture(t, [4]int{7, 7, 7, 7})
	before := s.Units().Snapshot()
	_, _ = s.SelectTarget(elf)
	assert.True(t, before.Equal(s.Units().Snapshot()))
}
