package combat_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

func render(s *combat.State) string {
	return battlemap.Render(s, battlemap.Options{})
}

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

func TestResolveRound_MovementOnly(t *testing.T) {
	s := mustParse(t,
		"#########",
		"#G..G..G#",
		"#.......#",
		"#.......#",
		"#G..E..G#",
		"#.......#",
		"#.......#",
		"#G..G..G#",
		"#########",
	)

	res := s.ResolveRound()
	require.True(t, res.Complete)
	assert.Equal(t, lines(
		"#########",
		"#.G...G.#",
		"#...G...#",
		"#...E..G#",
		"#.G.....#",
		"#.......#",
		"#G..G..G#",
		"#.......#",
		"#########",
	), render(s))

	require.True(t, s.ResolveRound().Complete)
	assert.Equal(t, lines(
		"#########",
		"#..G.G..#",
		"#...G...#",
		"#.G.E.G.#",
		"#.......#",
		"#G..G..G#",
		"#.......#",
		"#.......#",
		"#########",
	), render(s))

	require.True(t, s.ResolveRound().Complete)
	assert.Equal(t, lines(
		"#########",
		"#.......#",
		"#..GGG..#",
		"#..GEG..#",
		"#G..G...#",
		"#......G#",
		"#.......#",
		"#.......#",
		"#########",
	), render(s))
}

func TestResolveRound_FirstRoundOfReferenceBattle(t *testing.T) {
	s := mustParse(t,
		"#######",
		"#.G...#",
		"#...EG#",
		"#.#.#G#",
		"#..G#E#",
		"#.....#",
		"#######",
	)
	res := s.ResolveRound()
	require.True(t, res.Complete)
	assert.Len(t, res.Events, 6)

	assert.Equal(t, lines(
		"#######",
		"#..G..#   G(200)",
		"#...EG#   E(197), G(197)",
		"#.#G#G#   G(200), G(197)",
		"#...#E#   E(197)",
		"#.....#",
		"#######",
	), battlemap.Render(s, battlemap.Options{HitPoints: true}))
	assert.Equal(t, []int{200, 197, 197, 200, 197, 197}, hitPoints(s.Units().Ordered()))
}

func TestResolveRound_DeadUnitIsSkipped(t *testing.T) {
	s := mustParseWith(t, params(200),
		"#####",
		"#EG.#",
		"#####",
	)
	goblin := unitAt(t, s, 3, 2)

	res := s.ResolveRound()
	require.True(t, res.Complete)
	require.Len(t, res.Events, 1, "the goblin dies before its turn and never acts")
	ev := res.Events[0]
	assert.True(t, ev.Attacked)
	assert.True(t, ev.Killed)
	assert.Equal(t, goblin.ID, ev.TargetID)
	assert.Equal(t, 200, ev.Damage)
	assert.LessOrEqual(t, ev.TargetHitPoints, 0)
	_, alive := s.Units().Get(goblin.ID)
	assert.False(t, alive)
}

func TestResolveRound_IncompleteWhenEnemiesRunOutMidRound(t *testing.T) {
	s := mustParseWith(t, params(200),
		"#####",
		"#EGE#",
		"#####",
	)
	res := s.ResolveRound()
	assert.False(t, res.Complete)
	assert.Len(t, res.Events, 1, "the first elf's kill is kept")
	assert.Equal(t, 0, s.Units().Count(combat.Goblin))
}

func TestTakeTurn_MovesThenAttacks(t *testing.T) {
	s := mustParse(t,
		"######",
		"#E.G.#",
		"######",
	)
	elf := unitAt(t, s, 2, 2)
	ev, status := s.TakeTurn(elf.ID)
	assert.Equal(t, combat.TurnComplete, status)
	assert.True(t, ev.Moved())
	assert.Equal(t, grid.Pt(3, 2), ev.To)
	assert.True(t, ev.Attacked)
	assert.Equal(t, 197, ev.TargetHitPoints)
	assert.Equal(t, "elf 1 moves (2,2) -> (3,2), hits 2 for 3", ev.String())
}

func TestTakeTurn_EndsCombatWithoutEnemies(t *testing.T) {
	s := mustParse(t,
		"#####",
		"#E.E#",
		"#####",
	)
	before := s.Units().Snapshot()
	_, status := s.TakeTurn(unitAt(t, s, 2, 2).ID)
	assert.Equal(t, combat.TurnCombatEnded, status)
	assert.True(t, before.Equal(s.Units().Snapshot()))
}

func TestTakeTurn_PanicsForDeadUnit(t *testing.T) {
	s := mustParse(t, "#E.G#")
	assert.Panics(t, func() { s.TakeTurn(42) })
}
