package search_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/search"
)

var battles = map[string]string{
	"reference": `
#######
#.G...#
#...EG#
#.#.#G#
#..G#E#
#.....#
#######`,
	"elves split": `
#######
#E..EG#
#.#G.E#
#E.##E#
#G..#.#
#..E#.#
#######`,
	"goblin corners": `
#######
#E.G#.#
#.#G..#
#G.#.G#
#G..#.#
#...E.#
#######`,
	"corridor": `
#######
#.E...#
#.#..G#
#.###.#
#E#G#G#
#...#G#
#######`,
	"open field": `
#########
#G......#
#.E.#...#
#..##..G#
#...##..#
#...#...#
#.G...G.#
#.....G.#
#########`,
}

func parse(t *testing.T, name string) *combat.State {
	t.Helper()
	s, err := battlemap.Parse(battles[name], battlemap.DefaultParams())
	require.NoError(t, err)
	return s
}

func newSearcher(t *testing.T, cfg search.Config) *search.Searcher {
	t.Helper()
	s, err := search.New(cfg, combat.NewDriver(), zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	require.NoError(t, err)
	return s
}

func TestSearch_MinimalFlawlessElfAttackPower(t *testing.T) {
	tests := []struct {
		name   string
		power  int
		rounds int
		hp     int
	}{
		{"reference", 15, 29, 172},
		{"elves split", 4, 33, 948},
		{"goblin corners", 15, 37, 94},
		{"corridor", 12, 39, 166},
		{"open field", 34, 30, 38},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 200})
			res, err := s.Run(context.Background(), parse(t, tc.name))
			require.NoError(t, err)
			assert.Equal(t, tc.power, res.AttackPower)
			assert.Equal(t, tc.rounds, res.Outcome.Rounds)
			assert.Equal(t, tc.hp, res.Outcome.HitPointsRemaining)
			assert.Equal(t, tc.rounds*tc.hp, res.Outcome.Score)
			assert.True(t, res.Outcome.Flawless(combat.Elf))
			assert.Equal(t, tc.power-4+1, res.Attempts)
			require.NotNil(t, res.Final)
			assert.Equal(t, res.Outcome.HitPointsRemaining, res.Final.Units().TotalHitPoints())
		})
	}
}

func TestSearch_ParallelBatchesAgreeWithSequential(t *testing.T) {
	for _, workers := range []int{2, 3, 8} {
		s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 200, Workers: workers})
		res, err := s.Run(context.Background(), parse(t, "reference"))
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, 15, res.AttackPower, "workers=%d", workers)
		assert.Equal(t, 4988, res.Outcome.Score, "workers=%d", workers)
		assert.GreaterOrEqual(t, res.Attempts, 12)
	}
}

func TestSearch_LeavesInitialStateUntouched(t *testing.T) {
	initial := parse(t, "reference")
	before := battlemap.Render(initial, battlemap.Options{HitPoints: true})
	snap := initial.Units().Snapshot()

	s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 200, Workers: 4})
	_, err := s.Run(context.Background(), initial)
	require.NoError(t, err)

	assert.Equal(t, before, battlemap.Render(initial, battlemap.Options{HitPoints: true}))
	assert.True(t, snap.Equal(initial.Units().Snapshot()))
}

func TestSearch_NoSolutionBelowCeiling(t *testing.T) {
	s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 10})
	res, err := s.Run(context.Background(), parse(t, "reference"))
	assert.ErrorIs(t, err, search.ErrNoSolution)
	assert.Equal(t, 7, res.Attempts)
}

func TestSearch_BoostGoblins(t *testing.T) {
	// Goblins already win flawlessly in the reference battle at the floor.
	s := newSearcher(t, search.Config{Faction: combat.Goblin, Floor: 3, Ceiling: 10})
	res, err := s.Run(context.Background(), parse(t, "reference"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.AttackPower)
	assert.Equal(t, 27730, res.Outcome.Score)
}

func TestSearch_CustomPredicate(t *testing.T) {
	quick := search.PredicateFunc(func(_ int, o combat.Outcome) bool {
		return o.Winner == combat.Elf && o.Rounds <= 30
	})
	s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 200, Predicate: quick})
	res, err := s.Run(context.Background(), parse(t, "reference"))
	require.NoError(t, err)
	assert.Equal(t, combat.Elf, res.Outcome.Winner)
	assert.LessOrEqual(t, res.Outcome.Rounds, 30)
	assert.LessOrEqual(t, res.AttackPower, 15)
}

type failingPredicate struct{}

func (failingPredicate) Accept(int, combat.Outcome) (bool, error) {
	return false, errors.New("boom")
}

func TestSearch_PredicateErrorStopsSearch(t *testing.T) {
	for _, workers := range []int{1, 4} {
		s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 20, Workers: workers, Predicate: failingPredicate{}})
		_, err := s.Run(context.Background(), parse(t, "reference"))
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "boom"))
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newSearcher(t, search.Config{Faction: combat.Elf, Floor: 4, Ceiling: 20})
	_, err := s.Run(ctx, parse(t, "reference"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	d := combat.NewDriver()
	log := zap.NewNop()
	_, err := search.New(search.Config{Faction: combat.NoFaction, Floor: 4, Ceiling: 10}, d, log)
	assert.Error(t, err)
	_, err = search.New(search.Config{Faction: combat.Elf, Floor: 0, Ceiling: 10}, d, log)
	assert.Error(t, err)
	_, err = search.New(search.Config{Faction: combat.Elf, Floor: 5, Ceiling: 4}, d, log)
	assert.Error(t, err)
	_, err = search.New(search.Config{Faction: combat.Elf, Floor: 5, Ceiling: 5, Workers: -3}, d, log)
	assert.NoError(t, err)
}
