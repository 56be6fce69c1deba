package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/testutil"
)

func elfWin() combat.Outcome {
	return combat.Outcome{
		Rounds:             29,
		HitPointsRemaining: 172,
		Score:              4988,
		Winner:             combat.Elf,
		Termination:        combat.Eliminated,
		Casualties:         map[combat.Faction]int{combat.Elf: 0, combat.Goblin: 6},
		Survivors: []combat.Unit{
			{ID: 2, Faction: combat.Elf, Position: grid.Pt(5, 2), HitPoints: 158, AttackPower: 15},
			{ID: 5, Faction: combat.Elf, Position: grid.Pt(6, 5), HitPoints: 14, AttackPower: 15},
		},
	}
}

func TestPredicate_FlawlessElfScript(t *testing.T) {
	p, err := scripting.NewPredicate("flawless.lua", `
		function accept(o)
			return o.winner == "elf" and o.casualties.elf == 0
		end
	`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()

	ok, err := p.Accept(15, elfWin())
	require.NoError(t, err)
	assert.True(t, ok)

	lost := elfWin()
	lost.Casualties[combat.Elf] = 1
	ok, err = p.Accept(14, lost)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicate_SeesEveryOutcomeField(t *testing.T) {
	p, err := scripting.NewPredicate("fields.lua", `
		function accept(o)
			assert(o.attack_power == 15, "attack_power")
			assert(o.rounds == 29, "rounds")
			assert(o.hit_points == 172, "hit_points")
			assert(o.score == 4988, "score")
			assert(o.termination == "eliminated", "termination")
			assert(o.casualties.goblin == 6, "casualties")
			assert(#o.survivors == 2, "survivors")
			assert(o.survivors[1].hit_points == 158, "survivor hp")
			assert(o.survivors[2].x == 6 and o.survivors[2].y == 5, "survivor position")
			return true
		end
	`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()

	ok, err := p.Accept(15, elfWin())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredicate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"syntax", `function accept(o) return end end`},
		{"top level error", `error("nope")`},
		{"top level runaway", `while true do end`},
		{"no accept", `local x = 1`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scripting.NewPredicate(tc.name, tc.source, 1000, zaptest.NewLogger(t))
			assert.Error(t, err)
		})
	}

	_, err := scripting.NewPredicate("no accept", `accept = 3`, 0, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, scripting.ErrNoAcceptFunction)
}

func TestPredicate_CallErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"runtime error", `function accept(o) return o.missing.field end`},
		{"runaway", `function accept(o) while true do end end`},
		{"not boolean", `function accept(o) return 1 end`},
		{"no return", `function accept(o) end`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := scripting.NewPredicate(tc.name, tc.source, 1000, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer p.Close()
			_, err = p.Accept(4, elfWin())
			assert.Error(t, err)
		})
	}
}

func TestPredicate_BudgetResetsBetweenCalls(t *testing.T) {
	p, err := scripting.NewPredicate("loop.lua", `
		function accept(o)
			local n = 0
			for i = 1, 100 do n = n + 1 end
			return n == 100
		end
	`, 5000, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()
	for i := 0; i < 50; i++ {
		ok, err := p.Accept(i, elfWin())
		require.NoError(t, err, "call %d", i)
		assert.True(t, ok)
	}
}

func TestPredicate_ConcurrentCallsAreSerialized(t *testing.T) {
	p, err := scripting.NewPredicate("counter.lua", `
		calls = 0
		function accept(o)
			calls = calls + 1
			return o.attack_power % 2 == 0
		end
	`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := p.Accept(i, elfWin())
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, ok)
		}()
	}
	wg.Wait()
}

func TestNewPredicateFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quick.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function accept(o) return o.rounds < 30 end`), 0644))

	p, err := scripting.NewPredicateFromFile(path, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()
	ok, err := p.Accept(15, elfWin())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = scripting.NewPredicateFromFile(filepath.Join(dir, "missing.lua"), 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestBundledQuickWinPredicate(t *testing.T) {
	path := filepath.Join(testutil.RepoRoot(t), "content", "predicates", "quick_win.lua")
	p, err := scripting.NewPredicateFromFile(path, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()

	ok, err := p.Accept(15, elfWin())
	require.NoError(t, err)
	assert.True(t, ok)

	slow := elfWin()
	slow.Rounds = 41
	ok, err = p.Accept(15, slow)
	require.NoError(t, err)
	assert.False(t, ok)
}
