package combat_test

import (
	"strings"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

// mustParse builds a state from map rows with default stats.
func mustParse(t tb, rows ...string) *combat.State {
	t.Helper()
	return mustParseWith(t, battlemap.DefaultParams(), rows...)
}

func mustParseWith(t tb, p battlemap.Params, rows ...string) *combat.State {
	t.Helper()
	s, err := battlemap.Parse(strings.Join(rows, "\n"), p)
	require.NoError(t, err)
	return s
}

// params returns default stats with elf attack power overridden.
func params(elfAttack int) battlemap.Params {
	p := battlemap.DefaultParams()
	p[combat.Elf] = battlemap.Stats{HitPoints: 200, AttackPower: elfAttack}
	return p
}

// unitAt returns the unit standing on (x,y) or fails the test.
func unitAt(t tb, s *combat.State, x, y int) combat.Unit {
	t.Helper()
	u, ok := s.Units().At(grid.Pt(x, y))
	require.True(t, ok, "no unit at (%d,%d)", x, y)
	return u
}

func hitPoints(units []combat.Unit) []int {
	out := make([]int, 0, len(units))
	for _, u := range units {
		out = append(out, u.HitPoints)
	}
	return out
}

// drawMap generates a walled rectangular map with random interior glyphs.
func drawMap(rt *rapid.T) []string {
	width := rapid.IntRange(3, 9).Draw(rt, "width")
	height := rapid.IntRange(3, 9).Draw(rt, "height")
	glyph := rapid.SampledFrom([]byte("......#EG"))
	rows := make([]string, 0, height+2)
	rows = append(rows, strings.Repeat("#", width+2))
	for y := 0; y < height; y++ {
		var b strings.Builder
		b.WriteByte('#')
		for x := 0; x < width; x++ {
			b.WriteByte(glyph.Draw(rt, "glyph"))
		}
		b.WriteByte('#')
		rows = append(rows, b.String())
	}
	rows = append(rows, strings.Repeat("#", width+2))
	return rows
}
