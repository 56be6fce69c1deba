package battlemap

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// Options controls Render output.
type Options struct {
	// HitPoints appends "   G(200), E(197)" to every row holding units.
	HitPoints bool
}

// Render draws s in the map text format, one row per line, each line ending in "\n".
func Render(s *combat.State, opts Options) string {
	g := s.Grid()
	b := g.Bounds()
	var out strings.Builder
	for y := b.MinY; y <= b.MaxY; y++ {
		var labels []string
		for x := b.MinX; x <= b.MaxX; x++ {
			c := grid.Pt(x, y)
			if u, ok := s.Units().At(c); ok {
				out.WriteRune(u.Faction.Glyph())
				labels = append(labels, fmt.Sprintf("%c(%d)", u.Faction.Glyph(), u.HitPoints))
				continue
			}
			if g.IsOpen(c) {
				out.WriteByte('.')
			} else {
				out.WriteByte('#')
			}
		}
		if opts.HitPoints && len(labels) > 0 {
			out.WriteString("   ")
			out.WriteString(strings.Join(labels, ", "))
		}
		out.WriteByte('\n')
	}
	return out.String()
}
