// Package battlemap converts between the text map format and combat states.
//
// The format is a rectangle of glyphs: '#' wall, '.' open floor, 'E' an elf
// and 'G' a goblin, each standing on open floor. The top-left glyph is cell (1,1).
package battlemap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/grid"
)

// ErrEmptyMap is returned when the map text contains no rows.
var ErrEmptyMap = errors.New("battlemap: empty map")

// ErrNonRectangular is returned when map rows differ in width.
var ErrNonRectangular = errors.New("battlemap: rows differ in width")

// ErrUnknownGlyph is returned for any character outside the map alphabet.
var ErrUnknownGlyph = errors.New("battlemap: unknown glyph")

// Origin is the cell of the first glyph of the first row.
var Origin = grid.Pt(1, 1)

// Stats are the starting hit points and attack power of a faction's units.
type Stats struct {
	HitPoints   int `yaml:"hit_points"`
	AttackPower int `yaml:"attack_power"`
}

// Params holds per-faction starting stats.
type Params map[combat.Faction]Stats

// DefaultParams gives every unit 200 hit points and 3 attack power.
func DefaultParams() Params {
	return Params{
		combat.Elf:    {HitPoints: 200, AttackPower: 3},
		combat.Goblin: {HitPoints: 200, AttackPower: 3},
	}
}

// Parse builds a combat state from map text. Units are added in reading order,
// so unit IDs ascend in reading order of the starting positions.
//
// Precondition: p must hold stats for every faction present on the map.
// Postcondition: Returns a consistent State, or ErrEmptyMap, ErrNonRectangular,
// ErrUnknownGlyph, or a registry error.
func Parse(text string, p Params) (*combat.State, error) {
	rows := splitRows(text)
	if len(rows) == 0 {
		return nil, ErrEmptyMap
	}

	width := len(rows[0])
	terrain := make([][]grid.Terrain, len(rows))
	type placement struct {
		cell    grid.Cell
		faction combat.Faction
	}
	var units []placement

	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has width %d, want %d", ErrNonRectangular, y+1, len(row), width)
		}
		terrain[y] = make([]grid.Terrain, width)
		for x, ch := range []byte(row) {
			cell := Origin.Add(grid.Pt(x, y))
			switch ch {
			case '#':
				terrain[y][x] = grid.Wall
			case '.':
				terrain[y][x] = grid.Open
			case 'E', 'G':
				terrain[y][x] = grid.Open
				f := combat.Elf
				if ch == 'G' {
					f = combat.Goblin
				}
				units = append(units, placement{cell: cell, faction: f})
			default:
				return nil, fmt.Errorf("%w: %q at row %d column %d", ErrUnknownGlyph, ch, y+1, x+1)
			}
		}
	}

	g, err := grid.New(terrain, Origin)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}
	reg := combat.NewRegistry(g)
	for _, u := range units {
		st, ok := p[u.faction]
		if !ok {
			return nil, fmt.Errorf("no stats for faction %s", u.faction)
		}
		if _, err := reg.Add(u.cell, u.faction, st.HitPoints, st.AttackPower); err != nil {
			return nil, fmt.Errorf("placing unit: %w", err)
		}
	}
	return combat.NewState(reg), nil
}

// splitRows drops surrounding blank lines and trailing whitespace on each row.
func splitRows(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	rows := make([]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, strings.TrimRight(l, " \t\r"))
	}
	for len(rows) > 0 && rows[0] == "" {
		rows = rows[1:]
	}
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows
}
