// Package scenario loads battle definitions from YAML: a map, optional per-faction
// stats, and optional expected results to check a run against.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/battlemap"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/search"
)

// ErrMismatch is returned by Check and CheckSearch when a result differs from the expectation.
var ErrMismatch = errors.New("scenario: result does not match expectation")

// yamlScenarioFile is the top-level YAML structure for scenario files.
type yamlScenarioFile struct {
	Scenario yamlScenario `yaml:"scenario"`
}

type yamlScenario struct {
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description"`
	Map         string                     `yaml:"map"`
	Factions    map[string]battlemap.Stats `yaml:"factions"`
	Expect      Expect                     `yaml:"expect"`
}

// Expect lists the results a scenario should produce. Nil fields are not checked.
type Expect struct {
	Rounds            *int   `yaml:"rounds"`
	HitPoints         *int   `yaml:"hit_points"`
	Score             *int   `yaml:"score"`
	Winner            string `yaml:"winner"`
	SearchAttackPower *int   `yaml:"search_attack_power"`
	SearchScore       *int   `yaml:"search_score"`
}

// Scenario is a validated battle definition.
type Scenario struct {
	Name        string
	Description string
	Map         string
	// Factions holds explicit stats; factions absent here use the caller's defaults.
	Factions map[combat.Faction]battlemap.Stats
	Expect   Expect
}

// LoadFromFile reads and validates a single scenario YAML file.
//
// Postcondition: Returns a validated Scenario or a non-nil error.
func LoadFromFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a scenario from YAML bytes.
//
// Postcondition: Returns a validated Scenario or a non-nil error.
func LoadFromBytes(data []byte) (*Scenario, error) {
	var file yamlScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	ys := file.Scenario

	s := &Scenario{
		Name:        strings.TrimSpace(ys.Name),
		Description: strings.TrimSpace(ys.Description),
		Map:         ys.Map,
		Factions:    make(map[combat.Faction]battlemap.Stats, len(ys.Factions)),
		Expect:      ys.Expect,
	}
	for name, st := range ys.Factions {
		f, err := combat.ParseFaction(name)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		s.Factions[f] = st
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating scenario: %w", err)
	}
	return s, nil
}

// LoadFromDir loads every .yaml and .yml file in dir, sorted by scenario name.
//
// Postcondition: Returns all validated scenarios or the first error encountered.
func LoadFromDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	var out []*Scenario
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		s, err := LoadFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading scenario from %s: %w", name, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", s.Name, prev, name)
		}
		seen[s.Name] = name
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Validate checks the scenario's fields. The map itself is checked by Build.
func (s *Scenario) Validate() error {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if strings.TrimSpace(s.Map) == "" {
		errs = append(errs, "map must not be empty")
	}
	for f, st := range s.Factions {
		if st.HitPoints < 1 {
			errs = append(errs, fmt.Sprintf("factions.%s.hit_points must be >= 1, got %d", f, st.HitPoints))
		}
		if st.AttackPower < 1 {
			errs = append(errs, fmt.Sprintf("factions.%s.attack_power must be >= 1, got %d", f, st.AttackPower))
		}
	}
	if w := s.Expect.Winner; w != "" && w != "elf" && w != "goblin" {
		errs = append(errs, fmt.Sprintf("expect.winner must be one of [elf, goblin], got %q", w))
	}
	if len(errs) > 0 {
		return fmt.Errorf("scenario %q: %s", s.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Params merges the scenario's faction stats over defaults.
func (s *Scenario) Params(defaults battlemap.Stats) battlemap.Params {
	p := make(battlemap.Params, len(combat.Factions))
	for _, f := range combat.Factions {
		p[f] = defaults
		if st, ok := s.Factions[f]; ok {
			p[f] = st
		}
	}
	return p
}

// Build parses the scenario's map into a fresh combat state.
//
// Postcondition: Returns a consistent State or a battlemap parse error.
func (s *Scenario) Build(defaults battlemap.Stats) (*combat.State, error) {
	st, err := battlemap.Parse(s.Map, s.Params(defaults))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return st, nil
}

// Check compares a combat outcome with the scenario's expectations.
//
// Postcondition: Returns nil, or an error wrapping ErrMismatch naming every difference.
func (s *Scenario) Check(o combat.Outcome) error {
	var diffs []string
	diffs = appendIntDiff(diffs, "rounds", s.Expect.Rounds, o.Rounds)
	diffs = appendIntDiff(diffs, "hit_points", s.Expect.HitPoints, o.HitPointsRemaining)
	diffs = appendIntDiff(diffs, "score", s.Expect.Score, o.Score)
	if s.Expect.Winner != "" && s.Expect.Winner != o.Winner.String() {
		diffs = append(diffs, fmt.Sprintf("winner: want %s, got %q", s.Expect.Winner, o.Winner.String()))
	}
	return s.mismatch(diffs)
}

// CheckSearch compares a search result with the scenario's expectations.
//
// Postcondition: Returns nil, or an error wrapping ErrMismatch naming every difference.
func (s *Scenario) CheckSearch(r search.Result) error {
	var diffs []string
	diffs = appendIntDiff(diffs, "search_attack_power", s.Expect.SearchAttackPower, r.AttackPower)
	diffs = appendIntDiff(diffs, "search_score", s.Expect.SearchScore, r.Outcome.Score)
	return s.mismatch(diffs)
}

// HasSearchExpectation reports whether the scenario expects a search result.
func (s *Scenario) HasSearchExpectation() bool {
	return s.Expect.SearchAttackPower != nil || s.Expect.SearchScore != nil
}

func (s *Scenario) mismatch(diffs []string) error {
	if len(diffs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrMismatch, s.Name, strings.Join(diffs, "; "))
}

func appendIntDiff(diffs []string, field string, want *int, got int) []string {
	if want == nil || *want == got {
		return diffs
	}
	return append(diffs, fmt.Sprintf("%s: want %d, got %d", field, *want, got))
}
