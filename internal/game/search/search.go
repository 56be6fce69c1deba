// Package search finds the smallest attack power for one faction that makes a
// combat satisfy a predicate, rerunning the whole combat from the original
// starting state for every candidate.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// ErrNoSolution is returned when no attack power in [Floor, Ceiling] satisfies the predicate.
var ErrNoSolution = errors.New("search: no attack power satisfies the predicate")

// Predicate decides whether a finished combat is acceptable.
type Predicate interface {
	Accept(attackPower int, o combat.Outcome) (bool, error)
}

// PredicateFunc adapts an ordinary function to Predicate.
type PredicateFunc func(attackPower int, o combat.Outcome) bool

// Accept calls f.
func (f PredicateFunc) Accept(attackPower int, o combat.Outcome) (bool, error) {
	return f(attackPower, o), nil
}

// FlawlessVictory accepts combats that f wins without losing a unit.
func FlawlessVictory(f combat.Faction) Predicate {
	return PredicateFunc(func(_ int, o combat.Outcome) bool {
		return o.Flawless(f)
	})
}

// Config holds the search parameters.
type Config struct {
	// Faction is the faction whose attack power is raised.
	Faction combat.Faction
	// Floor is the first attack power tried.
	Floor int
	// Ceiling is the last attack power tried.
	Ceiling int
	// Workers is how many candidates run at once. 1 searches strictly in sequence.
	Workers int
	// Predicate defaults to FlawlessVictory(Faction).
	Predicate Predicate
}

// Result is the minimal accepted attack power and its combat.
type Result struct {
	AttackPower int
	Outcome     combat.Outcome
	// Final is the combat state at the end of the accepted run.
	Final *combat.State
	// Attempts counts every combat run, including those run concurrently past the answer.
	Attempts int
}

// Searcher runs the parameter search.
type Searcher struct {
	cfg    Config
	driver *combat.Driver
	logger *zap.Logger
}

// New validates cfg and returns a Searcher.
//
// Precondition: driver and logger must be non-nil.
// Postcondition: Returns a Searcher or an error describing the invalid setting.
func New(cfg Config, driver *combat.Driver, logger *zap.Logger) (*Searcher, error) {
	if cfg.Faction != combat.Elf && cfg.Faction != combat.Goblin {
		return nil, fmt.Errorf("search: faction must be elf or goblin, got %d", int(cfg.Faction))
	}
	if cfg.Floor < 1 {
		return nil, fmt.Errorf("search: floor must be >= 1, got %d", cfg.Floor)
	}
	if cfg.Ceiling < cfg.Floor {
		return nil, fmt.Errorf("search: ceiling %d below floor %d", cfg.Ceiling, cfg.Floor)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Predicate == nil {
		cfg.Predicate = FlawlessVictory(cfg.Faction)
	}
	return &Searcher{cfg: cfg, driver: driver, logger: logger}, nil
}

// Run tries attack powers upward from Floor and returns the first accepted one.
// Candidates are evaluated in batches of Workers; within a batch every run is
// independent, and the lowest accepted value of the first batch with any
// acceptance is returned, so the answer never depends on Workers.
//
// Precondition: initial must not be mutated concurrently; Run never mutates it.
// Postcondition: Returns the minimal accepted attack power, ErrNoSolution, or a run/predicate error.
func (s *Searcher) Run(ctx context.Context, initial *combat.State) (Result, error) {
	attempts := 0
	for lo := s.cfg.Floor; lo <= s.cfg.Ceiling; lo += s.cfg.Workers {
		hi := min(lo+s.cfg.Workers-1, s.cfg.Ceiling)
		batch, err := s.runBatch(ctx, initial, lo, hi)
		if err != nil {
			return Result{}, err
		}
		attempts += len(batch)
		for _, a := range batch {
			if !a.accepted {
				continue
			}
			s.logger.Info("search complete",
				zap.Stringer("faction", s.cfg.Faction),
				zap.Int("attack_power", a.power),
				zap.Int("score", a.outcome.Score),
				zap.Int("attempts", attempts),
			)
			return Result{AttackPower: a.power, Outcome: a.outcome, Final: a.final, Attempts: attempts}, nil
		}
	}
	return Result{Attempts: attempts}, fmt.Errorf("%w in [%d, %d]", ErrNoSolution, s.cfg.Floor, s.cfg.Ceiling)
}

type attempt struct {
	power    int
	outcome  combat.Outcome
	final    *combat.State
	accepted bool
}

func (s *Searcher) runBatch(ctx context.Context, initial *combat.State, lo, hi int) ([]attempt, error) {
	batch := make([]attempt, hi-lo+1)
	if len(batch) == 1 {
		a, err := s.try(ctx, initial.Clone(), lo)
		batch[0] = a
		return batch, err
	}

	// Clone before fanning out so workers never read initial.
	states := make([]*combat.State, len(batch))
	for i := range states {
		states[i] = initial.Clone()
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range batch {
		g.Go(func() error {
			a, err := s.try(gctx, states[i], lo+i)
			batch[i] = a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// try runs one candidate on run, which must be a private copy of the initial state.
func (s *Searcher) try(ctx context.Context, run *combat.State, power int) (attempt, error) {
	run.Units().SetAttackPower(s.cfg.Faction, power)
	out, err := s.driver.Run(ctx, run)
	if err != nil {
		return attempt{}, fmt.Errorf("running attack power %d: %w", power, err)
	}
	ok, err := s.cfg.Predicate.Accept(power, out)
	if err != nil {
		return attempt{}, fmt.Errorf("evaluating attack power %d: %w", power, err)
	}
	s.logger.Debug("search attempt",
		zap.Int("attack_power", power),
		zap.Int("rounds", out.Rounds),
		zap.Int("score", out.Score),
		zap.Stringer("winner", out.Winner),
		zap.Bool("accepted", ok),
	)
	return attempt{power: power, outcome: out, final: run, accepted: ok}, nil
}
