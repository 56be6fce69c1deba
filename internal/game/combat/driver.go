package combat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RoundObserver is called after every round played with the round number and
// the live state. The last call of an eliminated combat carries the
// incomplete final round, numbered one past Outcome.Rounds. It must not
// mutate the state.
type RoundObserver func(round int, s *State, r RoundResult)

// Driver plays rounds until combat ends. A Driver holds only configuration,
// so one Driver may run many independent States concurrently as long as its
// observer tolerates concurrent calls.
type Driver struct {
	logger    *zap.Logger
	maxRounds int
	observer  RoundObserver
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger. The default discards all output.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxRounds bounds the number of completed rounds. 0 means unlimited.
//
// Precondition: n >= 0.
func WithMaxRounds(n int) Option {
	return func(d *Driver) { d.maxRounds = n }
}

// WithRoundObserver registers a callback run after each round, including an
// incomplete final round.
func WithRoundObserver(fn RoundObserver) Option {
	return func(d *Driver) { d.observer = fn }
}

// NewDriver creates a Driver with the given options.
//
// Postcondition: Returns a non-nil Driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run plays s to completion and returns its outcome. Combat stops when a
// faction has no units left, when a full round leaves every unit unchanged, or
// when the round budget is spent. ctx is checked between rounds.
//
// Precondition: s must be non-nil; callers must not use s concurrently.
// Postcondition: Returns the Outcome and a nil error, or ctx.Err() if ctx ended first.
func (d *Driver) Run(ctx context.Context, s *State) (Outcome, error) {
	initial := make(map[Faction]int, len(Factions))
	for _, f := range Factions {
		initial[f] = s.units.Count(f)
	}

	rounds := 0
	var term Termination
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("combat interrupted after %d rounds: %w", rounds, err)
		}
		if s.units.Count(Elf) == 0 || s.units.Count(Goblin) == 0 {
			term = Eliminated
			break
		}
		if d.maxRounds > 0 && rounds >= d.maxRounds {
			term = RoundLimit
			break
		}

		before := s.units.Snapshot()
		res := s.ResolveRound()
		if !res.Complete {
			if d.observer != nil {
				d.observer(rounds+1, s, res)
			}
			term = Eliminated
			break
		}
		rounds++
		d.logger.Debug("round complete",
			zap.Int("round", rounds),
			zap.Int("elves", s.units.Count(Elf)),
			zap.Int("goblins", s.units.Count(Goblin)),
			zap.Int("hit_points", s.units.TotalHitPoints()),
		)
		if d.observer != nil {
			d.observer(rounds, s, res)
		}
		if before.Equal(s.units.Snapshot()) {
			term = Deadlocked
			break
		}
	}

	out := d.outcome(s, rounds, term, initial)
	d.logger.Info("combat finished",
		zap.Int("rounds", out.Rounds),
		zap.Int("hit_points", out.HitPointsRemaining),
		zap.Int("score", out.Score),
		zap.Stringer("winner", out.Winner),
		zap.Stringer("termination", out.Termination),
	)
	return out, nil
}

func (d *Driver) outcome(s *State, rounds int, term Termination, initial map[Faction]int) Outcome {
	hp := s.units.TotalHitPoints()
	out := Outcome{
		Rounds:             rounds,
		HitPointsRemaining: hp,
		Score:              rounds * hp,
		Termination:        term,
		Casualties:         make(map[Faction]int, len(Factions)),
		Survivors:          s.units.Ordered(),
	}
	for _, f := range Factions {
		out.Casualties[f] = initial[f] - s.units.Count(f)
	}
	elves, goblins := s.units.Count(Elf), s.units.Count(Goblin)
	switch {
	case elves > 0 && goblins == 0:
		out.Winner = Elf
	case goblins > 0 && elves == 0:
		out.Winner = Goblin
	}
	return out
}
