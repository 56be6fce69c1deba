package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// ErrNoAcceptFunction is returned when a predicate script does not define a global accept function.
var ErrNoAcceptFunction = errors.New("scripting: script does not define function accept(outcome)")

// Predicate decides search acceptance by calling a Lua accept(outcome) function.
// It satisfies search.Predicate.
//
// A Predicate is safe for concurrent use; calls share one LState and are serialized.
type Predicate struct {
	mu     sync.Mutex
	name   string
	L      *lua.LState
	accept *lua.LFunction
	limit  int
	logger *zap.Logger
}

// NewPredicate compiles source and runs its top level once.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a Predicate holding the script's accept function, or an error
// for syntax errors, runtime errors, an exhausted budget, or ErrNoAcceptFunction.
func NewPredicate(name, source string, limit int, logger *zap.Logger) (*Predicate, error) {
	L := NewSandboxedState()
	fn, err := L.Load(strings.NewReader(source), name)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: compiling %s: %w", name, err)
	}
	err = bounded(L, limit, func() error {
		L.Push(fn)
		return L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %s: %w", name, err)
	}
	L.SetTop(0)

	accept, ok := L.GetGlobal("accept").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoAcceptFunction, name)
	}
	logger.Debug("predicate loaded", zap.String("script", name), zap.Int("instruction_limit", limit))
	return &Predicate{name: name, L: L, accept: accept, limit: limit, logger: logger}, nil
}

// NewPredicateFromFile reads a script from path and calls NewPredicate.
//
// Postcondition: Returns a Predicate or a non-nil error.
func NewPredicateFromFile(path string, limit int, logger *zap.Logger) (*Predicate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading %s: %w", path, err)
	}
	return NewPredicate(filepath.Base(path), string(data), limit, logger)
}

// Accept calls accept(outcome) with a fresh instruction budget.
//
// Postcondition: Returns the script's boolean verdict, or an error when the script
// fails, exceeds its budget, or returns anything other than a boolean.
func (p *Predicate) Accept(attackPower int, o combat.Outcome) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	arg := outcomeTable(p.L, attackPower, o)
	var ret lua.LValue
	err := bounded(p.L, p.limit, func() error {
		if err := p.L.CallByParam(lua.P{Fn: p.accept, NRet: 1, Protect: true}, arg); err != nil {
			return err
		}
		ret = p.L.Get(-1)
		p.L.Pop(1)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scripting: %s: accept: %w", p.name, err)
	}
	verdict, ok := ret.(lua.LBool)
	if !ok {
		return false, fmt.Errorf("scripting: %s: accept returned %s, want boolean", p.name, ret.Type())
	}
	p.logger.Debug("predicate evaluated",
		zap.String("script", p.name),
		zap.Int("attack_power", attackPower),
		zap.Bool("accepted", bool(verdict)),
	)
	return bool(verdict), nil
}

// Close releases the Lua state.
func (p *Predicate) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

// outcomeTable exposes o to Lua as a plain table.
func outcomeTable(L *lua.LState, attackPower int, o combat.Outcome) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("attack_power", lua.LNumber(attackPower))
	t.RawSetString("rounds", lua.LNumber(o.Rounds))
	t.RawSetString("hit_points", lua.LNumber(o.HitPointsRemaining))
	t.RawSetString("score", lua.LNumber(o.Score))
	t.RawSetString("winner", lua.LString(o.Winner.String()))
	t.RawSetString("termination", lua.LString(o.Termination.String()))

	casualties := L.NewTable()
	for _, f := range combat.Factions {
		casualties.RawSetString(f.String(), lua.LNumber(o.Casualties[f]))
	}
	t.RawSetString("casualties", casualties)

	survivors := L.NewTable()
	for _, u := range o.Survivors {
		s := L.NewTable()
		s.RawSetString("id", lua.LNumber(u.ID))
		s.RawSetString("faction", lua.LString(u.Faction.String()))
		s.RawSetString("x", lua.LNumber(u.Position.X))
		s.RawSetString("y", lua.LNumber(u.Position.Y))
		s.RawSetString("hit_points", lua.LNumber(u.HitPoints))
		survivors.Append(s)
	}
	t.RawSetString("survivors", survivors)
	return t
}
