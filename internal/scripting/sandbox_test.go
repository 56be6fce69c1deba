package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
		local t = {}
		table.insert(t, 1)
		assert(#t == 1, "table.insert failed")
	`)
	assert.NoError(t, err)
}

func TestBounded_StopsRunawayLoop(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	err := bounded(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err)
}

func TestBounded_BudgetIsPerCall(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	for i := 0; i < 20; i++ {
		err := bounded(L, 1000, func() error {
			return L.DoString(`local n = 0 for i = 1, 50 do n = n + i end`)
		})
		require.NoError(t, err, "call %d", i)
	}
}

func TestBounded_DefaultLimitRunsNormalScripts(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	assert.NoError(t, bounded(L, 0, func() error { return L.DoString(`local x = 1 + 1`) }))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := NewSandboxedState()
		defer L.Close()
		err := bounded(L, limit, func() error { return L.DoString(`while true do end`) })
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
