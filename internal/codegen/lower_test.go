package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
	"github.com/capy-lang/capy/internal/types"
)

// compileAndRun parses src as main.capy, compiles its `main` entry, and
// returns the exit code _start produces under wazero — the same path
// cmd/capy's `run` subcommand drives.
func compileAndRun(t *testing.T, src string) int32 {
	t.Helper()

	p := syntax.NewParser(src)
	f := p.ParseFile()
	require.Empty(t, p.Errors())

	interner := intern.New()
	idx, idiags := index.Build(f)
	require.Empty(t, idiags)

	bodies, ldiags := hir.Lower(f, "main.capy", idx, intern.NewUIDGenerator(), interner, hir.Options{FakeFS: true})
	require.Empty(t, ldiags)

	fname := interner.InternFileName("main.capy")
	world := &types.World{
		Bodies:   map[intern.FileName]*hir.Bodies{fname: bodies},
		Index:    map[intern.FileName]*index.Index{fname: idx},
		Interner: interner,
	}
	entry := intern.Fqn{File: fname, Name: interner.InternName("main")}
	_, cache, inf := NewJIT(world, interner)

	driver := NewDriver(world, inf, interner, cache, Silent)
	module, err := driver.Compile(entry)
	require.NoError(t, err)

	code, err := RunJIT(context.Background(), module)
	require.NoError(t, err)
	return code
}

func TestLoopBreakExitsWithValue(t *testing.T) {
	code := compileAndRun(t, `
main :: () -> i32 {
    loop { break 7 }
}
`)
	require.EqualValues(t, 7, code)
}

func TestBlockBreakWidensViaMaxCast(t *testing.T) {
	code := compileAndRun(t, `
main :: () -> i16 {
    if true {
        y : i8 : 5
        break y
    }
    y : i16 : 42
    y
}
`)
	require.EqualValues(t, 5, code)
}

func TestWhileLoopContinueAndBreak(t *testing.T) {
	code := compileAndRun(t, `
main :: () -> i32 {
    i : i32 = 0
    sum : i32 = 0
    while i < 10 {
        i = i + 1
        if i == 5 {
            continue
        }
        if i > 8 {
            break
        }
        sum = sum + i
    }
    sum
}
`)
	// 1+2+3+4 (5 skipped) +6+7+8 = 31, loop exits when i becomes 9 (>8).
	require.EqualValues(t, 31, code)
}

func TestBinaryArithmeticAndComparison(t *testing.T) {
	code := compileAndRun(t, `
main :: () -> i32 {
    a : i32 = 6
    b : i32 = 7
    product := a * b
    if product > 40 && product < 50 {
        product - 2
    } else {
        0
    }
}
`)
	require.EqualValues(t, 40, code)
}

func TestBinaryShortCircuitOr(t *testing.T) {
	code := compileAndRun(t, `
divergesIfCalled :: () -> bool {
    loop {}
    true
}
main :: () -> i32 {
    if true || divergesIfCalled() {
        1
    } else {
        0
    }
}
`)
	require.EqualValues(t, 1, code)
}
