package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

func build(t *testing.T, interner *intern.Interner, fileName, src string) (intern.FileName, *World) {
	t.Helper()
	p := syntax.NewParser(src)
	f := p.ParseFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("unexpected parse errors in %s: %v", fileName, p.Errors())
	}
	idx, _ := index.Build(f)
	bodies, ldiags := hir.Lower(f, fileName, idx, intern.NewUIDGenerator(), interner, hir.Options{FakeFS: true})
	if len(ldiags) != 0 {
		t.Fatalf("unexpected lowering diagnostics in %s: %v", fileName, ldiags)
	}
	fname := interner.InternFileName(fileName)
	return fname, &World{
		Bodies:   map[intern.FileName]*hir.Bodies{fname: bodies},
		Index:    map[intern.FileName]*index.Index{fname: idx},
		Interner: interner,
	}
}

func TestInferIntLiteralFitsDeclaredI32(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `x : i32 : 5`)
	inf := New(world, nil)
	ty := inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("x")})
	if ty.Kind != IInt || ty.Width != 32 {
		t.Fatalf("expected i32, got %#v (diags %v)", ty, inf.Diags)
	}
}

func TestInferMismatchDiagnostic(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `x : bool : 5`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("x")})
	found := false
	for _, d := range inf.Diags {
		if d.Kind == Mismatch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Mismatch diagnostic, got %v", inf.Diags)
	}
}

func TestInferFunctionCall(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
add :: (a: i32, b: i32) -> i32 { a + b }
three :: add(1, 2)
`)
	inf := New(world, nil)
	ty := inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("three")})
	if ty.Kind != IInt || ty.Width != 32 {
		t.Fatalf("expected i32 result, got %#v (diags %v)", ty, inf.Diags)
	}
}

func TestInferStructFieldAccess(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
Point :: struct { x: i32, y: i32 }
p : Point : Point { x: 1, y: 2 }
px :: p.x
`)
	inf := New(world, nil)
	ty := inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("px")})
	if ty.Kind != IInt || ty.Width != 32 {
		t.Fatalf("expected i32 field, got %#v (diags %v)", ty, inf.Diags)
	}
}

func TestInferStructLiteralDuplicateField(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
Point :: struct { x: i32, y: i32 }
p : Point : Point { x: 1, x: 2, y: 3 }
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("p")})
	found := false
	for _, d := range inf.Diags {
		if d.Kind == DuplicateField && d.Name == "x" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected DuplicateField for x, got %v", inf.Diags)
	}
}

func TestInferPointerAutoDeref(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
Point :: struct { x: i32, y: i32 }
get :: (p: ^Point) -> i32 { p.x }
`)
	inf := New(world, nil)
	ty := inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("get")})
	if ty.Kind != Function {
		t.Fatalf("expected function type, got %#v (diags %v)", ty, inf.Diags)
	}
	if len(inf.Diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", inf.Diags)
	}
}

func TestInferIfBranchMismatch(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
f :: () -> i32 {
    if true { 1 } else { true }
}
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	found := false
	for _, d := range inf.Diags {
		if d.Kind == IfMismatch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected IfMismatch, got %v", inf.Diags)
	}
}

func TestInferCastUncastable(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `f :: () -> bool { 1 as str }`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	found := false
	for _, d := range inf.Diags {
		if d.Kind == Uncastable {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Uncastable, got %v", inf.Diags)
	}
}

func TestInferCyclicGlobalReportsCycle(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
a : i32 : b
b : i32 : a
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("a")})
	found := false
	for _, d := range inf.Diags {
		if d.Kind == Cycle {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Cycle diagnostic, got %v", inf.Diags)
	}
}

func TestMaxCastMixedSign(t *testing.T) {
	i32 := ResolvedTy{Kind: IInt, Width: 32}
	u8 := ResolvedTy{Kind: UInt, Width: 8}
	got, ok := MaxCast(i32, u8)
	if !ok || got.Kind != IInt || got.Width != 32 {
		t.Fatalf("expected i32, got %#v ok=%v", got, ok)
	}

	u64 := ResolvedTy{Kind: UInt, Width: 64}
	i8 := ResolvedTy{Kind: IInt, Width: 8}
	_, ok = MaxCast(i8, u64)
	if ok {
		t.Fatalf("expected mixed-sign failure for i8/u64")
	}
}

func TestInferLoopBreakValueIsLoopType(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
f :: () -> i32 {
    loop { break 7 }
}
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	require.Empty(t, inf.Diags, "expected no diagnostics")
}

func TestInferBreakWidensViaMaxCast(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
f :: () -> i16 {
    r := {
        if true {
            y : i8 : 5
            break y
        }
        y : i16 : 42
        y
    }
    r
}
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	require.Empty(t, inf.Diags, "expected the i8 break value to widen to i16 via max_cast")
}

func TestInferBreakInsideIfTargetsEnclosingLoop(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
f :: () -> i32 {
    loop {
        if true {
            break 3
        }
    }
}
`)
	inf := New(world, nil)
	inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	require.Empty(t, inf.Diags, "a break inside an if-branch should resolve against the enclosing loop")
}

func TestInferBreakOutsideLoopTargetsFunctionBody(t *testing.T) {
	interner := intern.New()
	fname, world := build(t, interner, "main.capy", `
f :: () -> i32 {
    if true {
        break 9
    }
    1
}
`)
	inf := New(world, nil)
	ty := inf.Infer(intern.Fqn{File: fname, Name: interner.InternName("f")})
	require.Equal(t, Function, ty.Kind)
	require.Empty(t, inf.Diags, "break with no enclosing loop should target the function's own body block")
}

func TestCanFitSignedIntoWeakUint(t *testing.T) {
	var arena Arena
	i32 := ResolvedTy{Kind: IInt, Width: 32}
	if !CanFit(&arena, i32, WeakUInt) {
		t.Fatalf("expected signed int to fit into weak uint")
	}
	u32 := ResolvedTy{Kind: UInt, Width: 32}
	if CanFit(&arena, i32, u32) {
		t.Fatalf("expected signed int NOT to fit into concrete uint")
	}
}
