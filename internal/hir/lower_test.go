package hir

import (
	"testing"

	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

func lower(t *testing.T, src string) (*Bodies, *intern.Interner, []Diagnostic) {
	t.Helper()
	p := syntax.NewParser(src)
	f := p.ParseFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors())
	}
	idx, _ := index.Build(f)
	interner := intern.New()
	bodies, diags := Lower(f, "main.capy", idx, intern.NewUIDGenerator(), interner, Options{FakeFS: true})
	return bodies, interner, diags
}

func TestLowerIntLiteral(t *testing.T) {
	bodies, _, diags := lower(t, `main :: 5`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	idx := bodies.GlobalValues[intern.Name(0)]
	lit, ok := bodies.Exprs.Get(idx).(ExprIntLiteral)
	if !ok || lit.Value != 5 {
		t.Fatalf("expected int literal 5, got %#v", bodies.Exprs.Get(idx))
	}
}

func TestLowerIntLiteralOverflow(t *testing.T) {
	_, _, diags := lower(t, `main :: 1e20`)
	found := false
	for _, d := range diags {
		if d.Kind == OutOfRangeIntLiteral {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected OutOfRangeIntLiteral, got %v", diags)
	}
}

func TestLowerUndefinedRef(t *testing.T) {
	_, _, diags := lower(t, `main :: () -> i32 { nope }`)
	found := false
	for _, d := range diags {
		if d.Kind == UndefinedRef && d.Name == "nope" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UndefinedRef for nope, got %v", diags)
	}
}

func TestLowerSelfGlobal(t *testing.T) {
	bodies, interner, diags := lower(t, `
one : i32 : 1
two : i32 : one
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	var twoName intern.Name
	for n := range bodies.GlobalValues {
		if interner.LookupName(n) == "two" {
			twoName = n
		}
	}
	idx := bodies.GlobalValues[twoName]
	ref, ok := bodies.Exprs.Get(idx).(ExprSelfGlobal)
	if !ok {
		t.Fatalf("expected ExprSelfGlobal, got %#v", bodies.Exprs.Get(idx))
	}
	if interner.LookupName(ref.Name) != "one" {
		t.Fatalf("expected reference to one, got %q", interner.LookupName(ref.Name))
	}
}

func TestLowerLambdaParamsResolveInBody(t *testing.T) {
	bodies, _, diags := lower(t, `add :: (a: i32, b: i32) -> i32 { a + b }`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	var lamIdx Idx[Expr]
	for _, idx := range bodies.GlobalValues {
		lamIdx = idx
	}
	lam, ok := bodies.Exprs.Get(lamIdx).(ExprLambda)
	if !ok {
		t.Fatalf("expected ExprLambda")
	}
	l := bodies.Lambdas.Get(lam.Lambda)
	blk := bodies.Exprs.Get(l.Body).(ExprBlock)
	body := bodies.Exprs.Get(blk.Tail).(ExprBinary)
	lhs, ok := bodies.Exprs.Get(body.Lhs).(ExprParam)
	if !ok || lhs.Index != 0 {
		t.Fatalf("expected param 0 on lhs, got %#v", bodies.Exprs.Get(body.Lhs))
	}
	rhs, ok := bodies.Exprs.Get(body.Rhs).(ExprParam)
	if !ok || rhs.Index != 1 {
		t.Fatalf("expected param 1 on rhs, got %#v", bodies.Exprs.Get(body.Rhs))
	}
}

func TestLowerLambdaDoesNotCaptureLocals(t *testing.T) {
	bodies, _, diags := lower(t, `
main :: () -> i32 {
    x := 5
    f := () -> i32 { x }
    0
}
`)
	found := false
	for _, d := range diags {
		if d.Kind == UndefinedRef && d.Name == "x" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UndefinedRef for captured local x, got %v", diags)
	}
	_ = bodies
}

func TestLowerComptimeClearsParams(t *testing.T) {
	_, _, diags := lower(t, `
f :: (n: i32) -> i32 {
    comptime { n }
}
`)
	found := false
	for _, d := range diags {
		if d.Kind == UndefinedRef && d.Name == "n" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UndefinedRef for n inside comptime, got %v", diags)
	}
}

func TestLowerBlockScopingShadowsAcrossSiblingBlocks(t *testing.T) {
	_, _, diags := lower(t, `
main :: () -> i32 {
    if true { y := 1; 0 } else { 0 }
    y
}
`)
	found := false
	for _, d := range diags {
		if d.Kind == UndefinedRef && d.Name == "y" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected UndefinedRef for y leaking out of its block, got %v", diags)
	}
}

func TestLowerArraySizeMismatch(t *testing.T) {
	_, _, diags := lower(t, `xs : [3] i32 : [3] i32 { 1, 2 }`)
	found := false
	for _, d := range diags {
		if d.Kind == ArraySizeMismatch && d.Expected == 3 && d.Found == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ArraySizeMismatch 3 vs 2, got %v", diags)
	}
}

func TestLowerImportRequiresCapySuffix(t *testing.T) {
	_, _, diags := lower(t, `other :: import "helpers.txt"`)
	found := false
	for _, d := range diags {
		if d.Kind == ImportMustEndInDotCapy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ImportMustEndInDotCapy, got %v", diags)
	}
}

func TestLowerCharLiteralEscape(t *testing.T) {
	bodies, _, diags := lower(t, `nl :: '\n'`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	var idx Idx[Expr]
	for _, v := range bodies.GlobalValues {
		idx = v
	}
	lit, ok := bodies.Exprs.Get(idx).(ExprCharLiteral)
	if !ok || lit.Value != 10 {
		t.Fatalf("expected char literal 10, got %#v", bodies.Exprs.Get(idx))
	}
}

func TestLowerPrimitiveTypeIdent(t *testing.T) {
	bodies, _, diags := lower(t, `x : i32 : 1`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	var tyIdx Idx[Expr]
	for _, v := range bodies.GlobalTypes {
		tyIdx = v
	}
	ty, ok := bodies.Exprs.Get(tyIdx).(ExprPrimitiveTy)
	if !ok || ty.Ty.Kind != PrimIInt || ty.Ty.Width != 32 {
		t.Fatalf("expected i32 primitive type, got %#v", bodies.Exprs.Get(tyIdx))
	}
}
