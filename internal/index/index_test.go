package index

import (
	"testing"

	"github.com/capy-lang/capy/internal/syntax"
)

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	p := syntax.NewParser(src)
	f := p.ParseFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors())
	}
	return f
}

func TestBuildSimple(t *testing.T) {
	f := parse(t, `main :: () -> i32 { 0 }`)
	idx, diags := Build(f)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !idx.Has("main") {
		t.Fatalf("expected main to be indexed")
	}
}

func TestNonBindingAtRoot(t *testing.T) {
	f := parse(t, `x := 5`)
	_, diags := Build(f)
	found := false
	for _, d := range diags {
		if d.Kind == NonBindingAtRoot && d.Name == "x" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NonBindingAtRoot diagnostic, got %v", diags)
	}
}

func TestAlreadyDefined(t *testing.T) {
	f := parse(t, `x : i32 : 1
x : i32 : 2`)
	idx, diags := Build(f)
	found := false
	for _, d := range diags {
		if d.Kind == AlreadyDefined && d.Name == "x" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected AlreadyDefined diagnostic, got %v", diags)
	}
	def, _ := idx.Get("x")
	if lit, ok := def.Value.(*syntax.IntLit); !ok || lit.Text != "1" {
		t.Fatalf("expected first definition to win, got %#v", def.Value)
	}
}

func TestMissingTy(t *testing.T) {
	f := parse(t, `x :: 1`)
	_, diags := Build(f)
	found := false
	for _, d := range diags {
		if d.Kind == MissingTy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MissingTy diagnostic, got %v", diags)
	}
}

func TestFunctionTyRedundant(t *testing.T) {
	f := parse(t, `main : i32 : () -> i32 { 0 }`)
	_, diags := Build(f)
	found := false
	for _, d := range diags {
		if d.Kind == FunctionTy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FunctionTy diagnostic, got %v", diags)
	}
}
