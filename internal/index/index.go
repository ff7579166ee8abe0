// Package index builds the per-file top-level symbol table consumed by
// lowering and inference (spec §4.2, component C2).
package index

import (
	"github.com/capy-lang/capy/internal/syntax"
)

// DiagnosticKind enumerates the indexing failure modes.
type DiagnosticKind int

const (
	NonBindingAtRoot DiagnosticKind = iota
	AlreadyDefined
	MissingTy
	FunctionTy
)

// Diagnostic carries one indexing failure.
type Diagnostic struct {
	Kind  DiagnosticKind
	Name  string
	Range syntax.Range
}

// Index maps each top-level name to the syntax node that defines it.
// Duplicate definitions after the first are dropped silently from the map,
// though an AlreadyDefined diagnostic is still recorded for them.
type Index struct {
	Defs map[string]*syntax.Define
}

// Build walks the top-level definitions of f and produces its Index plus
// any indexing diagnostics. Indexing never aborts: every diagnostic is
// collected and the map always reflects the first definition of each name.
func Build(f *syntax.File) (*Index, []Diagnostic) {
	idx := &Index{Defs: make(map[string]*syntax.Define)}
	var diags []Diagnostic

	for _, def := range f.Defs {
		if def.Mutable {
			diags = append(diags, Diagnostic{Kind: NonBindingAtRoot, Name: def.Name, Range: def.Range})
		}

		isLambda := isLambdaValue(def.Value)
		if isLambda && def.Type != nil {
			diags = append(diags, Diagnostic{Kind: FunctionTy, Name: def.Name, Range: def.Range})
		}
		if !isLambda && def.Type == nil {
			diags = append(diags, Diagnostic{Kind: MissingTy, Name: def.Name, Range: def.Range})
		}

		if _, exists := idx.Defs[def.Name]; exists {
			diags = append(diags, Diagnostic{Kind: AlreadyDefined, Name: def.Name, Range: def.Range})
			continue
		}
		idx.Defs[def.Name] = def
	}

	return idx, diags
}

func isLambdaValue(e syntax.Expr) bool {
	_, ok := e.(*syntax.Lambda)
	return ok
}

// Has reports whether name is a top-level definition in this file.
func (i *Index) Has(name string) bool {
	_, ok := i.Defs[name]
	return ok
}

// Get returns the definition node for name, if any.
func (i *Index) Get(name string) (*syntax.Define, bool) {
	d, ok := i.Defs[name]
	return d, ok
}
