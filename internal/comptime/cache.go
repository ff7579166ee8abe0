// Package comptime holds the project-wide compile-time evaluation cache
// (spec §3.5): FQComptime -> ComptimeResult, insertion is one-shot, and the
// evaluator callback contract that internal/types.ComptimeEvaluator expects.
package comptime

import (
	"sync"

	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/types"
)

// FQComptime identifies a specific compile-time block: the global whose
// value expression (transitively) contains it, plus the block's own index
// within that file's Bodies.
type FQComptime struct {
	Fqn      intern.Fqn
	Comptime hir.Idx[hir.Comptime]
}

// Value is a materialized comptime result. Only the variants a comptime
// block can realistically produce in Capy are represented: the codegen
// driver's JIT call returns one of these depending on the block's
// ResolvedTy, canonicalized from the raw bytes wazero's call returns.
type Value struct {
	Int   int64
	Float float64
	Bool  bool
}

// ComptimeResult is a concrete value plus the ResolvedTy it was
// materialized at (spec §3.5).
type ComptimeResult struct {
	Value Value
	Ty    types.ResolvedTy
}

// Evaluator is the code-gen driver's JIT entry point for a single comptime
// block — exactly the shape internal/types.ComptimeEvaluator asks for,
// implemented by whatever owns both internal/types and internal/codegen
// (spec §9's "explicit evaluator callback wired at construction").
type Evaluator func(fqn intern.Fqn, file intern.FileName, idx hir.Idx[hir.Comptime], expected types.ResolvedTy) (ComptimeResult, error)

// Cache is the project-wide FQComptime -> ComptimeResult store. Entries are
// inserted exactly once; re-evaluation never happens (spec §3.5, testable
// property 9). Safe for the single-threaded core to share with the driver
// the core itself invokes re-entrantly during inference.
type Cache struct {
	mu      sync.Mutex
	results map[FQComptime]ComptimeResult
	eval    Evaluator
}

// New creates an empty cache that delegates misses to eval.
func New(eval Evaluator) *Cache {
	return &Cache{
		results: make(map[FQComptime]ComptimeResult),
		eval:    eval,
	}
}

// Evaluate implements types.ComptimeEvaluator: the cache is read first; on
// a miss the evaluator is invoked once and the result is stored before
// being returned. With a nil Evaluator a miss reports false (this method
// is only reached through a non-nil *Cache).
func (c *Cache) Evaluate(fqn intern.Fqn, file intern.FileName, idx hir.Idx[hir.Comptime], expected types.ResolvedTy) (types.ResolvedTy, bool) {
	key := FQComptime{Fqn: fqn, Comptime: idx}

	c.mu.Lock()
	if r, ok := c.results[key]; ok {
		c.mu.Unlock()
		return r.Ty, true
	}
	c.mu.Unlock()

	if c.eval == nil {
		return types.ResolvedTy{}, false
	}

	r, err := c.eval(fqn, file, idx, expected)
	if err != nil {
		// Compile-time evaluator failures are fatal to the compilation
		// (spec §7): there is no rollback, so the block is left
		// unevaluated here and the caller (codegen) is expected to have
		// already reported the failure and aborted before inference
		// reaches this point again.
		return types.ResolvedTy{}, false
	}

	c.mu.Lock()
	c.results[key] = r
	c.mu.Unlock()
	return r.Ty, true
}

// Lookup returns a previously cached result without triggering evaluation.
func (c *Cache) Lookup(key FQComptime) (ComptimeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[key]
	return r, ok
}

// Len reports how many comptime blocks have been evaluated so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
