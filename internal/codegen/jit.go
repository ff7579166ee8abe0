package codegen

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"

	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/comptime"
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/types"
)

// JIT re-enters codegen to materialize one comptime block's value via
// wazero (spec §4.5's "compile-time evaluation mode" — the same driver
// used for standalone compilation, here run over a single synthesized
// nullary function). Wiring note (spec §9): JIT.inf is assigned after
// construction because the types.Inference that will call back into
// JIT.Evaluate must itself be constructed with JIT's method value as its
// ComptimeEvaluator — a one-time circular handoff, not a global.
type JIT struct {
	world    *types.World
	interner *intern.Interner
	cache    *comptime.Cache
	inf      *types.Inference
}

// NewJIT wires a fresh comptime cache to a JIT evaluator and an Inference
// engine that uses it, returning all three already connected.
func NewJIT(world *types.World, interner *intern.Interner) (*JIT, *comptime.Cache, *types.Inference) {
	j := &JIT{world: world, interner: interner}
	cache := comptime.New(j.Evaluate)
	inf := types.New(world, cache)
	j.cache = cache
	j.inf = inf
	return j, cache, inf
}

// Evaluate implements comptime.Evaluator: compile `comptime { body }` as a
// nullary function of the expected type, run it under wazero, and
// canonicalize the raw result into a comptime.ComptimeResult.
func (j *JIT) Evaluate(fqn intern.Fqn, file intern.FileName, idx hir.Idx[hir.Comptime], expected types.ResolvedTy) (comptime.ComptimeResult, error) {
	bodies, ok := j.world.Bodies[file]
	if !ok {
		return comptime.ComptimeResult{}, fmt.Errorf("codegen: no bodies for comptime block in %v", fqn)
	}
	ctm := bodies.Comptimes.Get(idx)

	d := NewDriver(j.world, j.inf, j.interner, j.cache, Silent)

	fb := newFuncBuilder(d, file, fqn, bodies)
	body := fb.translateExpr(ctm.Body)
	if fb.err != nil {
		return comptime.ComptimeResult{}, fb.err
	}
	if hasValue(expected) {
		body = append(body, backend.Return{})
	}

	fn := backend.Function{
		Name:   MangleLocal("comptime", int(idx)),
		Locals: fb.locals,
		Body:   body,
	}
	if hasValue(expected) {
		fn.Sig.Results = []backend.ValType{valTypeOf(&d.inf.Tys, expected)}
	}

	d.module.Funcs = append(d.module.Funcs, fn)
	d.module.Exports = append(d.module.Exports, backend.Export{
		Name:  fn.Name,
		Kind:  backend.ExportFunc,
		Index: uint32(len(d.module.Funcs) - 1),
	})

	bytes := d.module.Encode()

	raw, err := runThunk(bytes, fn.Name, expected)
	if err != nil {
		return comptime.ComptimeResult{}, err
	}
	return comptime.ComptimeResult{Value: raw, Ty: expected}, nil
}

func runThunk(wasmBytes []byte, exportName string, expected types.ResolvedTy) (comptime.Value, error) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return comptime.Value{}, fmt.Errorf("codegen: comptime module failed to compile: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return comptime.Value{}, fmt.Errorf("codegen: comptime module failed to instantiate: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return comptime.Value{}, fmt.Errorf("codegen: comptime thunk export %q missing", exportName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return comptime.Value{}, fmt.Errorf("codegen: comptime evaluation trapped: %w", err)
	}
	if len(results) == 0 {
		return comptime.Value{}, nil
	}
	return canonicalize(results[0], expected), nil
}

func canonicalize(raw uint64, ty types.ResolvedTy) comptime.Value {
	switch ty.Kind {
	case types.Bool:
		return comptime.Value{Bool: raw != 0}
	case types.Float:
		if ty.Width <= 32 {
			return comptime.Value{Float: float64(math.Float32frombits(uint32(raw)))}
		}
		return comptime.Value{Float: math.Float64frombits(raw)}
	case types.IInt:
		w := ty.Width
		if w == 0 || w > 32 {
			return comptime.Value{Int: int64(raw)}
		}
		return comptime.Value{Int: int64(int32(uint32(raw)))}
	default:
		return comptime.Value{Int: int64(raw)}
	}
}
