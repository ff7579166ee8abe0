package codegen

import (
	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/types"
)

// TargetPointerWidth is the width (in bits) of a backend pointer on the
// wasm32 target this backend emits for. The entry trampoline's return-value
// adjustment (spec §4.5) compares an integer result's width against this.
const TargetPointerWidth = 32

// valTypeOf maps a Capy ResolvedTy onto one of WASM's four value types
// (widths <=32 -> I32, (32,64] -> I64;
// i128/u128 have no native WASM type and are truncated to I64, a documented
// limitation). Pointers, strings, files and metatypes are all represented
// as an i32 linear-memory address; struct/array/slice values are likewise
// addresses into linear memory (this backend never keeps an aggregate
// split across wasm locals).
func valTypeOf(tys *types.Arena, t types.ResolvedTy) backend.ValType {
	switch t.Kind {
	case types.Bool:
		return backend.I32
	case types.IInt, types.UInt:
		w := t.Width
		if w == 0 {
			w = 32
		}
		if w <= 32 {
			return backend.I32
		}
		return backend.I64 // includes the i128/u128 truncate-to-I64 limitation
	case types.Float:
		if t.Width <= 32 {
			return backend.F32
		}
		return backend.F64
	case types.Char:
		return backend.I32
	case types.Distinct:
		return valTypeOf(tys, tys.Get(t.Inner))
	default:
		// Pointer, Array, Slice, Struct, Str, File, Metatype, Any, Void,
		// Unknown: all represented as an i32 linear-memory address (or, for
		// Void/Unknown, an unused i32 that is always immediately dropped).
		return backend.I32
	}
}

// hasValue reports whether t produces a value a caller can consume (Void
// and Unknown compile to code that never leaves a value on the stack).
func hasValue(t types.ResolvedTy) bool {
	return t.Kind != types.Void && t.Kind != types.Unknown
}

func funcTypeOf(tys *types.Arena, sig types.FuncSig) backend.FuncType {
	ft := backend.FuncType{Params: make([]backend.ValType, 0, len(sig.Params))}
	for _, p := range sig.Params {
		ft.Params = append(ft.Params, valTypeOf(tys, tys.Get(p)))
	}
	ret := tys.Get(sig.Return)
	if hasValue(ret) {
		ft.Results = []backend.ValType{valTypeOf(tys, ret)}
	}
	return ft
}
