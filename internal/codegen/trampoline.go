package codegen

import (
	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/types"
)

// buildTrampoline synthesizes the program entry `(argc, argv) -> i32`
// (spec §4.5), which Compile exports as `_start`: call
// the user entry with no arguments, then adjust its result to the target's
// i32 exit-code convention. A non-integer entry result contributes 0.
func (d *Driver) buildTrampoline(entry intern.Fqn, sig types.FuncSig) backend.Function {
	id := d.funcIds[entry]
	retTy := d.inf.Tys.Get(sig.Return)

	body := []backend.Instr{backend.Call{Func: id}}

	switch retTy.Kind {
	case types.IInt, types.UInt:
		body = append(body, adjustToI32(retTy)...)
	default:
		if hasValue(retTy) {
			body = append(body, backend.Drop{})
		}
		body = append(body, backend.I32Const{Value: 0})
	}
	body = append(body, backend.Return{})

	return backend.Function{
		Name: MangleLocal("trampoline", 0),
		Sig: backend.FuncType{
			Params:  []backend.ValType{backend.I32, backend.I32}, // argc, argv
			Results: []backend.ValType{backend.I32},
		},
		Locals: nil,
		Body:   body,
	}
}

// adjustToI32 narrows or widens the entry's return value to the target
// pointer width's i32 exit code: identity if it is already i32, a wrap if
// it is i64 (spec's "truncate ... based on comparison of its width to the
// target pointer width").
func adjustToI32(ty types.ResolvedTy) []backend.Instr {
	if wasmIntWidthIs64(ty) {
		return []backend.Instr{backend.Op{Code: backend.I32WrapI64}}
	}
	return nil
}
