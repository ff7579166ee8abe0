package codegen

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// EmitObject encodes m and validates it with wazero's own module compiler
// before handing the bytes back — the "relocatable object" mode of spec
// §6.3: a self-contained wasm binary the caller can write to disk or feed
// to a linker, never instantiated here.
func EmitObject(ctx context.Context, m interface{ Encode() []byte }) ([]byte, error) {
	bytes := m.Encode()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	if _, err := rt.CompileModule(ctx, bytes); err != nil {
		return nil, fmt.Errorf("codegen: emitted module failed wazero validation: %w", err)
	}
	return bytes, nil
}

// RunJIT instantiates m and calls its `_start(argc, argv) -> i32` export,
// returning its i32 result as the process exit code (spec §4.5's JIT mode
// used for `capy run`).
func RunJIT(ctx context.Context, m interface{ Encode() []byte }) (int32, error) {
	bytes := m.Encode()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, bytes)
	if err != nil {
		return 0, fmt.Errorf("codegen: module failed to compile: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return 0, fmt.Errorf("codegen: module failed to instantiate: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction("_start")
	if fn == nil {
		return 0, fmt.Errorf("codegen: module has no _start export")
	}
	results, err := fn.Call(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("codegen: program trapped: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int32(uint32(results[0])), nil
}
