// Package codegen drives whole-program compilation from an entry point:
// a worklist of reachable functions, each translated from typed HIR into
// backend IR (spec §4.5), mangled consistently (§4.6), and finally either
// wrapped with an entry trampoline for a standalone object/JIT module or
// run directly to service a single compile-time evaluation.
package codegen

import (
	"fmt"

	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/comptime"
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/types"
)

// Verbosity governs which compiled functions the driver prints as textual
// IR while it runs (spec §4.5's three levels).
type Verbosity int

const (
	Silent Verbosity = iota
	LocalFunctions
	All
)

// Driver is the worklist-driven whole-program codegen pass. One Driver
// compiles exactly one module (either a standalone program, via Compile, or
// a single comptime thunk, via JIT.Evaluate in jit.go).
type Driver struct {
	world         *types.World
	inf           *types.Inference
	interner      *intern.Interner
	comptimeCache *comptime.Cache
	verbosity     Verbosity

	funcIds  map[intern.Fqn]backend.FuncId
	compiled map[intern.Fqn]bool
	worklist []intern.Fqn

	globalIds map[intern.Fqn]backend.GlobalId
	initFqns  []intern.Fqn // non-literal global initializers, run by __init

	strs       map[string]uint32 // literal content -> data offset, deduplicated
	dataOffset uint32

	heapGlobal    backend.GlobalId
	heapGlobalSet bool

	module backend.Module
}

// NewDriver creates a driver over a completed World/Inference pass. cache
// may be nil when comptime blocks are known not to occur (e.g. the
// trampoline-only second pass never re-infers).
func NewDriver(world *types.World, inf *types.Inference, interner *intern.Interner, cache *comptime.Cache, verbosity Verbosity) *Driver {
	return &Driver{
		world:         world,
		inf:           inf,
		interner:      interner,
		comptimeCache: cache,
		verbosity:     verbosity,
		funcIds:       make(map[intern.Fqn]backend.FuncId),
		compiled:      make(map[intern.Fqn]bool),
		globalIds:     make(map[intern.Fqn]backend.GlobalId),
		strs:          make(map[string]uint32),
		module:        backend.Module{MemoryPages: 1},
	}
}

// Compile runs the worklist starting from entry, appends the entry
// trampoline, and returns the finished module.
func (d *Driver) Compile(entry intern.Fqn) (*backend.Module, error) {
	d.inf.Infer(entry)
	if len(d.inf.Diags) > 0 {
		return nil, fmt.Errorf("codegen: %d unresolved type diagnostic(s), first: %+v", len(d.inf.Diags), d.inf.Diags[0])
	}

	d.enqueue(entry)
	if err := d.drain(); err != nil {
		return nil, err
	}

	entryTy := d.inf.GlobalTypes[entry]
	if entryTy.Kind != types.Function {
		return nil, fmt.Errorf("codegen: entry %v is not a function", entry)
	}

	var initID backend.FuncId
	hasInit := false
	if initFn, ok := d.buildInitFunc(); ok {
		initID = backend.FuncId(len(d.module.Funcs))
		d.module.Funcs = append(d.module.Funcs, initFn)
		hasInit = true
	}
	// An initializer expression may itself call a function nothing else in
	// the program reaches (e.g. `x := helper()` at global scope); draining
	// again compiles whatever buildInitFunc's translateExpr calls just
	// enqueued. initFqns itself never grows from this second drain — only
	// translatePath/translateGlobalRef populate it, and buildInitFunc
	// doesn't walk those paths for anything but the globals already queued.
	if err := d.drain(); err != nil {
		return nil, err
	}

	trampoline := d.buildTrampoline(entry, d.inf.Sigs[d.sigIndexOf(entry)])
	if hasInit {
		trampoline.Body = append([]backend.Instr{backend.Call{Func: initID}}, trampoline.Body...)
	}
	d.module.Funcs = append(d.module.Funcs, trampoline)
	d.module.Exports = append(d.module.Exports, backend.Export{
		Name:  "_start",
		Kind:  backend.ExportFunc,
		Index: uint32(len(d.module.Funcs) - 1),
	})

	return &d.module, nil
}

func (d *Driver) drain() error {
	for len(d.worklist) > 0 {
		fqn := d.worklist[0]
		d.worklist = d.worklist[1:]
		if d.compiled[fqn] {
			continue
		}
		d.compiled[fqn] = true
		if err := d.compileOne(fqn); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) sigIndexOf(fqn intern.Fqn) types.SigIdx {
	return d.inf.GlobalTypes[fqn].Sig
}

// enqueue ensures fqn has a FuncId (declaring it in the module if this is
// the first reference) and schedules its body for compilation unless it is
// an extern import, which has no body to compile.
func (d *Driver) enqueue(fqn intern.Fqn) backend.FuncId {
	if id, ok := d.funcIds[fqn]; ok {
		return id
	}

	gty := d.inf.GlobalTypes[fqn]
	sig := d.inf.Sigs[gty.Sig]
	ft := funcTypeOf(&d.inf.Tys, sig)

	f := backend.Function{
		Name: Mangle(d.interner, fqn),
		Sig:  ft,
	}
	if sig.IsExtern {
		f.IsImport = true
		f.ImportModule = "env"
		f.ImportName = d.interner.LookupName(fqn.Name)
	}

	id := backend.FuncId(len(d.module.Funcs))
	d.module.Funcs = append(d.module.Funcs, f)
	d.funcIds[fqn] = id

	if !sig.IsExtern {
		d.worklist = append(d.worklist, fqn)
	} else if d.verbosity == All {
		d.printFunc(f)
	}
	return id
}

func (d *Driver) compileOne(fqn intern.Fqn) error {
	bodies, ok := d.world.Bodies[fqn.File]
	if !ok {
		return fmt.Errorf("codegen: no lowered body for file of %v", fqn)
	}
	valIdx, ok := bodies.GlobalValues[fqn.Name]
	if !ok {
		return fmt.Errorf("codegen: global %v has no value", fqn)
	}
	lamExpr, ok := bodies.Exprs.Get(valIdx).(hir.ExprLambda)
	if !ok {
		// Not a function-valued global; nothing to compile as a function
		// body (its value, if used, is materialized lazily by globalSlot).
		return nil
	}
	lam := bodies.Lambdas.Get(lamExpr.Lambda)
	sig := d.inf.Sigs[d.inf.GlobalTypes[fqn].Sig]

	fb := newFuncBuilder(d, fqn.File, fqn, bodies)
	fn := fb.buildFunction(lam, sig)
	if fb.err != nil {
		return fb.err
	}

	id := d.funcIds[fqn]
	fn.Name = d.module.Funcs[id].Name
	d.module.Funcs[id] = fn

	if d.verbosity != Silent {
		d.printFunc(fn)
	}
	return nil
}

func (d *Driver) printFunc(fn backend.Function) {
	fmt.Printf("; %s (%d instrs)\n", fn.Name, len(fn.Body))
}

// resolveCallTarget recognizes a direct call's callee expression as a
// reference to a known function Fqn: either a same-file global or a
// cross-file `file.name` path. Anything else (a computed/indirect callee)
// is not supported by this backend.
func (d *Driver) resolveCallTarget(file intern.FileName, calleeIdx hir.Idx[hir.Expr], bodies *hir.Bodies) (intern.Fqn, bool) {
	switch n := bodies.Exprs.Get(calleeIdx).(type) {
	case hir.ExprSelfGlobal:
		return intern.Fqn{File: file, Name: n.Name}, true
	case hir.ExprPath:
		prevTy := d.inf.ExprType(file, n.Previous)
		if prevTy.Kind == types.File {
			return intern.Fqn{File: prevTy.File, Name: n.Field}, true
		}
		return intern.Fqn{}, false
	default:
		return intern.Fqn{}, false
	}
}

// internString deduplicates literal content into the module's data section,
// laying each one out as a 4-byte little-endian length prefix followed by
// its raw bytes, and returns the byte offset of that prefix.
func (d *Driver) internString(s string) uint32 {
	if off, ok := d.strs[s]; ok {
		return off
	}
	if d.dataOffset == 0 {
		d.dataOffset = 8 // reserve the first 8 bytes (null-address guard)
	}
	buf := make([]byte, 4+len(s))
	n := uint32(len(s))
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = byte(n >> 24)
	copy(buf[4:], s)

	off := d.dataOffset
	d.module.Data = append(d.module.Data, backend.DataSegment{Offset: off, Bytes: buf})
	d.dataOffset += uint32(len(buf))
	d.strs[s] = off
	return off
}

// globalSlot lazily declares a backend Global for a non-function Capy
// global, initialized from its value expression directly when that
// expression is a literal (the common case — constants). Anything else is
// zero-initialized here and its Fqn is queued in d.initFqns: Compile
// synthesizes a single `__init` function (buildInitFunc) that evaluates
// every queued initializer's full expression at program startup and writes
// the result, the same "compute it with real code, once, before main" shape
// as any function body this driver already knows how to compile — no
// separate constant-folding pass is needed since the initializer is just
// compiled like any other expression.
func (d *Driver) globalSlot(fqn intern.Fqn, ty types.ResolvedTy) backend.GlobalId {
	if id, ok := d.globalIds[fqn]; ok {
		return id
	}
	vt := valTypeOf(&d.inf.Tys, ty)
	init := zeroInit(vt)
	needsInit := true

	if bodies, ok := d.world.Bodies[fqn.File]; ok {
		if valIdx, ok := bodies.GlobalValues[fqn.Name]; ok {
			if lit := literalConst(bodies.Exprs.Get(valIdx), ty); lit != nil {
				init = []backend.Instr{lit}
				needsInit = false
			}
		}
	}

	id := backend.GlobalId(len(d.module.Globals))
	d.module.Globals = append(d.module.Globals, backend.Global{
		Name:    Mangle(d.interner, fqn),
		Type:    vt,
		Mutable: true,
		Init:    init,
	})
	d.globalIds[fqn] = id
	if needsInit {
		d.initFqns = append(d.initFqns, fqn)
	}
	return id
}

// buildInitFunc compiles one nullary `__init` function that calls, in
// order, one small per-global helper function for every non-literal
// initializer queued in d.initFqns, each of which evaluates that global's
// value expression and stores the result — kept as separate helper
// functions (rather than one flat concatenated body) because each global
// can live in a different source file, and a funcBuilder's local-slot
// numbering and file-scoped type lookups (exprTy/localTy) are only valid
// for the one file/Fqn it was constructed with. Returns ok=false when
// nothing was queued — callers skip emitting/calling it in that case, so a
// program with only literal (or no) globals pays nothing.
func (d *Driver) buildInitFunc() (backend.Function, bool) {
	if len(d.initFqns) == 0 {
		return backend.Function{}, false
	}

	var body []backend.Instr
	for i, fqn := range d.initFqns {
		helper, ok := d.buildGlobalInitHelper(fqn, i)
		if !ok {
			continue
		}
		id := backend.FuncId(len(d.module.Funcs))
		d.module.Funcs = append(d.module.Funcs, helper)
		body = append(body, backend.Call{Func: id})
	}
	body = append(body, backend.Return{})

	return backend.Function{
		Name: MangleLocal("init", 0),
		Body: body,
	}, true
}

// buildGlobalInitHelper compiles fqn's value expression as a nullary
// function that stores its result into fqn's already-declared global.
func (d *Driver) buildGlobalInitHelper(fqn intern.Fqn, seq int) (backend.Function, bool) {
	bodies, ok := d.world.Bodies[fqn.File]
	if !ok {
		return backend.Function{}, false
	}
	valIdx, ok := bodies.GlobalValues[fqn.Name]
	if !ok {
		return backend.Function{}, false
	}

	fb := newFuncBuilder(d, fqn.File, fqn, bodies)
	instrs := fb.translateExpr(valIdx)
	if fb.err != nil {
		// Leave this global at its zero value rather than emit a
		// half-applied sequence; compileOne surfaces the same CG002 for
		// any function body hitting the identical unsupported construct.
		return backend.Function{}, false
	}
	body := append(instrs, backend.GlobalSet{Index: d.globalIds[fqn]}, backend.Return{})

	return backend.Function{
		Name:   MangleLocal("init_global", seq),
		Locals: fb.locals,
		Body:   body,
	}, true
}

func zeroInit(vt backend.ValType) []backend.Instr {
	switch vt {
	case backend.F32:
		return []backend.Instr{backend.F32Const{}}
	case backend.F64:
		return []backend.Instr{backend.F64Const{}}
	case backend.I64:
		return []backend.Instr{backend.I64Const{}}
	default:
		return []backend.Instr{backend.I32Const{}}
	}
}

func literalConst(e hir.Expr, ty types.ResolvedTy) backend.Instr {
	switch n := e.(type) {
	case hir.ExprIntLiteral:
		return intConst(ty, int64(n.Value))
	case hir.ExprFloatLiteral:
		if ty.Width <= 32 {
			return backend.F32Const{Value: float32(n.Value)}
		}
		return backend.F64Const{Value: n.Value}
	case hir.ExprBoolLiteral:
		v := int32(0)
		if n.Value {
			v = 1
		}
		return backend.I32Const{Value: v}
	default:
		return nil
	}
}
