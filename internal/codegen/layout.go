package codegen

import (
	"sort"

	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/types"
)

// heapBase is the first address this backend ever hands out to the bump
// allocator. Page 0 is reserved for string-literal constant data
// (internString's DataSegments); nothing dynamic is ever placed there.
const heapBase = 1 << 16

// heapPages is a fixed linear-memory budget for everything the bump
// allocator hands out. This backend never emits memory.grow: a program
// whose aggregate/frame allocations exceed this budget traps on an
// out-of-bounds store rather than growing, a documented limitation.
const heapPages = 16

// sizeOf reports a ResolvedTy's size in bytes under this backend's linear
// memory layout: wasm-natural widths for scalars, element*count for arrays,
// sequential field sizes (no padding) for structs, {ptr,len} for slices.
func (d *Driver) sizeOf(ty types.ResolvedTy) uint32 {
	switch ty.Kind {
	case types.Struct:
		var total uint32
		for _, f := range d.inf.StructFields(ty.UID) {
			total += d.sizeOf(d.inf.Tys.Get(f.Ty))
		}
		return total
	case types.Array:
		return uint32(ty.Size) * d.sizeOf(d.inf.Tys.Get(ty.Sub))
	case types.Slice:
		return 8 // data pointer + length, 4 bytes each
	case types.Distinct:
		return d.sizeOf(d.inf.Tys.Get(ty.Inner))
	default:
		return sizeOfValType(valTypeOf(&d.inf.Tys, ty))
	}
}

func sizeOfValType(vt backend.ValType) uint32 {
	if vt == backend.I64 || vt == backend.F64 {
		return 8
	}
	return 4
}

// fieldOffset walks the field declarations of the struct identified by uid
// (in declaration order, matching internal/types/infer.go's inferStructLit
// validation) summing byte sizes until name matches.
func (d *Driver) fieldOffset(uid uint32, name intern.Name) (offset uint32, ty types.ResolvedTy, ok bool) {
	var off uint32
	for _, f := range d.inf.StructFields(uid) {
		fty := d.inf.Tys.Get(f.Ty)
		if f.Name == name {
			return off, fty, true
		}
		off += d.sizeOf(fty)
	}
	return 0, types.ResolvedTy{}, false
}

// memCodeFor picks the MemLoad/MemStore width tag matching vt. This backend
// always stores a value at its full wasm-natural width (no sub-word packing
// for i8/u16/etc. fields), trading some memory for a layout that never needs
// an alignment/mask computation alongside every access.
func memCodeFor(vt backend.ValType) backend.OpCode {
	switch vt {
	case backend.I64:
		return backend.MemI64
	case backend.F32:
		return backend.MemF32
	case backend.F64:
		return backend.MemF64
	default:
		return backend.MemI32
	}
}

// heapGlobalID lazily declares the module's bump-allocator pointer, a
// mutable global seeded at heapBase, and grows the module's declared memory
// to heapPages the first time any code needs the heap at all (a program
// using only scalars never pays for it).
func (d *Driver) heapGlobalID() backend.GlobalId {
	if d.heapGlobalSet {
		return d.heapGlobal
	}
	id := backend.GlobalId(len(d.module.Globals))
	d.module.Globals = append(d.module.Globals, backend.Global{
		Name:    "__heap_bump",
		Type:    backend.I32,
		Mutable: true,
		Init:    []backend.Instr{backend.I32Const{Value: heapBase}},
	})
	d.heapGlobal = id
	d.heapGlobalSet = true
	if d.module.MemoryPages < heapPages {
		d.module.MemoryPages = heapPages
	}
	return id
}

// allocBytes emits the canonical bump-allocation sequence: push the current
// heap pointer (the result, left on the stack), then advance the global by
// size. GlobalGet twice plus one Add/GlobalSet is cheaper than a scratch
// local and needs no locals of its own.
func (d *Driver) allocBytes(size uint32) []backend.Instr {
	g := d.heapGlobalID()
	return []backend.Instr{
		backend.GlobalGet{Index: g},
		backend.GlobalGet{Index: g},
		backend.I32Const{Value: int32(size)},
		backend.Op{Code: backend.I32Add},
		backend.GlobalSet{Index: g},
	}
}

// frameSlot is one address-taken local or parameter's position within its
// function's memory frame (setupFrame).
type frameSlot struct {
	offset uint32
	ty     types.ResolvedTy
}

// collectAddressTaken walks root (a lambda body) looking for `ExprRef`
// nodes whose operand is directly an `ExprLocal`/`ExprParam` — exactly the
// set of locals/params that need a real memory address (spec's `^T`
// reference-of) rather than a wasm local, which has none. Anything wrapped
// in more than one `^` reaches only the outer reference's operand, which is
// already address-producing for any expression denoting a struct/array,
// deref, index, or field (handled directly by addressOf) and so never
// needs its own frame slot.
func collectAddressTaken(bodies *hir.Bodies, root hir.Idx[hir.Expr]) (map[hir.Idx[hir.LocalDef]]bool, map[uint32]bool) {
	locals := map[hir.Idx[hir.LocalDef]]bool{}
	params := map[uint32]bool{}

	var walkExpr func(idx hir.Idx[hir.Expr])
	var walkStmt func(idx hir.Idx[hir.Stmt])

	walkExpr = func(idx hir.Idx[hir.Expr]) {
		switch n := bodies.Exprs.Get(idx).(type) {
		case hir.ExprCast:
			walkExpr(n.Expr)
		case hir.ExprRef:
			switch operand := bodies.Exprs.Get(n.Expr).(type) {
			case hir.ExprLocal:
				locals[operand.Def] = true
			case hir.ExprParam:
				params[operand.Index] = true
			}
			walkExpr(n.Expr)
		case hir.ExprDeref:
			walkExpr(n.Pointer)
		case hir.ExprBinary:
			walkExpr(n.Lhs)
			walkExpr(n.Rhs)
		case hir.ExprUnary:
			walkExpr(n.Expr)
		case hir.ExprArray:
			if n.HasSize {
				walkExpr(n.Size)
			}
			for _, it := range n.Items {
				walkExpr(it)
			}
		case hir.ExprIndex:
			walkExpr(n.Array)
			walkExpr(n.Index)
		case hir.ExprBlock:
			for _, s := range n.Stmts {
				walkStmt(s)
			}
			if n.HasTail {
				walkExpr(n.Tail)
			}
		case hir.ExprIf:
			walkExpr(n.Cond)
			walkExpr(n.Body)
			if n.HasElse {
				walkExpr(n.Else)
			}
		case hir.ExprWhile:
			if n.HasCond {
				walkExpr(n.Cond)
			}
			walkExpr(n.Body)
		case hir.ExprBreak:
			if n.HasValue {
				walkExpr(n.Value)
			}
		case hir.ExprReturn:
			if n.HasValue {
				walkExpr(n.Value)
			}
		case hir.ExprPath:
			walkExpr(n.Previous)
		case hir.ExprCall:
			walkExpr(n.Callee)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case hir.ExprStructLiteral:
			for _, f := range n.Fields {
				walkExpr(f.Value)
			}
		}
	}

	walkStmt = func(idx hir.Idx[hir.Stmt]) {
		switch s := bodies.Stmts.Get(idx).(type) {
		case hir.StmtExpr:
			walkExpr(s.Expr)
		case hir.StmtLocalDef:
			walkExpr(bodies.LocalDefs.Get(s.Def).Value)
		case hir.StmtAssign:
			a := bodies.Assigns.Get(s.Assign)
			walkExpr(a.Source)
			walkExpr(a.Value)
		}
	}

	walkExpr(root)
	return locals, params
}

// setupFrame gives every address-taken local/param (collectAddressTaken) a
// slot in a per-call memory frame, bump-allocated in the function's
// prologue (fb.frameInit) — the frame itself is never freed on return, a
// documented limitation (a deeply recursive function taking addresses of
// its own locals will eventually exhaust heapPages).
func (fb *funcBuilder) setupFrame(lam hir.Lambda, sig types.FuncSig) {
	addrLocals, addrParams := collectAddressTaken(fb.bodies, lam.Body)
	if len(addrLocals) == 0 && len(addrParams) == 0 {
		return
	}

	fb.memLocals = make(map[hir.Idx[hir.LocalDef]]frameSlot)
	fb.memParams = make(map[uint32]frameSlot)
	fb.memLocalInited = make(map[hir.Idx[hir.LocalDef]]bool)

	var offset uint32
	for i := range lam.Params {
		if !addrParams[uint32(i)] {
			continue
		}
		pty := fb.d.inf.Tys.Get(sig.Params[i])
		fb.memParams[uint32(i)] = frameSlot{offset: offset, ty: pty}
		offset += fb.d.sizeOf(pty)
	}

	localIdxs := make([]hir.Idx[hir.LocalDef], 0, len(addrLocals))
	for idx := range addrLocals {
		localIdxs = append(localIdxs, idx)
	}
	sort.Slice(localIdxs, func(i, j int) bool { return localIdxs[i] < localIdxs[j] })
	for _, defIdx := range localIdxs {
		ty := fb.localTy(defIdx)
		fb.memLocals[defIdx] = frameSlot{offset: offset, ty: ty}
		offset += fb.d.sizeOf(ty)
	}

	fb.frameSize = offset
	if fb.frameSize == 0 {
		return
	}
	fb.frameBaseLocal = fb.allocLocal(backend.I32)
	fb.frameInit = append(fb.frameInit, fb.d.allocBytes(fb.frameSize)...)
	fb.frameInit = append(fb.frameInit, backend.LocalSet{Index: fb.frameBaseLocal})

	for i := range lam.Params {
		fs, ok := fb.memParams[uint32(i)]
		if !ok {
			continue
		}
		fb.frameInit = append(fb.frameInit, backend.LocalGet{Index: fb.frameBaseLocal})
		fb.frameInit = append(fb.frameInit, backend.LocalGet{Index: fb.paramSlots[i]})
		fb.frameInit = append(fb.frameInit, backend.MemStore{
			Code:   memCodeFor(valTypeOf(&fb.d.inf.Tys, fs.ty)),
			Offset: fs.offset,
		})
	}
}
