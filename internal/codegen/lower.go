package codegen

import (
	"github.com/capy-lang/capy/internal/backend"
	"github.com/capy-lang/capy/internal/capyerr"
	"github.com/capy-lang/capy/internal/comptime"
	"github.com/capy-lang/capy/internal/diagnostics"
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
	"github.com/capy-lang/capy/internal/types"
)

// label marks one structured scope (Block/Loop/If) opened while translating
// a function body, so Br/BrIf depths can be computed relative to however
// deeply break/continue are nested inside further ifs at the time they are
// emitted.
type label struct{ id int }

// breakScope is one entry of fb.scopes: a block or while/loop that a
// `break` can target. Only while/loop entries (isLoop) are also valid
// `continue` targets. A plain block reached in ordinary expression
// position (spec E5's bare `{ ... }`) pushes a non-loop entry; if/while
// bodies are translated inline (translateBodyInline) and so never push
// their own entry, matching how internal/types/infer.go resolves the same
// scoping for `break value`'s type.
type breakScope struct {
	breakLabel    label
	isLoop        bool
	continueLabel label // only meaningful when isLoop
	resultTy      types.ResolvedTy
}

// funcBuilder translates one hir.Lambda body into a flat []backend.Instr,
// allocating wasm locals for Capy local defs and params as it goes.
type funcBuilder struct {
	d      *Driver
	file   intern.FileName
	fqn    intern.Fqn
	bodies *hir.Bodies

	nextID int
	labels []label
	scopes []*breakScope

	paramSlots []uint32
	localSlot  map[hir.Idx[hir.LocalDef]]uint32
	locals     []backend.ValType

	// Memory-frame state for address-taken locals/params (setupFrame):
	// anything `^`-referenced needs a real linear-memory address, which a
	// wasm local cannot offer. Empty/zero unless the function actually
	// takes an address of one of its own bindings.
	memLocals      map[hir.Idx[hir.LocalDef]]frameSlot
	memParams      map[uint32]frameSlot
	memLocalInited map[hir.Idx[hir.LocalDef]]bool
	frameBaseLocal uint32
	frameSize      uint32
	frameInit      []backend.Instr

	// err latches the first unsupported-construct failure encountered
	// while translating this function (capyerr.CG002); compileOne/Evaluate
	// check it after the walk completes rather than threading an error
	// return through every translate* method.
	err error
}

func newFuncBuilder(d *Driver, file intern.FileName, fqn intern.Fqn, bodies *hir.Bodies) *funcBuilder {
	return &funcBuilder{
		d:         d,
		file:      file,
		fqn:       fqn,
		bodies:    bodies,
		localSlot: make(map[hir.Idx[hir.LocalDef]]uint32),
	}
}

func (fb *funcBuilder) pushLabel() label {
	fb.nextID++
	l := label{id: fb.nextID}
	fb.labels = append(fb.labels, l)
	return l
}

func (fb *funcBuilder) popLabel() {
	fb.labels = fb.labels[:len(fb.labels)-1]
}

func (fb *funcBuilder) depthTo(target label) uint32 {
	for i := len(fb.labels) - 1; i >= 0; i-- {
		if fb.labels[i].id == target.id {
			return uint32(len(fb.labels) - 1 - i)
		}
	}
	return 0
}

func (fb *funcBuilder) exprTy(idx hir.Idx[hir.Expr]) types.ResolvedTy {
	return fb.d.inf.ExprType(fb.file, idx)
}

func (fb *funcBuilder) localTy(idx hir.Idx[hir.LocalDef]) types.ResolvedTy {
	return fb.d.inf.LocalType(fb.file, idx)
}

func (fb *funcBuilder) allocLocal(vt backend.ValType) uint32 {
	slot := uint32(len(fb.paramSlots) + len(fb.locals))
	fb.locals = append(fb.locals, vt)
	return slot
}

// buildFunction compiles lam (declared at fqn) into a backend.Function body.
func (fb *funcBuilder) buildFunction(lam hir.Lambda, sig types.FuncSig) backend.Function {
	fb.paramSlots = make([]uint32, len(lam.Params))
	for i := range lam.Params {
		fb.paramSlots[i] = uint32(i)
	}
	fb.setupFrame(lam, sig)

	ft := funcTypeOf(&fb.d.inf.Tys, sig)

	body := fb.translateExpr(lam.Body)
	retTy := fb.d.inf.Tys.Get(sig.Return)
	if hasValue(retTy) {
		body = append(body, backend.Return{})
	}
	if len(fb.frameInit) > 0 {
		body = append(append([]backend.Instr{}, fb.frameInit...), body...)
	}

	return backend.Function{
		Name:   Mangle(fb.d.interner, fb.fqn),
		Sig:    ft,
		Locals: fb.locals,
		Body:   body,
	}
}

func (fb *funcBuilder) translateExpr(idx hir.Idx[hir.Expr]) []backend.Instr {
	e := fb.bodies.Exprs.Get(idx)
	ty := fb.exprTy(idx)

	switch n := e.(type) {
	case hir.ExprMissing:
		return []backend.Instr{backend.Unreachable{}}

	case hir.ExprIntLiteral:
		return []backend.Instr{intConst(ty, int64(n.Value))}
	case hir.ExprFloatLiteral:
		if ty.Width <= 32 {
			return []backend.Instr{backend.F32Const{Value: float32(n.Value)}}
		}
		return []backend.Instr{backend.F64Const{Value: n.Value}}
	case hir.ExprBoolLiteral:
		v := int32(0)
		if n.Value {
			v = 1
		}
		return []backend.Instr{backend.I32Const{Value: v}}
	case hir.ExprCharLiteral:
		return []backend.Instr{backend.I32Const{Value: int32(n.Value)}}
	case hir.ExprStringLiteral:
		return []backend.Instr{backend.I32Const{Value: int32(fb.d.internString(n.Value))}}

	case hir.ExprCast:
		return fb.translateCast(idx, n)

	case hir.ExprBinary:
		return fb.translateBinary(idx, n)

	case hir.ExprUnary:
		return fb.translateUnary(n)

	case hir.ExprBlock:
		return fb.translateBlock(idx, n)

	case hir.ExprIf:
		return fb.translateIf(n, ty)

	case hir.ExprWhile:
		return fb.translateWhile(n, ty)

	case hir.ExprBreak:
		return fb.translateBreak(n)

	case hir.ExprContinue:
		for i := len(fb.scopes) - 1; i >= 0; i-- {
			if fb.scopes[i].isLoop {
				return []backend.Instr{backend.Br{Depth: fb.depthTo(fb.scopes[i].continueLabel)}}
			}
		}
		return nil

	case hir.ExprReturn:
		var out []backend.Instr
		if n.HasValue {
			out = append(out, fb.translateExpr(n.Value)...)
		}
		out = append(out, backend.Return{})
		return out

	case hir.ExprLocal:
		if fs, ok := fb.memLocals[n.Def]; ok {
			return []backend.Instr{
				backend.LocalGet{Index: fb.frameBaseLocal},
				backend.MemLoad{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fs.ty)), Offset: fs.offset},
			}
		}
		slot, ok := fb.localSlot[n.Def]
		if !ok {
			slot, _ = fb.defineLocal(n.Def)
		}
		return []backend.Instr{backend.LocalGet{Index: slot}}

	case hir.ExprSelfGlobal:
		return fb.translateGlobalRef(n)

	case hir.ExprParam:
		if fs, ok := fb.memParams[n.Index]; ok {
			return []backend.Instr{
				backend.LocalGet{Index: fb.frameBaseLocal},
				backend.MemLoad{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fs.ty)), Offset: fs.offset},
			}
		}
		return []backend.Instr{backend.LocalGet{Index: fb.paramSlots[n.Index]}}

	case hir.ExprPath:
		return fb.translatePath(idx, n)

	case hir.ExprCall:
		return fb.translateCall(n)

	case hir.ExprLambda:
		// A bare lambda value (not immediately called) has no first-class
		// representation in this backend; every lambda reachable through a
		// call is compiled regardless via the worklist.
		return []backend.Instr{backend.I32Const{Value: 0}}

	case hir.ExprComptime:
		return fb.translateComptime(n, ty)

	case hir.ExprPrimitiveTy, hir.ExprDistinct, hir.ExprStructDecl, hir.ExprImport:
		// Type-level expressions never appear in value position once
		// inference has resolved every type annotation.
		return nil

	case hir.ExprArray:
		if !n.HasItems {
			// A bare `[N] T`/`[] T` type expression, never evaluated in
			// value position once inference has resolved the annotation.
			return nil
		}
		return fb.translateArrayLiteral(n, ty)

	case hir.ExprIndex:
		return fb.translateIndex(idx, n, ty)

	case hir.ExprRef:
		return fb.translateRef(idx, n)

	case hir.ExprDeref:
		return fb.translateDeref(idx, n, ty)

	case hir.ExprStructLiteral:
		return fb.translateStructLiteral(n, ty)

	default:
		return nil
	}
}

// translateBinary lowers arithmetic/comparison/logical binary expressions.
// `&&`/`||` short-circuit via an If (wasm has no native short-circuit
// boolean ops); everything else evaluates both operands, then picks the
// wasm opcode matching the operation's class (I32/I64/F32/F64) and, for
// integers, its signedness. The operation type is the MaxCast of both
// operand types (lhs's type when they do not merge), and each operand is
// converted to it first, so a weak literal beside an i64 is extended.
func (fb *funcBuilder) translateBinary(idx hir.Idx[hir.Expr], n hir.ExprBinary) []backend.Instr {
	switch n.Op {
	case hir.OpAnd:
		lhs := fb.translateExpr(n.Lhs)
		rhs := fb.translateExpr(n.Rhs)
		return append(lhs, backend.If{
			ValueType: backend.I32, HasValue: true, HasElse: true,
			Then: rhs,
			Else: []backend.Instr{backend.I32Const{Value: 0}},
		})
	case hir.OpOr:
		lhs := fb.translateExpr(n.Lhs)
		rhs := fb.translateExpr(n.Rhs)
		return append(lhs, backend.If{
			ValueType: backend.I32, HasValue: true, HasElse: true,
			Then: []backend.Instr{backend.I32Const{Value: 1}},
			Else: rhs,
		})
	}

	lty, rty := fb.exprTy(n.Lhs), fb.exprTy(n.Rhs)
	opTy := lty
	if merged, ok := types.MaxCast(lty, rty); ok {
		opTy = merged
	}
	lhs := append(fb.translateExpr(n.Lhs), convertOps(lty, opTy)...)
	rhs := append(fb.translateExpr(n.Rhs), convertOps(rty, opTy)...)
	cls := wasmIntFloatClass(opTy)
	signed := opTy.Kind != types.UInt

	out := append(lhs, rhs...)
	return append(out, backend.Op{Code: binaryOpcode(n.Op, cls, signed)})
}

func binaryOpcode(op hir.BinaryOp, cls valClass, signed bool) backend.OpCode {
	switch op {
	case hir.OpAdd:
		return [4]backend.OpCode{backend.I32Add, backend.I64Add, backend.F32Add, backend.F64Add}[cls]
	case hir.OpSub:
		return [4]backend.OpCode{backend.I32Sub, backend.I64Sub, backend.F32Sub, backend.F64Sub}[cls]
	case hir.OpMul:
		return [4]backend.OpCode{backend.I32Mul, backend.I64Mul, backend.F32Mul, backend.F64Mul}[cls]
	case hir.OpDiv:
		if cls == classF32 {
			return backend.F32Div
		}
		if cls == classF64 {
			return backend.F64Div
		}
		if cls == classI64 {
			if signed {
				return backend.I64DivS
			}
			return backend.I64DivU
		}
		if signed {
			return backend.I32DivS
		}
		return backend.I32DivU
	case hir.OpMod:
		// Integer-only in this grammar; a float operand here is a backend
		// limitation (DESIGN.md), not exercised by any testable property.
		if cls == classI64 {
			if signed {
				return backend.I64RemS
			}
			return backend.I64RemU
		}
		if signed {
			return backend.I32RemS
		}
		return backend.I32RemU
	case hir.OpEq:
		return [4]backend.OpCode{backend.I32Eq, backend.I64Eq, backend.F32Eq, backend.F64Eq}[cls]
	case hir.OpNe:
		return [4]backend.OpCode{backend.I32Ne, backend.I64Ne, backend.F32Ne, backend.F64Ne}[cls]
	case hir.OpLt:
		if cls == classF32 {
			return backend.F32Lt
		}
		if cls == classF64 {
			return backend.F64Lt
		}
		if cls == classI64 {
			if signed {
				return backend.I64LtS
			}
			return backend.I64LtU
		}
		if signed {
			return backend.I32LtS
		}
		return backend.I32LtU
	case hir.OpGt:
		if cls == classF32 {
			return backend.F32Gt
		}
		if cls == classF64 {
			return backend.F64Gt
		}
		if cls == classI64 {
			if signed {
				return backend.I64GtS
			}
			return backend.I64GtU
		}
		if signed {
			return backend.I32GtS
		}
		return backend.I32GtU
	case hir.OpLe:
		if cls == classF32 {
			return backend.F32Le
		}
		if cls == classF64 {
			return backend.F64Le
		}
		if cls == classI64 {
			if signed {
				return backend.I64LeS
			}
			return backend.I64LeU
		}
		if signed {
			return backend.I32LeS
		}
		return backend.I32LeU
	case hir.OpGe:
		if cls == classF32 {
			return backend.F32Ge
		}
		if cls == classF64 {
			return backend.F64Ge
		}
		if cls == classI64 {
			if signed {
				return backend.I64GeS
			}
			return backend.I64GeU
		}
		if signed {
			return backend.I32GeS
		}
		return backend.I32GeU
	default:
		return backend.I32Add
	}
}

func intConst(ty types.ResolvedTy, v int64) backend.Instr {
	if wasmIntWidthIs64(ty) {
		return backend.I64Const{Value: v}
	}
	return backend.I32Const{Value: int32(v)}
}

func wasmIntWidthIs64(ty types.ResolvedTy) bool {
	w := ty.Width
	if w == 0 {
		w = 32
	}
	return w > 32
}

// translateBlock compiles a block reached in ordinary expression position
// as a genuine WASM `block`: it is a valid `break` target (spec E5), so it
// pushes its own scope with the block's own inferred type as the declared
// result, then wraps its body in a backend.Block carrying that type. A
// bare block that is never broken out of still produces identical
// behavior this way — falling off the end of a WASM block is exactly
// equivalent to not having one.
func (fb *funcBuilder) translateBlock(idx hir.Idx[hir.Expr], n hir.ExprBlock) []backend.Instr {
	ty := fb.exprTy(idx)
	lbl := fb.pushLabel()
	fb.scopes = append(fb.scopes, &breakScope{breakLabel: lbl, resultTy: ty})

	body := fb.translateBlockBody(n)

	fb.scopes = fb.scopes[:len(fb.scopes)-1]
	fb.popLabel()

	return []backend.Instr{backend.Block{
		ValueType: valTypeOf(&fb.d.inf.Tys, ty),
		HasValue:  hasValue(ty),
		Body:      body,
	}}
}

func (fb *funcBuilder) translateBlockBody(n hir.ExprBlock) []backend.Instr {
	var out []backend.Instr
	for _, s := range n.Stmts {
		out = append(out, fb.translateStmt(s)...)
	}
	if n.HasTail {
		out = append(out, fb.translateExpr(n.Tail)...)
	}
	return out
}

// translateBodyInline compiles an if/while body without pushing a new
// break-target scope (mirroring internal/types/infer.go's inferBodyInline):
// a `break` inside it resolves against whatever scope already encloses the
// if/while itself, since an if-branch is not its own break target and a
// loop's body shares the loop's own target.
func (fb *funcBuilder) translateBodyInline(idx hir.Idx[hir.Expr]) []backend.Instr {
	if blk, ok := fb.bodies.Exprs.Get(idx).(hir.ExprBlock); ok {
		return fb.translateBlockBody(blk)
	}
	return fb.translateExpr(idx)
}

func (fb *funcBuilder) translateStmt(s hir.Idx[hir.Stmt]) []backend.Instr {
	switch st := fb.bodies.Stmts.Get(s).(type) {
	case hir.StmtExpr:
		out := fb.translateExpr(st.Expr)
		if hasValue(fb.exprTy(st.Expr)) {
			out = append(out, backend.Drop{})
		}
		return out
	case hir.StmtLocalDef:
		_, init := fb.defineLocal(st.Def)
		return init
	case hir.StmtAssign:
		a := fb.bodies.Assigns.Get(st.Assign)
		return fb.translateAssign(a)
	}
	return nil
}

// defineLocal allocates a wasm local for idx (if not already allocated) and
// returns its slot together with the instructions that evaluate its
// initializer and store it — callers that already know the local exists
// (ExprLocal) discard the second return value, since re-emitting the
// initializer would re-run its side effects.
func (fb *funcBuilder) defineLocal(idx hir.Idx[hir.LocalDef]) (uint32, []backend.Instr) {
	if fs, ok := fb.memLocals[idx]; ok {
		if fb.memLocalInited[idx] {
			return 0, nil
		}
		fb.memLocalInited[idx] = true
		def := fb.bodies.LocalDefs.Get(idx)
		init := []backend.Instr{backend.LocalGet{Index: fb.frameBaseLocal}}
		init = append(init, fb.translateExpr(def.Value)...)
		init = append(init, backend.MemStore{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fs.ty)), Offset: fs.offset})
		return 0, init
	}

	if slot, ok := fb.localSlot[idx]; ok {
		return slot, nil
	}
	def := fb.bodies.LocalDefs.Get(idx)
	ty := fb.localTy(idx)
	vt := valTypeOf(&fb.d.inf.Tys, ty)
	slot := fb.allocLocal(vt)
	fb.localSlot[idx] = slot

	init := fb.translateExpr(def.Value)
	init = append(init, backend.LocalSet{Index: slot})
	return slot, init
}

// translateAssign compiles `source = value` (hir.Assign). A direct
// local/param target goes straight to a wasm local, same as before; an
// address-taken local/param, a struct field, an array element, or a
// pointer dereference all resolve through addressOf to a MemStore instead.
func (fb *funcBuilder) translateAssign(a hir.Assign) []backend.Instr {
	switch src := fb.bodies.Exprs.Get(a.Source).(type) {
	case hir.ExprLocal:
		if _, addressed := fb.memLocals[src.Def]; !addressed {
			slot := fb.localSlot[src.Def]
			out := fb.translateExpr(a.Value)
			return append(out, backend.LocalSet{Index: slot})
		}
	case hir.ExprParam:
		if _, addressed := fb.memParams[src.Index]; !addressed {
			out := fb.translateExpr(a.Value)
			return append(out, backend.LocalSet{Index: fb.paramSlots[src.Index]})
		}
	}

	addr, offset, fty, ok := fb.addressOf(a.Source)
	if !ok {
		fb.failRange(a.Range, "assignment target is not an addressable location")
		out := fb.translateExpr(a.Value)
		return append(out, backend.Drop{})
	}
	out := append([]backend.Instr{}, addr...)
	out = append(out, fb.translateExpr(a.Value)...)
	return append(out, backend.MemStore{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fty)), Offset: offset})
}

func (fb *funcBuilder) translateIf(n hir.ExprIf, ty types.ResolvedTy) []backend.Instr {
	cond := fb.translateExpr(n.Cond)

	fb.pushLabel()
	then := fb.translateBodyInline(n.Body)
	var els []backend.Instr
	if n.HasElse {
		els = fb.translateBodyInline(n.Else)
	}
	fb.popLabel()

	out := append([]backend.Instr{}, cond...)
	hv := hasValue(ty)
	out = append(out, backend.If{
		ValueType: valTypeOf(&fb.d.inf.Tys, ty),
		HasValue:  hv,
		Then:      then,
		Else:      els,
		HasElse:   n.HasElse,
	})
	return out
}

// translateWhile compiles `while cond { body }` / `loop { body }` as the
// canonical block-wrapping-loop pattern: the outer Block is the loop's
// break target (and, when a break carries a value, its WASM result —
// pushed on the stack right before the `br` that exits it, no synthetic
// local required), the inner Loop's top is the continue target. The
// body is translated inline: it shares this scope rather than pushing its
// own, so `break`/`continue` written directly in the loop body (not nested
// in some further block) resolve here.
func (fb *funcBuilder) translateWhile(n hir.ExprWhile, ty types.ResolvedTy) []backend.Instr {
	breakLbl := fb.pushLabel()
	contLbl := fb.pushLabel()
	fb.scopes = append(fb.scopes, &breakScope{breakLabel: breakLbl, isLoop: true, continueLabel: contLbl, resultTy: ty})

	var loopBody []backend.Instr
	if n.HasCond {
		// A conditional exit never carries a break value in the grammar
		// this backend targets (only `loop {}`'s unconditional body does,
		// per spec E3); leaving no value here is correct for that case and
		// a documented limitation for a hypothetical value-typed `while`.
		cond := fb.translateExpr(n.Cond)
		loopBody = append(loopBody, cond...)
		loopBody = append(loopBody, backend.Op{Code: backend.I32Eqz})
		loopBody = append(loopBody, backend.BrIf{Depth: 1}) // out to the break block
	}
	loopBody = append(loopBody, fb.translateBodyInline(n.Body)...)
	if hasValue(fb.exprTy(n.Body)) {
		loopBody = append(loopBody, backend.Drop{})
	}
	loopBody = append(loopBody, backend.Br{Depth: 0}) // back to loop top

	fb.scopes = fb.scopes[:len(fb.scopes)-1]
	fb.popLabel()
	fb.popLabel()

	inner := backend.Loop{Body: loopBody}
	blockBody := []backend.Instr{inner}
	if hasValue(ty) {
		// The loop never falls through (its body ends in `br 0`), so a
		// value-typed block only ever produces its value via a break.
		blockBody = append(blockBody, backend.Unreachable{})
	}
	return []backend.Instr{backend.Block{
		ValueType: valTypeOf(&fb.d.inf.Tys, ty),
		HasValue:  hasValue(ty),
		Body:      blockBody,
	}}
}

// translateBreak targets the innermost enclosing block or while/loop scope
// (spec E3/E5), pushing its value — widened to that scope's own merged
// result type via convertOps, matching internal/types/infer.go's max_cast
// merge — directly on the stack before branching out, using WASM's native
// block-result mechanism rather than a synthetic local.
func (fb *funcBuilder) translateBreak(n hir.ExprBreak) []backend.Instr {
	if len(fb.scopes) == 0 {
		return nil
	}
	scope := fb.scopes[len(fb.scopes)-1]
	var out []backend.Instr
	if n.HasValue {
		out = append(out, fb.translateExpr(n.Value)...)
		out = append(out, convertOps(fb.exprTy(n.Value), scope.resultTy)...)
	}
	out = append(out, backend.Br{Depth: fb.depthTo(scope.breakLabel)})
	return out
}

func (fb *funcBuilder) translateComptime(n hir.ExprComptime, ty types.ResolvedTy) []backend.Instr {
	res, ok := fb.d.comptimeCache.Lookup(comptimeKeyFor(fb.fqn, n.Comptime))
	if !ok {
		return []backend.Instr{backend.I32Const{Value: 0}}
	}
	switch ty.Kind {
	case types.Float:
		if ty.Width <= 32 {
			return []backend.Instr{backend.F32Const{Value: float32(res.Value.Float)}}
		}
		return []backend.Instr{backend.F64Const{Value: res.Value.Float}}
	case types.Bool:
		v := int32(0)
		if res.Value.Bool {
			v = 1
		}
		return []backend.Instr{backend.I32Const{Value: v}}
	default:
		return []backend.Instr{intConst(ty, res.Value.Int)}
	}
}

func (fb *funcBuilder) translateGlobalRef(n hir.ExprSelfGlobal) []backend.Instr {
	fqn := intern.Fqn{File: fb.file, Name: n.Name}
	gty := fb.d.inf.GlobalTypes[fqn]
	if gty.Kind == types.Function {
		// A bare function reference (not immediately called) has no
		// first-class representation here; ExprCall resolves its callee's
		// Fqn directly instead of routing through this case.
		return []backend.Instr{backend.I32Const{Value: 0}}
	}
	slot := fb.d.globalSlot(fqn, gty)
	return []backend.Instr{backend.GlobalGet{Index: slot}}
}

// translatePath compiles either a module-qualified global reference or a
// struct field read (ExprPath denotes both — spec §3.2/§4.4 — disambiguated
// by Previous's resolved type, exactly as internal/types/infer.go's
// inferPath does).
func (fb *funcBuilder) translatePath(idx hir.Idx[hir.Expr], n hir.ExprPath) []backend.Instr {
	prevTy := fb.exprTy(n.Previous)
	if prevTy.Kind == types.File {
		fqn := intern.Fqn{File: prevTy.File, Name: n.Field}
		gty := fb.d.inf.GlobalTypes[fqn]
		if gty.Kind == types.Function {
			return []backend.Instr{backend.I32Const{Value: 0}}
		}
		slot := fb.d.globalSlot(fqn, gty)
		return []backend.Instr{backend.GlobalGet{Index: slot}}
	}

	addr, offset, fty, ok := fb.pathFieldAddr(n)
	if !ok {
		fb.fail(idx, "struct field access could not resolve a field offset")
		return []backend.Instr{backend.Unreachable{}}
	}
	return append(addr, backend.MemLoad{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fty)), Offset: offset})
}

// pathFieldAddr resolves a struct-field ExprPath to the address of its base
// struct plus the field's static byte offset. Previous is auto-dereferenced
// through any number of pointer layers first, mirroring inferPath's own
// "prevTy.Kind == Pointer" unwrap loop — a pointer and the struct it points
// to share the same address representation in this backend, so no deref
// instruction is needed, only the type lookup to find the field table.
func (fb *funcBuilder) pathFieldAddr(n hir.ExprPath) (addr []backend.Instr, offset uint32, fty types.ResolvedTy, ok bool) {
	structTy := fb.exprTy(n.Previous)
	for structTy.Kind == types.Pointer {
		structTy = fb.d.inf.Tys.Get(structTy.Sub)
	}
	offset, fty, ok = fb.d.fieldOffset(structTy.UID, n.Field)
	if !ok {
		return nil, 0, types.ResolvedTy{}, false
	}
	return fb.translateExpr(n.Previous), offset, fty, true
}

// indexAddr computes the address of `array[index]`. A Slice value is the
// address of a {ptr, len} pair; its data pointer (the first word) is the
// base instead of the slice value itself. An Array value is already the
// data base.
func (fb *funcBuilder) indexAddr(n hir.ExprIndex) []backend.Instr {
	arrTy := fb.exprTy(n.Array)
	elemTy := fb.d.inf.Tys.Get(arrTy.Sub)
	elemSize := fb.d.sizeOf(elemTy)

	base := fb.translateExpr(n.Array)
	if arrTy.Kind == types.Slice {
		base = append(base, backend.MemLoad{Code: backend.MemI32, Offset: 0})
	}

	out := append([]backend.Instr{}, base...)
	out = append(out, fb.translateExpr(n.Index)...)
	out = append(out, backend.I32Const{Value: int32(elemSize)})
	out = append(out, backend.Op{Code: backend.I32Mul})
	out = append(out, backend.Op{Code: backend.I32Add})
	return out
}

func (fb *funcBuilder) translateIndex(idx hir.Idx[hir.Expr], n hir.ExprIndex, ty types.ResolvedTy) []backend.Instr {
	return append(fb.indexAddr(n), backend.MemLoad{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, ty)), Offset: 0})
}

// translateDeref loads through a pointer value, which is already the
// pointee's address in this backend's representation.
func (fb *funcBuilder) translateDeref(idx hir.Idx[hir.Expr], n hir.ExprDeref, ty types.ResolvedTy) []backend.Instr {
	addr := fb.translateExpr(n.Pointer)
	return append(addr, backend.MemLoad{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, ty)), Offset: 0})
}

// addressOf computes the memory address an l-value expression denotes,
// together with a static byte offset to fold into the eventual MemLoad/
// MemStore (so a struct-field or frame-slot access never needs its own
// I32Add). Returns ok=false for anything that is not addressable in this
// backend — ExprRef and translateAssign both raise capyerr.CG002 for that
// case rather than emit a wrong address.
func (fb *funcBuilder) addressOf(idx hir.Idx[hir.Expr]) (addr []backend.Instr, offset uint32, ty types.ResolvedTy, ok bool) {
	switch n := fb.bodies.Exprs.Get(idx).(type) {
	case hir.ExprLocal:
		if fs, addressed := fb.memLocals[n.Def]; addressed {
			return []backend.Instr{backend.LocalGet{Index: fb.frameBaseLocal}}, fs.offset, fs.ty, true
		}
		return nil, 0, types.ResolvedTy{}, false
	case hir.ExprParam:
		if fs, addressed := fb.memParams[n.Index]; addressed {
			return []backend.Instr{backend.LocalGet{Index: fb.frameBaseLocal}}, fs.offset, fs.ty, true
		}
		return nil, 0, types.ResolvedTy{}, false
	case hir.ExprPath:
		return fb.pathFieldAddr(n)
	case hir.ExprIndex:
		return fb.indexAddr(n), 0, fb.exprTy(idx), true
	case hir.ExprDeref:
		return fb.translateExpr(n.Pointer), 0, fb.exprTy(idx), true
	default:
		return nil, 0, types.ResolvedTy{}, false
	}
}

// translateRef compiles `^expr`/`&expr` (spec's reference-of). A struct or
// array value is already represented as a linear-memory address in this
// backend (valTypeOf), so referencing one is just its own translation; any
// other addressable l-value resolves through addressOf, with its static
// offset folded in via a real add since the result here is a plain value
// rather than an immediate attached to a following Mem access.
func (fb *funcBuilder) translateRef(idx hir.Idx[hir.Expr], n hir.ExprRef) []backend.Instr {
	addr, offset, _, ok := fb.addressOf(n.Expr)
	if ok {
		if offset == 0 {
			return addr
		}
		return append(addr, backend.I32Const{Value: int32(offset)}, backend.Op{Code: backend.I32Add})
	}

	operandTy := fb.exprTy(n.Expr)
	if operandTy.Kind == types.Struct || operandTy.Kind == types.Array {
		return fb.translateExpr(n.Expr)
	}

	fb.fail(idx, "address-of target has no memory location")
	return []backend.Instr{backend.I32Const{Value: 0}}
}

// translateStructLiteral bump-allocates room for the struct and stores each
// field at its declared offset (internal/types/infer.go's structFields,
// exposed here via Inference.StructFields), leaving the new struct's base
// address as the expression's value.
func (fb *funcBuilder) translateStructLiteral(n hir.ExprStructLiteral, ty types.ResolvedTy) []backend.Instr {
	scratch := fb.allocLocal(backend.I32)
	out := append([]backend.Instr{}, fb.d.allocBytes(fb.d.sizeOf(ty))...)
	out = append(out, backend.LocalSet{Index: scratch})

	for _, f := range n.Fields {
		offset, fty, ok := fb.d.fieldOffset(ty.UID, f.Name)
		if !ok {
			fb.fail(f.Value, "struct literal field could not resolve an offset")
			continue
		}
		out = append(out, backend.LocalGet{Index: scratch})
		out = append(out, fb.translateExpr(f.Value)...)
		out = append(out, backend.MemStore{Code: memCodeFor(valTypeOf(&fb.d.inf.Tys, fty)), Offset: offset})
	}
	out = append(out, backend.LocalGet{Index: scratch})
	return out
}

// translateArrayLiteral bump-allocates room for len(items) elements and
// stores each at its index*elemSize offset, leaving the array's base
// address as the expression's value (same representation as a struct's).
func (fb *funcBuilder) translateArrayLiteral(n hir.ExprArray, ty types.ResolvedTy) []backend.Instr {
	elemTy := fb.d.inf.Tys.Get(ty.Sub)
	elemSize := fb.d.sizeOf(elemTy)
	elemCode := memCodeFor(valTypeOf(&fb.d.inf.Tys, elemTy))

	scratch := fb.allocLocal(backend.I32)
	out := append([]backend.Instr{}, fb.d.allocBytes(elemSize*uint32(len(n.Items)))...)
	out = append(out, backend.LocalSet{Index: scratch})

	for i, item := range n.Items {
		out = append(out, backend.LocalGet{Index: scratch})
		out = append(out, fb.translateExpr(item)...)
		out = append(out, backend.MemStore{Code: elemCode, Offset: uint32(i) * elemSize})
	}
	out = append(out, backend.LocalGet{Index: scratch})
	return out
}

// fail latches the first capyerr.CG002 failure hit while translating this
// function, keyed to idx's source range.
func (fb *funcBuilder) fail(idx hir.Idx[hir.Expr], msg string) {
	fb.failRange(fb.bodies.ExprRanges[idx], msg)
}

func (fb *funcBuilder) failRange(rng syntax.Range, msg string) {
	if fb.err != nil {
		return
	}
	fb.err = diagnostics.Wrap(diagnostics.New(capyerr.CG002, "codegen", msg, &rng))
}

func (fb *funcBuilder) translateCall(n hir.ExprCall) []backend.Instr {
	callee, ok := fb.d.resolveCallTarget(fb.file, n.Callee, fb.bodies)

	var out []backend.Instr
	for _, a := range n.Args {
		out = append(out, fb.translateExpr(a)...)
	}
	if !ok {
		out = append(out, backend.Unreachable{})
		return out
	}
	fid := fb.d.enqueue(callee)
	out = append(out, backend.Call{Func: fid})
	return out
}

func (fb *funcBuilder) translateUnary(n hir.ExprUnary) []backend.Instr {
	operand := fb.translateExpr(n.Expr)
	ty := fb.exprTy(n.Expr)
	vt := valTypeOf(&fb.d.inf.Tys, ty)

	switch n.Op {
	case hir.OpNot:
		return append(operand, backend.Op{Code: backend.I32Eqz})
	case hir.OpNeg:
		return negate(vt, operand)
	default: // OpPos is a no-op
		return operand
	}
}

// negate computes 0-operand for integers and uses the dedicated negate
// opcode for floats, matching how a stack machine without a unary-minus
// instruction for integers has to express it.
func negate(vt backend.ValType, operand []backend.Instr) []backend.Instr {
	switch vt {
	case backend.F32:
		return append(operand, backend.Op{Code: backend.F32Neg})
	case backend.F64:
		return append(operand, backend.Op{Code: backend.F64Neg})
	case backend.I64:
		out := []backend.Instr{backend.I64Const{Value: 0}}
		out = append(out, operand...)
		return append(out, backend.Op{Code: backend.I64Sub})
	default:
		out := []backend.Instr{backend.I32Const{Value: 0}}
		out = append(out, operand...)
		return append(out, backend.Op{Code: backend.I32Sub})
	}
}

func (fb *funcBuilder) translateCast(idx hir.Idx[hir.Expr], n hir.ExprCast) []backend.Instr {
	from := fb.exprTy(n.Expr)
	to := fb.exprTy(idx)
	operand := fb.translateExpr(n.Expr)
	return append(operand, convertOps(from, to)...)
}

// convertOps bridges the wasm value type from's ResolvedTy compiles to, to
// the one to compiles to. A same-valtype cast (e.g. i32 -> u32, or any
// same-width sign change) is a pure reinterpretation and needs no
// instruction at all, since this backend already uses two's-complement
// representation uniformly for IInt and UInt.
func convertOps(from, to types.ResolvedTy) []backend.Instr {
	fv := wasmIntFloatClass(from)
	tv := wasmIntFloatClass(to)
	if fv == tv {
		return nil
	}
	switch {
	case fv == classI32 && tv == classI64:
		if from.Kind == types.IInt {
			return []backend.Instr{backend.Op{Code: backend.I64ExtendI32S}}
		}
		return []backend.Instr{backend.Op{Code: backend.I64ExtendI32U}}
	case fv == classI64 && tv == classI32:
		return []backend.Instr{backend.Op{Code: backend.I32WrapI64}}

	case fv == classF32 && tv == classF64:
		return []backend.Instr{backend.Op{Code: backend.F64PromoteF32}}
	case fv == classF64 && tv == classF32:
		return []backend.Instr{backend.Op{Code: backend.F32DemoteF64}}

	case fv == classI32 && tv == classF32:
		return []backend.Instr{backend.Op{Code: backend.F32ConvertI32S}}
	case fv == classI32 && tv == classF64:
		return []backend.Instr{backend.Op{Code: backend.F64ConvertI32S}}
	case fv == classI64 && tv == classF32:
		return []backend.Instr{backend.Op{Code: backend.F32ConvertI64S}}
	case fv == classI64 && tv == classF64:
		return []backend.Instr{backend.Op{Code: backend.F64ConvertI64S}}

	case fv == classF32 && tv == classI32:
		return []backend.Instr{backend.Op{Code: backend.I32TruncF32S}}
	case fv == classF64 && tv == classI32:
		return []backend.Instr{backend.Op{Code: backend.I32TruncF64S}}
	case fv == classF32 && tv == classI64:
		return []backend.Instr{backend.Op{Code: backend.I64TruncF32S}}
	case fv == classF64 && tv == classI64:
		return []backend.Instr{backend.Op{Code: backend.I64TruncF64S}}
	default:
		return nil
	}
}

type valClass int

const (
	classI32 valClass = iota
	classI64
	classF32
	classF64
	classOther
)

func wasmIntFloatClass(t types.ResolvedTy) valClass {
	switch t.Kind {
	case types.IInt, types.UInt:
		if wasmIntWidthIs64(t) {
			return classI64
		}
		return classI32
	case types.Float:
		if t.Width <= 32 {
			return classF32
		}
		return classF64
	case types.Bool, types.Char:
		return classI32
	default:
		return classOther
	}
}

func comptimeKeyFor(fqn intern.Fqn, idx hir.Idx[hir.Comptime]) comptime.FQComptime {
	return comptime.FQComptime{Fqn: fqn, Comptime: idx}
}
