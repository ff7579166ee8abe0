package types

import (
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

// World is the whole-project input to inference: every file's lowered
// Bodies and Index, keyed by its interned canonical path (spec §3.6:
// "inference holds immutable borrows" of exactly this data).
type World struct {
	Bodies   map[intern.FileName]*hir.Bodies
	Index    map[intern.FileName]*index.Index
	Interner *intern.Interner
}

// ComptimeEvaluator re-enters code generation (in JIT mode) to materialize
// a comptime block's value, per spec §4.5's "mutually recursive" design
// note. Kept as an interface here so this package need not import
// internal/codegen (which itself depends on types). A nil evaluator makes
// every comptime block infer as Unknown, which is still sound — absorptive
// Unknown only ever suppresses further diagnostics, never produces one.
type ComptimeEvaluator interface {
	Evaluate(fqn intern.Fqn, file intern.FileName, idx hir.Idx[hir.Comptime], expected ResolvedTy) (ResolvedTy, bool)
}

type globalState int

const (
	notStarted globalState = iota
	inProgress
	resolved
)

type exprKey struct {
	file intern.FileName
	expr hir.Idx[hir.Expr]
}

type localKey struct {
	file intern.FileName
	def  hir.Idx[hir.LocalDef]
}

// Inference is the project-wide C4 result plus the in-progress working
// state needed to build it (spec §3.4).
type Inference struct {
	world    *World
	comptime ComptimeEvaluator

	Tys  Arena
	Sigs []FuncSig

	structFields map[uint32][]StructField

	GlobalTypes map[intern.Fqn]ResolvedTy
	ExprTypes   map[exprKey]ResolvedTy
	LocalTypes  map[localKey]ResolvedTy

	Diags []Diagnostic

	globalState map[intern.Fqn]globalState
}

// New creates an Inference engine over world. comptime may be nil.
func New(world *World, comptime ComptimeEvaluator) *Inference {
	return &Inference{
		world:        world,
		comptime:     comptime,
		structFields: make(map[uint32][]StructField),
		GlobalTypes:  make(map[intern.Fqn]ResolvedTy),
		ExprTypes:    make(map[exprKey]ResolvedTy),
		LocalTypes:   make(map[localKey]ResolvedTy),
		globalState:  make(map[intern.Fqn]globalState),
	}
}

// StructFields returns the field declarations (in declaration order) for the
// struct type identified by uid, or nil if uid does not name a struct this
// Inference has resolved a declaration for. Exported so internal/codegen can
// compute field offsets for its linear-memory layout without reaching into
// Inference's unexported working state.
func (i *Inference) StructFields(uid uint32) []StructField {
	return i.structFields[uid]
}

// ctx is the per-global-being-inferred working state: the lambda
// currently enclosing the expression under inference (for ExprParam), and
// the Fqn/file of the global that started this walk (for Cycle detection
// and comptime keys). A fresh ctx's paramTypes is swapped exactly like
// hir.Ctx's params map, since an inner lambda/comptime never sees an
// outer lambda's parameters either.
type ctx struct {
	inf        *Inference
	file       intern.FileName
	fqn        intern.Fqn
	bodies     *hir.Bodies
	idx        *index.Index
	paramTypes []ResolvedTy

	// breaks is the stack of break targets currently in scope: one entry
	// per enclosing block or while/loop reached through ordinary (not
	// if/else- or loop-body-"inline") expression position. `break value`
	// always resolves against the innermost entry, merging the value's
	// type into whatever the target's own tail/exit type accumulates to
	// via MaxCast (the "break value widens via max_cast" rule) — the same
	// merge inferBlock and ExprIf already do for a block's own tail vs. an
	// else branch.
	breaks []*breakAcc
}

// breakAcc accumulates the merged type of every break targeting one scope.
// set is false until the first break is seen; ty is then combined with
// every subsequent break's value type the same way inferBlock combines a
// tail type with it once the scope closes.
type breakAcc struct {
	set bool
	ty  ResolvedTy
}

func (c *ctx) pushBreakScope() *breakAcc {
	acc := &breakAcc{}
	c.breaks = append(c.breaks, acc)
	return acc
}

func (c *ctx) popBreakScope() *breakAcc {
	acc := c.breaks[len(c.breaks)-1]
	c.breaks = c.breaks[:len(c.breaks)-1]
	return acc
}

func (c *ctx) mergeBreak(idx hir.Idx[hir.Expr], ty ResolvedTy) {
	if len(c.breaks) == 0 {
		// A break with no enclosing block/loop scope is not reported by
		// any pass; type inference just treats its value as contributing
		// nothing further.
		return
	}
	acc := c.breaks[len(c.breaks)-1]
	if !acc.set {
		acc.ty = ty
		acc.set = true
		return
	}
	if acc.ty.IsUnknown() || ty.IsUnknown() {
		acc.ty = TyUnknown
		return
	}
	merged, ok := MaxCast(acc.ty, ty)
	if !ok {
		c.inf.diag(IfMismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = ty; d.Expected = acc.ty })
		acc.ty = TyUnknown
		return
	}
	acc.ty = merged
}

// mergeAcc folds a scope's normal exit type (a block's tail expression, or
// TyVoid for a while/loop with no tail) together with the accumulated type
// of every break that targeted it, the same way an if/else merges its two
// branches.
func mergeAcc(acc *breakAcc, normalTy ResolvedTy) ResolvedTy {
	if !acc.set {
		return normalTy
	}
	if normalTy.IsUnknown() || acc.ty.IsUnknown() {
		return TyUnknown
	}
	merged, ok := MaxCast(normalTy, acc.ty)
	if !ok {
		return TyUnknown
	}
	return merged
}

func (i *Inference) diag(kind DiagnosticKind, r syntax.Range, fill func(*Diagnostic)) {
	d := Diagnostic{Kind: kind, Range: r}
	if fill != nil {
		fill(&d)
	}
	i.Diags = append(i.Diags, d)
}

// Infer computes the type of entry and the transitive closure of globals
// and expressions it reaches, memoizing every global exactly once.
func (i *Inference) Infer(entry intern.Fqn) ResolvedTy {
	return i.globalType(entry)
}

func (i *Inference) globalType(fqn intern.Fqn) ResolvedTy {
	if t, ok := i.GlobalTypes[fqn]; ok {
		return t
	}
	switch i.globalState[fqn] {
	case inProgress:
		i.diag(Cycle, syntax.Range{}, func(d *Diagnostic) { d.Fqn = fqn })
		return TyUnknown
	case resolved:
		return i.GlobalTypes[fqn]
	}

	bodies, ok := i.world.Bodies[fqn.File]
	if !ok {
		return TyUnknown
	}
	idx := i.world.Index[fqn.File]

	i.globalState[fqn] = inProgress
	c := &ctx{inf: i, file: fqn.File, fqn: fqn, bodies: bodies, idx: idx}

	valIdx, ok := bodies.GlobalValues[fqn.Name]
	if !ok {
		i.globalState[fqn] = resolved
		i.GlobalTypes[fqn] = TyUnknown
		return TyUnknown
	}

	var ty ResolvedTy
	if declIdx, hasDecl := bodies.GlobalTypes[fqn.Name]; hasDecl {
		expected := c.evalType(declIdx)
		ty = c.check(valIdx, expected)
	} else {
		ty = c.infer(valIdx)
	}

	i.globalState[fqn] = resolved
	i.GlobalTypes[fqn] = ty
	return ty
}

// ExprType returns the type already recorded for idx within file by a prior
// Infer call, or the zero ResolvedTy (Unknown) if idx was never visited.
// Exported so codegen can read inference results without reaching into this
// package's unexported key types.
func (i *Inference) ExprType(file intern.FileName, idx hir.Idx[hir.Expr]) ResolvedTy {
	return i.ExprTypes[exprKey{file, idx}]
}

// LocalType returns the type already recorded for a local def within file.
func (i *Inference) LocalType(file intern.FileName, idx hir.Idx[hir.LocalDef]) ResolvedTy {
	return i.LocalTypes[localKey{file, idx}]
}

func (c *ctx) record(idx hir.Idx[hir.Expr], ty ResolvedTy) ResolvedTy {
	c.inf.ExprTypes[exprKey{c.file, idx}] = ty
	return ty
}

func (c *ctx) rangeOf(idx hir.Idx[hir.Expr]) syntax.Range {
	return c.bodies.ExprRanges[idx]
}

// evalType infers idx as a type expression: the inferred type must be a
// Metatype, whose wrapped type is returned. Anything else is Mismatch
// against TypeKind.
func (c *ctx) evalType(idx hir.Idx[hir.Expr]) ResolvedTy {
	t := c.infer(idx)
	if t.Kind == Metatype {
		return c.inf.Tys.Get(t.Sub)
	}
	if t.Kind == Unknown {
		return TyUnknown
	}
	c.inf.diag(Mismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Expected = TyType; d.Found = t })
	return TyUnknown
}

// check infers idx and verifies it fits expected, returning expected so a
// weak integer takes on expected's type at this use; the type recorded for
// idx itself stays the inferred one. Unknown on either side suppresses the
// diagnostic (absorptive).
func (c *ctx) check(idx hir.Idx[hir.Expr], expected ResolvedTy) ResolvedTy {
	found := c.infer(idx)
	if found.IsUnknown() || expected.IsUnknown() {
		return expected
	}
	if CanFit(&c.inf.Tys, found, expected) {
		return expected
	}
	c.inf.diag(Mismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Expected = expected; d.Found = found })
	return expected
}

func (c *ctx) infer(idx hir.Idx[hir.Expr]) ResolvedTy {
	e := c.bodies.Exprs.Get(idx)
	return c.record(idx, c.inferNode(idx, e))
}

func (c *ctx) inferNode(idx hir.Idx[hir.Expr], e hir.Expr) ResolvedTy {
	switch n := e.(type) {
	case hir.ExprMissing:
		return TyUnknown

	case hir.ExprIntLiteral:
		return WeakUInt
	case hir.ExprFloatLiteral:
		return ResolvedTy{Kind: Float, Width: 64}
	case hir.ExprBoolLiteral:
		return TyBool
	case hir.ExprStringLiteral:
		return TyStr
	case hir.ExprCharLiteral:
		return TyChar

	case hir.ExprCast:
		from := c.infer(n.Expr)
		to := c.evalType(n.Ty)
		if from.IsUnknown() || to.IsUnknown() {
			return to
		}
		if CanFit(&c.inf.Tys, from, to) || PrimitiveCastable(from, to) {
			return to
		}
		c.inf.diag(Uncastable, c.rangeOf(idx), func(d *Diagnostic) { d.Found = from; d.Expected = to })
		return to

	case hir.ExprRef:
		inner := c.infer(n.Expr)
		if inner.Kind == Metatype {
			return ResolvedTy{Kind: Metatype, Sub: c.inf.Tys.alloc(ResolvedTy{Kind: Pointer, Sub: inner.Sub})}
		}
		return ResolvedTy{Kind: Pointer, Sub: c.inf.Tys.alloc(inner)}

	case hir.ExprDeref:
		ptr := c.infer(n.Pointer)
		if ptr.IsUnknown() {
			return TyUnknown
		}
		if ptr.Kind != Pointer {
			c.inf.diag(DerefMismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = ptr })
			return TyUnknown
		}
		return c.inf.Tys.Get(ptr.Sub)

	case hir.ExprBinary:
		return c.inferBinary(idx, n)

	case hir.ExprUnary:
		t := c.infer(n.Expr)
		if n.Op == hir.OpNot {
			if !t.IsUnknown() && t.Kind != Bool {
				c.inf.diag(OpMismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Op = "!"; d.Found = t })
			}
			return TyBool
		}
		if n.Op == hir.OpNeg && t == WeakUInt {
			return WeakInt
		}
		return t

	case hir.ExprArray:
		return c.inferArray(idx, n)

	case hir.ExprIndex:
		arr := c.infer(n.Array)
		c.check(n.Index, WeakUInt)
		if arr.IsUnknown() {
			return TyUnknown
		}
		if arr.Kind != Array && arr.Kind != Slice {
			c.inf.diag(IndexMismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = arr })
			return TyUnknown
		}
		return c.inf.Tys.Get(arr.Sub)

	case hir.ExprBlock:
		return c.inferBlock(n)

	case hir.ExprIf:
		c.check(n.Cond, TyBool)
		// Then/else bodies are inferred inline: a break inside an if still
		// targets whatever block or loop already encloses the if itself,
		// not the if's own body (an if is a branch, not a break target).
		body := c.inferBodyInline(n.Body)
		if !n.HasElse {
			if !body.IsUnknown() && body.Kind != Void {
				c.inf.diag(MissingElse, c.rangeOf(idx), func(d *Diagnostic) { d.Expected = body })
			}
			return TyVoid
		}
		elseTy := c.inferBodyInline(n.Else)
		if body.IsUnknown() {
			return elseTy
		}
		if elseTy.IsUnknown() {
			return body
		}
		merged, ok := MaxCast(body, elseTy)
		if !ok {
			c.inf.diag(IfMismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = body; d.Expected = elseTy })
			return TyUnknown
		}
		return merged

	case hir.ExprWhile:
		if n.HasCond {
			c.check(n.Cond, TyBool)
		}
		// The while/loop itself is the break target (spec E3's `loop {
		// break 7 }`): its body is inferred inline under the scope this
		// case pushes, rather than pushing its own nested scope the way a
		// bare block does.
		acc := c.pushBreakScope()
		c.inferBodyInline(n.Body)
		c.popBreakScope()
		if acc.set {
			return acc.ty
		}
		return TyVoid

	case hir.ExprBreak:
		if n.HasValue {
			vty := c.infer(n.Value)
			c.mergeBreak(idx, vty)
		}
		return TyVoid
	case hir.ExprContinue:
		return TyVoid
	case hir.ExprReturn:
		if n.HasValue {
			c.infer(n.Value)
		}
		return TyVoid

	case hir.ExprLocal:
		key := localKey{c.file, n.Def}
		if t, ok := c.inf.LocalTypes[key]; ok {
			return t
		}
		// Forward reference within the same scope chain is impossible by
		// construction (lowering only ever allocates a LocalDef before any
		// expression that can reference it), so this path only triggers
		// when the defining statement has not been walked yet by this
		// particular traversal order; infer it directly and cache it.
		def := c.bodies.LocalDefs.Get(n.Def)
		t := c.inferLocalDef(n.Def, def)
		return t

	case hir.ExprSelfGlobal:
		return c.inf.globalType(intern.Fqn{File: c.file, Name: n.Name})

	case hir.ExprParam:
		if int(n.Index) < len(c.paramTypes) {
			return c.paramTypes[n.Index]
		}
		return TyUnknown

	case hir.ExprPath:
		return c.inferPath(idx, n)

	case hir.ExprCall:
		return c.inferCall(idx, n)

	case hir.ExprLambda:
		return c.inferLambda(n)

	case hir.ExprComptime:
		return c.inferComptime(idx, n)

	case hir.ExprPrimitiveTy:
		return ResolvedTy{Kind: Metatype, Sub: c.inf.Tys.alloc(primitiveResolvedTy(n.Ty))}

	case hir.ExprDistinct:
		inner := c.evalType(n.Ty)
		innerIdx := c.inf.Tys.alloc(inner)
		return ResolvedTy{Kind: Metatype, Sub: c.inf.Tys.alloc(ResolvedTy{Kind: Distinct, UID: n.UID, Inner: innerIdx})}

	case hir.ExprStructDecl:
		fields := make([]StructField, len(n.Fields))
		for fi, f := range n.Fields {
			fields[fi] = StructField{Name: f.Name, Ty: c.inf.Tys.alloc(c.evalType(f.Ty))}
		}
		c.inf.structFields[n.UID] = fields
		return ResolvedTy{Kind: Metatype, Sub: c.inf.Tys.alloc(ResolvedTy{Kind: Struct, UID: n.UID})}

	case hir.ExprStructLiteral:
		return c.inferStructLit(idx, n)

	case hir.ExprImport:
		return ResolvedTy{Kind: File, File: n.File}

	default:
		return TyUnknown
	}
}

func (c *ctx) inferBinary(idx hir.Idx[hir.Expr], n hir.ExprBinary) ResolvedTy {
	lhs := c.infer(n.Lhs)
	rhs := c.infer(n.Rhs)

	switch n.Op {
	case hir.OpAnd, hir.OpOr:
		c.check(n.Lhs, TyBool)
		c.check(n.Rhs, TyBool)
		return TyBool
	case hir.OpEq, hir.OpNe, hir.OpLt, hir.OpGt, hir.OpLe, hir.OpGe:
		if !lhs.IsUnknown() && !rhs.IsUnknown() {
			if _, ok := MaxCast(lhs, rhs); !ok {
				c.inf.diag(OpMismatch, c.rangeOf(idx), func(d *Diagnostic) {
					d.Op = binOpSymbol(n.Op)
					d.Found = lhs
					d.Expected = rhs
				})
			}
		}
		return TyBool
	default: // arithmetic
		if lhs.IsUnknown() || rhs.IsUnknown() {
			if lhs.IsUnknown() {
				return rhs
			}
			return lhs
		}
		merged, ok := MaxCast(lhs, rhs)
		if !ok {
			c.inf.diag(OpMismatch, c.rangeOf(idx), func(d *Diagnostic) {
				d.Op = binOpSymbol(n.Op)
				d.Found = lhs
				d.Expected = rhs
			})
			return TyUnknown
		}
		return merged
	}
}

func binOpSymbol(op hir.BinaryOp) string {
	switch op {
	case hir.OpAdd:
		return "+"
	case hir.OpSub:
		return "-"
	case hir.OpMul:
		return "*"
	case hir.OpDiv:
		return "/"
	case hir.OpMod:
		return "%"
	case hir.OpLt:
		return "<"
	case hir.OpGt:
		return ">"
	case hir.OpLe:
		return "<="
	case hir.OpGe:
		return ">="
	case hir.OpEq:
		return "=="
	case hir.OpNe:
		return "!="
	case hir.OpAnd:
		return "&&"
	case hir.OpOr:
		return "||"
	default:
		return "?"
	}
}

func (c *ctx) inferArray(idx hir.Idx[hir.Expr], n hir.ExprArray) ResolvedTy {
	elemTy := c.evalType(n.Ty)
	elemIdx := c.inf.Tys.alloc(elemTy)

	var size uint64
	if n.HasSize {
		c.infer(n.Size)
		if lit, ok := c.bodies.Exprs.Get(n.Size).(hir.ExprIntLiteral); ok {
			size = lit.Value
		}
	}

	if n.HasItems {
		for _, item := range n.Items {
			c.check(item, elemTy)
		}
		if !n.HasSize {
			size = uint64(len(n.Items))
		}
		return ResolvedTy{Kind: Array, Sub: elemIdx, Size: size}
	}

	// bare `[N] T` in type position denotes the array type itself.
	return ResolvedTy{Kind: Metatype, Sub: c.inf.Tys.alloc(ResolvedTy{Kind: Array, Sub: elemIdx, Size: size})}
}

// inferBlock infers a block reached in ordinary expression position — a
// genuine break target (spec E5's outer `{ ... }`). A break anywhere inside
// that doesn't cross an intervening while/loop (which pushes its own scope)
// merges its value's type into this block's own tail/fallthrough type via
// MaxCast.
func (c *ctx) inferBlock(n hir.ExprBlock) ResolvedTy {
	acc := c.pushBreakScope()
	normalTy := c.inferBlockBody(n)
	c.popBreakScope()
	return mergeAcc(acc, normalTy)
}

// inferBlockBody walks a block's statements and tail without touching the
// break-scope stack — shared by inferBlock (which pushes its own scope
// first) and inferBodyInline (which deliberately does not).
func (c *ctx) inferBlockBody(n hir.ExprBlock) ResolvedTy {
	for _, s := range n.Stmts {
		c.inferStmt(s)
	}
	if n.HasTail {
		return c.infer(n.Tail)
	}
	return TyVoid
}

// inferBodyInline infers an if/while body: if it is a block (the only
// grammar production a body can be), its statements/tail are walked
// directly without pushing a new break-target scope, so a `break` inside
// an if- or loop-body resolves against whatever scope already encloses it
// (the enclosing while/loop for a loop body, or the nearest outer block for
// an if body) rather than the body block itself. idx's own type is still
// recorded, exactly as a normal c.infer(idx) call would, so codegen can
// look it up the same way for every expression.
func (c *ctx) inferBodyInline(idx hir.Idx[hir.Expr]) ResolvedTy {
	if blk, ok := c.bodies.Exprs.Get(idx).(hir.ExprBlock); ok {
		return c.record(idx, c.inferBlockBody(blk))
	}
	return c.infer(idx)
}

func (c *ctx) inferStmt(s hir.Idx[hir.Stmt]) {
	switch st := c.bodies.Stmts.Get(s).(type) {
	case hir.StmtExpr:
		c.infer(st.Expr)
	case hir.StmtLocalDef:
		def := c.bodies.LocalDefs.Get(st.Def)
		c.inferLocalDef(st.Def, def)
	case hir.StmtAssign:
		a := c.bodies.Assigns.Get(st.Assign)
		target := c.infer(a.Source)
		if !target.IsUnknown() {
			c.check(a.Value, target)
		} else {
			c.infer(a.Value)
		}
	}
}

func (c *ctx) inferLocalDef(idx hir.Idx[hir.LocalDef], def hir.LocalDef) ResolvedTy {
	var t ResolvedTy
	if def.HasTy {
		expected := c.evalType(def.Ty)
		t = c.check(def.Value, expected)
	} else {
		t = c.infer(def.Value)
		if t.Kind == UInt && t.Width == 0 {
			t = ResolvedTy{Kind: UInt, Width: 32}
		} else if t.Kind == IInt && t.Width == 0 {
			t = ResolvedTy{Kind: IInt, Width: 32}
		}
	}
	c.inf.LocalTypes[localKey{c.file, idx}] = t
	return t
}

func (c *ctx) inferCall(idx hir.Idx[hir.Expr], n hir.ExprCall) ResolvedTy {
	calleeTy := c.infer(n.Callee)
	if calleeTy.IsUnknown() {
		for _, a := range n.Args {
			c.infer(a)
		}
		return TyUnknown
	}
	if calleeTy.Kind != Function {
		c.inf.diag(Mismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = calleeTy })
		for _, a := range n.Args {
			c.infer(a)
		}
		return TyUnknown
	}
	sig := c.inf.Sigs[calleeTy.Sig]
	for i, a := range n.Args {
		if i < len(sig.Params) {
			c.check(a, c.inf.Tys.Get(sig.Params[i]))
		} else {
			c.infer(a)
		}
	}
	return c.inf.Tys.Get(sig.Return)
}

func (c *ctx) inferLambda(n hir.ExprLambda) ResolvedTy {
	lam := c.bodies.Lambdas.Get(n.Lambda)

	paramTys := make([]ResolvedTy, len(lam.Params))
	paramTyIdxs := make([]TyIdx, len(lam.Params))
	for i, p := range lam.Params {
		t := c.evalType(p.Ty)
		paramTys[i] = t
		paramTyIdxs[i] = c.inf.Tys.alloc(t)
	}

	var ret ResolvedTy
	if lam.HasReturnTy {
		ret = c.evalType(lam.ReturnTy)
	} else {
		ret = TyVoid
	}
	retIdx := c.inf.Tys.alloc(ret)

	sig := FuncSig{Params: paramTyIdxs, Return: retIdx, IsExtern: lam.IsExtern}
	sigIdx := SigIdx(len(c.inf.Sigs))
	c.inf.Sigs = append(c.inf.Sigs, sig)

	if !lam.IsExtern {
		savedParams := c.paramTypes
		c.paramTypes = paramTys
		if lam.HasReturnTy {
			c.check(lam.Body, ret)
		} else {
			c.infer(lam.Body)
		}
		c.paramTypes = savedParams
	}

	return ResolvedTy{Kind: Function, Sig: sigIdx}
}

func (c *ctx) inferComptime(idx hir.Idx[hir.Expr], n hir.ExprComptime) ResolvedTy {
	ctm := c.bodies.Comptimes.Get(n.Comptime)
	bodyTy := c.infer(ctm.Body)
	if c.inf.comptime == nil {
		return TyUnknown
	}
	result, ok := c.inf.comptime.Evaluate(c.fqn, c.file, n.Comptime, bodyTy)
	if !ok {
		return bodyTy
	}
	return result
}

func (c *ctx) inferPath(idx hir.Idx[hir.Expr], n hir.ExprPath) ResolvedTy {
	prevTy := c.infer(n.Previous)
	if prevTy.IsUnknown() {
		return TyUnknown
	}

	if prevTy.Kind == File {
		otherIdx, ok := c.inf.world.Index[prevTy.File]
		fieldName := c.inf.world.Interner.LookupName(n.Field)
		if !ok || !otherIdx.Has(fieldName) {
			c.inf.diag(Undefined, n.FieldRange, func(d *Diagnostic) { d.Name = fieldName })
			return TyUnknown
		}
		return c.inf.globalType(intern.Fqn{File: prevTy.File, Name: n.Field})
	}

	// auto-deref any depth of pointer wrapping before a struct field access.
	for prevTy.Kind == Pointer {
		prevTy = c.inf.Tys.Get(prevTy.Sub)
	}

	if prevTy.Kind != Struct {
		c.inf.diag(Undefined, n.FieldRange, func(d *Diagnostic) {
			d.Name = c.inf.world.Interner.LookupName(n.Field)
		})
		return TyUnknown
	}

	for _, f := range c.inf.structFields[prevTy.UID] {
		if f.Name == n.Field {
			return c.inf.Tys.Get(f.Ty)
		}
	}
	c.inf.diag(Undefined, n.FieldRange, func(d *Diagnostic) {
		d.Name = c.inf.world.Interner.LookupName(n.Field)
	})
	return TyUnknown
}

func (c *ctx) inferStructLit(idx hir.Idx[hir.Expr], n hir.ExprStructLiteral) ResolvedTy {
	ty := c.evalType(n.Ty)
	if ty.IsUnknown() || ty.Kind != Struct {
		for _, f := range n.Fields {
			c.infer(f.Value)
		}
		if !ty.IsUnknown() {
			c.inf.diag(Mismatch, c.rangeOf(idx), func(d *Diagnostic) { d.Found = ty; d.Expected = TyType })
		}
		return ty
	}

	decl := c.inf.structFields[ty.UID]
	seen := make(map[intern.Name]bool, len(n.Fields))
	for _, f := range n.Fields {
		if seen[f.Name] {
			c.inf.diag(DuplicateField, f.Range, func(d *Diagnostic) {
				d.Name = c.inf.world.Interner.LookupName(f.Name)
			})
			c.infer(f.Value)
			continue
		}
		seen[f.Name] = true

		var fieldTy ResolvedTy
		found := false
		for _, df := range decl {
			if df.Name == f.Name {
				fieldTy = c.inf.Tys.Get(df.Ty)
				found = true
				break
			}
		}
		if !found {
			c.inf.diag(Undefined, f.Range, func(d *Diagnostic) {
				d.Name = c.inf.world.Interner.LookupName(f.Name)
			})
			c.infer(f.Value)
			continue
		}
		c.check(f.Value, fieldTy)
	}

	return ty
}

func primitiveResolvedTy(p hir.PrimitiveTy) ResolvedTy {
	switch p.Kind {
	case hir.PrimBool:
		return TyBool
	case hir.PrimVoid:
		return TyVoid
	case hir.PrimAny:
		return TyAny
	case hir.PrimStr:
		return TyStr
	case hir.PrimChar:
		return TyChar
	case hir.PrimType:
		return TyType
	case hir.PrimIInt:
		return ResolvedTy{Kind: IInt, Width: p.Width}
	case hir.PrimUInt:
		return ResolvedTy{Kind: UInt, Width: p.Width}
	case hir.PrimFloat:
		return ResolvedTy{Kind: Float, Width: p.Width}
	default:
		return TyUnknown
	}
}
