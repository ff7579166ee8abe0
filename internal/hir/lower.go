package hir

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

// Options configures lowering behavior that is not intrinsic to the
// source being lowered.
type Options struct {
	// FakeFS skips the on-disk existence check for `import` targets,
	// accepting the joined-and-cleaned path verbatim. Used only by the
	// test harness (spec §4.3).
	FakeFS bool
}

// Symbol is what a name resolves to during lowering (original_source
// hir/src/body.rs's resolver enum). It is not stored in the HIR itself —
// resolution is baked directly into the concrete ExprLocal/ExprParam/
// ExprSelfGlobal/ExprPrimitiveTy node lowerIdent allocates — but
// resolveSymbol classifies a name into one of these before lowerIdent picks
// which node to build, rather than lowerIdent re-deriving the same
// innermost-first lookup order inline.
type Symbol int

const (
	SymbolUnknown Symbol = iota
	SymbolLocal
	SymbolParam
	SymbolGlobal
	SymbolPrimitiveTy
)

type localEntry struct {
	name string
	def  Idx[LocalDef]
}

// Ctx is the per-file lowering context. A fresh Ctx is used per file; the
// interner and UID generator are shared across the whole compilation.
type Ctx struct {
	bodies   *Bodies
	fileName string
	index    *index.Index
	uidGen   *intern.UIDGenerator
	interner *intern.Interner
	opts     Options
	diags    []Diagnostic

	// locals/blockMarks implement block-scoped shadowing within a single
	// lambda/comptime body: blockMarks records the locals-stack length to
	// truncate back to when a nested block ends.
	locals     []localEntry
	blockMarks []int

	// params is nil outside any lambda/comptime body; lambdas and comptime
	// blocks do not capture, so entering one swaps params (and locals) out
	// for an unrelated copy, restored on exit (spec §4.3, "no capture").
	params map[string]uint32
}

// Lower lowers a parsed file into Bodies plus any lowering diagnostics.
// Lowering never aborts: every definition produces a body, with Missing
// placeholders standing in wherever something could not be resolved.
func Lower(f *syntax.File, fileName string, idx *index.Index, uidGen *intern.UIDGenerator, interner *intern.Interner, opts Options) (*Bodies, []Diagnostic) {
	ctx := &Ctx{
		bodies:   newBodies(),
		fileName: fileName,
		index:    idx,
		uidGen:   uidGen,
		interner: interner,
		opts:     opts,
	}
	for _, def := range f.Defs {
		ctx.lowerGlobal(def)
	}
	return ctx.bodies, ctx.diags
}

func (c *Ctx) diag(kind DiagnosticKind, r syntax.Range) {
	c.diags = append(c.diags, Diagnostic{Kind: kind, Range: r})
}

func (c *Ctx) alloc(e Expr, r syntax.Range) Idx[Expr] {
	idx := c.bodies.Exprs.Alloc(e)
	c.bodies.ExprRanges[idx] = r
	return idx
}

func (c *Ctx) missing(r syntax.Range) Idx[Expr] { return c.alloc(ExprMissing{}, r) }

func (c *Ctx) lowerGlobal(def *syntax.Define) {
	// Globals are lowered with no ambient scope: a global's initializer
	// can only see other globals, primitives, and (inside a nested
	// lambda/comptime) its own params.
	c.locals, c.blockMarks, c.params = nil, nil, nil

	name := c.interner.InternName(def.Name)

	var valueIdx Idx[Expr]
	if lam, ok := def.Value.(*syntax.Lambda); ok {
		valueIdx = c.lowerLambdaExpr(lam, true)
	} else {
		valueIdx = c.lowerExpr(def.Value)
	}
	c.bodies.GlobalValues[name] = valueIdx

	if def.Type != nil {
		c.bodies.GlobalTypes[name] = c.lowerExpr(def.Type)
	}
}

func (c *Ctx) lookupLocal(name string) (Idx[LocalDef], bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return c.locals[i].def, true
		}
	}
	return 0, false
}

func (c *Ctx) lookupParam(name string) (uint32, bool) {
	if c.params == nil {
		return 0, false
	}
	idx, ok := c.params[name]
	return idx, ok
}

// symbolResolution carries whichever raw lookup result resolveSymbol found,
// so lowerIdent doesn't need to repeat the lookup a second time per kind.
type symbolResolution struct {
	local Idx[LocalDef]
	param uint32
	prim  PrimitiveTy
}

// resolveSymbol classifies name in innermost-first order: locals, params,
// same-file globals, primitive-type identifiers (spec §4.3).
func (c *Ctx) resolveSymbol(name string) (Symbol, symbolResolution) {
	if defIdx, ok := c.lookupLocal(name); ok {
		return SymbolLocal, symbolResolution{local: defIdx}
	}
	if paramIdx, ok := c.lookupParam(name); ok {
		return SymbolParam, symbolResolution{param: paramIdx}
	}
	if c.index.Has(name) {
		return SymbolGlobal, symbolResolution{}
	}
	if prim, ok := primitiveByName(name); ok {
		return SymbolPrimitiveTy, symbolResolution{prim: prim}
	}
	return SymbolUnknown, symbolResolution{}
}

func (c *Ctx) lowerIdent(name string, r syntax.Range) Idx[Expr] {
	switch sym, res := c.resolveSymbol(name); sym {
	case SymbolLocal:
		return c.alloc(ExprLocal{Def: res.local}, r)
	case SymbolParam:
		return c.alloc(ExprParam{Index: res.param, Range: r}, r)
	case SymbolGlobal:
		return c.alloc(ExprSelfGlobal{Name: c.interner.InternName(name), Range: r}, r)
	case SymbolPrimitiveTy:
		return c.alloc(ExprPrimitiveTy{Ty: res.prim}, r)
	default:
		c.diags = append(c.diags, Diagnostic{Kind: UndefinedRef, Name: name, Range: r})
		return c.missing(r)
	}
}

func (c *Ctx) lowerExpr(e syntax.Expr) Idx[Expr] {
	switch n := e.(type) {
	case nil:
		return c.missing(syntax.Range{})
	case *syntax.Missing:
		return c.missing(n.Range)
	case *syntax.IntLit:
		v, overflow := parseIntLiteral(n.Text)
		if overflow {
			c.diag(OutOfRangeIntLiteral, n.Range)
			return c.missing(n.Range)
		}
		return c.alloc(ExprIntLiteral{Value: v}, n.Range)
	case *syntax.FloatLit:
		return c.alloc(ExprFloatLiteral{Value: parseFloatLiteral(n.Text)}, n.Range)
	case *syntax.BoolLit:
		return c.alloc(ExprBoolLiteral{Value: n.Value}, n.Range)
	case *syntax.CharLit:
		v := c.decodeCharLiteral(n.Raw, n.Range)
		return c.alloc(ExprCharLiteral{Value: v}, n.Range)
	case *syntax.StringLit:
		return c.alloc(ExprStringLiteral{Value: decodeStringEscapes(n.Value)}, n.Range)
	case *syntax.Ident:
		return c.lowerIdent(n.Name, n.Range)
	case *syntax.Cast:
		return c.alloc(ExprCast{Expr: c.lowerExpr(n.Expr), Ty: c.lowerExpr(n.Type)}, n.Range)
	case *syntax.Ref:
		return c.alloc(ExprRef{Mutable: n.Mutable, Expr: c.lowerExpr(n.Expr)}, n.Range)
	case *syntax.Deref:
		return c.alloc(ExprDeref{Pointer: c.lowerExpr(n.Expr)}, n.Range)
	case *syntax.Binary:
		return c.alloc(ExprBinary{Lhs: c.lowerExpr(n.Lhs), Rhs: c.lowerExpr(n.Rhs), Op: lowerBinaryOp(n.Op)}, n.Range)
	case *syntax.Unary:
		return c.alloc(ExprUnary{Expr: c.lowerExpr(n.Expr), Op: lowerUnaryOp(n.Op)}, n.Range)
	case *syntax.ArrayLit:
		return c.lowerArray(n)
	case *syntax.Index:
		return c.alloc(ExprIndex{Array: c.lowerExpr(n.Array), Index: c.lowerExpr(n.Idx)}, n.Range)
	case *syntax.Block:
		return c.lowerBlock(n)
	case *syntax.If:
		cond := c.lowerExpr(n.Cond)
		b := c.lowerExpr(n.Body)
		var elseIdx Idx[Expr]
		hasElse := n.Else != nil
		if hasElse {
			elseIdx = c.lowerExpr(n.Else)
		}
		return c.alloc(ExprIf{Cond: cond, Body: b, Else: elseIdx, HasElse: hasElse}, n.Range)
	case *syntax.While:
		var condIdx Idx[Expr]
		hasCond := n.Cond != nil
		if hasCond {
			condIdx = c.lowerExpr(n.Cond)
		}
		return c.alloc(ExprWhile{Cond: condIdx, HasCond: hasCond, Body: c.lowerExpr(n.Body)}, n.Range)
	case *syntax.Break:
		var v Idx[Expr]
		has := n.Value != nil
		if has {
			v = c.lowerExpr(n.Value)
		}
		return c.alloc(ExprBreak{Value: v, HasValue: has}, n.Range)
	case *syntax.Continue:
		return c.alloc(ExprContinue{}, n.Range)
	case *syntax.Return:
		var v Idx[Expr]
		has := n.Value != nil
		if has {
			v = c.lowerExpr(n.Value)
		}
		return c.alloc(ExprReturn{Value: v, HasValue: has}, n.Range)
	case *syntax.Path:
		prev := c.lowerExpr(n.Prev)
		return c.alloc(ExprPath{Previous: prev, Field: c.interner.InternName(n.Field), FieldRange: n.FieldRange}, n.Range)
	case *syntax.Call:
		callee := c.lowerExpr(n.Callee)
		args := make([]Idx[Expr], len(n.Args))
		for i, a := range n.Args {
			args[i] = c.lowerExpr(a)
		}
		return c.alloc(ExprCall{Callee: callee, Args: args}, n.Range)
	case *syntax.Lambda:
		return c.lowerLambdaExpr(n, false)
	case *syntax.Comptime:
		return c.lowerComptime(n)
	case *syntax.Distinct:
		uid := c.uidGen.Next()
		return c.alloc(ExprDistinct{UID: uid, Ty: c.lowerExpr(n.Inner)}, n.Range)
	case *syntax.StructDecl:
		return c.lowerStructDecl(n)
	case *syntax.StructLit:
		return c.lowerStructLit(n)
	case *syntax.Import:
		return c.lowerImport(n)
	default:
		return c.missing(syntax.Range{})
	}
}

func (c *Ctx) lowerArray(n *syntax.ArrayLit) Idx[Expr] {
	tyIdx := c.lowerExpr(n.Elem)

	var sizeIdx Idx[Expr]
	hasSize := n.Size != nil
	var sizeVal uint64
	sizeKnown := false
	if hasSize {
		if lit, ok := n.Size.(*syntax.IntLit); ok {
			v, overflow := parseIntLiteral(lit.Text)
			if !overflow {
				sizeVal, sizeKnown = v, true
			}
			sizeIdx = c.lowerExpr(n.Size)
		} else {
			c.diag(ArraySizeNotConst, n.Size.Span())
			sizeIdx = c.missing(n.Size.Span())
		}
	}

	var items []Idx[Expr]
	if n.HasItems {
		items = make([]Idx[Expr], len(n.Items))
		for i, it := range n.Items {
			items[i] = c.lowerExpr(it)
		}
		if sizeKnown && uint64(len(items)) != sizeVal {
			c.diags = append(c.diags, Diagnostic{
				Kind:     ArraySizeMismatch,
				Found:    uint32(len(items)),
				Expected: uint32(sizeVal),
				Range:    n.Range,
			})
		}
	}

	return c.alloc(ExprArray{
		Size: sizeIdx, HasSize: hasSize,
		Ty: tyIdx, Items: items, HasItems: n.HasItems,
	}, n.Range)
}

func (c *Ctx) lowerBlock(n *syntax.Block) Idx[Expr] {
	mark := len(c.locals)
	c.blockMarks = append(c.blockMarks, mark)

	stmts := make([]Idx[Stmt], 0, len(n.Stmts))
	for _, s := range n.Stmts {
		stmts = append(stmts, c.lowerStmt(s))
	}
	var tail Idx[Expr]
	hasTail := n.Tail != nil
	if hasTail {
		tail = c.lowerExpr(n.Tail)
	}

	c.locals = c.locals[:mark]
	c.blockMarks = c.blockMarks[:len(c.blockMarks)-1]

	return c.alloc(ExprBlock{Stmts: stmts, Tail: tail, HasTail: hasTail}, n.Range)
}

func (c *Ctx) lowerStmt(s syntax.Stmt) Idx[Stmt] {
	switch s := s.(type) {
	case syntax.LocalDefStmt:
		return c.bodies.Stmts.Alloc(StmtLocalDef{Def: c.lowerLocalDef(s.Def)})
	case syntax.AssignStmt:
		src := c.lowerExpr(s.Source)
		val := c.lowerExpr(s.Value)
		a := c.bodies.Assigns.Alloc(Assign{Source: src, Value: val, Range: s.Range})
		return c.bodies.Stmts.Alloc(StmtAssign{Assign: a})
	case syntax.ExprStmt:
		return c.bodies.Stmts.Alloc(StmtExpr{Expr: c.lowerExpr(s.Expr)})
	default:
		return c.bodies.Stmts.Alloc(StmtExpr{Expr: c.missing(s.Span())})
	}
}

// lowerLocalDef lowers the type/value of a local definition before adding
// it to scope — a local can never refer to itself, and references always
// resolve to a LocalDef introduced strictly earlier in lexical order.
func (c *Ctx) lowerLocalDef(def *syntax.Define) Idx[LocalDef] {
	var tyIdx Idx[Expr]
	hasTy := def.Type != nil
	if hasTy {
		tyIdx = c.lowerExpr(def.Type)
	}
	valIdx := c.lowerExpr(def.Value)

	idx := c.bodies.LocalDefs.Alloc(LocalDef{
		Mutable: def.Mutable, Ty: tyIdx, HasTy: hasTy, Value: valIdx, Range: def.Range,
	})
	c.locals = append(c.locals, localEntry{name: def.Name, def: idx})
	return idx
}

// lowerLambdaExpr lowers a lambda, honoring the "no capture" rule: param
// and return-type expressions are resolved in the enclosing scope (they
// are the lambda's signature, not its body), but the body itself is
// lowered against a completely fresh scope stack and param map, restored
// on exit (spec §4.3, original_source hir/src/body.rs `lower_lambda`).
func (c *Ctx) lowerLambdaExpr(lam *syntax.Lambda, allowExtern bool) Idx[Expr] {
	params := make([]Param, len(lam.Params))
	paramMap := make(map[string]uint32, len(lam.Params))
	for i, p := range lam.Params {
		tyIdx := c.lowerExpr(p.Type)
		params[i] = Param{Name: c.interner.InternName(p.Name), HasName: p.Name != "", Ty: tyIdx}
		if p.Name != "" {
			paramMap[p.Name] = uint32(i)
		}
	}

	var retIdx Idx[Expr]
	hasRet := lam.ReturnTy != nil
	if hasRet {
		retIdx = c.lowerExpr(lam.ReturnTy)
	}

	if lam.IsExtern && !allowExtern {
		c.diag(NonGlobalExtern, lam.Range)
	}

	savedLocals, savedMarks, savedParams := c.locals, c.blockMarks, c.params
	c.locals, c.blockMarks, c.params = nil, nil, paramMap

	var bodyIdx Idx[Expr]
	if !lam.IsExtern {
		bodyIdx = c.lowerExpr(lam.Body)
	}

	c.locals, c.blockMarks, c.params = savedLocals, savedMarks, savedParams

	idx := c.bodies.Lambdas.Alloc(Lambda{
		Params: params, ParamsRange: lam.Range,
		ReturnTy: retIdx, HasReturnTy: hasRet,
		Body: bodyIdx, IsExtern: lam.IsExtern,
	})
	return c.alloc(ExprLambda{Lambda: idx}, lam.Range)
}

func (c *Ctx) lowerComptime(n *syntax.Comptime) Idx[Expr] {
	savedLocals, savedMarks, savedParams := c.locals, c.blockMarks, c.params
	c.locals, c.blockMarks, c.params = nil, nil, nil

	bodyIdx := c.lowerExpr(n.Body)

	c.locals, c.blockMarks, c.params = savedLocals, savedMarks, savedParams

	idx := c.bodies.Comptimes.Alloc(Comptime{Body: bodyIdx})
	return c.alloc(ExprComptime{Comptime: idx}, n.Range)
}

func (c *Ctx) lowerStructDecl(n *syntax.StructDecl) Idx[Expr] {
	uid := c.uidGen.Next()
	fields := make([]FieldDecl, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = FieldDecl{Name: c.interner.InternName(f.Name), Ty: c.lowerExpr(f.Type), Range: f.Range}
	}
	return c.alloc(ExprStructDecl{UID: uid, Fields: fields}, n.Range)
}

func (c *Ctx) lowerStructLit(n *syntax.StructLit) Idx[Expr] {
	tyIdx := c.lowerExpr(n.Type)
	fields := make([]FieldInit, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = FieldInit{Name: c.interner.InternName(f.Name), Value: c.lowerExpr(f.Value), Range: f.Range}
	}
	return c.alloc(ExprStructLiteral{Ty: tyIdx, Fields: fields}, n.Range)
}

func (c *Ctx) lowerImport(n *syntax.Import) Idx[Expr] {
	if !strings.HasSuffix(n.Path, ".capy") {
		c.diag(ImportMustEndInDotCapy, n.Range)
		return c.missing(n.Range)
	}

	dir := filepath.Dir(c.fileName)
	joined := filepath.Clean(filepath.Join(dir, n.Path))

	if !c.opts.FakeFS {
		info, err := os.Stat(joined)
		if err != nil || info.IsDir() {
			c.diags = append(c.diags, Diagnostic{Kind: ImportDoesNotExist, File: joined, Range: n.Range})
			return c.missing(n.Range)
		}
	}

	fname := c.interner.InternFileName(joined)
	c.bodies.Imports[fname] = true
	return c.alloc(ExprImport{File: fname}, n.Range)
}

func lowerBinaryOp(op string) BinaryOp {
	switch op {
	case "+":
		return OpAdd
	case "-":
		return OpSub
	case "*":
		return OpMul
	case "/":
		return OpDiv
	case "%":
		return OpMod
	case "<":
		return OpLt
	case ">":
		return OpGt
	case "<=":
		return OpLe
	case ">=":
		return OpGe
	case "==":
		return OpEq
	case "!=":
		return OpNe
	case "&&":
		return OpAnd
	case "||":
		return OpOr
	default:
		return OpAdd
	}
}

func lowerUnaryOp(op string) UnaryOp {
	switch op {
	case "+":
		return OpPos
	case "-":
		return OpNeg
	case "!":
		return OpNot
	default:
		return OpNeg
	}
}

var primitiveNames = map[string]PrimitiveTy{
	"bool": {PrimBool, 0},
	"void": {PrimVoid, 0},
	"any":  {PrimAny, 0},
	"str":  {PrimStr, 0},
	"char": {PrimChar, 0},
	"type": {PrimType, 0},

	"i8": {PrimIInt, 8}, "i16": {PrimIInt, 16}, "i32": {PrimIInt, 32}, "i64": {PrimIInt, 64}, "i128": {PrimIInt, 128}, "isize": {PrimIInt, 64},
	"u8": {PrimUInt, 8}, "u16": {PrimUInt, 16}, "u32": {PrimUInt, 32}, "u64": {PrimUInt, 64}, "u128": {PrimUInt, 128}, "usize": {PrimUInt, 64},

	"f32": {PrimFloat, 32}, "f64": {PrimFloat, 64},
}

func primitiveByName(name string) (PrimitiveTy, bool) {
	p, ok := primitiveNames[name]
	return p, ok
}
