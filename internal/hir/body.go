// Package hir lowers a parsed file into per-file Bodies: arenas of
// expressions, statements, local defs, assigns, lambdas, and compile-time
// blocks, performing intra-file name resolution along the way (spec §3.2,
// §4.3, component C3).
package hir

import (
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

// Idx is an opaque, arena-relative index. It is only meaningful paired with
// the Bodies (and, transitively, the file) that allocated it — spec
// invariant "an expression index is valid only within the file that
// created it."
type Idx[T any] int

// Arena is a simple append-only, index-addressed store. Arenas are never
// mutated after lowering completes.
type Arena[T any] struct {
	items []T
}

// Alloc appends v and returns its index.
func (a *Arena[T]) Alloc(v T) Idx[T] {
	a.items = append(a.items, v)
	return Idx[T](len(a.items) - 1)
}

// Get dereferences idx. Panics on an out-of-range index, which indicates a
// cross-file index or a programmer error — never a malformed source file.
func (a *Arena[T]) Get(idx Idx[T]) T { return a.items[idx] }

// Len reports how many items have been allocated.
func (a *Arena[T]) Len() int { return len(a.items) }

// Bodies owns every arena produced by lowering one file.
type Bodies struct {
	Exprs     Arena[Expr]
	Stmts     Arena[Stmt]
	LocalDefs Arena[LocalDef]
	Assigns   Arena[Assign]
	Lambdas   Arena[Lambda]
	Comptimes Arena[Comptime]

	ExprRanges map[Idx[Expr]]syntax.Range

	// GlobalValues maps each top-level name in this file to the expression
	// index of its value. GlobalTypes maps the subset that carry an
	// explicit type annotation to that annotation's expression index.
	GlobalValues map[intern.Name]Idx[Expr]
	GlobalTypes  map[intern.Name]Idx[Expr]

	Imports map[intern.FileName]bool
}

func newBodies() *Bodies {
	return &Bodies{
		ExprRanges:   make(map[Idx[Expr]]syntax.Range),
		GlobalValues: make(map[intern.Name]Idx[Expr]),
		GlobalTypes:  make(map[intern.Name]Idx[Expr]),
		Imports:      make(map[intern.FileName]bool),
	}
}

// Expr is the closed tagged union of HIR expression forms (spec §3.2).
// Every cross-reference inside an Expr is an Idx into one of Bodies'
// arenas, never a pointer — this is what makes the HIR copy-free and
// trivially hashable (spec §9).
type Expr interface{ hirExpr() }

type (
	ExprMissing struct{}

	ExprIntLiteral struct{ Value uint64 }

	ExprFloatLiteral struct{ Value float64 }

	ExprBoolLiteral struct{ Value bool }

	ExprStringLiteral struct{ Value string }

	ExprCharLiteral struct{ Value byte }

	ExprCast struct {
		Expr Idx[Expr]
		Ty   Idx[Expr]
	}

	ExprRef struct {
		Mutable bool
		Expr    Idx[Expr]
	}

	ExprDeref struct{ Pointer Idx[Expr] }

	ExprBinary struct {
		Lhs, Rhs Idx[Expr]
		Op       BinaryOp
	}

	ExprUnary struct {
		Expr Idx[Expr]
		Op   UnaryOp
	}

	// ExprArray covers both array types (`[N] T`, no Items) and array
	// literals (`[N] T { ... }` or `[] T { ... }`).
	ExprArray struct {
		Size     Idx[Expr] // valid iff HasSize
		HasSize  bool
		Ty       Idx[Expr]
		Items    []Idx[Expr]
		HasItems bool
	}

	ExprIndex struct {
		Array Idx[Expr]
		Index Idx[Expr]
	}

	ExprBlock struct {
		Stmts    []Idx[Stmt]
		Tail     Idx[Expr]
		HasTail  bool
	}

	ExprIf struct {
		Cond       Idx[Expr]
		Body       Idx[Expr]
		Else       Idx[Expr]
		HasElse    bool
	}

	ExprWhile struct {
		Cond    Idx[Expr]
		HasCond bool // false means `loop`
		Body    Idx[Expr]
	}

	ExprBreak struct {
		Value    Idx[Expr]
		HasValue bool
	}

	ExprContinue struct{}

	ExprReturn struct {
		Value    Idx[Expr]
		HasValue bool
	}

	ExprLocal struct{ Def Idx[LocalDef] }

	// ExprSelfGlobal is a reference to a top-level name in the same file.
	ExprSelfGlobal struct {
		Name  intern.Name
		Range syntax.Range
	}

	// ExprParam references the nth parameter of the innermost enclosing
	// lambda; it never crosses a lambda boundary (spec invariant, §3.2).
	ExprParam struct {
		Index uint32
		Range syntax.Range
	}

	// ExprPath is both a module-qualified name and a field access; which
	// one it denotes is resolved at inference time (spec §3.2, §4.4).
	ExprPath struct {
		Previous   Idx[Expr]
		Field      intern.Name
		FieldRange syntax.Range
	}

	ExprCall struct {
		Callee Idx[Expr]
		Args   []Idx[Expr]
	}

	ExprLambda struct{ Lambda Idx[Lambda] }

	ExprComptime struct{ Comptime Idx[Comptime] }

	ExprPrimitiveTy struct{ Ty PrimitiveTy }

	ExprDistinct struct {
		UID uint32
		Ty  Idx[Expr]
	}

	ExprStructDecl struct {
		UID    uint32
		Fields []FieldDecl
	}

	ExprStructLiteral struct {
		Ty     Idx[Expr]
		Fields []FieldInit
	}

	ExprImport struct{ File intern.FileName }
)

func (ExprMissing) hirExpr()       {}
func (ExprIntLiteral) hirExpr()    {}
func (ExprFloatLiteral) hirExpr()  {}
func (ExprBoolLiteral) hirExpr()   {}
func (ExprStringLiteral) hirExpr() {}
func (ExprCharLiteral) hirExpr()   {}
func (ExprCast) hirExpr()          {}
func (ExprRef) hirExpr()           {}
func (ExprDeref) hirExpr()         {}
func (ExprBinary) hirExpr()        {}
func (ExprUnary) hirExpr()         {}
func (ExprArray) hirExpr()         {}
func (ExprIndex) hirExpr()         {}
func (ExprBlock) hirExpr()         {}
func (ExprIf) hirExpr()            {}
func (ExprWhile) hirExpr()         {}
func (ExprBreak) hirExpr()         {}
func (ExprContinue) hirExpr()      {}
func (ExprReturn) hirExpr()        {}
func (ExprLocal) hirExpr()         {}
func (ExprSelfGlobal) hirExpr()    {}
func (ExprParam) hirExpr()         {}
func (ExprPath) hirExpr()          {}
func (ExprCall) hirExpr()          {}
func (ExprLambda) hirExpr()        {}
func (ExprComptime) hirExpr()      {}
func (ExprPrimitiveTy) hirExpr()   {}
func (ExprDistinct) hirExpr()      {}
func (ExprStructDecl) hirExpr()    {}
func (ExprStructLiteral) hirExpr() {}
func (ExprImport) hirExpr()        {}

// FieldDecl is one field of a struct declaration.
type FieldDecl struct {
	Name  intern.Name
	Ty    Idx[Expr]
	Range syntax.Range
}

// FieldInit is one field value in a struct literal.
type FieldInit struct {
	Name  intern.Name
	Value Idx[Expr]
	Range syntax.Range
}

// BinaryOp enumerates the binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
)

// UnaryOp enumerates the unary operators.
type UnaryOp int

const (
	OpPos UnaryOp = iota
	OpNeg
	OpNot
)

// PrimitiveKind enumerates the primitive-type families.
type PrimitiveKind int

const (
	PrimBool PrimitiveKind = iota
	PrimVoid
	PrimAny
	PrimStr
	PrimChar
	PrimType
	PrimIInt
	PrimUInt
	PrimFloat
)

// PrimitiveTy is a primitive type literal as it appears in source: `i32`,
// `bool`, `f64`, etc. Width is 0 for families where it is meaningless
// (Bool/Void/Any/Str/Char/Type) and for weak (unbounded) integers.
type PrimitiveTy struct {
	Kind  PrimitiveKind
	Width int
}

// Stmt is the closed tagged union of HIR statement forms.
type Stmt interface{ hirStmt() }

type (
	StmtExpr     struct{ Expr Idx[Expr] }
	StmtLocalDef struct{ Def Idx[LocalDef] }
	StmtAssign   struct{ Assign Idx[Assign] }
)

func (StmtExpr) hirStmt()     {}
func (StmtLocalDef) hirStmt() {}
func (StmtAssign) hirStmt()   {}

// LocalDef is a `name := expr` / `name : T = expr` / `name :: expr` /
// `name : T : expr` statement inside a lambda or comptime body.
type LocalDef struct {
	Mutable bool
	Ty      Idx[Expr]
	HasTy   bool
	Value   Idx[Expr]
	Range   syntax.Range
}

// Assign is `source = value` where source is an l-value expression.
type Assign struct {
	Source Idx[Expr]
	Value  Idx[Expr]
	Range  syntax.Range
}

// Param is one lambda parameter.
type Param struct {
	Name    intern.Name
	HasName bool
	Ty      Idx[Expr]
}

// Lambda is `(params) -> ret { body }` or `(params) extern`. Extern
// lambdas carry no body and are linked at codegen time to a symbol of
// their bare Capy name.
type Lambda struct {
	Params      []Param
	ParamsRange syntax.Range
	ReturnTy    Idx[Expr]
	HasReturnTy bool
	Body        Idx[Expr]
	IsExtern    bool
}

// Comptime is a `comptime { ... }` block, lowered with an empty local
// scope and no visible params (spec §4.3): its Body never contains an
// ExprLocal/ExprParam referencing anything outside itself.
type Comptime struct {
	Body Idx[Expr]
}
