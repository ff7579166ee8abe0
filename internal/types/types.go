// Package types implements project-wide type inference over lowered HIR
// (spec §3.3-3.4, §4.4, component C4): a directional numeric-fit checker
// rather than a unification-based system, since Capy's type grammar has no
// polymorphism to solve for.
package types

import (
	"fmt"

	"github.com/capy-lang/capy/internal/intern"
)

// Kind tags the variant a ResolvedTy holds.
type Kind int

const (
	Unknown Kind = iota
	Void
	Any
	Bool
	IInt // Width; 0 means weak (unbounded) signed integer
	UInt // Width; 0 means weak (unbounded) unsigned integer
	Float
	Str
	Char
	TypeKind // the type `type`, a value denoting a type
	Pointer  // Sub
	Array    // Sub, Size
	Slice    // Sub
	Struct   // UID, Fields looked up by UID
	Distinct // UID, Inner
	Function // Sig looked up in Sigs
	File     // FileName
	Metatype // Sub: the compile-time value of a type expression
)

// TyIdx indexes into a project-wide Arena of ResolvedTy, letting composite
// shapes (pointer/array/slice/metatype) refer to their sub-type without
// making ResolvedTy itself recursive — spec §3.3's "sub-types are stored in
// an arena shared across the project; ResolvedTy values are small and
// copyable."
type TyIdx int

// Arena is an append-only, index-addressed store of ResolvedTy, shared by
// every file in a compilation.
type Arena struct {
	items []ResolvedTy
}

func (a *Arena) alloc(t ResolvedTy) TyIdx {
	a.items = append(a.items, t)
	return TyIdx(len(a.items) - 1)
}

func (a *Arena) Get(idx TyIdx) ResolvedTy { return a.items[idx] }

// ResolvedTy is a flat, comparable tagged value (spec §3.3). Fields not
// meaningful for Kind are left zero.
type ResolvedTy struct {
	Kind  Kind
	Width int      // IInt/UInt/Float
	Sub   TyIdx    // Pointer/Slice/Metatype element; Array element
	Size  uint64   // Array size
	UID   uint32   // Struct/Distinct identity
	Inner TyIdx    // Distinct's wrapped type
	Sig   SigIdx   // Function's signature
	File  intern.FileName
}

// SigIdx indexes into a project-wide table of function signatures, kept
// out of ResolvedTy itself so ResolvedTy stays comparable with ==.
type SigIdx int

// FuncSig is a function type's shape: parameter types in declared order,
// return type, and whether it is an `extern` (imported, bodiless) lambda.
type FuncSig struct {
	Params   []TyIdx
	Return   TyIdx
	IsExtern bool
}

// StructField is one field of a struct type, resolved by the struct's UID
// rather than inlined into ResolvedTy.
type StructField struct {
	Name intern.Name
	Ty   TyIdx
}

func simple(k Kind) ResolvedTy { return ResolvedTy{Kind: k} }

var (
	TyUnknown = simple(Unknown)
	TyVoid    = simple(Void)
	TyAny     = simple(Any)
	TyBool    = simple(Bool)
	TyStr     = simple(Str)
	TyChar    = simple(Char)
	TyType    = simple(TypeKind)
)

// WeakUInt is the type of an integer literal before its sign is pinned
// down by context (spec §4.4's "numeric hierarchy").
var WeakUInt = ResolvedTy{Kind: UInt, Width: 0}

// WeakInt is a literal already known to be signed (e.g. negated) but not
// yet fit to a concrete width.
var WeakInt = ResolvedTy{Kind: IInt, Width: 0}

func (t ResolvedTy) IsUnknown() bool { return t.Kind == Unknown }

// String renders t for diagnostics. Composite shapes need the owning
// Inference's arena/signature table to fully resolve, so this only prints
// what is self-contained and renders the rest as placeholders.
func (t ResolvedTy) String() string {
	switch t.Kind {
	case Unknown:
		return "<unknown>"
	case Void:
		return "void"
	case Any:
		return "any"
	case Bool:
		return "bool"
	case Str:
		return "str"
	case Char:
		return "char"
	case TypeKind:
		return "type"
	case IInt:
		if t.Width == 0 {
			return "{int}"
		}
		return fmt.Sprintf("i%d", t.Width)
	case UInt:
		if t.Width == 0 {
			return "{uint}"
		}
		return fmt.Sprintf("u%d", t.Width)
	case Float:
		return fmt.Sprintf("f%d", t.Width)
	case Pointer:
		return "^..."
	case Array:
		return fmt.Sprintf("[%d]...", t.Size)
	case Slice:
		return "[]..."
	case Struct:
		return fmt.Sprintf("struct#%d", t.UID)
	case Distinct:
		return fmt.Sprintf("distinct#%d", t.UID)
	case Function:
		return "function(...)"
	case File:
		return "file"
	case Metatype:
		return "metatype(...)"
	default:
		return "?"
	}
}
