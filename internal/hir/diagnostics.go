package hir

import "github.com/capy-lang/capy/internal/syntax"

// DiagnosticKind enumerates lowering failure modes (spec §4.3).
type DiagnosticKind int

const (
	OutOfRangeIntLiteral DiagnosticKind = iota
	UndefinedRef
	NonGlobalExtern
	ArraySizeNotConst
	ArraySizeMismatch
	InvalidEscape
	TooManyCharsInCharLiteral
	EmptyCharLiteral
	NonU8CharLiteral
	ImportMustEndInDotCapy
	ImportDoesNotExist
)

// Diagnostic carries one lowering failure. Fields not relevant to Kind are
// left zero.
type Diagnostic struct {
	Kind     DiagnosticKind
	Name     string // UndefinedRef
	File     string // ImportDoesNotExist
	Found    uint32 // ArraySizeMismatch
	Expected uint32 // ArraySizeMismatch
	Range    syntax.Range
}
