package types

import (
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
)

// DiagnosticKind enumerates inference failure modes (spec §4.4).
type DiagnosticKind int

const (
	Mismatch DiagnosticKind = iota
	Uncastable
	OpMismatch
	IfMismatch
	IndexMismatch
	DerefMismatch
	MissingElse
	Undefined
	Cycle       // TY012, decided in Open Questions: diagnostic on top of the absorptive Unknown fallback
	DuplicateField // TY013
)

// Code maps a DiagnosticKind to the phase-prefixed code used in rendered
// output (capyerr taxonomy, spec §6.4).
func (k DiagnosticKind) Code() string {
	switch k {
	case Mismatch:
		return "TY001"
	case Uncastable:
		return "TY002"
	case OpMismatch:
		return "TY003"
	case IfMismatch:
		return "TY004"
	case IndexMismatch:
		return "TY005"
	case DerefMismatch:
		return "TY006"
	case MissingElse:
		return "TY007"
	case Undefined:
		return "TY008"
	case Cycle:
		return "TY012"
	case DuplicateField:
		return "TY013"
	default:
		return "TY000"
	}
}

// Diagnostic carries one inference failure. Fields not relevant to Kind
// are left zero.
type Diagnostic struct {
	Kind     DiagnosticKind
	Name     string // Undefined, DuplicateField
	Op       string // OpMismatch
	Expected ResolvedTy
	Found    ResolvedTy
	Fqn      intern.Fqn // Cycle
	Range    syntax.Range
}
