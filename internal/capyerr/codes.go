// Package capyerr provides centralized error code definitions for the Capy
// compiler. Each phase gets its own code prefix so a code alone tells a
// reader (or a tool parsing -json output) which pipeline stage raised it.
package capyerr

const (
	// ============================================================================
	// Lexer errors (LEX###)
	// ============================================================================

	// LEX001 indicates an unterminated string or char literal.
	LEX001 = "LEX001"

	// LEX002 indicates an invalid escape sequence.
	LEX002 = "LEX002"

	// LEX003 indicates an unrecognized character.
	LEX003 = "LEX003"

	// LEX004 indicates a malformed numeric literal.
	LEX004 = "LEX004"

	// ============================================================================
	// Parser errors (PAR###)
	// ============================================================================

	// PAR001 indicates an unexpected token.
	PAR001 = "PAR001"

	// PAR002 indicates a missing closing delimiter.
	PAR002 = "PAR002"

	// PAR003 indicates an invalid declaration form.
	PAR003 = "PAR003"

	// PAR004 indicates an invalid type expression.
	PAR004 = "PAR004"

	// PAR005 indicates an invalid struct literal.
	PAR005 = "PAR005"

	// ============================================================================
	// Indexing errors (IDX###)
	// ============================================================================

	// IDX001 indicates a duplicate top-level declaration name.
	IDX001 = "IDX001"

	// ============================================================================
	// Lowering errors (LOW###)
	// ============================================================================

	// LOW001 indicates a lowering diagnostic: cmd/capy reports every
	// hir.Diagnostic (unresolved imports, bad literals, undefined
	// references, ...) under this one code.
	LOW001 = "LOW001"

	// LOW002 names a continue outside any loop. `break` alone is legal
	// outside a loop — it targets the nearest enclosing block instead — so
	// only `continue` fits this code. No pass emits it: lowering accepts
	// such a continue and codegen translates it to nothing.
	LOW002 = "LOW002"

	// LOW003 indicates an invalid assignment target.
	LOW003 = "LOW003"

	// ============================================================================
	// Type errors (TY###) -- kind-to-code mapping owned by internal/types,
	// listed here for the taxonomy's sake.
	// ============================================================================

	TY001 = "TY001" // Mismatch
	TY002 = "TY002" // Uncastable
	TY003 = "TY003" // OpMismatch
	TY004 = "TY004" // IfMismatch
	TY005 = "TY005" // IndexMismatch
	TY006 = "TY006" // DerefMismatch
	TY007 = "TY007" // MissingElse
	TY008 = "TY008" // Undefined
	TY012 = "TY012" // Cycle
	TY013 = "TY013" // DuplicateField

	// ============================================================================
	// Codegen errors (CG###)
	// ============================================================================

	// CG001 indicates a comptime evaluation failure.
	CG001 = "CG001"

	// CG002 indicates an unsupported construct reached the backend.
	CG002 = "CG002"

	// CG003 indicates an entry point signature mismatch.
	CG003 = "CG003"
)

// Phase maps a code's prefix to the pipeline stage that raises it, used by
// diagnostics.Report to fill in its Phase field when not given explicitly.
func Phase(code string) string {
	for i, r := range code {
		if r >= '0' && r <= '9' {
			switch code[:i] {
			case "LEX":
				return "lex"
			case "PAR":
				return "parse"
			case "IDX":
				return "index"
			case "LOW":
				return "lower"
			case "TY":
				return "typecheck"
			case "CG":
				return "codegen"
			}
			return ""
		}
	}
	return ""
}
