// Package diagnostics is the shared, structured error-report type spanning
// every compiler phase (lex, parse, index, lower, typecheck, codegen). Each
// phase builds its own Report and wraps it as a ReportError so it survives
// errors.As() unwrapping through ordinary Go error returns.
package diagnostics

import (
	"encoding/json"
	"errors"

	"github.com/capy-lang/capy/internal/capyerr"
	"github.com/capy-lang/capy/internal/syntax"
)

// Severity distinguishes a diagnostic that blocks compilation from one that
// is merely reported alongside it (original_source's diagnostics/src/lib.rs
// `Severity` enum: every syntax/indexing/lowering/type diagnostic is an
// Error there except a validation lint, which is a Warning — Capy has no
// validation-lint pass, but the same split applies to its own recoverable
// index diagnostics, see cmd/capy's reportIndexDiags).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalJSON renders Severity as its name rather than its ordinal, so
// -json output doesn't require the reader to know this package's iota
// order.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Report is the canonical structured diagnostic. Schema is a fixed tag so
// downstream tools (editors, CI parsers) can version-check the shape of
// -json output independent of the compiler's own version string.
type Report struct {
	Schema   string         `json:"schema"`
	Code     string         `json:"code"`
	Phase    string         `json:"phase"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Range    *syntax.Range  `json:"range,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Fix      *Fix           `json:"fix,omitempty"`
}

// WithSeverity overrides r's default Error severity, returning r for
// chaining at the call site that builds it (e.g. a recoverable index
// diagnostic reported as a Warning rather than an Error).
func (r *Report) WithSeverity(s Severity) *Report {
	r.Severity = s
	return r
}

// Fix is an optional suggested source edit attached to a Report.
type Fix struct {
	Description string `json:"description"`
	Replacement string `json:"replacement,omitempty"`
}

// ReportError wraps a Report as an error.
type ReportError struct {
	Rep *Report
}

func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown error"
	}
	return e.Rep.Code + ": " + e.Rep.Message
}

// AsReport extracts a Report from an error chain, if present.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// Wrap wraps r as a ReportError, preserving structure through error returns.
func Wrap(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// New builds a Report, deriving Phase from code's prefix via capyerr.Phase
// when phase is left empty.
func New(code, phase, message string, rng *syntax.Range) *Report {
	if phase == "" {
		phase = capyerr.Phase(code)
	}
	return &Report{
		Schema:  "capy.error/v1",
		Code:    code,
		Phase:   phase,
		Message: message,
		Range:   rng,
	}
}

// NewGeneric wraps an opaque error (e.g. an I/O failure) as a Report.
func NewGeneric(phase string, err error) *Report {
	return &Report{
		Schema:  "capy.error/v1",
		Code:    "RUNTIME",
		Phase:   phase,
		Message: err.Error(),
		Data:    map[string]any{},
	}
}

// ToJSON renders r as JSON, indented unless compact is set.
func (r *Report) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
