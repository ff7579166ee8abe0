package codegen

import (
	"strconv"
	"strings"

	"github.com/capy-lang/capy/internal/intern"
)

// Mangle deterministically encodes fqn's file and name into a symbol using
// only characters permitted by WASM's export-name charset and common object
// formats (spec §4.6): equal Fqns give equal symbols, distinct Fqns give
// distinct symbols. The file path is sanitized rather than hashed so
// disassembled output stays legible: ASCII letters and digits are kept and
// every other byte (including '_') becomes '_' plus two hex digits, so the
// encoding is reversible and never contains the '$' separator.
func Mangle(interner *intern.Interner, fqn intern.Fqn) string {
	file := sanitize(interner.LookupFileName(fqn.File))
	name := sanitize(interner.LookupName(fqn.Name))
	return "capy$" + file + "$" + name
}

// MangleLocal names an anonymous synthesized function (the entry trampoline,
// a comptime JIT thunk) that has no Fqn of its own.
func MangleLocal(kind string, n int) string {
	return "capy$" + kind + "$" + strconv.Itoa(n)
}

func sanitize(s string) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xF])
		}
	}
	return b.String()
}
