package types

// MaxCast finds the type that can represent both first and second, per the
// numeric hierarchy in spec §4.4. Ported verbatim from the original
// compiler's `hir_ty::cast::max_cast` match arms (including the asymmetric
// signed/unsigned tie-break), generalized only to accept non-numeric types
// trivially via the identical-types case.
func MaxCast(first, second ResolvedTy) (ResolvedTy, bool) {
	if first == second {
		return first, true
	}

	switch {
	case first.Kind == UInt && first.Width == 0 && second.Kind == UInt && second.Width == 0:
		return WeakUInt, true

	case (first.Kind == IInt && first.Width == 0 || first.Kind == UInt && first.Width == 0) &&
		(second.Kind == IInt && second.Width == 0 || second.Kind == UInt && second.Width == 0):
		return WeakInt, true

	case first.Kind == IInt && second.Kind == IInt:
		return ResolvedTy{Kind: IInt, Width: maxInt(first.Width, second.Width)}, true

	case first.Kind == UInt && second.Kind == UInt:
		return ResolvedTy{Kind: UInt, Width: maxInt(first.Width, second.Width)}, true

	case first.Kind == IInt && second.Kind == UInt:
		return mixedSignMax(first.Width, second.Width)

	case first.Kind == UInt && second.Kind == IInt:
		return mixedSignMax(second.Width, first.Width)

	case first.Kind == Unknown:
		return second, true
	case second.Kind == Unknown:
		return first, true

	default:
		return ResolvedTy{}, false
	}
}

func mixedSignMax(signedWidth, unsignedWidth int) (ResolvedTy, bool) {
	if signedWidth > unsignedWidth {
		return ResolvedTy{Kind: IInt, Width: signedWidth}, true
	}
	return ResolvedTy{}, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CanFit reports whether a value of type found can be used where expected
// is wanted, per spec §4.4. Neither argument may be Unknown — callers must
// resolve both sides first (mirrors the original's assert).
//
// Composite comparisons (Pointer, Array) need the shared arena to look up
// element types, so CanFit takes the owning Arena.
func CanFit(arena *Arena, found, expected ResolvedTy) bool {
	if found == expected {
		return true
	}

	switch {
	case found.Kind == IInt && expected.Kind == IInt:
		return expected.Width == 0 || found.Width <= expected.Width
	case found.Kind == UInt && expected.Kind == UInt:
		return expected.Width == 0 || found.Width <= expected.Width

	// a signed int widens a still-weak (sign-unpinned) uint.
	case found.Kind == IInt && expected.Kind == UInt && expected.Width == 0:
		return true
	// concrete uint: rejected, would lose the sign.
	case found.Kind == IInt && expected.Kind == UInt:
		return false

	case found.Kind == UInt && expected.Kind == IInt:
		return expected.Width == 0 || found.Width < expected.Width

	case found.Kind == Pointer && expected.Kind == Pointer:
		return CanFit(arena, arena.Get(found.Sub), arena.Get(expected.Sub))

	case found.Kind == Array && expected.Kind == Array:
		return found.Size == expected.Size && CanFit(arena, arena.Get(found.Sub), arena.Get(expected.Sub))

	default:
		return false
	}
}

// PrimitiveCastable reports whether an explicit `as` cast from `from` to
// `to` is permitted. The original compiler's `primitive_castable` allows
// only {bool, int, uint} <-> {bool, int, uint}; this rewrite additionally
// allows numeric<->float conversions per spec §4.4, since the original
// crate's float-handling module was not part of the retrieved source — the
// extension is recorded in DESIGN.md.
func PrimitiveCastable(from, to ResolvedTy) bool {
	if isBoolOrNum(from) && isBoolOrNum(to) {
		return true
	}
	if isNumeric(from) && to.Kind == Float {
		return true
	}
	if from.Kind == Float && isNumeric(to) {
		return true
	}
	if from.Kind == Float && to.Kind == Float {
		return true
	}
	return false
}

func isBoolOrNum(t ResolvedTy) bool {
	return t.Kind == Bool || t.Kind == IInt || t.Kind == UInt
}

func isNumeric(t ResolvedTy) bool {
	return t.Kind == IInt || t.Kind == UInt
}
