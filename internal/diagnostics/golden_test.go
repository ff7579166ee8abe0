package diagnostics_test

import (
	"encoding/json"
	"testing"

	"github.com/capy-lang/capy/internal/capyerr"
	"github.com/capy-lang/capy/internal/diagnostics"
	"github.com/capy-lang/capy/internal/syntax"
	"github.com/capy-lang/capy/testutil"
)

// TestReportGoldenJSON pins the wire shape of a rendered Report, including
// the Severity field, against a checked-in fixture. This uses
// testutil.LoadGoldenFile/DiffJSON rather than AssertGoldenJSON/
// CompareWithGolden: the latter pair bakes runtime.Version()/GOOS/GOARCH
// into the compared bytes, which makes the fixture reproduce only on the
// exact toolchain that last ran with UPDATE_GOLDENS=true. LoadGoldenFile
// only pulls the fixture's "data" field back out, so the comparison here
// is against the Report's own JSON shape, not the machine that generated it.
func TestReportGoldenJSON(t *testing.T) {
	rng := syntax.Range{
		Start: syntax.Pos{Offset: 12, Line: 2, Column: 1},
		End:   syntax.Pos{Offset: 13, Line: 2, Column: 2},
	}
	rep := diagnostics.New(capyerr.TY001, "typecheck", `expected "i32" but found "bool"`, &rng)
	rep.WithSeverity(diagnostics.SeverityWarning)

	raw, err := rep.ToJSON(true)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var got interface{}
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal rendered report: %v", err)
	}

	want := testutil.LoadGoldenFile(t, "diagnostics", "type_mismatch_warning")
	if diff := testutil.DiffJSON(want, got); diff != "JSON Diff:\n" {
		t.Errorf("report shape drifted from golden file:\n%s", diff)
	}
}
