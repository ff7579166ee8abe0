// Command capy is the compiler driver: build turns a source file into a
// standalone wasm object, run JIT-compiles and executes it in-process,
// check runs the pipeline only through inference and reports diagnostics,
// comptime evaluates and prints a single top-level comptime block.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/capy-lang/capy/internal/capyerr"
	"github.com/capy-lang/capy/internal/codegen"
	"github.com/capy-lang/capy/internal/comptime"
	"github.com/capy-lang/capy/internal/diagnostics"
	"github.com/capy-lang/capy/internal/hir"
	"github.com/capy-lang/capy/internal/index"
	"github.com/capy-lang/capy/internal/intern"
	"github.com/capy-lang/capy/internal/syntax"
	"github.com/capy-lang/capy/internal/types"
)

var (
	// Version info, set by ldflags during release builds.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"

	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	var (
		versionFlag = flag.Bool("version", false, "Print version information")
		helpFlag    = flag.Bool("help", false, "Show help")
		outFlag     = flag.String("o", "", "Output path for build (default: input with .wasm extension)")
		verboseFlag = flag.Int("v", 0, "Verbosity: 0=silent, 1=print local functions, 2=print every function")
		jsonFlag    = flag.Bool("json", false, "Report diagnostics as JSON (one per line)")
	)

	flag.Parse()

	if *versionFlag {
		printVersion()
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		printHelp()
		return
	}

	command := flag.Arg(0)
	verbosity := codegen.Verbosity(*verboseFlag)

	switch command {
	case "build":
		if flag.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "%s: missing file argument\n", red("Error"))
			fmt.Println("Usage: capy build <file.capy>")
			os.Exit(1)
		}
		buildFile(flag.Arg(1), *outFlag, verbosity, *jsonFlag)

	case "run":
		if flag.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "%s: missing file argument\n", red("Error"))
			fmt.Println("Usage: capy run <file.capy>")
			os.Exit(1)
		}
		runFile(flag.Arg(1), verbosity, *jsonFlag)

	case "check":
		if flag.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "%s: missing file argument\n", red("Error"))
			fmt.Println("Usage: capy check <file.capy>")
			os.Exit(1)
		}
		checkFile(flag.Arg(1), *jsonFlag)

	case "comptime":
		if flag.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "%s: missing file argument\n", red("Error"))
			fmt.Println("Usage: capy comptime <file.capy>")
			os.Exit(1)
		}
		comptimeFile(flag.Arg(1), *jsonFlag)

	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", red("Error"), command)
		printHelp()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("capy %s\n", bold(Version))
	if Commit != "unknown" {
		fmt.Printf("Commit: %s\n", Commit)
	}
	if BuildTime != "unknown" {
		fmt.Printf("Built:  %s\n", BuildTime)
	}
}

func printHelp() {
	fmt.Println(bold("capy - the Capy systems language compiler"))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  capy <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s <file>   Compile a file to a standalone wasm module\n", cyan("build"))
	fmt.Printf("  %s <file>     JIT-compile and run a file, exiting with main's return value\n", cyan("run"))
	fmt.Printf("  %s <file>   Type-check a file without generating code\n", cyan("check"))
	fmt.Printf("  %s <file>   Evaluate and print a file's top-level comptime block\n", cyan("comptime"))
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --version   Print version information")
	fmt.Println("  --help      Show this help message")
	fmt.Println("  -o <path>   Output path for build (default: input with .wasm extension)")
	fmt.Println("  -v <n>      Verbosity: 0=silent, 1=local functions, 2=every function")
	fmt.Println("  -json       Report diagnostics as JSON (one per line)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s              # run a program\n", cyan("capy run main.capy"))
	fmt.Printf("  %s -o out.wasm  # build to a named object\n", cyan("capy build main.capy"))
}

// runPipeline is everything shared by build/run/check up through lowering:
// parse, index, lower, and assemble a one-file World plus a wired
// Inference/comptime.Cache pair ready for either type-checking alone or
// full codegen. entry is the interned `main` fqn the caller asked to
// compile into.
func runPipeline(path string, jsonOut bool) (world *types.World, interner *intern.Interner, entry intern.Fqn, inf *types.Inference, cache *comptime.Cache, ok bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		reportGeneric("read", err, jsonOut)
		os.Exit(1)
	}
	if !strings.HasSuffix(path, ".capy") {
		fmt.Fprintf(os.Stderr, "%s: file must have .capy extension\n", yellow("Warning"))
	}

	p := syntax.NewParser(string(content))
	file := p.ParseFile()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			reportParserError(e, jsonOut)
		}
		os.Exit(1)
	}

	interner = intern.New()
	uidGen := intern.NewUIDGenerator()
	fileName := interner.InternFileName(canonical(path))

	idx, idxDiags := index.Build(file)
	good := reportIndexDiags(idxDiags, jsonOut)

	bodies, hirDiags := hir.Lower(file, canonical(path), idx, uidGen, interner, hir.Options{})
	good = reportHirDiags(hirDiags, jsonOut) && good
	if !good {
		os.Exit(1)
	}

	world = &types.World{
		Bodies:   map[intern.FileName]*hir.Bodies{fileName: bodies},
		Index:    map[intern.FileName]*index.Index{fileName: idx},
		Interner: interner,
	}
	entry = intern.Fqn{File: fileName, Name: interner.InternName("main")}
	_, cache, inf = codegen.NewJIT(world, interner)

	return world, interner, entry, inf, cache, true
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func checkFile(path string, jsonOut bool) {
	_, _, entry, inf, _, ok := runPipeline(path, jsonOut)
	if !ok {
		os.Exit(1)
	}
	inf.Infer(entry)
	if len(inf.Diags) > 0 {
		for _, d := range inf.Diags {
			reportTypeDiag(d, jsonOut)
		}
		os.Exit(1)
	}
	fmt.Println(green("OK"))
}

func buildFile(path, out string, verbosity codegen.Verbosity, jsonOut bool) {
	world, interner, entry, inf, cache, ok := runPipeline(path, jsonOut)
	if !ok {
		os.Exit(1)
	}

	driver := codegen.NewDriver(world, inf, interner, cache, verbosity)
	module, err := driver.Compile(entry)
	if err != nil {
		reportGeneric("codegen", err, jsonOut)
		os.Exit(1)
	}

	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".wasm"
	}
	bytes, err := codegen.EmitObject(context.Background(), module)
	if err != nil {
		reportGeneric("codegen", err, jsonOut)
		os.Exit(1)
	}
	if err := os.WriteFile(out, bytes, 0o644); err != nil {
		reportGeneric("write", err, jsonOut)
		os.Exit(1)
	}
	fmt.Printf("%s %s\n", green("Wrote"), out)
}

// comptimeFile locates the first top-level global in path whose value is
// directly a `comptime { ... }` block, forces its evaluation by inferring
// that global (inference re-enters codegen's JIT the same way any other
// comptime reference would — spec §4.5/§9), and prints the materialized
// value. File-scope global order has no declared iteration order in
// internal/hir.Bodies, so this picks whichever comptime-valued global is
// encountered first; a file with more than one top-level comptime block
// has no way to pick a particular one from this subcommand alone.
func comptimeFile(path string, jsonOut bool) {
	world, _, entry, inf, cache, ok := runPipeline(path, jsonOut)
	if !ok {
		os.Exit(1)
	}

	bodies := world.Bodies[entry.File]
	var target intern.Fqn
	var ctm hir.ExprComptime
	found := false
	for name, valIdx := range bodies.GlobalValues {
		if n, isComptime := bodies.Exprs.Get(valIdx).(hir.ExprComptime); isComptime {
			target = intern.Fqn{File: entry.File, Name: name}
			ctm = n
			found = true
			break
		}
	}
	if !found {
		fmt.Fprintf(os.Stderr, "%s: no top-level comptime block found in %s\n", red("Error"), path)
		os.Exit(1)
	}

	ty := inf.Infer(target)
	if len(inf.Diags) > 0 {
		for _, d := range inf.Diags {
			reportTypeDiag(d, jsonOut)
		}
		os.Exit(1)
	}

	res, ok := cache.Lookup(comptime.FQComptime{Fqn: target, Comptime: ctm.Comptime})
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: comptime block did not evaluate\n", red("Error"))
		os.Exit(1)
	}
	printComptimeValue(res, ty)
}

func printComptimeValue(res comptime.ComptimeResult, ty types.ResolvedTy) {
	switch ty.Kind {
	case types.Bool:
		fmt.Println(res.Value.Bool)
	case types.Float:
		fmt.Println(res.Value.Float)
	default:
		fmt.Println(res.Value.Int)
	}
}

func runFile(path string, verbosity codegen.Verbosity, jsonOut bool) {
	world, interner, entry, inf, cache, ok := runPipeline(path, jsonOut)
	if !ok {
		os.Exit(1)
	}

	driver := codegen.NewDriver(world, inf, interner, cache, verbosity)
	module, err := driver.Compile(entry)
	if err != nil {
		reportGeneric("codegen", err, jsonOut)
		os.Exit(1)
	}

	code, err := codegen.RunJIT(context.Background(), module)
	if err != nil {
		reportGeneric("run", err, jsonOut)
		os.Exit(1)
	}
	os.Exit(int(code))
}

// --- diagnostic reporting ---------------------------------------------

func reportGeneric(phase string, err error, jsonOut bool) {
	rep := diagnostics.NewGeneric(phase, err)
	emit(rep, jsonOut)
}

func reportParserError(msg string, jsonOut bool) {
	rep := diagnostics.New(capyerr.PAR001, "parse", msg, nil)
	emit(rep, jsonOut)
}

func reportIndexDiags(diags []index.Diagnostic, jsonOut bool) bool {
	fatal := false
	for _, d := range diags {
		code, msg := indexDiagText(d)
		r := d.Range
		rep := diagnostics.New(code, "index", msg, &r)
		// Only AlreadyDefined is fatal: the others (NonBindingAtRoot,
		// MissingTy, FunctionTy) are surfaced but don't block the
		// lower/infer passes from running, since the index itself is
		// still well-formed — reported as warnings rather than errors.
		if d.Kind == index.AlreadyDefined {
			fatal = true
		} else {
			rep.WithSeverity(diagnostics.SeverityWarning)
		}
		emit(rep, jsonOut)
	}
	return !fatal
}

func indexDiagText(d index.Diagnostic) (string, string) {
	switch d.Kind {
	case index.NonBindingAtRoot:
		return "IDX002", fmt.Sprintf("%q is declared mutable at file scope; top-level bindings must be immutable", d.Name)
	case index.AlreadyDefined:
		return capyerr.IDX001, fmt.Sprintf("%q is already defined in this file", d.Name)
	case index.MissingTy:
		return "IDX003", fmt.Sprintf("%q has no declared type and its value is not a function literal", d.Name)
	case index.FunctionTy:
		return "IDX004", fmt.Sprintf("%q is a function literal and must not have an explicit type annotation", d.Name)
	default:
		return "IDX000", fmt.Sprintf("%q: unrecognized indexing error", d.Name)
	}
}

func reportHirDiags(diags []hir.Diagnostic, jsonOut bool) bool {
	for _, d := range diags {
		msg := hirDiagText(d)
		r := d.Range
		rep := diagnostics.New(capyerr.LOW001, "lower", msg, &r)
		emit(rep, jsonOut)
	}
	return len(diags) == 0
}

func hirDiagText(d hir.Diagnostic) string {
	switch d.Kind {
	case hir.OutOfRangeIntLiteral:
		return "integer literal out of range for its type"
	case hir.UndefinedRef:
		return fmt.Sprintf("undefined reference to %q", d.Name)
	case hir.NonGlobalExtern:
		return "extern lambdas must be file-scope declarations"
	case hir.ArraySizeNotConst:
		return "array size must be a compile-time constant"
	case hir.ArraySizeMismatch:
		return fmt.Sprintf("array literal has %d elements, expected %d", d.Found, d.Expected)
	case hir.InvalidEscape:
		return "invalid escape sequence"
	case hir.TooManyCharsInCharLiteral:
		return "char literal must contain exactly one byte"
	case hir.EmptyCharLiteral:
		return "char literal must not be empty"
	case hir.NonU8CharLiteral:
		return "char literal must be a single byte (code point 0-255)"
	case hir.ImportMustEndInDotCapy:
		return "import path must end in .capy"
	case hir.ImportDoesNotExist:
		return fmt.Sprintf("import path %q does not exist", d.File)
	default:
		return "unrecognized lowering error"
	}
}

func reportTypeDiag(d types.Diagnostic, jsonOut bool) {
	msg := typeDiagText(d)
	r := d.Range
	rep := diagnostics.New(d.Kind.Code(), "typecheck", msg, &r)
	emit(rep, jsonOut)
}

func typeDiagText(d types.Diagnostic) string {
	switch d.Kind {
	case types.Mismatch:
		return fmt.Sprintf("type mismatch: expected %s, found %s", d.Expected, d.Found)
	case types.Uncastable:
		return fmt.Sprintf("cannot cast %s to %s", d.Found, d.Expected)
	case types.OpMismatch:
		return fmt.Sprintf("operator %s is not defined for %s", d.Op, d.Found)
	case types.IfMismatch:
		return fmt.Sprintf("branches disagree: %s vs %s", d.Expected, d.Found)
	case types.IndexMismatch:
		return fmt.Sprintf("cannot index into %s", d.Found)
	case types.DerefMismatch:
		return fmt.Sprintf("cannot dereference %s", d.Found)
	case types.MissingElse:
		return fmt.Sprintf("if without else produces %s but is used as a value", d.Expected)
	case types.Undefined:
		return fmt.Sprintf("undefined name %q", d.Name)
	case types.Cycle:
		return "a global's type depends on itself"
	case types.DuplicateField:
		return fmt.Sprintf("duplicate field %q in struct literal", d.Name)
	default:
		return "unrecognized type error"
	}
}

func emit(rep *diagnostics.Report, jsonOut bool) {
	if jsonOut {
		s, err := rep.ToJSON(true)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Println(s)
		return
	}
	loc := ""
	if rep.Range != nil {
		loc = fmt.Sprintf("%d:%d: ", rep.Range.Start.Line, rep.Range.Start.Column)
	}
	label := red(rep.Code)
	if rep.Severity == diagnostics.SeverityWarning {
		label = yellow(rep.Code)
	}
	fmt.Fprintf(os.Stderr, "%s %s%s [%s]\n", label, loc, rep.Message, rep.Phase)
}
