package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/pkg/errors"

	"github.com/xplshn/irverify/pkg/cli"
	"github.com/xplshn/irverify/pkg/codegen"
	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/diag"
	"github.com/xplshn/irverify/pkg/ir"
	"github.com/xplshn/irverify/pkg/parser"
	"github.com/xplshn/irverify/pkg/verify"
	"github.com/xplshn/irverify/pkg/watch"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	outFile     string
	emit        string
	target      string
	configFile  string
	color       string
	maxErrors   int
	dumpIR      bool
	fingerprint bool
	watch       bool
	wall        bool
	wnoall      bool
	listWarn    bool
}

func run(args []string, stdout, stderr io.Writer) int {
	app := cli.NewApp("irverify")
	app.Synopsis = "[options] <input.ir> ..."
	app.Description = "Checks that every block of an IR program is properly terminated and that every function's storage attribute matches what its inline assembly does. Verified programs can be lowered through QBE."
	app.Repository = "<https://github.com/xplshn/irverify>"
	app.Stdout, app.Stderr = stdout, stderr

	var opts options
	fs := app.FlagSet
	fs.String(&opts.outFile, "output", "o", "", "Write --emit, --dump-ir and --fingerprint output to <file> instead of stdout.", "file")
	fs.Choice(&opts.emit, "emit", "e", "none", "What to produce after successful verification.", "none", "qbe", "asm")
	fs.String(&opts.target, "target", "t", "", "QBE target for --emit (defaults to the host's).", "target")
	fs.String(&opts.configFile, "config", "c", "", "Read settings from <file> (default: ./"+config.DefaultFile+" if present).", "file")
	fs.String(&opts.color, "color", "", "", "Color diagnostics: auto, always or never.", "when")
	fs.Int(&opts.maxErrors, "max-errors", "", 0, "Print at most n errors (0 keeps the configured limit).")
	fs.Bool(&opts.dumpIR, "dump-ir", "d", false, "Print the verified IR.")
	fs.Bool(&opts.fingerprint, "fingerprint", "", false, "Print the fingerprint of the verified IR.")
	fs.Bool(&opts.watch, "watch", "w", false, "Verify again whenever an input file changes.")
	fs.Bool(&opts.wall, "Wall", "", false, "Enable all warnings.")
	fs.Bool(&opts.wnoall, "Wno-all", "", false, "Disable all warnings.")
	fs.Bool(&opts.listWarn, "list-warnings", "", false, "List the warnings and whether they are enabled, then exit.")

	cfg := config.NewConfig()
	warningFlags := cfg.SetupFlagGroups(fs)

	status := exitOK
	app.Action = func(inputFiles []string) error {
		if opts.listWarn {
			if err := configure(cfg, &opts, warningFlags); err != nil {
				return err
			}
			fmt.Fprint(stdout, cfg.Describe())
			return nil
		}
		if len(inputFiles) == 0 {
			return usageError{errors.New("no input files specified")}
		}
		if err := configure(cfg, &opts, warningFlags); err != nil {
			return err
		}
		ctx := context.Background()
		if opts.watch {
			var stop context.CancelFunc
			ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
		}
		status = watchLoop(ctx, cfg, &opts, inputFiles, stdout, stderr)
		return nil
	}

	err := app.Run(args)
	var usage usageError
	switch {
	case err == nil:
		return status
	case errors.Is(err, cli.ErrHelp):
		return exitOK
	case errors.As(err, &usage):
		fmt.Fprintf(stderr, "irverify: error: %v\n", usage.error)
		return exitUsage
	case errors.As(err, new(*cli.ParseError)):
		return exitUsage
	}
	fmt.Fprintf(stderr, "irverify: error: %v\n", err)
	return exitFailed
}

// usageError is a command line that parsed but cannot be acted on.
type usageError struct{ error }

// configure layers the configuration file and then the command line over
// the defaults.
func configure(cfg *config.Config, opts *options, warningFlags []cli.FlagGroupEntry) error {
	path := opts.configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	target := opts.target
	if path != "" {
		fileTarget, err := cfg.LoadFile(path)
		if err != nil {
			return err
		}
		if target == "" {
			target = fileTarget
		}
	}

	cfg.ApplyFlagGroups(warningFlags, opts.wall, opts.wnoall)
	if opts.color != "" {
		cfg.Color = opts.color
	}
	if opts.maxErrors > 0 {
		cfg.MaxErrors = opts.maxErrors
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.emit != "none" || target != "" {
		if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
			return err
		}
	}
	return nil
}

func watchLoop(ctx context.Context, cfg *config.Config, opts *options, inputFiles []string, stdout, stderr io.Writer) int {
	status := verifyFiles(cfg, opts, inputFiles, stdout, stderr)
	if !opts.watch {
		return status
	}

	w, err := watch.New(inputFiles...)
	if err != nil {
		fmt.Fprintf(stderr, "irverify: error: %v\n", err)
		return exitFailed
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return status
		case err := <-w.Errors():
			fmt.Fprintf(stderr, "irverify: error: %v\n", err)
		case name, ok := <-w.Events():
			if !ok {
				return status
			}
			diag.NewReporter(stderr, nil, cfg).Info("'%s' changed, verifying again", name)
			status = verifyFiles(cfg, opts, inputFiles, stdout, stderr)
		}
	}
}

// verifyFiles reads every input into one fresh Context, verifies it and
// produces the requested output. It returns the process exit status.
func verifyFiles(cfg *config.Config, opts *options, inputFiles []string, stdout, stderr io.Writer) int {
	records, readErrs := readFiles(inputFiles)
	r := diag.NewReporter(stderr, records, cfg)
	for _, err := range readErrs {
		r.Report(err)
	}
	if len(readErrs) > 0 {
		r.Summary()
		return exitFailed
	}

	constraint, err := cfg.Constraint()
	if err != nil {
		r.Report(err)
		return exitFailed
	}

	ctx := ir.NewContext()
	for i, rec := range records {
		r.Report(parser.ParseSource(ctx, rec.Name, rec.Content, i, constraint))
	}
	if r.ErrorCount() > 0 {
		r.Summary()
		return exitFailed
	}

	lint(ctx, r)
	verified, err := verify.Verify(ctx, verify.WithOrphanHandler(func(fn ir.FunctionID, b ir.BlockID) {
		r.Warn(config.WarnOrphanBlock, ctx.BlockSpan(b), "block %q in function %q is an unreferenced placeholder and was not checked",
			ctx.Block(b).Label, ctx.Function(fn).Name)
	}))
	if err != nil {
		r.Report(err)
		r.Summary()
		return exitFailed
	}

	if err := produce(verified, cfg, opts, stdout); err != nil {
		r.Report(err)
		r.Summary()
		return exitFailed
	}
	r.Summary()
	return exitOK
}

// lint reports the configurable warnings that verification itself does not
// treat as errors.
func lint(ctx *ir.Context, r *diag.Reporter) {
	for _, m := range ctx.Modules() {
		for _, fn := range ctx.Module(m).Functions {
			f := ctx.Function(fn)
			if len(f.Blocks) == 0 {
				r.Warn(config.WarnEmptyFunction, ctx.FunctionSpan(fn), "function %q has no blocks", f.Name)
			}
			for b, ins := range ctx.FunctionInstructions(fn) {
				asm, ok := ctx.Instruction(ins).(*ir.InlineAsm)
				if ok && ctx.HasAsmBlock(asm.Body) && len(ctx.AsmBlock(asm.Body).Body) == 0 {
					r.Warn(config.WarnEmptyAsm, ctx.BlockSpan(b), "empty asm body in block %q of function %q", ctx.Block(b).Label, f.Name)
				}
			}
		}
	}
}

func produce(ctx *ir.Context, cfg *config.Config, opts *options, stdout io.Writer) (err error) {
	if !opts.dumpIR && !opts.fingerprint && opts.emit == "none" {
		return nil
	}

	out := stdout
	if opts.outFile != "" {
		f, err := os.Create(opts.outFile)
		if err != nil {
			return errors.Wrap(err, "could not create output file")
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}

	if opts.dumpIR {
		io.WriteString(out, ir.Print(ctx))
	}
	if opts.fingerprint {
		fmt.Fprintf(out, "%016x\n", ctx.Fingerprint())
	}

	backend := codegen.NewQBEBackend()
	switch opts.emit {
	case "qbe":
		qbeIR, err := backend.GenerateIR(ctx, cfg)
		if err != nil {
			return errors.Wrap(err, "QBE generation failed")
		}
		io.WriteString(out, qbeIR)
	case "asm":
		asm, err := backend.Generate(ctx, cfg)
		if err != nil {
			return errors.Wrap(err, "code generation failed")
		}
		if _, err := asm.WriteTo(out); err != nil {
			return err
		}
	}
	return nil
}

func readFiles(paths []string) ([]diag.SourceFileRecord, []error) {
	var records []diag.SourceFileRecord
	var errs []error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "could not read '%s'", p))
			continue
		}
		records = append(records, diag.SourceFileRecord{Name: p, Content: []rune(string(data))})
	}
	return records, errs
}
