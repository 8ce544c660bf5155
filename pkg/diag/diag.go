// Package diag renders verification results and syntax errors for people:
// a "file:line:col: severity:" header, the offending source line and a caret
// under the reported span.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
	"github.com/xplshn/irverify/pkg/parser"
	"github.com/xplshn/irverify/pkg/verify"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

type Reporter struct {
	out   io.Writer
	files map[string][]rune
	cfg   *config.Config

	errCol, warnCol, infoCol, caretCol *color.Color

	errors   int
	warnings int
	dropped  int
}

func NewReporter(out io.Writer, files []SourceFileRecord, cfg *config.Config) *Reporter {
	r := &Reporter{
		out:      out,
		files:    make(map[string][]rune, len(files)),
		cfg:      cfg,
		errCol:   color.New(color.FgRed, color.Bold),
		warnCol:  color.New(color.FgYellow, color.Bold),
		infoCol:  color.New(color.FgCyan),
		caretCol: color.New(color.FgGreen),
	}
	for _, f := range files {
		r.files[f.Name] = f.Content
	}
	switch cfg.Color {
	case "always":
		r.SetColor(true)
	case "never":
		r.SetColor(false)
	}
	return r
}

// SetColor forces colored output on or off, overriding terminal detection.
func (r *Reporter) SetColor(on bool) {
	for _, c := range []*color.Color{r.errCol, r.warnCol, r.infoCol, r.caretCol} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (r *Reporter) ErrorCount() int   { return r.errors }
func (r *Reporter) WarningCount() int { return r.warnings }

func (r *Reporter) Error(span ir.Span, format string, args ...any) {
	if r.count() {
		r.emit(span, r.errCol.Sprint("error:"), fmt.Sprintf(format, args...))
	}
}

// count records an error and reports whether it is still within MaxErrors.
func (r *Reporter) count() bool {
	r.errors++
	if r.cfg.MaxErrors > 0 && r.errors > r.cfg.MaxErrors {
		r.dropped++
		return false
	}
	return true
}

// Warn prints a warning if wt is enabled in the configuration.
func (r *Reporter) Warn(wt config.Warning, span ir.Span, format string, args ...any) {
	if !r.cfg.IsWarningEnabled(wt) {
		return
	}
	r.warnings++
	msg := fmt.Sprintf(format, args...) + fmt.Sprintf(" [-W%s]", r.cfg.Warnings[wt].Name)
	r.emit(span, r.warnCol.Sprint("warning:"), msg)
}

func (r *Reporter) Info(format string, args ...any) {
	fmt.Fprintf(r.out, "irverify: %s %s\n", r.infoCol.Sprint("info:"), fmt.Sprintf(format, args...))
}

// Report prints every error err carries. verify.Errors is expanded, and
// known error types are placed at their source location.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	var list verify.Errors
	if errors.As(err, &list) {
		for _, e := range list {
			r.Report(e)
		}
		return
	}

	var ve *verify.Error
	var ie *verify.InstructionError
	var se *parser.SyntaxError
	switch {
	case errors.As(err, &ve):
		r.Error(ve.Span, "%s", ve.Error())
	case errors.As(err, &ie):
		r.Error(ie.Span, "%s", ie.Error())
	case errors.As(err, &se):
		r.Error(se.Span(), "%s", se.Msg)
	default:
		if !r.count() {
			return
		}
		fmt.Fprintf(r.out, "irverify: %s %v\n", r.errCol.Sprint("error:"), err)
	}
}

// Summary prints the error and warning totals, if any.
func (r *Reporter) Summary() {
	if r.dropped > 0 {
		fmt.Fprintf(r.out, "irverify: %d more errors not shown\n", r.dropped)
	}
	if r.errors == 0 && r.warnings == 0 {
		return
	}
	fmt.Fprintf(r.out, "%s, %s\n", plural(r.errors, "error"), plural(r.warnings, "warning"))
}

func plural(n int, what string) string {
	if n == 1 {
		return "1 " + what
	}
	return fmt.Sprintf("%d %ss", n, what)
}

func (r *Reporter) emit(span ir.Span, severity, msg string) {
	if span.IsKnown() {
		fmt.Fprintf(r.out, "%s: %s %s\n", span, severity, msg)
		r.printSourceLine(span)
		return
	}
	fmt.Fprintf(r.out, "%s: %s %s\n", span.File, severity, msg)
}

// printSourceLine prints the source line and a caret indicating the span.
func (r *Reporter) printSourceLine(span ir.Span) {
	content, ok := r.files[span.File]
	if !ok {
		return
	}
	line, found := sourceLine(content, span.Line)
	if !found {
		return
	}
	fmt.Fprintf(r.out, "  %s\n", line)
	caret := "^"
	if span.Len > 1 {
		caret += strings.Repeat("~", span.Len-1)
	}
	fmt.Fprintf(r.out, "  %s%s\n", strings.Repeat(" ", max(span.Column-1, 0)), r.caretCol.Sprint(caret))
}

// sourceLine returns the 1-based line n of content without its newline.
func sourceLine(content []rune, n int) (string, bool) {
	start := 0
	for i, ch := range content {
		if n <= 1 {
			break
		}
		if ch == '\n' {
			n--
			start = i + 1
		}
	}
	if n > 1 {
		return "", false
	}
	end := start
	for end < len(content) && content[end] != '\n' {
		end++
	}
	return strings.TrimRight(string(content[start:end]), "\r"), true
}
