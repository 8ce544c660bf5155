// Command irgolden runs irverify over a corpus of .ir files and compares its
// exit code and output against golden files stored next to each input.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/xplshn/irverify/pkg/cli"
)

type Execution struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Golden is the recorded behaviour of irverify on one source file.
type Golden struct {
	SourceHash string    `json:"source_hash"`
	Args       []string  `json:"args,omitempty"`
	Result     Execution `json:"result"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Duration time.Duration `json:"duration"`
}

type options struct {
	binary   string
	args     string
	files    string
	generate bool
	report   string
	timeout  time.Duration
	jobs     int
	verbose  bool
}

var (
	cRed    = color.New(color.FgHiRed)
	cYellow = color.New(color.FgHiYellow)
	cGreen  = color.New(color.FgHiGreen)
	cCyan   = color.New(color.FgHiCyan)
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	app := cli.NewApp("irgolden")
	app.Synopsis = "[options]"
	app.Description = "Golden-file conformance runner for irverify."
	app.Stdout, app.Stderr = stdout, stderr

	var opts options
	var timeout string
	fs := app.FlagSet
	fs.String(&opts.binary, "binary", "b", "./irverify", "Path to the irverify binary under test.", "path")
	fs.String(&opts.args, "args", "a", "--color never", "Extra arguments passed before each file (space-separated).", "args")
	fs.String(&opts.files, "files", "f", "tests/*.ir", "Glob pattern(s) for files to test (space-separated).", "glob")
	fs.Bool(&opts.generate, "generate-golden", "g", false, "Record golden files instead of comparing against them.")
	fs.String(&opts.report, "report", "r", "", "Write a JSON report to <file>.", "file")
	fs.String(&timeout, "timeout", "", "5s", "Timeout for each irverify run.", "duration")
	fs.Int(&opts.jobs, "jobs", "j", 4, "Number of parallel jobs.")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Also list passing files.")

	status := 0
	app.Action = func([]string) error {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return errors.Wrap(err, "invalid --timeout")
		}
		opts.timeout = d
		opts.jobs = max(opts.jobs, 1)
		// Each run happens in the directory of its input file.
		if strings.ContainsRune(opts.binary, filepath.Separator) {
			if opts.binary, err = filepath.Abs(opts.binary); err != nil {
				return err
			}
		}

		files, err := expandGlobPatterns(opts.files)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(stdout, "No test files found matching the pattern(s).")
			return nil
		}

		results := runSuite(&opts, files)
		printSummary(stdout, results, opts.verbose)
		if opts.report != "" {
			if err := writeJSONReport(opts.report, results); err != nil {
				return err
			}
		}
		if hasFailures(results) {
			status = 1
		}
		return nil
	}

	if err := app.Run(args); err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s %v\n", cRed.Sprint("[ERROR]"), err)
		return 2
	}
	return status
}

// goldenPath names the golden file of a source file: a hidden .json beside it.
func goldenPath(sourceFile string) string {
	return filepath.Join(filepath.Dir(sourceFile), "."+filepath.Base(sourceFile)+".json")
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func runSuite(opts *options, files []string) []*FileTestResult {
	tasks := make(chan string)
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for range opts.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(opts, file)
			}
		}()
	}
	for _, file := range files {
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(resultsChan)

	var results []*FileTestResult
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results
}

func testFile(opts *options, file string) *FileTestResult {
	hash, err := hashFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to hash source file: %v", err)}
	}
	args := append(strings.Fields(opts.args), filepath.Base(file))

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	start := time.Now()
	got := executeCommand(ctx, filepath.Dir(file), opts.binary, args...)
	elapsed := time.Since(start)

	if opts.generate {
		return writeGolden(file, Golden{SourceHash: hash, Args: args, Result: got}, elapsed)
	}

	data, err := os.ReadFile(goldenPath(file))
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No golden file; run with --generate-golden", Duration: elapsed}
	} else if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	var want Golden
	if err := json.Unmarshal(data, &want); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file: %v", err)}
	}

	result := compareExecutions(file, want.Result, got)
	result.Duration = elapsed
	if result.Status == "FAIL" && want.SourceHash != hash {
		result.Message += " (source changed since the golden file was recorded)"
	}
	if !slices.Equal(want.Args, args) {
		result.Status = "FAIL"
		if result.Message == "" {
			result.Message = "Output matches golden file"
		}
		result.Message += fmt.Sprintf(" (recorded with arguments %q, run with %q)", want.Args, args)
	}
	return result
}

func writeGolden(file string, g Golden, elapsed time.Duration) *FileTestResult {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	if err := os.WriteFile(goldenPath(file), append(data, '\n'), 0o644); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Golden file recorded", Duration: elapsed}
}

func compareExecutions(file string, want, got Execution) *FileTestResult {
	if got.TimedOut {
		return &FileTestResult{File: file, Status: "FAIL", Message: "irverify timed out"}
	}
	var diffs strings.Builder
	if want.ExitCode != got.ExitCode {
		fmt.Fprintf(&diffs, "exit code: want %d, got %d\n", want.ExitCode, got.ExitCode)
	}
	if d := cmp.Diff(want.Stdout, got.Stdout); d != "" {
		fmt.Fprintf(&diffs, "STDOUT mismatch:\n%s", d)
	}
	if d := cmp.Diff(want.Stderr, got.Stderr); d != "" {
		fmt.Fprintf(&diffs, "STDERR mismatch:\n%s", d)
	}
	if diffs.Len() > 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output differs from golden file", Diff: diffs.String()}
	}
	return &FileTestResult{File: file, Status: "PASS"}
}

// executeCommand runs command in dir. Exit code -1 means it timed out and
// -2 that it could not be started.
func executeCommand(ctx context.Context, dir, command string, args ...string) Execution {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err := cmd.Run()
	res := Execution{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.TimedOut, res.ExitCode = true, -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nExecution error: " + err.Error()
	}
	return res
}

func printSummary(w io.Writer, results []*FileTestResult, verbose bool) {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Status]++
		switch r.Status {
		case "PASS":
			if verbose {
				fmt.Fprintf(w, "%s %s %s\n", cGreen.Sprint("[PASS]"), r.File, formatDuration(r.Duration))
			}
		case "SKIP":
			fmt.Fprintf(w, "%s %s: %s\n", cYellow.Sprint("[SKIP]"), r.File, r.Message)
		default:
			fmt.Fprintf(w, "%s %s: %s\n", cRed.Sprintf("[%s]", r.Status), r.File, r.Message)
			fmt.Fprint(w, formatDiff(r.Diff))
		}
	}
	fmt.Fprintf(w, "%s %d passed, %d failed, %d skipped, %d errors\n", cCyan.Sprint("[SUMMARY]"),
		counts["PASS"], counts["FAIL"], counts["SKIP"], counts["ERROR"])
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch trimmed := strings.TrimSpace(line); {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString(cRed.Sprint("    " + line))
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString(cGreen.Sprint("    " + line))
		default:
			sb.WriteString("    " + line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeJSONReport(path string, results []*FileTestResult) error {
	byFile := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		byFile[r.File] = r
	}
	data, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "could not write report")
}

func hasFailures(results []*FileTestResult) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				files = append(files, abs)
				seen[abs] = true
			}
		}
	}
	return files, nil
}
