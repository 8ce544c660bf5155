package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/irverify/pkg/ir"
	"github.com/xplshn/irverify/pkg/parser"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--color", "never"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVerifiedProgram(t *testing.T) {
	code, stdout, stderr := runCLI(t, "testdata/ok.ir")
	assert.Equal(t, exitOK, code)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func TestReportsEveryError(t *testing.T) {
	code, stdout, stderr := runCLI(t, "testdata/bad.ir")
	require.Equal(t, exitFailed, code)
	assert.Empty(t, stdout)

	want := `testdata/bad.ir:4:5: error: function "get" has a storage attribute that does not match its behaviour; expected storage(reads)
      fn get(k) storage(writes) {
      ^~
testdata/bad.ir:14:5: error: block "body" is missing its terminator
      body:
      ^~~~
testdata/bad.ir:16:5: error: block "exit" has a terminator before its last instruction
      exit:
      ^~~~
3 errors, 0 warnings
`
	if diff := cmp.Diff(want, stderr); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
}

func TestMaxErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "--max-errors", "1", "testdata/bad.ir")
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "irverify: 2 more errors not shown\n3 errors, 0 warnings\n")
	assert.NotContains(t, stderr, `block "body"`)
}

func TestSyntaxError(t *testing.T) {
	code, _, stderr := runCLI(t, "testdata/ok.ir", "testdata/syntax.ir")
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "testdata/syntax.ir:5:13: error: unknown opcode 'frob'\n          x = frob 1\n              ^~~~\n")
}

func TestMissingFile(t *testing.T) {
	code, _, stderr := runCLI(t, "testdata/nope.ir")
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "irverify: error: could not read 'testdata/nope.ir'")
}

func TestOrphanWarning(t *testing.T) {
	code, _, stderr := runCLI(t, "-Worphan-block", "testdata/ok.ir")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stderr, `testdata/ok.ir:23:5: warning: block "spare" in function "twice" is an unreferenced placeholder and was not checked [-Worphan-block]`)
	assert.Contains(t, stderr, "0 errors, 1 warning\n")

	_, _, stderr = runCLI(t, "-Wall", "-Wno-orphan-block", "testdata/ok.ir")
	assert.Empty(t, stderr)
}

func TestDumpAndFingerprint(t *testing.T) {
	src, err := os.ReadFile("testdata/plain.ir")
	require.NoError(t, err)
	ctx := ir.NewContext()
	require.NoError(t, parser.ParseSource(ctx, "testdata/plain.ir", []rune(string(src)), 0, nil))

	code, stdout, _ := runCLI(t, "-d", "testdata/plain.ir")
	require.Equal(t, exitOK, code)
	assert.Equal(t, ir.Print(ctx), stdout)

	code, stdout, _ = runCLI(t, "--fingerprint", "testdata/plain.ir")
	require.Equal(t, exitOK, code)
	assert.Regexp(t, `^[0-9a-f]{16}\n$`, stdout)

	_, again, _ := runCLI(t, "--fingerprint", "testdata/plain.ir")
	assert.Equal(t, stdout, again)
}

func TestEmitQBE(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sq.ssa")
	code, stdout, stderr := runCLI(t, "-e", "qbe", "-t", "amd64_sysv", "-o", out, "testdata/plain.ir")
	require.Equal(t, exitOK, code, stderr)
	assert.Empty(t, stdout)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "\nexport function l $sq(l %x) {\n@entry\n\t%y =l mul %x, %x\n\tret %y\n}\n", string(got))
}

func TestEmitRefusesInlineAsm(t *testing.T) {
	code, _, stderr := runCLI(t, "--emit=qbe", "testdata/ok.ir")
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, `irverify: error: QBE generation failed: function "bump": inline assembly cannot be lowered to QBE`)
}

func TestConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "irverify.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ir-version: \">= 1.0\"\nwarnings:\n  orphan-block: true\n"), 0o644))

	code, _, stderr := runCLI(t, "testdata/newer.ir")
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "IR version 2.0.0 is not supported")

	code, _, stderr = runCLI(t, "-c", cfgPath, "testdata/newer.ir")
	require.Equal(t, exitOK, code, stderr)

	code, _, stderr = runCLI(t, "--config", cfgPath, "testdata/ok.ir")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "[-Worphan-block]")
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "irverify: error: no input files specified\n")

	code, _, stderr = runCLI(t, "--bogus", "testdata/ok.ir")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage: irverify [options] <input.ir> ...")

	code, _, stderr = runCLI(t, "--emit", "elf", "testdata/ok.ir")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "invalid value 'elf'")

	code, stdout, _ := runCLI(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Warning Flags")
	assert.Contains(t, stdout, "orphan-block")
}

func TestListWarnings(t *testing.T) {
	code, stdout, _ := runCLI(t, "--list-warnings", "-Worphan-block", "-Wno-empty-asm")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "  - orphan-block        : true (")
	assert.Contains(t, stdout, "  - empty-function      : true (")
	assert.Contains(t, stdout, "  - empty-asm           : false (")
}

func TestBadColorMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--color", "sometimes", "testdata/ok.ir"}, &stdout, &stderr)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr.String(), "invalid color mode 'sometimes'")
}
