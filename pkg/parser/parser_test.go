package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/irverify/pkg/ir"
)

const sample = `// storage helpers
ir 1.0

module kv {
    fn get(k) storage(reads) {
    entry:
        asm(k) {
            srw v, k
        }
        ret v
    }

    fn put(k, v) storage(writes) {
    entry:
        c = eq k, 0
        cbr c, skip, write
    write:
        asm(k, v) { sww k, v; swwq k, v, 1 }
        br skip
    skip:
        ret
    }
}

module main {
    fn main() {
    start:
        p = alloc
        store p, 7
        x = load p
        y = call get(x)
        call put(x, y)
        nop
        unreachable
    dead:
        z = phi
    }
}
`

func parse(t *testing.T, src string) (*ir.Context, error) {
	t.Helper()
	ctx := ir.NewContext()
	err := ParseSource(ctx, "test.ir", []rune(src), 0, nil)
	return ctx, err
}

func TestParseSample(t *testing.T) {
	ctx, err := parse(t, sample)
	require.NoError(t, err)

	mods := ctx.Modules()
	require.Len(t, mods, 2)
	kv := ctx.Module(mods[0])
	require.Equal(t, "kv", kv.Name)
	require.Len(t, kv.Functions, 2)

	put := ctx.Function(kv.Functions[1])
	require.Equal(t, "put", put.Name)
	require.Equal(t, []string{"k", "v"}, put.Params)
	op, ok := ctx.StorageAttribute(kv.Functions[1])
	require.True(t, ok)
	require.Equal(t, ir.Writes, op)
	require.Equal(t, ir.Span{File: "test.ir", Line: 13, Column: 5, Len: 2}, ctx.FunctionSpan(kv.Functions[1]))

	labels := make([]string, len(put.Blocks))
	for i, b := range put.Blocks {
		labels[i] = ctx.Block(b).Label
	}
	require.Equal(t, []string{"entry", "write", "skip"}, labels)
	require.Equal(t, 2, ctx.NumPredecessors(kv.Functions[1], put.Blocks[2]))

	write := ctx.Block(put.Blocks[1])
	asm, ok := ctx.Instruction(write.Instructions[0]).(*ir.InlineAsm)
	require.True(t, ok)
	want := []ir.AsmOp{{Name: "sww", Args: []string{"k", "v"}}, {Name: "swwq", Args: []string{"k", "v", "1"}}}
	if diff := cmp.Diff(want, ctx.AsmBlock(asm.Body).Body); diff != "" {
		t.Fatalf("asm body (-want +got):\n%s", diff)
	}

	main := ctx.Function(ctx.Module(mods[1]).Functions[0])
	start := ctx.Block(main.Blocks[0])
	call, ok := ctx.Instruction(start.Instructions[3]).(*ir.Op)
	require.True(t, ok)
	require.Equal(t, &ir.Op{Result: "y", Opcode: ir.OpCall, Callee: "get", Args: []ir.Value{ir.Temp("x")}}, call)
	st := ctx.Instruction(start.Instructions[1]).(*ir.Op)
	require.Equal(t, []ir.Value{ir.Temp("p"), ir.Const(7)}, st.Args)
}

func TestPrintRoundTrip(t *testing.T) {
	ctx, err := parse(t, sample)
	require.NoError(t, err)
	printed := ir.Print(ctx)

	again, err := parse(t, printed)
	require.NoError(t, err)
	if diff := cmp.Diff(printed, ir.Print(again)); diff != "" {
		t.Fatalf("round trip (-first +second):\n%s", diff)
	}
	require.Contains(t, printed, "        asm(k, v) {\n            sww k, v\n            swwq k, v, 1\n        }\n")
}

func TestSyntaxErrors(t *testing.T) {
	wrap := func(body string) string {
		return "ir 1.0\nmodule m {\n fn f() {\n" + body + "\n }\n}\n"
	}
	cases := []struct {
		name, src, msg string
		line, col      int
	}{
		{"missing header", "module m {}", "expected 'ir' at start of file, found 'module'", 1, 1},
		{"bad version", "ir 2.1\n", "IR version 2.1.0 is not supported", 1, 4},
		{"undefined label", wrap("entry:\n br nowhere"), "undefined block label 'nowhere' in function 'f'", 5, 5},
		{"duplicate label", wrap("a:\n ret\na:\n ret"), "block label 'a' defined twice", 6, 1},
		{"no block", wrap(" ret"), "instruction before the first block label", 4, 2},
		{"unknown opcode", wrap("a:\n x = frob 1"), "unknown opcode 'frob'", 5, 6},
		{"bad storage", "ir 1.0\nmodule m { fn f() storage(all) { a: ret } }", "unknown storage operation 'all'", 2, 27},
		{"trailing junk", wrap("a:\n ret x y"), "unexpected identifier 'y' after instruction", 5, 8},
		{"illegal char", wrap("a:\n x = add 1, @"), "expected value, found illegal character '@'", 5, 13},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parse(t, c.src)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %v", err)
			require.True(t, strings.Contains(se.Msg, c.msg), "message %q does not contain %q", se.Msg, c.msg)
			require.Equal(t, c.line, se.Tok.Line, "line")
			require.Equal(t, c.col, se.Tok.Column, "column")
			require.Equal(t, "test.ir", se.Span().File)
		})
	}
}

func TestVersionConstraint(t *testing.T) {
	c, err := semver.NewConstraint(">= 1.2, < 3")
	require.NoError(t, err)

	ctx := ir.NewContext()
	require.NoError(t, ParseSource(ctx, "a.ir", []rune("ir 2.0\n"), 0, c))
	require.Error(t, ParseSource(ctx, "b.ir", []rune("ir 1.0\n"), 1, c))
}

func TestMultipleFilesShareContext(t *testing.T) {
	ctx := ir.NewContext()
	require.NoError(t, ParseSource(ctx, "a.ir", []rune("ir 1.0\nmodule a { fn f() { e: ret } }"), 0, nil))
	require.NoError(t, ParseSource(ctx, "b.ir", []rune("ir 1.0\nmodule b { fn f() { e: ret } }"), 1, nil))
	mods := ctx.Modules()
	require.Len(t, mods, 2)
	require.Equal(t, "b.ir", ctx.FunctionSpan(ctx.Module(mods[1]).Functions[0]).File)
}
