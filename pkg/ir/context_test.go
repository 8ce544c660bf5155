package ir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func diamond(t *testing.T) (*Context, FunctionID, [4]BlockID) {
	t.Helper()
	ctx := NewContext()
	m := ctx.NewModule("main")
	fn := ctx.NewFunction(m, "pick", []string{"c", "a", "b"})
	entry := ctx.AppendBlock(fn, "entry")
	left := ctx.AppendBlock(fn, "left")
	right := ctx.AppendBlock(fn, "right")
	exit := ctx.AppendBlock(fn, "exit")

	ctx.Append(entry, &CondBranch{Cond: Temp("c"), True: left, False: right})
	ctx.Append(left, &Op{Result: "x", Opcode: OpCopy, Args: []Value{Temp("a")}})
	ctx.Append(left, &Branch{Target: exit})
	ctx.Append(right, &Branch{Target: exit})
	ctx.Append(exit, &Ret{Value: Temp("x"), HasValue: true})
	return ctx, fn, [4]BlockID{entry, left, right, exit}
}

func TestNumPredecessors(t *testing.T) {
	ctx, fn, b := diamond(t)
	got := []int{
		ctx.NumPredecessors(fn, b[0]),
		ctx.NumPredecessors(fn, b[1]),
		ctx.NumPredecessors(fn, b[2]),
		ctx.NumPredecessors(fn, b[3]),
	}
	if diff := cmp.Diff([]int{0, 1, 1, 2}, got); diff != "" {
		t.Fatalf("predecessor counts (-want +got):\n%s", diff)
	}
}

func TestCondBranchToSameBlockIsOnePredecessor(t *testing.T) {
	ctx := NewContext()
	fn := ctx.NewFunction(ctx.NewModule("m"), "f", nil)
	entry := ctx.AppendBlock(fn, "entry")
	next := ctx.AppendBlock(fn, "next")
	ctx.Append(entry, &CondBranch{Cond: Const(1), True: next, False: next})
	require.Equal(t, 1, ctx.NumPredecessors(fn, next))
}

func TestFunctionInstructionsBlockOrder(t *testing.T) {
	ctx, fn, b := diamond(t)
	var blocks []BlockID
	var kinds []string
	for blk, id := range ctx.FunctionInstructions(fn) {
		blocks = append(blocks, blk)
		switch ctx.Instruction(id).(type) {
		case *CondBranch:
			kinds = append(kinds, "cbr")
		case *Op:
			kinds = append(kinds, "op")
		case *Branch:
			kinds = append(kinds, "br")
		case *Ret:
			kinds = append(kinds, "ret")
		}
	}
	require.Equal(t, []BlockID{b[0], b[1], b[1], b[2], b[3]}, blocks)
	require.Equal(t, []string{"cbr", "op", "br", "br", "ret"}, kinds)
}

func TestFunctionInstructionsStopsEarly(t *testing.T) {
	ctx, fn, _ := diamond(t)
	n := 0
	for range ctx.FunctionInstructions(fn) {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestMetadataResolution(t *testing.T) {
	ctx := NewContext()
	fn := ctx.NewFunction(ctx.NewModule("m"), "f", nil)

	_, ok := ctx.StorageAttribute(fn)
	require.False(t, ok)
	require.Equal(t, UnknownSpan, ctx.FunctionSpan(fn))

	ctx.SetStorage(fn, ReadsWrites)
	span := Span{File: "a.ir", Line: 3, Column: 5, Len: 2}
	ctx.SetFunctionSpan(fn, span)

	op, ok := ctx.StorageAttribute(fn)
	require.True(t, ok)
	require.Equal(t, ReadsWrites, op)
	require.Equal(t, span, ctx.FunctionSpan(fn))
	require.Equal(t, "a.ir:3:5", span.String())

	// A storage handle never resolves as a span.
	require.Equal(t, UnknownSpan, ctx.SpanOf(ctx.Function(fn).StorageMD))
}

func TestDanglingHandlePanics(t *testing.T) {
	ctx := NewContext()
	require.Panics(t, func() { ctx.Block(BlockID(7)) })
	require.Panics(t, func() { ctx.Function(0) })
}

func TestIsTerminator(t *testing.T) {
	cases := []struct {
		ins  Instruction
		want bool
	}{
		{&Op{Opcode: OpAdd}, false},
		{&InlineAsm{}, false},
		{&Branch{}, true},
		{&CondBranch{}, true},
		{&Ret{}, true},
		{&Unreachable{}, true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsTerminator(c.ins), "%T", c.ins)
	}
}

func TestOpcodeTable(t *testing.T) {
	for name, op := range OpcodeMap {
		require.Equal(t, name, op.String())
	}
	require.Equal(t, 2, OpAdd.Arity())
	require.Equal(t, 2, OpStore.Arity())
	require.Equal(t, 1, OpLoad.Arity())
	require.Equal(t, 0, OpNop.Arity())
	require.Equal(t, -1, OpPhi.Arity())
	require.Equal(t, -1, OpCall.Arity())
	require.True(t, OpLe.IsComparison())
	require.False(t, OpCopy.IsBinary())
}

func TestPrint(t *testing.T) {
	ctx, _, _ := diamond(t)
	fn := ctx.NewFunction(ctx.Modules()[0], "poke", []string{"k"})
	ctx.SetStorage(fn, Writes)
	entry := ctx.AppendBlock(fn, "entry")
	asm := ctx.NewAsmBlock([]AsmOp{{Name: "sww", Args: []string{"k", "k"}}, {Name: "noop"}})
	ctx.Append(entry, &InlineAsm{Body: asm, Args: []Value{Temp("k")}})
	ctx.Append(entry, &Op{Opcode: OpCall, Callee: "pick", Args: []Value{Const(1), Const(-2), Temp("k")}})
	ctx.Append(entry, &Unreachable{})

	want := strings.Join([]string{
		"ir 1.0",
		"",
		"module main {",
		"    fn pick(c, a, b) {",
		"    entry:",
		"        cbr c, left, right",
		"    left:",
		"        x = copy a",
		"        br exit",
		"    right:",
		"        br exit",
		"    exit:",
		"        ret x",
		"    }",
		"",
		"    fn poke(k) storage(writes) {",
		"    entry:",
		"        asm(k) {",
		"            sww k, k",
		"            noop",
		"        }",
		"        call pick(1, -2, k)",
		"        unreachable",
		"    }",
		"}",
		"",
	}, "\n")
	if diff := cmp.Diff(want, Print(ctx)); diff != "" {
		t.Fatalf("Print mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprint(t *testing.T) {
	a, _, _ := diamond(t)
	b, _, _ := diamond(t)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.Fingerprint(), a.Fingerprint())

	b.SetFunctionSpan(1, Span{File: "x.ir", Line: 1, Column: 1})
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
