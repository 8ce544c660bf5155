package verify

import (
	"fmt"
	"slices"

	"github.com/xplshn/irverify/pkg/ir"
)

// InstructionError is reported by Instructions for the first illegal
// instruction of a block.
type InstructionError struct {
	Function string
	Block    string
	Index    int
	Msg      string
	Span     ir.Span
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("function %q, block %q, instruction %d: %s", e.Function, e.Block, e.Index, e.Msg)
}

// Instructions is the default InstructionVerifier. It checks operand counts,
// branch targets and asm bodies; it knows nothing about types.
type Instructions struct{}

func (Instructions) VerifyInstructions(ctx *ir.Context, _ ir.ModuleID, fn ir.FunctionID, b ir.BlockID) error {
	f := ctx.Function(fn)
	blk := ctx.Block(b)
	for i, id := range blk.Instructions {
		if msg := checkInstruction(ctx, f, ctx.Instruction(id)); msg != "" {
			return &InstructionError{Function: f.Name, Block: blk.Label, Index: i, Msg: msg, Span: ctx.BlockSpan(b)}
		}
	}
	return nil
}

func checkInstruction(ctx *ir.Context, f ir.Function, ins ir.Instruction) string {
	switch ins := ins.(type) {
	case *ir.Op:
		return checkOp(ins)
	case *ir.Branch:
		return checkTarget(f, ins.Target)
	case *ir.CondBranch:
		if msg := checkTarget(f, ins.True); msg != "" {
			return msg
		}
		return checkTarget(f, ins.False)
	case *ir.Ret, *ir.Unreachable:
		return ""
	case *ir.InlineAsm:
		if !ctx.HasAsmBlock(ins.Body) {
			return fmt.Sprintf("asm refers to missing body %d", ins.Body)
		}
		for j, op := range ctx.AsmBlock(ins.Body).Body {
			if op.Name == "" {
				return fmt.Sprintf("asm operation %d has no mnemonic", j)
			}
		}
		return ""
	default:
		panic(fmt.Sprintf("verify: unhandled instruction %T", ins))
	}
}

func checkOp(op *ir.Op) string {
	if n := op.Opcode.Arity(); n >= 0 && len(op.Args) != n {
		return fmt.Sprintf("%s takes %d operands, got %d", op.Opcode, n, len(op.Args))
	}
	switch op.Opcode {
	case ir.OpCall:
		if op.Callee == "" {
			return "call has no callee"
		}
	case ir.OpStore, ir.OpNop:
		if op.Result != "" {
			return fmt.Sprintf("%s does not produce a value", op.Opcode)
		}
	}
	return ""
}

func checkTarget(f ir.Function, target ir.BlockID) string {
	if !slices.Contains(f.Blocks, target) {
		return fmt.Sprintf("branch target %d is not a block of %s", target, f.Name)
	}
	return ""
}
