package codegen

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
)

// QBEBackend lowers verified IR to QBE and assembles it for cfg.QbeTarget.
type QBEBackend struct {
	out     *strings.Builder
	ctx     *ir.Context
	cfg     *config.Config
	fnName  string
	retType string
	tmp     int
}

func NewQBEBackend() *QBEBackend { return &QBEBackend{} }

// GenerateIR lowers every function of ctx to QBE's intermediate language.
// ctx must have passed verification: blocks are assumed to be terminated.
func (b *QBEBackend) GenerateIR(ctx *ir.Context, cfg *config.Config) (string, error) {
	var sb strings.Builder
	b.out, b.ctx, b.cfg = &sb, ctx, cfg

	for _, m := range ctx.Modules() {
		for _, fn := range ctx.Module(m).Functions {
			if err := b.genFunc(fn); err != nil {
				return "", err
			}
		}
	}
	return sb.String(), nil
}

func (b *QBEBackend) wordType() string {
	if b.cfg.WordType == "" {
		return "l"
	}
	return b.cfg.WordType
}

func (b *QBEBackend) genFunc(id ir.FunctionID) error {
	fn := b.ctx.Function(id)
	b.fnName, b.tmp = fn.Name, 0

	b.retType = ""
	for _, ins := range b.ctx.FunctionInstructions(id) {
		if r, ok := b.ctx.Instruction(ins).(*ir.Ret); ok && r.HasValue {
			b.retType = " " + b.wordType()
			break
		}
	}

	fmt.Fprintf(b.out, "\nexport function%s $%s(", b.retType, fn.Name)
	for i, p := range fn.Params {
		if i > 0 {
			b.out.WriteString(", ")
		}
		fmt.Fprintf(b.out, "%s %%%s", b.wordType(), p)
	}
	b.out.WriteString(") {\n")

	for _, blk := range fn.Blocks {
		if err := b.genBlock(blk); err != nil {
			return err
		}
	}
	b.out.WriteString("}\n")
	return nil
}

func (b *QBEBackend) genBlock(id ir.BlockID) error {
	blk := b.ctx.Block(id)
	fmt.Fprintf(b.out, "@%s\n", blk.Label)
	terminated := false
	for _, ins := range blk.Instructions {
		instr := b.ctx.Instruction(ins)
		if err := b.genInstr(instr); err != nil {
			return err
		}
		terminated = ir.IsTerminator(instr)
	}
	// Orphan blocks are exempt from termination checks and never reached.
	if !terminated {
		b.out.WriteString("\thlt\n")
	}
	return nil
}

func (b *QBEBackend) genInstr(instr ir.Instruction) error {
	switch instr := instr.(type) {
	case *ir.Op:
		return b.genOp(instr)
	case *ir.Branch:
		fmt.Fprintf(b.out, "\tjmp @%s\n", b.ctx.Block(instr.Target).Label)
	case *ir.CondBranch:
		fmt.Fprintf(b.out, "\tjnz %s, @%s, @%s\n", b.formatValue(instr.Cond),
			b.ctx.Block(instr.True).Label, b.ctx.Block(instr.False).Label)
	case *ir.Ret:
		switch {
		case instr.HasValue:
			fmt.Fprintf(b.out, "\tret %s\n", b.formatValue(instr.Value))
		case b.retType != "":
			b.out.WriteString("\tret 0\n")
		default:
			b.out.WriteString("\tret\n")
		}
	case *ir.Unreachable:
		b.out.WriteString("\thlt\n")
	case *ir.InlineAsm:
		return errors.Errorf("function %q: inline assembly cannot be lowered to QBE", b.fnName)
	default:
		panic(fmt.Sprintf("codegen: unhandled instruction %T", instr))
	}
	return nil
}

func (b *QBEBackend) genOp(op *ir.Op) error {
	// Orphan blocks are never checked by the verifier, so operands can't be trusted.
	if n := op.Opcode.Arity(); n >= 0 && len(op.Args) != n {
		return errors.Errorf("function %q: %s takes %d operands, got %d", b.fnName, op.Opcode, n, len(op.Args))
	}
	wt := b.wordType()
	switch op.Opcode {
	case ir.OpNop:
		return nil
	case ir.OpPhi:
		return errors.Errorf("function %q: phi without incoming blocks cannot be lowered to QBE", b.fnName)
	case ir.OpStore:
		fmt.Fprintf(b.out, "\tstore%s %s, %s\n", wt, b.formatValue(op.Args[1]), b.formatValue(op.Args[0]))
		return nil
	case ir.OpCall:
		b.out.WriteString("\t")
		if op.Result != "" {
			fmt.Fprintf(b.out, "%%%s =%s ", op.Result, wt)
		}
		fmt.Fprintf(b.out, "call $%s(", op.Callee)
		for i, arg := range op.Args {
			if i > 0 {
				b.out.WriteString(", ")
			}
			fmt.Fprintf(b.out, "%s %s", wt, b.formatValue(arg))
		}
		b.out.WriteString(")\n")
		return nil
	}

	result := op.Result
	if result == "" {
		b.tmp++
		result = fmt.Sprintf(".t%d", b.tmp)
	}
	fmt.Fprintf(b.out, "\t%%%s =%s %s", result, wt, b.formatOp(op.Opcode))
	if op.Opcode == ir.OpAlloc {
		fmt.Fprintf(b.out, " %d\n", b.wordSize())
		return nil
	}
	for i, arg := range op.Args {
		if i > 0 {
			b.out.WriteString(",")
		}
		b.out.WriteString(" " + b.formatValue(arg))
	}
	b.out.WriteString("\n")
	return nil
}

func (b *QBEBackend) wordSize() int {
	if b.cfg.WordSize == 0 {
		return 8
	}
	return b.cfg.WordSize
}

func (b *QBEBackend) formatValue(v ir.Value) string {
	if v.IsConst() {
		return fmt.Sprintf("%d", v.Const)
	}
	return "%" + v.Name
}

func (b *QBEBackend) formatOp(op ir.Opcode) string {
	wt := b.wordType()
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpRem, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpCopy:
		return op.String()
	case ir.OpEq:
		return "ceq" + wt
	case ir.OpNe:
		return "cne" + wt
	case ir.OpLt:
		return "cslt" + wt
	case ir.OpGt:
		return "csgt" + wt
	case ir.OpLe:
		return "csle" + wt
	case ir.OpGe:
		return "csge" + wt
	case ir.OpLoad:
		return "load" + wt
	case ir.OpAlloc:
		return fmt.Sprintf("alloc%d", b.wordSize())
	}
	panic(fmt.Sprintf("codegen: no QBE form for %s", op))
}
