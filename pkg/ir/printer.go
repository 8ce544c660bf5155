package ir

import (
	"fmt"
	"strings"
)

// FormatVersion is the textual IR version written by Print.
const FormatVersion = "1.0"

type printer struct {
	ctx *Context
	out *strings.Builder
}

// Print renders ctx in the textual IR format understood by pkg/parser.
func Print(ctx *Context) string {
	var sb strings.Builder
	p := &printer{ctx: ctx, out: &sb}
	fmt.Fprintf(p.out, "ir %s\n", FormatVersion)
	for _, m := range ctx.Modules() {
		p.module(m)
	}
	return sb.String()
}

func (p *printer) module(id ModuleID) {
	m := p.ctx.Module(id)
	fmt.Fprintf(p.out, "\nmodule %s {\n", m.Name)
	for i, fn := range m.Functions {
		if i > 0 {
			p.out.WriteString("\n")
		}
		p.function(fn)
	}
	p.out.WriteString("}\n")
}

func (p *printer) function(id FunctionID) {
	fn := p.ctx.Function(id)
	fmt.Fprintf(p.out, "    fn %s(%s)", fn.Name, strings.Join(fn.Params, ", "))
	if op, ok := p.ctx.StorageAttribute(id); ok {
		fmt.Fprintf(p.out, " storage(%s)", op)
	}
	p.out.WriteString(" {\n")
	for _, b := range fn.Blocks {
		blk := p.ctx.Block(b)
		fmt.Fprintf(p.out, "    %s:\n", blk.Label)
		for _, ins := range blk.Instructions {
			p.instruction(p.ctx.Instruction(ins))
		}
	}
	p.out.WriteString("    }\n")
}

func (p *printer) label(b BlockID) string { return p.ctx.Block(b).Label }

func (p *printer) instruction(ins Instruction) {
	const indent = "        "
	p.out.WriteString(indent)
	switch ins := ins.(type) {
	case *Op:
		if ins.Result != "" {
			fmt.Fprintf(p.out, "%s = ", ins.Result)
		}
		p.out.WriteString(ins.Opcode.String())
		if ins.Opcode == OpCall {
			fmt.Fprintf(p.out, " %s(%s)", ins.Callee, joinValues(ins.Args))
		} else if len(ins.Args) > 0 {
			fmt.Fprintf(p.out, " %s", joinValues(ins.Args))
		}
	case *Branch:
		fmt.Fprintf(p.out, "br %s", p.label(ins.Target))
	case *CondBranch:
		fmt.Fprintf(p.out, "cbr %s, %s, %s", ins.Cond, p.label(ins.True), p.label(ins.False))
	case *Ret:
		p.out.WriteString("ret")
		if ins.HasValue {
			fmt.Fprintf(p.out, " %s", ins.Value)
		}
	case *Unreachable:
		p.out.WriteString("unreachable")
	case *InlineAsm:
		p.out.WriteString("asm")
		if len(ins.Args) > 0 {
			fmt.Fprintf(p.out, "(%s)", joinValues(ins.Args))
		}
		p.out.WriteString(" {\n")
		if p.ctx.HasAsmBlock(ins.Body) {
			for _, op := range p.ctx.AsmBlock(ins.Body).Body {
				p.out.WriteString(indent + "    " + op.Name)
				if len(op.Args) > 0 {
					p.out.WriteString(" " + strings.Join(op.Args, ", "))
				}
				p.out.WriteString("\n")
			}
		}
		p.out.WriteString(indent + "}")
	default:
		panic(fmt.Sprintf("ir: unhandled instruction %T", ins))
	}
	p.out.WriteString("\n")
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
