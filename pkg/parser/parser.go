package parser

import (
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/xplshn/irverify/pkg/ir"
	"github.com/xplshn/irverify/pkg/lexer"
	"github.com/xplshn/irverify/pkg/token"
)

// DefaultConstraint is the range of textual IR versions this reader accepts
// when no other constraint is configured.
const DefaultConstraint = "^1.0"

// SyntaxError reports malformed textual IR at Tok.
type SyntaxError struct {
	File string
	Tok  token.Token
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Tok.Line, e.Tok.Column, e.Msg)
}

// Span returns the location of the offending token.
func (e *SyntaxError) Span() ir.Span {
	return ir.Span{File: e.File, Line: e.Tok.Line, Column: e.Tok.Column, Len: e.Tok.Len}
}

type bailout struct{ err *SyntaxError }

type label struct {
	id      ir.BlockID
	defined bool
	ref     token.Token
}

// Parser holds the state for reading one file into a Context.
type Parser struct {
	tokens     []token.Token
	pos        int
	current    token.Token
	previous   token.Token
	file       string
	ctx        *ir.Context
	constraint *semver.Constraints

	fn     ir.FunctionID
	block  ir.BlockID
	labels map[string]*label
	order  []string
}

// NewParser prepares to read tokens, which must end with EOF, into ctx. A
// nil constraint means DefaultConstraint.
func NewParser(tokens []token.Token, file string, ctx *ir.Context, constraint *semver.Constraints) *Parser {
	if constraint == nil {
		constraint, _ = semver.NewConstraint(DefaultConstraint)
	}
	p := &Parser{tokens: tokens, file: file, ctx: ctx, constraint: constraint}
	if len(tokens) > 0 {
		p.current = tokens[0]
	}
	return p
}

// ParseSource lexes and reads one file into ctx.
func ParseSource(ctx *ir.Context, file string, source []rune, fileIndex int, constraint *semver.Constraints) error {
	return NewParser(lexer.Tokenize(source, fileIndex), file, ctx, constraint).Parse()
}

// Parse reads every module of the file into the Context. It stops at the
// first syntax error; modules read before it stay in the Context.
func (p *Parser) Parse() (err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()

	p.skipNewlines()
	p.header()
	for p.skipNewlines(); !p.check(token.EOF); p.skipNewlines() {
		p.module()
	}
	return nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, context string) token.Token {
	if !p.check(tokType) {
		p.errorf(p.current, "expected %s %s, found %s", tokType, context, p.current.Describe())
	}
	p.advance()
	return p.previous
}

func (p *Parser) errorf(tok token.Token, format string, args ...any) {
	panic(bailout{&SyntaxError{File: p.file, Tok: tok, Msg: fmt.Sprintf(format, args...)}})
}

func (p *Parser) skipNewlines() {
	for p.match(token.Newline) {
	}
}

// endOfInstruction consumes the separator after an instruction. A closing
// brace also ends one but is left for the caller.
func (p *Parser) endOfInstruction() {
	if p.match(token.Newline) || p.match(token.Semi) || p.check(token.RBrace) {
		return
	}
	p.errorf(p.current, "unexpected %s after instruction", p.current.Describe())
}

func (p *Parser) span(tok token.Token) ir.Span {
	return ir.Span{File: p.file, Line: tok.Line, Column: tok.Column, Len: tok.Len}
}

func (p *Parser) header() {
	p.expect(token.IR, "at start of file")
	tok := p.current
	if !p.match(token.Version) && !p.match(token.Number) {
		p.errorf(tok, "expected IR version, found %s", tok.Describe())
	}
	v, err := semver.NewVersion(tok.Value)
	if err != nil {
		p.errorf(tok, "malformed IR version '%s': %v", tok.Value, err)
	}
	if !p.constraint.Check(v) {
		p.errorf(tok, "IR version %s is not supported (want %s)", v, p.constraint)
	}
}

func (p *Parser) module() {
	p.expect(token.Module, "at top level")
	name := p.expect(token.Ident, "after 'module'")
	mod := p.ctx.NewModule(name.Value)
	p.expect(token.LBrace, "to open module body")
	for p.skipNewlines(); !p.check(token.RBrace); p.skipNewlines() {
		p.function(mod)
	}
	p.expect(token.RBrace, "to close module body")
}

func (p *Parser) function(mod ir.ModuleID) {
	fnTok := p.expect(token.Fn, "inside module")
	name := p.expect(token.Ident, "after 'fn'")

	var params []string
	p.expect(token.LParen, "to open parameter list")
	if !p.check(token.RParen) {
		for {
			params = append(params, p.expect(token.Ident, "in parameter list").Value)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "to close parameter list")

	p.fn = p.ctx.NewFunction(mod, name.Value, params)
	p.ctx.SetFunctionSpan(p.fn, p.span(fnTok))
	p.block = 0
	p.labels = make(map[string]*label)
	p.order = nil

	if p.match(token.Storage) {
		p.expect(token.LParen, "after 'storage'")
		opTok := p.expect(token.Ident, "in storage attribute")
		op, ok := ir.ParseStorageOp(opTok.Value)
		if !ok {
			p.errorf(opTok, "unknown storage operation '%s' (want reads, writes or readswrites)", opTok.Value)
		}
		p.ctx.SetStorage(p.fn, op)
		p.expect(token.RParen, "to close storage attribute")
	}

	p.expect(token.LBrace, "to open function body")
	for p.skipNewlines(); !p.check(token.RBrace); p.skipNewlines() {
		if p.check(token.Ident) && p.peek().Type == token.Colon {
			p.defineLabel()
			continue
		}
		p.instruction()
	}
	p.expect(token.RBrace, "to close function body")

	for _, name := range p.order {
		if l := p.labels[name]; !l.defined {
			p.errorf(l.ref, "undefined block label '%s' in function '%s'", name, p.ctx.Function(p.fn).Name)
		}
	}
}

func (p *Parser) defineLabel() {
	tok := p.expect(token.Ident, "as block label")
	p.expect(token.Colon, "after block label")
	l := p.lookupLabel(tok)
	if l.defined {
		p.errorf(tok, "block label '%s' defined twice", tok.Value)
	}
	l.defined = true
	p.ctx.AttachBlock(p.fn, l.id)
	p.ctx.SetBlockSpan(l.id, p.span(tok))
	p.block = l.id
}

// lookupLabel finds or creates the block for tok; branches may refer to
// labels defined further down.
func (p *Parser) lookupLabel(tok token.Token) *label {
	if l, ok := p.labels[tok.Value]; ok {
		return l
	}
	l := &label{id: p.ctx.NewBlock(tok.Value), ref: tok}
	p.labels[tok.Value] = l
	p.order = append(p.order, tok.Value)
	return l
}

func (p *Parser) target(context string) ir.BlockID {
	return p.lookupLabel(p.expect(token.Ident, context)).id
}

func (p *Parser) value() ir.Value {
	tok := p.current
	switch {
	case p.match(token.Ident):
		return ir.Temp(tok.Value)
	case p.match(token.Number):
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			p.errorf(tok, "integer constant '%s' out of range", tok.Value)
		}
		return ir.Const(n)
	}
	p.errorf(tok, "expected value, found %s", tok.Describe())
	return ir.Value{}
}

// values reads a comma separated operand list up to, but not including, the
// end of the instruction or closing parenthesis.
func (p *Parser) values() []ir.Value {
	var vals []ir.Value
	if p.check(token.Newline) || p.check(token.Semi) || p.check(token.RBrace) || p.check(token.RParen) || p.check(token.EOF) {
		return vals
	}
	for {
		vals = append(vals, p.value())
		if !p.match(token.Comma) {
			return vals
		}
	}
}

func (p *Parser) instruction() {
	start := p.current
	if !p.block.IsValid() {
		p.errorf(start, "instruction before the first block label")
	}

	var ins ir.Instruction
	switch {
	case p.match(token.Br):
		ins = &ir.Branch{Target: p.target("after 'br'")}
	case p.match(token.Cbr):
		cond := p.value()
		p.expect(token.Comma, "after branch condition")
		t := p.target("as true target")
		p.expect(token.Comma, "after true target")
		ins = &ir.CondBranch{Cond: cond, True: t, False: p.target("as false target")}
	case p.match(token.Ret):
		r := &ir.Ret{}
		if vals := p.values(); len(vals) > 1 {
			p.errorf(start, "'ret' takes at most one value")
		} else if len(vals) == 1 {
			r.Value, r.HasValue = vals[0], true
		}
		ins = r
	case p.match(token.Unreachable):
		ins = &ir.Unreachable{}
	case p.match(token.Asm):
		ins = p.inlineAsm()
	case p.check(token.Ident) && p.peek().Type == token.Eq:
		result := p.current.Value
		p.advance()
		p.advance()
		ins = p.op(result)
	case p.check(token.Ident):
		ins = p.op("")
	default:
		p.errorf(start, "expected instruction, found %s", start.Describe())
	}
	p.ctx.Append(p.block, ins)
	p.endOfInstruction()
}

func (p *Parser) op(result string) *ir.Op {
	tok := p.expect(token.Ident, "as opcode")
	opcode, ok := ir.OpcodeMap[tok.Value]
	if !ok {
		p.errorf(tok, "unknown opcode '%s'", tok.Value)
	}
	op := &ir.Op{Result: result, Opcode: opcode}
	if opcode == ir.OpCall {
		op.Callee = p.expect(token.Ident, "as callee").Value
		p.expect(token.LParen, "to open call arguments")
		op.Args = p.values()
		p.expect(token.RParen, "to close call arguments")
		return op
	}
	op.Args = p.values()
	return op
}

func (p *Parser) inlineAsm() *ir.InlineAsm {
	asm := &ir.InlineAsm{}
	if p.match(token.LParen) {
		asm.Args = p.values()
		p.expect(token.RParen, "to close asm arguments")
	}
	p.expect(token.LBrace, "to open asm body")

	var ops []ir.AsmOp
	for {
		for p.match(token.Newline) || p.match(token.Semi) {
		}
		if p.match(token.RBrace) {
			break
		}
		mnemonic := p.asmWord("as asm mnemonic")
		op := ir.AsmOp{Name: mnemonic}
		if !p.check(token.Newline) && !p.check(token.Semi) && !p.check(token.RBrace) {
			for {
				op.Args = append(op.Args, p.asmWord("as asm operand"))
				if !p.match(token.Comma) {
					break
				}
			}
		}
		ops = append(ops, op)
		if !p.check(token.Newline) && !p.check(token.Semi) && !p.check(token.RBrace) {
			p.errorf(p.current, "unexpected %s in asm body", p.current.Describe())
		}
	}
	asm.Body = p.ctx.NewAsmBlock(ops)
	return asm
}

// asmWord accepts any identifier, number or keyword: asm text is opaque to
// the IR.
func (p *Parser) asmWord(context string) string {
	tok := p.current
	switch tok.Type {
	case token.Ident, token.Number, token.Version:
	default:
		if _, isKeyword := token.KeywordMap[tok.Value]; !isKeyword {
			p.errorf(tok, "expected %s, found %s", context, tok.Describe())
		}
	}
	p.advance()
	return tok.Value
}
