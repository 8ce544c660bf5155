package ir

import (
	"fmt"
	"strconv"
)

// Handles index the arenas owned by a Context. They are 1-based so the zero
// value means "no handle".
type (
	ModuleID   uint32
	FunctionID uint32
	BlockID    uint32
	InstrID    uint32
	MetadataID uint32
	AsmBlockID uint32
)

func (id ModuleID) IsValid() bool   { return id != 0 }
func (id FunctionID) IsValid() bool { return id != 0 }
func (id BlockID) IsValid() bool    { return id != 0 }
func (id InstrID) IsValid() bool    { return id != 0 }
func (id MetadataID) IsValid() bool { return id != 0 }
func (id AsmBlockID) IsValid() bool { return id != 0 }

type Module struct {
	Name      string
	Functions []FunctionID
}

type Function struct {
	Name      string
	Params    []string
	Blocks    []BlockID
	StorageMD MetadataID
	SpanMD    MetadataID
}

type Block struct {
	Label        string
	Instructions []InstrID
	SpanMD       MetadataID
}

type Opcode int

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpCopy
	OpLoad
	OpStore
	OpAlloc
	OpCall
	OpPhi
	OpNop
	opCount
)

var opcodeNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpRem: "rem",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpGt: "gt", OpLe: "le", OpGe: "ge",
	OpCopy: "copy", OpLoad: "load", OpStore: "store", OpAlloc: "alloc",
	OpCall: "call", OpPhi: "phi", OpNop: "nop",
}

// OpcodeMap resolves an opcode mnemonic as written in textual IR.
var OpcodeMap = make(map[string]Opcode, opCount)

func init() {
	for op, name := range opcodeNames {
		OpcodeMap[name] = Opcode(op)
	}
}

func (op Opcode) String() string {
	if op >= 0 && op < opCount {
		return opcodeNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// IsBinary reports whether op takes exactly two operands and yields a value.
func (op Opcode) IsBinary() bool { return op >= OpAdd && op <= OpGe }

// IsComparison reports whether op yields a 0/1 truth value.
func (op Opcode) IsComparison() bool { return op >= OpEq && op <= OpGe }

// Arity returns the number of operands op requires, or -1 if it is variadic.
func (op Opcode) Arity() int {
	switch {
	case op.IsBinary(), op == OpStore:
		return 2
	case op == OpCopy, op == OpLoad:
		return 1
	case op == OpAlloc, op == OpNop:
		return 0
	default:
		return -1
	}
}

// Value is an instruction operand: a named temporary/parameter or an integer constant.
type Value struct {
	Name  string
	Const int64
}

func Temp(name string) Value  { return Value{Name: name} }
func Const(v int64) Value     { return Value{Const: v} }
func (v Value) IsConst() bool { return v.Name == "" }

func (v Value) String() string {
	if v.IsConst() {
		return strconv.FormatInt(v.Const, 10)
	}
	return v.Name
}

// Instruction is the closed set of instruction shapes. Code switching over it
// must list every variant.
type Instruction interface{ isInstruction() }

// Op is an ordinary, non-terminating operation.
type Op struct {
	Result string
	Opcode Opcode
	Callee string
	Args   []Value
}

type Branch struct{ Target BlockID }

type CondBranch struct {
	Cond        Value
	True, False BlockID
}

type Ret struct {
	Value    Value
	HasValue bool
}

type Unreachable struct{}

// InlineAsm embeds an asm body; it is the only carrier of storage operations.
type InlineAsm struct {
	Body AsmBlockID
	Args []Value
}

func (*Op) isInstruction()          {}
func (*Branch) isInstruction()      {}
func (*CondBranch) isInstruction()  {}
func (*Ret) isInstruction()         {}
func (*Unreachable) isInstruction() {}
func (*InlineAsm) isInstruction()   {}

// IsTerminator reports whether ins ends a block's control flow.
func IsTerminator(ins Instruction) bool {
	switch ins.(type) {
	case *Branch, *CondBranch, *Ret, *Unreachable:
		return true
	case *Op, *InlineAsm:
		return false
	default:
		panic(fmt.Sprintf("ir: unhandled instruction %T", ins))
	}
}

// Successors returns the blocks ins may transfer control to.
func Successors(ins Instruction) []BlockID {
	switch ins := ins.(type) {
	case *Branch:
		return []BlockID{ins.Target}
	case *CondBranch:
		return []BlockID{ins.True, ins.False}
	case *Op, *Ret, *Unreachable, *InlineAsm:
		return nil
	default:
		panic(fmt.Sprintf("ir: unhandled instruction %T", ins))
	}
}

type AsmOp struct {
	Name string
	Args []string
}

type AsmBlock struct{ Body []AsmOp }

// StorageOp is the set of storage directions a function may exercise.
type StorageOp int

const (
	Reads StorageOp = iota + 1
	Writes
	ReadsWrites
)

func (op StorageOp) String() string {
	switch op {
	case Reads:
		return "reads"
	case Writes:
		return "writes"
	case ReadsWrites:
		return "readswrites"
	default:
		return "storage(" + strconv.Itoa(int(op)) + ")"
	}
}

// ParseStorageOp is the inverse of StorageOp.String.
func ParseStorageOp(s string) (StorageOp, bool) {
	switch s {
	case "reads":
		return Reads, true
	case "writes":
		return Writes, true
	case "readswrites":
		return ReadsWrites, true
	}
	return 0, false
}

// Metadatum is the closed set of metadata payloads.
type Metadatum interface{ isMetadatum() }

type StorageAttribute struct{ Op StorageOp }

type SourceSpan struct{ Span Span }

func (StorageAttribute) isMetadatum() {}
func (SourceSpan) isMetadatum()       {}

// Span is a best-effort source location.
type Span struct {
	File   string
	Line   int
	Column int
	Len    int
}

// UnknownSpan stands in wherever no location is recorded.
var UnknownSpan = Span{File: "unknown"}

func (s Span) IsKnown() bool { return s.Line > 0 }

func (s Span) String() string {
	if !s.IsKnown() {
		return s.File
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}
