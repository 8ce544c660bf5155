package ir

import (
	"fmt"
	"iter"
)

// Context owns every module, function, block, instruction, asm body and
// metadatum of one compilation. The arenas are append-only, so a handle stays
// valid for the lifetime of the Context.
type Context struct {
	modules   []Module
	functions []Function
	blocks    []Block
	instrs    []Instruction
	asmBlocks []AsmBlock
	metadata  []Metadatum
}

func NewContext() *Context { return &Context{} }

// Builders. These are used by the lowering stage (and the textual reader);
// nothing downstream of them mutates a Context.

func (c *Context) NewModule(name string) ModuleID {
	c.modules = append(c.modules, Module{Name: name})
	return ModuleID(len(c.modules))
}

func (c *Context) NewFunction(mod ModuleID, name string, params []string) FunctionID {
	m := c.module(mod)
	c.functions = append(c.functions, Function{Name: name, Params: params})
	id := FunctionID(len(c.functions))
	m.Functions = append(m.Functions, id)
	return id
}

// NewBlock creates a block that belongs to no function yet; see AttachBlock.
func (c *Context) NewBlock(label string) BlockID {
	c.blocks = append(c.blocks, Block{Label: label})
	return BlockID(len(c.blocks))
}

// AttachBlock appends b to the body of fn.
func (c *Context) AttachBlock(fn FunctionID, b BlockID) {
	f := c.function(fn)
	c.block(b)
	f.Blocks = append(f.Blocks, b)
}

// AppendBlock creates a block labelled label at the end of fn.
func (c *Context) AppendBlock(fn FunctionID, label string) BlockID {
	b := c.NewBlock(label)
	c.AttachBlock(fn, b)
	return b
}

func (c *Context) Append(b BlockID, ins Instruction) InstrID {
	if ins == nil {
		panic("ir: nil instruction")
	}
	blk := c.block(b)
	c.instrs = append(c.instrs, ins)
	id := InstrID(len(c.instrs))
	blk.Instructions = append(blk.Instructions, id)
	return id
}

func (c *Context) NewAsmBlock(ops []AsmOp) AsmBlockID {
	c.asmBlocks = append(c.asmBlocks, AsmBlock{Body: ops})
	return AsmBlockID(len(c.asmBlocks))
}

func (c *Context) NewMetadata(md Metadatum) MetadataID {
	if md == nil {
		panic("ir: nil metadatum")
	}
	c.metadata = append(c.metadata, md)
	return MetadataID(len(c.metadata))
}

func (c *Context) SetStorage(fn FunctionID, op StorageOp) {
	c.function(fn).StorageMD = c.NewMetadata(StorageAttribute{Op: op})
}

func (c *Context) SetFunctionSpan(fn FunctionID, span Span) {
	c.function(fn).SpanMD = c.NewMetadata(SourceSpan{Span: span})
}

func (c *Context) SetBlockSpan(b BlockID, span Span) {
	c.block(b).SpanMD = c.NewMetadata(SourceSpan{Span: span})
}

// Accessors.

// Modules returns every module handle in creation order.
func (c *Context) Modules() []ModuleID {
	ids := make([]ModuleID, len(c.modules))
	for i := range c.modules {
		ids[i] = ModuleID(i + 1)
	}
	return ids
}

func (c *Context) Module(id ModuleID) Module       { return *c.module(id) }
func (c *Context) Function(id FunctionID) Function { return *c.function(id) }
func (c *Context) Block(id BlockID) Block          { return *c.block(id) }
func (c *Context) AsmBlock(id AsmBlockID) AsmBlock { return *c.asmBlock(id) }
func (c *Context) Instruction(id InstrID) Instruction {
	return c.instrs[c.index(int(id), len(c.instrs), "instruction")]
}
func (c *Context) Metadatum(id MetadataID) Metadatum {
	return c.metadata[c.index(int(id), len(c.metadata), "metadatum")]
}

// HasAsmBlock reports whether id names a live asm body.
func (c *Context) HasAsmBlock(id AsmBlockID) bool { return id.IsValid() && int(id) <= len(c.asmBlocks) }

// FunctionInstructions yields every instruction of fn together with its
// block, in block order.
func (c *Context) FunctionInstructions(fn FunctionID) iter.Seq2[BlockID, InstrID] {
	return func(yield func(BlockID, InstrID) bool) {
		for _, b := range c.function(fn).Blocks {
			for _, ins := range c.block(b).Instructions {
				if !yield(b, ins) {
					return
				}
			}
		}
	}
}

// NumPredecessors counts the blocks of fn holding a branch that targets b.
// It is recomputed on every call.
func (c *Context) NumPredecessors(fn FunctionID, b BlockID) int {
	n := 0
	for _, pred := range c.function(fn).Blocks {
		if c.branchesTo(pred, b) {
			n++
		}
	}
	return n
}

func (c *Context) branchesTo(from, to BlockID) bool {
	for _, id := range c.block(from).Instructions {
		for _, succ := range Successors(c.Instruction(id)) {
			if succ == to {
				return true
			}
		}
	}
	return false
}

// StorageAttribute resolves the declared storage attribute of fn.
func (c *Context) StorageAttribute(fn FunctionID) (StorageOp, bool) {
	md := c.function(fn).StorageMD
	if !md.IsValid() {
		return 0, false
	}
	attr, ok := c.Metadatum(md).(StorageAttribute)
	return attr.Op, ok
}

// SpanOf resolves md to a source span, or UnknownSpan when it is absent or
// holds something else.
func (c *Context) SpanOf(md MetadataID) Span {
	if !md.IsValid() || int(md) > len(c.metadata) {
		return UnknownSpan
	}
	if s, ok := c.metadata[md-1].(SourceSpan); ok {
		return s.Span
	}
	return UnknownSpan
}

func (c *Context) FunctionSpan(fn FunctionID) Span { return c.SpanOf(c.function(fn).SpanMD) }
func (c *Context) BlockSpan(b BlockID) Span        { return c.SpanOf(c.block(b).SpanMD) }

func (c *Context) module(id ModuleID) *Module {
	return &c.modules[c.index(int(id), len(c.modules), "module")]
}

func (c *Context) function(id FunctionID) *Function {
	return &c.functions[c.index(int(id), len(c.functions), "function")]
}

func (c *Context) block(id BlockID) *Block {
	return &c.blocks[c.index(int(id), len(c.blocks), "block")]
}

func (c *Context) asmBlock(id AsmBlockID) *AsmBlock {
	return &c.asmBlocks[c.index(int(id), len(c.asmBlocks), "asm block")]
}

// A dangling handle is a bug upstream, never a verification failure.
func (c *Context) index(id, n int, what string) int {
	if id < 1 || id > n {
		panic(fmt.Sprintf("ir: dangling %s handle %d (have %d)", what, id, n))
	}
	return id - 1
}
