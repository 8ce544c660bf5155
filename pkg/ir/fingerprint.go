package ir

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint digests the observable content of ctx: its printed form plus
// the source spans the printed form leaves out. Two contexts with equal
// fingerprints are, for every consumer in this repository, the same IR.
func (c *Context) Fingerprint() uint64 {
	h := xxhash.New()
	h.WriteString(Print(c))
	for _, f := range c.functions {
		fmt.Fprintf(h, "fn %s %v\n", f.Name, c.SpanOf(f.SpanMD))
	}
	for _, b := range c.blocks {
		fmt.Fprintf(h, "block %s %v %d\n", b.Label, c.SpanOf(b.SpanMD), len(b.Instructions))
	}
	fmt.Fprintf(h, "arenas %d %d %d %d %d %d\n",
		len(c.modules), len(c.functions), len(c.blocks), len(c.instrs), len(c.asmBlocks), len(c.metadata))
	return h.Sum64()
}
