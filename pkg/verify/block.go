package verify

import (
	"github.com/xplshn/irverify/pkg/ir"
)

func (v *verifier) verifyBlock(mod ir.ModuleID, fn ir.FunctionID, b ir.BlockID) error {
	blk := v.ctx.Block(b)

	// A lone placeholder nobody branches to is left over from lowering.
	if len(blk.Instructions) <= 1 && v.ctx.NumPredecessors(fn, b) == 0 {
		if v.onOrphan != nil {
			v.onOrphan(fn, b)
		}
		return nil
	}

	if err := v.instructions.VerifyInstructions(v.ctx, mod, fn, b); err != nil {
		return err
	}

	lastIsTerm, numTerms := false, 0
	for _, id := range blk.Instructions {
		lastIsTerm = ir.IsTerminator(v.ctx.Instruction(id))
		if lastIsTerm {
			numTerms++
		}
	}

	fnName := v.ctx.Function(fn).Name
	switch {
	case !lastIsTerm:
		return &Error{Kind: MissingTerminator, Function: fnName, Block: blk.Label, Span: v.ctx.BlockSpan(b)}
	case numTerms != 1:
		return &Error{Kind: MisplacedTerminator, Function: fnName, Block: blk.Label, Span: v.ctx.BlockSpan(b)}
	}
	return nil
}
