// Package verify checks that an IR Context is internally consistent before it
// is handed to optimization or code generation.
//
// Two properties are checked: every live block ends in exactly one
// terminator, and every function's declared storage attribute names exactly
// the storage directions its inline assembly exercises. Per-instruction
// legality is delegated to an InstructionVerifier.
package verify

import (
	"github.com/xplshn/irverify/pkg/ir"
)

// InstructionVerifier checks the legality of every instruction in one block.
// Its errors are reported unchanged.
type InstructionVerifier interface {
	VerifyInstructions(ctx *ir.Context, mod ir.ModuleID, fn ir.FunctionID, block ir.BlockID) error
}

type Option func(*verifier)

// WithInstructionVerifier replaces the default Instructions checker.
func WithInstructionVerifier(iv InstructionVerifier) Option {
	return func(v *verifier) { v.instructions = iv }
}

// WithOrphanHandler is told about every block skipped by the orphan rule.
func WithOrphanHandler(fn func(fn ir.FunctionID, block ir.BlockID)) Option {
	return func(v *verifier) { v.onOrphan = fn }
}

type verifier struct {
	ctx          *ir.Context
	instructions InstructionVerifier
	onOrphan     func(ir.FunctionID, ir.BlockID)
	errs         Errors
}

// Verify takes ownership of ctx and checks every module, function and block
// in it, collecting every error rather than stopping at the first. On success
// it hands ctx back unchanged; otherwise it returns a nil Context and a
// non-empty Errors.
func Verify(ctx *ir.Context, opts ...Option) (*ir.Context, error) {
	v := &verifier{ctx: ctx, instructions: Instructions{}}
	for _, opt := range opts {
		opt(v)
	}

	for _, mod := range ctx.Modules() {
		for _, fn := range ctx.Module(mod).Functions {
			for _, b := range ctx.Function(fn).Blocks {
				v.collect(v.verifyBlock(mod, fn, b))
			}
			v.collect(verifyStorage(ctx, fn))
		}
	}

	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return ctx, nil
}

func (v *verifier) collect(err error) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}
