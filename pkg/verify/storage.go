package verify

import (
	"fmt"

	"github.com/xplshn/irverify/pkg/ir"
)

// Storage is only reachable through inline assembly; these mnemonics are the
// ones that touch it.
var (
	storageReadOps  = map[string]bool{"srw": true, "srwq": true}
	storageWriteOps = map[string]bool{"sww": true, "swwq": true}
)

// storageCase is (declared attribute, reads observed, writes observed). A
// zero declared means no attribute.
type storageCase struct {
	declared      ir.StorageOp
	reads, writes bool
}

type storageVerdict struct {
	kind Kind
	op   ir.StorageOp
}

// storageVerdicts lists every failing combination. Anything absent passes:
// an attribute naming exactly what the body does, or no attribute on a pure
// body.
var storageVerdicts = map[storageCase]storageVerdict{
	{0, true, false}: {StorageMissingAttribute, ir.Reads},
	{0, false, true}: {StorageMissingAttribute, ir.Writes},
	{0, true, true}:  {StorageMissingAttribute, ir.ReadsWrites},

	{ir.Reads, false, true}:  {StorageMismatchedAttribute, ir.Writes},
	{ir.Writes, true, false}: {StorageMismatchedAttribute, ir.Reads},
	{ir.Reads, true, true}:   {StorageMismatchedAttribute, ir.ReadsWrites},
	{ir.Writes, true, true}:  {StorageMismatchedAttribute, ir.ReadsWrites},

	{ir.ReadsWrites, false, true}: {StorageUnneededAttribute, ir.Reads},
	{ir.ReadsWrites, true, false}: {StorageUnneededAttribute, ir.Writes},

	{ir.Reads, false, false}:       {StorageUnneededAttribute, ir.Reads},
	{ir.Writes, false, false}:      {StorageUnneededAttribute, ir.Writes},
	{ir.ReadsWrites, false, false}: {StorageUnneededAttribute, ir.ReadsWrites},
}

// storageUse reports whether any inline asm in fn reads or writes storage.
func storageUse(ctx *ir.Context, fn ir.FunctionID) (reads, writes bool) {
	for _, id := range ctx.FunctionInstructions(fn) {
		switch ins := ctx.Instruction(id).(type) {
		case *ir.InlineAsm:
			// A dead body handle is the instruction verifier's to report.
			if !ctx.HasAsmBlock(ins.Body) {
				continue
			}
			for _, op := range ctx.AsmBlock(ins.Body).Body {
				reads = reads || storageReadOps[op.Name]
				writes = writes || storageWriteOps[op.Name]
			}
		case *ir.Op, *ir.Branch, *ir.CondBranch, *ir.Ret, *ir.Unreachable:
		default:
			panic(fmt.Sprintf("verify: unhandled instruction %T", ins))
		}
	}
	return reads, writes
}

func verifyStorage(ctx *ir.Context, fn ir.FunctionID) error {
	reads, writes := storageUse(ctx, fn)
	declared, _ := ctx.StorageAttribute(fn)

	verdict, failed := storageVerdicts[storageCase{declared, reads, writes}]
	if !failed {
		return nil
	}
	return &Error{
		Kind:     verdict.kind,
		Function: ctx.Function(fn).Name,
		Op:       verdict.op,
		Span:     ctx.FunctionSpan(fn),
	}
}
