package verify

import (
	"fmt"
	"strings"

	"github.com/xplshn/irverify/pkg/ir"
)

type Kind int

const (
	MissingTerminator Kind = iota
	MisplacedTerminator
	StorageMissingAttribute
	StorageMismatchedAttribute
	StorageUnneededAttribute
)

func (k Kind) String() string {
	switch k {
	case MissingTerminator:
		return "missing terminator"
	case MisplacedTerminator:
		return "misplaced terminator"
	case StorageMissingAttribute:
		return "missing storage attribute"
	case StorageMismatchedAttribute:
		return "mismatched storage attribute"
	case StorageUnneededAttribute:
		return "unneeded storage attribute"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is one verification failure. Block errors carry Block; storage errors
// carry Op and the function's Span.
type Error struct {
	Kind     Kind
	Function string
	Block    string
	Op       ir.StorageOp
	Span     ir.Span
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingTerminator:
		return fmt.Sprintf("block %q is missing its terminator", e.Block)
	case MisplacedTerminator:
		return fmt.Sprintf("block %q has a terminator before its last instruction", e.Block)
	case StorageMissingAttribute:
		return fmt.Sprintf("function %q performs storage operations but is missing the storage(%s) attribute", e.Function, e.Op)
	case StorageMismatchedAttribute:
		return fmt.Sprintf("function %q has a storage attribute that does not match its behaviour; expected storage(%s)", e.Function, e.Op)
	case StorageUnneededAttribute:
		return fmt.Sprintf("function %q declares storage(%s) but never needs it", e.Function, e.Op)
	}
	return e.Kind.String()
}

// Is matches another *Error of the same kind, so a bare &Error{Kind: k}
// works as a target for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Block == "" || t.Block == e.Block) && (t.Op == 0 || t.Op == e.Op)
}

// Errors is every independent failure found by one Verify call, in traversal
// order. It is never empty when returned.
type Errors []error

func (errs Errors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d verification errors:", len(errs))
	for _, err := range errs {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (errs Errors) Unwrap() []error { return errs }
