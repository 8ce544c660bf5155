package codegen

import (
	"bytes"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a verified Context and a configuration, and produces the
	// target assembly as a byte buffer.
	Generate(ctx *ir.Context, cfg *config.Config) (*bytes.Buffer, error)
}
