//go:build windows

package codegen

import (
	"bytes"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
)

// Generate shells out to the system's qbe; libqbe does not build on Windows.
func (b *QBEBackend) Generate(ctx *ir.Context, cfg *config.Config) (*bytes.Buffer, error) {
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, errors.Wrap(err, "QBE not found in PATH")
	}

	qbeIR, err := b.GenerateIR(ctx, cfg)
	if err != nil {
		return nil, err
	}

	input, err := os.CreateTemp("", "irverify-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(input.Name())
	_, err = input.WriteString(qbeIR)
	if cerr := input.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	var asmBuf, stderr bytes.Buffer
	cmd := exec.Command("qbe", "-t", cfg.QbeTarget, input.Name())
	cmd.Stdout, cmd.Stderr = &asmBuf, &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "QBE compilation failed: %s\n--- generated IR ---\n%s", stderr.String(), qbeIR)
	}
	return &asmBuf, nil
}
