//go:build !windows

package codegen

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"modernc.org/libqbe"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
)

func (b *QBEBackend) Generate(ctx *ir.Context, cfg *config.Config) (*bytes.Buffer, error) {
	qbeIR, err := b.GenerateIR(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var asmBuf bytes.Buffer
	if err := libqbe.Main(cfg.QbeTarget, "input.ssa", strings.NewReader(qbeIR), &asmBuf, nil); err != nil {
		return nil, errors.Wrapf(err, "QBE compilation failed\n--- generated IR ---\n%s", qbeIR)
	}
	return &asmBuf, nil
}
