package codegen

import (
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/irverify/pkg/config"
	"github.com/xplshn/irverify/pkg/ir"
	"github.com/xplshn/irverify/pkg/parser"
	"github.com/xplshn/irverify/pkg/verify"
)

func load(t *testing.T, src string) *ir.Context {
	t.Helper()
	ctx := ir.NewContext()
	require.NoError(t, parser.ParseSource(ctx, "t.ir", []rune(src), 0, nil))
	return ctx
}

func targetConfig(t *testing.T, target string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	require.NoError(t, cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target))
	return cfg
}

const program = `ir 1.0
module m {
    fn max(a, b) {
    entry:
        c = gt a, b
        cbr c, left, right
    left:
        ret a
    right:
        nop
        br out
    out:
        ret b
    }

    fn main() {
    start:
        p = alloc
        store p, 7
        x = load p
        add x, 1
        call max(x, 3)
        unreachable
    dead:
    }
}
`

func TestGenerateIR(t *testing.T) {
	got, err := NewQBEBackend().GenerateIR(load(t, program), targetConfig(t, "amd64_sysv"))
	require.NoError(t, err)

	want := `
export function l $max(l %a, l %b) {
@entry
	%c =l csgtl %a, %b
	jnz %c, @left, @right
@left
	ret %a
@right
	jmp @out
@out
	ret %b
}

export function $main() {
@start
	%p =l alloc8 8
	storel 7, %p
	%x =l loadl %p
	%.t1 =l add %x, 1
	call $max(l %x, l 3)
	hlt
@dead
	hlt
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("QBE IR (-want +got):\n%s", diff)
	}
}

func TestGenerateIRWordType(t *testing.T) {
	got, err := NewQBEBackend().GenerateIR(load(t, "ir 1.0\nmodule m { fn f(x) { e: y = eq x, 0; ret y } }"), targetConfig(t, "rv32"))
	require.NoError(t, err)
	require.Equal(t, "\nexport function w $f(w %x) {\n@e\n\t%y =w ceqw %x, 0\n\tret %y\n}\n", got)
}

func TestGenerateIRRefusals(t *testing.T) {
	cases := map[string]string{
		"inline assembly":               "ir 1.0\nmodule m {\nfn io(k) storage(reads) {\ne:\nasm(k) { srw k }\nret\n}\n}",
		"phi":                           "ir 1.0\nmodule m {\nfn ph() {\ne:\nx = phi\nret x\n}\n}",
		"store takes 2 operands, got 1": "ir 1.0\nmodule m { fn f() { entry: ret; dead: store p } }",
		"add takes 2 operands, got 1":   "ir 1.0\nmodule m { fn f(x) { entry: ret; dead: y = add x } }",
		"copy takes 1 operands, got 0":  "ir 1.0\nmodule m { fn f() { entry: ret; dead: y = copy } }",
	}
	for what, src := range cases {
		t.Run(what, func(t *testing.T) {
			_, err := NewQBEBackend().GenerateIR(load(t, src), targetConfig(t, ""))
			require.ErrorContains(t, err, what)
		})
	}
}

func TestGenerateIRAfterVerifyWithMalformedOrphan(t *testing.T) {
	ctx, err := verify.Verify(load(t, "ir 1.0\nmodule m { fn f() { entry: ret; dead: store p } }"))
	require.NoError(t, err, "a lone instruction in an unreferenced block is not checked")

	var qbe string
	require.NotPanics(t, func() {
		qbe, err = NewQBEBackend().GenerateIR(ctx, targetConfig(t, "amd64_sysv"))
	})
	require.EqualError(t, err, `function "f": store takes 2 operands, got 1`)
	require.Empty(t, qbe)
}
