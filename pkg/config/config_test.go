package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/irverify/pkg/cli"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.False(t, cfg.IsWarningEnabled(WarnOrphanBlock))
	assert.True(t, cfg.IsWarningEnabled(WarnEmptyFunction))
	assert.True(t, cfg.IsWarningEnabled(WarnEmptyAsm))
	assert.Equal(t, WarnEmptyAsm, cfg.WarningMap["empty-asm"])
	require.NoError(t, cfg.Validate())
}

func TestSetTarget(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.SetTarget("linux", "amd64", ""))
	assert.NotEmpty(t, cfg.QbeTarget)
	assert.Equal(t, 8, cfg.WordSize)

	require.NoError(t, cfg.SetTarget("linux", "amd64", "rv32"))
	assert.Equal(t, "w", cfg.WordType)

	require.EqualError(t, cfg.SetTarget("linux", "amd64", "pdp11"), "unrecognized QBE target 'pdp11', defaulting to 64-bit properties")
	assert.Equal(t, "l", cfg.WordType)
}

func TestLoadFile(t *testing.T) {
	cfg := NewConfig()
	path := writeFile(t, `
target: arm64
color: never
max-errors: 5
ir-version: ">= 1.0, < 3"
warnings:
  orphan-block: true
  empty-asm: false
`)
	target, err := cfg.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "arm64", target)
	assert.Equal(t, "never", cfg.Color)
	assert.Equal(t, 5, cfg.MaxErrors)
	assert.True(t, cfg.IsWarningEnabled(WarnOrphanBlock))
	assert.False(t, cfg.IsWarningEnabled(WarnEmptyAsm))

	cs, err := cfg.Constraint()
	require.NoError(t, err)
	assert.True(t, cs.Check(semver.MustParse("2.4")))
	assert.False(t, cs.Check(semver.MustParse("3.0")))
}

func TestLoadFileEmpty(t *testing.T) {
	cfg := NewConfig()
	target, err := cfg.LoadFile(writeFile(t, ""))
	require.NoError(t, err)
	assert.Empty(t, target)
	assert.Equal(t, "auto", cfg.Color)
}

func TestLoadFileErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "colour: never\n",
		"unknown warning": "warnings:\n  everything: true\n",
		"bad color":       "color: sometimes\n",
		"negative limit":  "max-errors: -1\n",
		"bad constraint":  "ir-version: \"not a range\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig().LoadFile(writeFile(t, body))
			require.Error(t, err)
		})
	}

	_, err := NewConfig().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "could not read config")
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("irverify")
	entries := cfg.SetupFlagGroups(fs)
	require.Len(t, entries, int(WarnCount))
	require.NoError(t, fs.Parse([]string{"-Worphan-block", "-Wno-empty-function"}))

	cfg.ApplyFlagGroups(entries, false, false)
	assert.True(t, cfg.IsWarningEnabled(WarnOrphanBlock))
	assert.False(t, cfg.IsWarningEnabled(WarnEmptyFunction))
	assert.True(t, cfg.IsWarningEnabled(WarnEmptyAsm))

	cfg.ApplyFlagGroups(entries, false, true)
	assert.True(t, cfg.IsWarningEnabled(WarnOrphanBlock), "specific flags win over -Wno-all")
	assert.False(t, cfg.IsWarningEnabled(WarnEmptyAsm))
}

func TestDescribe(t *testing.T) {
	out := NewConfig().Describe()
	assert.Contains(t, out, "  - orphan-block        : false (")
}
