package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"modernc.org/libqbe"

	"github.com/xplshn/irverify/pkg/cli"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "irverify.yaml"

type Warning int

const (
	WarnOrphanBlock Warning = iota
	WarnEmptyFunction
	WarnEmptyAsm
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Warnings   map[Warning]Info
	WarningMap map[string]Warning
	QbeTarget  string
	WordSize   int
	WordType   string
	Color      string
	MaxErrors  int
	IRVersion  string
}

func NewConfig() *Config {
	cfg := &Config{
		Warnings:   make(map[Warning]Info),
		WarningMap: make(map[string]Warning),
		Color:      "auto",
		IRVersion:  "^1.0",
	}

	warnings := map[Warning]Info{
		WarnOrphanBlock:   {"orphan-block", false, "Warn about unreferenced placeholder blocks that verification skips."},
		WarnEmptyFunction: {"empty-function", true, "Warn about functions without a single block."},
		WarnEmptyAsm:      {"empty-asm", true, "Warn about inline assembly blocks with an empty body."},
	}

	cfg.Warnings = warnings
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

// SetTarget selects the QBE target used for --emit. An empty qbeTarget picks
// the host's. Unknown targets fall back to 64-bit properties and are
// reported through the returned error.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) error {
	if qbeTarget == "" {
		qbeTarget = libqbe.DefaultTarget(goos, goarch)
	}
	c.QbeTarget = qbeTarget

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType = 8, "l"
	case "arm", "rv32":
		c.WordSize, c.WordType = 4, "w"
	default:
		c.WordSize, c.WordType = 8, "l"
		return errors.Errorf("unrecognized QBE target '%s', defaulting to 64-bit properties", c.QbeTarget)
	}
	return nil
}

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) SetAllWarnings(enabled bool) {
	for i := Warning(0); i < WarnCount; i++ {
		c.SetWarning(i, enabled)
	}
}

// Constraint parses IRVersion.
func (c *Config) Constraint() (*semver.Constraints, error) {
	cs, err := semver.NewConstraint(c.IRVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ir-version constraint '%s'", c.IRVersion)
	}
	return cs, nil
}

func (c *Config) Validate() error {
	switch c.Color {
	case "auto", "always", "never":
	default:
		return errors.Errorf("invalid color mode '%s' (want auto, always or never)", c.Color)
	}
	if c.MaxErrors < 0 {
		return errors.Errorf("max-errors must not be negative, got %d", c.MaxErrors)
	}
	_, err := c.Constraint()
	return err
}

type fileConfig struct {
	Target    string          `yaml:"target"`
	Color     string          `yaml:"color"`
	MaxErrors *int            `yaml:"max-errors"`
	IRVersion string          `yaml:"ir-version"`
	Warnings  map[string]bool `yaml:"warnings"`
}

// LoadFile merges the YAML file at path into c and returns the QBE target it
// names, if any. Unknown keys and warning names are errors.
func (c *Config) LoadFile(path string) (target string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "could not read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrapf(err, "could not parse config '%s'", path)
	}

	if fc.Color != "" {
		c.Color = fc.Color
	}
	if fc.MaxErrors != nil {
		c.MaxErrors = *fc.MaxErrors
	}
	if fc.IRVersion != "" {
		c.IRVersion = fc.IRVersion
	}
	for name, enabled := range fc.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok {
			return "", errors.Errorf("%s: unknown warning '%s'", path, name)
		}
		c.SetWarning(wt, enabled)
	}
	return fc.Target, c.Validate()
}

// SetupFlagGroups registers -W<name> and -Wno-<name> for every warning. The
// returned entries are indexed by Warning.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) []cli.FlagGroupEntry {
	entries := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := false, false
		entries[i] = cli.FlagGroupEntry{
			Name:     info.Name,
			Prefix:   "W",
			Usage:    info.Description,
			Enabled:  &enabled,
			Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable individual warnings.", "warning", "Available Warnings:", entries)
	return entries
}

// ApplyFlagGroups applies -Wall, -Wno-all and then the individual warning
// flags, so the specific ones win.
func (c *Config) ApplyFlagGroups(entries []cli.FlagGroupEntry, all, none bool) {
	if all {
		c.SetAllWarnings(true)
	}
	if none {
		c.SetAllWarnings(false)
	}
	for i, entry := range entries {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
}

// Describe lists the warnings and their state, one per line.
func (c *Config) Describe() string {
	var sb strings.Builder
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		fmt.Fprintf(&sb, "  - %-20s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
	return sb.String()
}
