package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrHelp is returned by App.Run when --help was requested and printed.
var ErrHelp = errors.New("help requested")

// ParseError wraps a malformed command line.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s'", s)
	}
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }

// choiceValue rejects anything outside its fixed set of values.
type choiceValue struct {
	p       *string
	choices []string
}

func (v *choiceValue) Set(s string) error {
	for _, c := range v.choices {
		if s == c {
			*v.p = s
			return nil
		}
	}
	return fmt.Errorf("invalid value '%s' (want one of %s)", s, strings.Join(v.choices, ", "))
}
func (v *choiceValue) String() string { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	args       []string
	flagGroups []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), "n")
}

func (f *FlagSet) Choice(p *string, name, shorthand, value, usage string, choices ...string) {
	*p = value
	f.Var(&choiceValue{p, choices}, name, shorthand, usage, value, strings.Join(choices, "|"))
}

func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for i := range entries {
		e := &entries[i]
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", *e.Enabled, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", *e.Disabled, "Disable '"+e.Name+"'")
		}
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

// Parse accepts --name[=value], -name[=value] for multi-letter flags such as
// -Wall, and -x[value] for shorthands. Everything after "--" is positional.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
			continue
		}

		dashes := "-"
		body := arg[1:]
		if strings.HasPrefix(arg, "--") {
			dashes, body = "--", arg[2:]
		}
		name, value, hasValue := strings.Cut(body, "=")
		if name == "" {
			return fmt.Errorf("empty flag name")
		}

		flag, ok := f.flags[name]
		if !ok && dashes == "-" {
			var err error
			if flag, value, hasValue, err = f.shorthand(body); err != nil {
				return err
			}
			name = flag.Shorthand
		} else if !ok {
			return fmt.Errorf("unknown flag: --%s", name)
		}

		if _, isBool := flag.Value.(*boolValue); isBool && !hasValue {
			value, hasValue = "", true
		}
		if !hasValue {
			if i+1 >= len(arguments) {
				return fmt.Errorf("flag needs an argument: %s%s", dashes, name)
			}
			i++
			value = arguments[i]
		}
		if err := flag.Value.Set(value); err != nil {
			return fmt.Errorf("%s%s: %w", dashes, name, err)
		}
	}
	return nil
}

func (f *FlagSet) shorthand(body string) (*Flag, string, bool, error) {
	flag, ok := f.shorthands[body[:1]]
	if !ok {
		return nil, "", false, fmt.Errorf("unknown shorthand flag: -%s", body[:1])
	}
	rest := strings.TrimPrefix(body[1:], "=")
	return flag, rest, rest != "", nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Repository  string
	FlagSet     *FlagSet
	Stdout      io.Writer
	Stderr      io.Writer
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Run parses arguments and calls Action with the positional ones. A parse
// error prints a short usage page to Stderr; --help prints the full page to
// Stdout and returns ErrHelp.
func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(a.Stderr, "%s: %v\n", a.Name, err)
		a.usagePage(a.Stderr)
		return &ParseError{Err: err}
	}
	if help {
		a.helpPage(a.Stdout)
		return ErrHelp
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

const indentUnit = "    "

func (a *App) usagePage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

func (a *App) helpPage(w io.Writer) {
	var sb strings.Builder
	width := terminalWidth(w)

	options := a.optionFlags()
	left := 0
	for _, flag := range options {
		left = max(left, len(formatFlag(flag)))
	}
	for _, group := range a.FlagSet.flagGroups {
		left = max(left, len(fmt.Sprintf("-%sno-<%s>", group.Flags[0].Prefix, group.GroupType)))
		for _, entry := range group.Flags {
			left = max(left, len(entry.Name))
		}
	}

	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indentUnit, indentUnit+indentUnit, a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indentUnit)
		for _, line := range wrapText(a.Description, width-2*len(indentUnit)) {
			fmt.Fprintf(&sb, "%s%s\n", indentUnit+indentUnit, line)
		}
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "\n%sFor more details refer to %s\n", indentUnit, a.Repository)
	}

	if len(options) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indentUnit)
		for _, flag := range options {
			right := ""
			if _, isBool := flag.Value.(*boolValue); !isBool && flag.DefValue != "" {
				right = fmt.Sprintf("|%s|", flag.DefValue)
			}
			formatEntry(&sb, width, left, formatFlag(flag), flag.Usage, right)
		}
	}

	for _, group := range a.FlagSet.flagGroups {
		prefix := group.Flags[0].Prefix
		fmt.Fprintf(&sb, "\n%s%s\n", indentUnit, group.Name)
		if group.Description != "" {
			fmt.Fprintf(&sb, "%s%s\n", indentUnit+indentUnit, group.Description)
		}
		formatEntry(&sb, width, left, fmt.Sprintf("-%s<%s>", prefix, group.GroupType), "Enable a specific "+group.GroupType, "")
		formatEntry(&sb, width, left, fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType), "Disable a specific "+group.GroupType, "")
		if group.AvailableFlagsHeader != "" {
			fmt.Fprintf(&sb, "%s%s\n", indentUnit, group.AvailableFlagsHeader)
		}
		entries := append([]FlagGroupEntry(nil), group.Flags...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, entry := range entries {
			state := "|-|"
			if entry.Enabled != nil && *entry.Enabled {
				state = "|x|"
			}
			formatEntry(&sb, width, left, entry.Name, entry.Usage, state)
		}
	}
	fmt.Fprint(w, sb.String())
}

// optionFlags returns the flags that are not part of a group, sorted by name.
func (a *App) optionFlags() []*Flag {
	grouped := make(map[string]bool)
	for _, group := range a.FlagSet.flagGroups {
		for _, e := range group.Flags {
			grouped[e.Prefix+e.Name] = true
			grouped[e.Prefix+"no-"+e.Name] = true
		}
	}
	var out []*Flag
	for name, flag := range a.FlagSet.flags {
		if !grouped[name] {
			out = append(out, flag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatFlag(flag *Flag) string {
	var sb strings.Builder
	_, isBool := flag.Value.(*boolValue)
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !isBool && flag.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ExpectedType)
	}
	return sb.String()
}

func formatEntry(sb *strings.Builder, width, left int, leftPart, usage, right string) {
	indent := indentUnit + indentUnit
	avail := width - len(indent) - left - 1 - len(right) - 2
	if avail < 10 {
		avail = 10
	}
	lines := wrapText(usage, avail)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent, left, leftPart, avail, first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent, left, leftPart, first)
	}
	pad := strings.Repeat(" ", left+1)
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", indent, pad, line)
	}
}

// terminalWidth reports the width of w when it is a terminal and 80
// otherwise.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	return append(lines, line.String())
}
