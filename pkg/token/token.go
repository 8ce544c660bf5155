package token

import "fmt"

type Type int

const (
	EOF Type = iota
	Illegal
	Newline
	Ident
	Number
	Version
	// Keywords
	IR
	Module
	Fn
	Storage
	Asm
	Br
	Cbr
	Ret
	Unreachable
	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	Semi
	Comma
	Colon
	Eq
)

var KeywordMap = map[string]Type{
	"ir":          IR,
	"module":      Module,
	"fn":          Fn,
	"storage":     Storage,
	"asm":         Asm,
	"br":          Br,
	"cbr":         Cbr,
	"ret":         Ret,
	"unreachable": Unreachable,
}

var names = map[Type]string{
	EOF: "end of file", Illegal: "illegal character", Newline: "newline", Ident: "identifier", Number: "number", Version: "version",
	LParen: "'('", RParen: "')'", LBrace: "'{'", RBrace: "'}'",
	Semi: "';'", Comma: "','", Colon: "':'", Eq: "'='",
}

func init() {
	for str, typ := range KeywordMap {
		names[typ] = "'" + str + "'"
	}
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}

// Describe names tok for error messages.
func (tok Token) Describe() string {
	switch tok.Type {
	case Ident, Number, Version, Illegal:
		return fmt.Sprintf("%s '%s'", tok.Type, tok.Value)
	}
	return tok.Type.String()
}
