package lexer

import (
	"unicode"

	"github.com/xplshn/irverify/pkg/token"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{source: source, fileIndex: fileIndex, line: 1, column: 1}
}

// Tokenize lexes the whole source, ending with a single EOF token.
func Tokenize(source []rune, fileIndex int) []token.Token {
	l := NewLexer(source, fileIndex)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	l.skipBlanksAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	ch := l.peek()
	if isIdentStart(ch) {
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if unicode.IsDigit(ch) || (ch == '-' && unicode.IsDigit(l.peekNext())) {
		return l.number(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '\n':
		return l.makeToken(token.Newline, "", startPos, startCol, startLine)
	case '(':
		return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')':
		return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '{':
		return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
	case '}':
		return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
	case ';':
		return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',':
		return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case ':':
		return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '=':
		return l.makeToken(token.Eq, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Illegal, string(ch), startPos, startCol, startLine)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

// Newlines are significant (they separate asm operations), so only spaces,
// tabs and carriage returns are skipped here.
func (l *Lexer) skipBlanksAndComments() {
	for !l.isAtEnd() {
		switch ch := l.peek(); {
		case ch == ' ' || ch == '\t' || ch == '\r':
			l.advance()
		case ch == '/' && l.peekNext() == '/':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) makeToken(typ token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type:      typ,
		Value:     value,
		FileIndex: l.fileIndex,
		Line:      startLine,
		Column:    startCol,
		Len:       l.pos - startPos,
	}
}

func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }

func isIdentPart(ch rune) bool { return isIdentStart(ch) || unicode.IsDigit(ch) || ch == '.' }

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if typ, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(typ, value, startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

// number lexes an integer, or a dotted version such as 1.0 or 1.2.3.
func (l *Lexer) number(startPos, startCol, startLine int) token.Token {
	if l.peek() == '-' {
		l.advance()
	}
	typ := token.Number
	for {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() != '.' || !unicode.IsDigit(l.peekNext()) {
			break
		}
		typ = token.Version
		l.advance()
	}
	return l.makeToken(typ, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
}
