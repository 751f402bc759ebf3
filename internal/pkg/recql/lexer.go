package recql

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind  tokenKind
	value string
	op    Op
	pos   int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("%q", t.value)
	case tokOp:
		return t.op.String()
	}
	return t.value
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(input string) *lexer {
	return &lexer{src: []rune(input)}
}

func (l *lexer) peekRune(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	ch := l.src[l.pos]
	switch ch {
	case '(':
		l.pos++
		return token{kind: tokLParen, value: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, value: ")", pos: start}, nil
	case ':':
		l.pos++
		return token{kind: tokOp, op: OpEq, pos: start}, nil
	case '=':
		l.pos++
		return token{kind: tokOp, op: OpEq, pos: start}, nil
	case '~':
		l.pos++
		return token{kind: tokOp, op: OpContains, pos: start}, nil
	case '!':
		if l.peekRune(1) == '=' {
			l.pos += 2
			return token{kind: tokOp, op: OpNeq, pos: start}, nil
		}
		return token{}, fmt.Errorf("position %d: expected '=' after '!'", start)
	case '>', '<':
		op := OpGt
		if ch == '<' {
			op = OpLt
		}
		l.pos++
		if l.peekRune(0) == '=' {
			l.pos++
			op++
		}
		return token{kind: tokOp, op: op, pos: start}, nil
	case '"':
		return l.readString()
	}

	if isWordRune(ch) {
		return l.readWord(), nil
	}
	return token{}, fmt.Errorf("position %d: unexpected character %q", start, ch)
}

func (l *lexer) readString() (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.src):
			b.WriteRune(l.src[l.pos+1])
			l.pos += 2
		case ch == '"':
			l.pos++
			return token{kind: tokString, value: b.String(), pos: start}, nil
		default:
			b.WriteRune(ch)
			l.pos++
		}
	}
	return token{}, fmt.Errorf("position %d: unterminated string", start)
}

func (l *lexer) readWord() token {
	start := l.pos
	for l.pos < len(l.src) && isWordRune(l.src[l.pos]) {
		l.pos++
	}
	word := string(l.src[start:l.pos])
	switch strings.ToUpper(word) {
	case "AND":
		return token{kind: tokAnd, value: word, pos: start}
	case "OR":
		return token{kind: tokOr, value: word, pos: start}
	case "NOT":
		return token{kind: tokNot, value: word, pos: start}
	}
	return token{kind: tokIdent, value: word, pos: start}
}

// Words may contain any letter, so unquoted Chinese terms work.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '/'
}
