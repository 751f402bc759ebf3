package recql

import (
	"fmt"
	"strings"
)

type parser struct {
	lex *lexer
	cur token
}

// Parse turns an expression into a tree. An empty or blank expression
// yields a nil Node, which matches everything.
//
//	level>=warning AND (category:Combat OR "boss")
//	NOT scene:Lobby
//	message~购买
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := &parser{lex: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("position %d: unexpected %s", p.cur.pos, p.cur)
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

// Adjacent terms without an operator are an implicit AND.
func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.kind {
		case tokAnd:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case tokIdent, tokString, tokNot, tokLParen:
		default:
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	if p.cur.kind != tokNot {
		return p.parsePrimary()
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	inner, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return Not{Expr: inner}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("position %d: expected ')' but got %s", p.cur.pos, p.cur)
		}
		return inner, p.advance()

	case tokString:
		value := p.cur.value
		return Match{Op: OpContains, Value: value}, p.advance()

	case tokIdent:
		word := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokOp {
			return Match{Op: OpContains, Value: word.value}, nil
		}
		op := p.cur.op
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.comparison(word, op)
	}
	return nil, fmt.Errorf("position %d: unexpected %s", p.cur.pos, p.cur)
}

func (p *parser) comparison(word token, op Op) (Node, error) {
	field, ok := lookupField(word.value)
	if !ok {
		return nil, fmt.Errorf("position %d: unknown field %q", word.pos, word.value)
	}
	if p.cur.kind != tokIdent && p.cur.kind != tokString {
		return nil, fmt.Errorf("position %d: expected value after %s%s but got %s", p.cur.pos, word.value, op, p.cur)
	}
	value := p.cur.value
	if op.ordered() && field != FieldLevel {
		return nil, fmt.Errorf("position %d: operator %s only applies to level", word.pos, op)
	}
	if field == FieldLevel {
		if _, err := parseLevel(value); err != nil {
			return nil, fmt.Errorf("position %d: %w", p.cur.pos, err)
		}
	}
	return Match{Field: field, Op: op, Value: value}, p.advance()
}
