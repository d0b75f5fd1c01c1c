package filter

import (
	"fmt"
	"strconv"
)

// Parse compiles a DSL filter string into an expression tree.
//
// Grammar (rough EBNF):
//
//	filter     = or_expr
//	or_expr    = and_expr ("|" and_expr)*
//	and_expr   = unary_expr ("&" unary_expr)*
//	unary_expr = "!" unary_expr | primary
//	primary    = "(" filter ")" | tag_expr
//	tag_expr   = IDENT (compare_op value_list)?
//	value_list = value ("|" value)*
//	value      = IDENT | NUMBER | "*"
//
// An empty string parses to the always-true filter.
func Parse(input string) (Expr, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	if tokens[0].kind == tokEOF {
		return True{}, nil
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s after expression", p.peek().kind)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) at(offset int) token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[idx]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Expr{left}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	return NewOr(children...), nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Expr{left}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	return NewAnd(children...), nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind != tokNot {
		return p.parsePrimary()
	}
	p.next()

	// `!key` with nothing following the key is a negated existence test;
	// `!key=value` negates the whole comparison.
	if p.peek().kind == tokIdent {
		switch p.at(1).kind {
		case tokAnd, tokOr, tokRParen, tokEOF:
			key := p.next().text
			return Exists{Key: Unescape(key), Negated: true}, nil
		}
	}

	inner, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return Not{Child: inner}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.peek().kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')', got %s", p.peek().kind)
		}
		p.next()
		return inner, nil
	case tokIdent:
		return p.parseTagExpr()
	default:
		return nil, fmt.Errorf("unexpected %s", p.peek().kind)
	}
}

func (p *parser) parseTagExpr() (Expr, error) {
	key := Unescape(p.next().text)

	var op CompareOp
	switch p.peek().kind {
	case tokEq:
		p.next()
		values, err := p.parseValueList()
		if err != nil {
			return nil, fmt.Errorf("in values for %q: %w", key, err)
		}
		return TagMatch{Key: key, Values: values}, nil
	case tokNe:
		op = OpNe
	case tokLt:
		op = OpLt
	case tokLe:
		op = OpLe
	case tokGt:
		op = OpGt
	case tokGe:
		op = OpGe
	default:
		// Bare key: existence test.
		return Exists{Key: key}, nil
	}

	p.next()
	tok := p.next()
	if tok.kind != tokNumber {
		return nil, fmt.Errorf("expected number after %q %s, got %s", key, op, tok.kind)
	}
	return NumCompare{Key: key, Op: op, Value: tok.num}, nil
}

// parseValueList parses value ("|" value)*. A "|" followed by an identifier
// and a comparison operator belongs to the next expression (boolean OR), not
// to this value list: "highway=primary|secondary | lanes>=2".
func (p *parser) parseValueList() ([]Value, error) {
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	values := []Value{v}

	for p.peek().kind == tokOr {
		if p.at(1).kind == tokIdent {
			switch p.at(2).kind {
			case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
				return values, nil // boolean OR, stop here
			}
		}
		p.next()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (p *parser) parseValue() (Value, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent:
		return NewValue(tok.text), nil
	case tokNumber:
		return NewValue(strconv.FormatFloat(tok.num, 'f', -1, 64)), nil
	default:
		return Value{}, fmt.Errorf("expected value, got %s", tok.kind)
	}
}
