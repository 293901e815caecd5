// Package tagexpr evaluates boolean tag expressions such as
// "@smoke and not (@slow or @wip)" against a set of tag names.
//
// Grammar (lowest to highest precedence):
//
//	expr := or
//	or   := and ("or" and)*
//	and  := not ("and" not)*
//	not  := "not" not | atom
//	atom := "(" expr ")" | TAG
//
// A backslash escapes the next character inside a tag, so "@a\ b" is the tag
// "@a b" and "@x\(y\)" is the tag "@x(y)". The empty expression evaluates to
// true for every tag set.
package tagexpr

import (
	"fmt"
	"strings"
)

// Expr is a parsed tag expression.
type Expr interface {
	// Evaluate reports whether the expression holds for the given tags.
	Evaluate(tags []string) bool
	// String renders the expression in canonical, fully parenthesised form.
	String() string
}

// True is the expression that matches every tag set.
type True struct{}

func (True) Evaluate([]string) bool { return true }
func (True) String() string         { return "true" }

// Literal matches when the tag set contains Name.
type Literal struct {
	Name string
}

func (l Literal) Evaluate(tags []string) bool {
	for _, t := range tags {
		if t == l.Name {
			return true
		}
	}
	return false
}

func (l Literal) String() string {
	var b strings.Builder
	for _, r := range l.Name {
		if r == '(' || r == ')' || r == '\\' || r == ' ' {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// And matches when both operands match.
type And struct {
	Left, Right Expr
}

func (a And) Evaluate(tags []string) bool {
	return a.Left.Evaluate(tags) && a.Right.Evaluate(tags)
}

func (a And) String() string {
	return "( " + a.Left.String() + " and " + a.Right.String() + " )"
}

// Or matches when either operand matches.
type Or struct {
	Left, Right Expr
}

func (o Or) Evaluate(tags []string) bool {
	return o.Left.Evaluate(tags) || o.Right.Evaluate(tags)
}

func (o Or) String() string {
	return "( " + o.Left.String() + " or " + o.Right.String() + " )"
}

// Not negates its operand.
type Not struct {
	Expr Expr
}

func (n Not) Evaluate(tags []string) bool {
	return !n.Expr.Evaluate(tags)
}

func (n Not) String() string {
	return "not ( " + n.Expr.String() + " )"
}

// ParseError describes a malformed tag expression.
type ParseError struct {
	Expression string
	Offset     int
	Message    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("tag expression %q: %s at offset %d", e.Expression, e.Message, e.Offset)
}

// Parse compiles a tag expression. Blank input yields True.
func Parse(expression string) (Expr, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return True{}, nil
	}

	p := &parser{src: expression, toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		t := p.peek()
		return nil, p.errorf(t.offset, "unexpected %q", t.text)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level variables.
func MustParse(expression string) Expr {
	e, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return e
}

type tokenKind int

const (
	tokTag tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", offset: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", offset: i})
			i++
		default:
			start := i
			var b strings.Builder
			for i < len(runes) {
				c := runes[i]
				if c == '\\' {
					if i+1 >= len(runes) {
						return nil, &ParseError{Expression: src, Offset: i, Message: "dangling escape"}
					}
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' {
					break
				}
				b.WriteRune(c)
				i++
			}
			word := b.String()
			raw := string(runes[start:i])
			kind := tokTag
			// Escaped keywords stay tags.
			switch raw {
			case "and":
				kind = tokAnd
			case "or":
				kind = tokOr
			case "not":
				kind = tokNot
			}
			toks = append(toks, token{kind: kind, text: word, offset: start})
		}
	}
	return toks, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) done() bool  { return p.pos >= len(p.toks) }
func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) at(k tokenKind) bool {
	return !p.done() && p.peek().kind == k
}

func (p *parser) errorf(offset int, format string, args ...any) error {
	return &ParseError{Expression: p.src, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) endOffset() int {
	return len([]rune(p.src))
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.at(tokNot) {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	if p.done() {
		return nil, p.errorf(p.endOffset(), "unexpected end of expression")
	}
	t := p.next()
	switch t.kind {
	case tokTag:
		return Literal{Name: t.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.at(tokRParen) {
			return nil, p.errorf(p.endOffsetOrCurrent(), "missing closing parenthesis")
		}
		p.next()
		return inner, nil
	default:
		return nil, p.errorf(t.offset, "unexpected %q", t.text)
	}
}

func (p *parser) endOffsetOrCurrent() int {
	if p.done() {
		return p.endOffset()
	}
	return p.peek().offset
}
