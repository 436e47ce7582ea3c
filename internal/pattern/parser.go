// File: internal/pattern/parser.go
// Brief: Tokenizer and recursive-descent parser for filter expressions.

package pattern

import (
	"regexp"
	"strings"
	"unicode"
)

// Grammar, lowest precedence first:
//
//	expr    = orExpr
//	orExpr  = andExpr { "||" andExpr }
//	andExpr = unary { "&&" unary }
//	unary   = "!" unary | primary
//	primary = "(" expr ")" | quoted | atom
//
// A quoted atom matches as a case-sensitive substring; a bare atom is
// compiled as a regular expression.

type tokenKind int

const (
	tokenAnd tokenKind = iota
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenQuoted
	tokenAtom
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse compiles a filter-expression string. A blank input yields a nil Expr,
// which Matches treats as pass-through; this lets an unset include or exclude
// flag behave as "no restriction".
func Parse(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, &ParseError{Input: input, Pos: tok.pos, Msg: "unexpected " + describeToken(tok)}
	}
	return expr, nil
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++
		case c == '!':
			tokens = append(tokens, token{kind: tokenNot, text: "!", pos: i})
			i++
		case c == '&':
			if i+1 >= len(input) || input[i+1] != '&' {
				return nil, &ParseError{Input: input, Pos: i, Msg: "expected '&&'"}
			}
			tokens = append(tokens, token{kind: tokenAnd, text: "&&", pos: i})
			i += 2
		case c == '|':
			if i+1 >= len(input) || input[i+1] != '|' {
				return nil, &ParseError{Input: input, Pos: i, Msg: "expected '||'"}
			}
			tokens = append(tokens, token{kind: tokenOr, text: "||", pos: i})
			i += 2
		case c == '"':
			text, next, err := lexQuoted(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: text, pos: i})
			i = next
		default:
			start := i
			for i < len(input) && !isAtomBoundary(input, i) {
				i++
			}
			tokens = append(tokens, token{kind: tokenAtom, text: input[start:i], pos: start})
		}
	}
	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})
	return tokens, nil
}

func lexQuoted(input string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch c {
		case '\\':
			if i+1 < len(input) && (input[i+1] == '"' || input[i+1] == '\\') {
				b.WriteByte(input[i+1])
				i += 2
				continue
			}
			b.WriteByte(c)
			i++
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &ParseError{Input: input, Pos: start, Msg: "unterminated quoted string"}
}

// isAtomBoundary reports whether position i ends a bare atom. Single '&' and
// '|' do not: regexes like `a|b` written without spaces stay intact only when
// doubled operators are used, which matches the documented && / || syntax.
func isAtomBoundary(input string, i int) bool {
	switch input[i] {
	case '(', ')', '"':
		return true
	case '&':
		return i+1 < len(input) && input[i+1] == '&'
	case '|':
		return i+1 < len(input) && input[i+1] == '|'
	default:
		return unicode.IsSpace(rune(input[i]))
	}
}

type parser struct {
	input  string
	tokens []token
	next   int
}

func (p *parser) peek() token {
	return p.tokens[p.next]
}

func (p *parser) advance() token {
	tok := p.tokens[p.next]
	if tok.kind != tokenEOF {
		p.next++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOr {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, p.missingOperand(op, err)
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenAnd {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, p.missingOperand(op, err)
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokenNot {
		op := p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, p.missingOperand(op, err)
		}
		return &notExpr{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.kind {
	case tokenLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.advance()
		if closing.kind != tokenRParen {
			return nil, &ParseError{Input: p.input, Pos: tok.pos, Msg: "unbalanced parenthesis"}
		}
		return expr, nil
	case tokenQuoted:
		return &containsExpr{text: tok.text}, nil
	case tokenAtom:
		re, err := regexp.Compile(tok.text)
		if err != nil {
			return nil, &ParseError{Input: p.input, Pos: tok.pos, Msg: "invalid regular expression " + tok.text}
		}
		return &regexExpr{re: re}, nil
	default:
		return nil, &ParseError{Input: p.input, Pos: tok.pos, Msg: "expected pattern, got " + describeToken(tok)}
	}
}

func (p *parser) missingOperand(op token, err error) error {
	var parseErr *ParseError
	if pe, ok := err.(*ParseError); ok {
		parseErr = pe
	}
	if parseErr != nil && strings.HasPrefix(parseErr.Msg, "expected pattern") {
		return &ParseError{Input: p.input, Pos: op.pos, Msg: "missing operand after " + op.text}
	}
	return err
}

func describeToken(tok token) string {
	switch tok.kind {
	case tokenEOF:
		return "end of input"
	case tokenQuoted:
		return "quoted string"
	default:
		return "'" + tok.text + "'"
	}
}
