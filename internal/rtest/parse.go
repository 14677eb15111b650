package rtest

import (
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/rbridge"
)

// errIncomplete marks source that ended in the middle of an expression.
var errIncomplete = stderrors.New("incomplete expression")

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	text string
	kind tokKind
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '.' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '\n' || c == ';':
			toks = append(toks, token{kind: tokNewline, text: string(c), pos: i})
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && src[i] == 'L' {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && (isIdentStart(src[i]) || isDigit(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '"' || c == '\'':
			start := i
			var b strings.Builder
			i++
			for {
				if i >= len(src) {
					return nil, errIncomplete
				}
				if src[i] == c {
					i++
					break
				}
				if src[i] == '\\' && i+1 < len(src) {
					switch src[i+1] {
					case 'n':
						b.WriteByte('\n')
					case 't':
						b.WriteByte('\t')
					default:
						b.WriteByte(src[i+1])
					}
					i += 2
					continue
				}
				b.WriteByte(src[i])
				i++
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})
		case strings.IndexByte("(){},", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected input %q at offset %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	f    *Fake
	toks []token
	i    int
}

func parse(f *Fake, src string) ([]rbridge.Sexp, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{f: f, toks: toks}

	var exprs []rbridge.Sexp
	for {
		p.skipNewlines()
		if p.peek().kind == tokEOF {
			return exprs, nil
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if t := p.peek(); t.kind != tokNewline && t.kind != tokEOF {
			return nil, p.unexpected(t)
		}
	}
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.i++
	}
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return errIncomplete
	}
	return fmt.Errorf("unexpected '%s' at offset %d", t.text, t.pos)
}

func (p *parser) expect(punct string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != punct {
		return p.unexpected(t)
	}
	return nil
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) lang(elems ...rbridge.Sexp) rbridge.Sexp {
	return p.f.alloc(&object{typ: rbridge.LANGSXP, elems: elems})
}

func (p *parser) expr() (rbridge.Sexp, error) {
	e, err := p.primary()
	if err != nil {
		return 0, err
	}
	for p.isPunct("(") {
		p.next()
		args, err := p.args()
		if err != nil {
			return 0, err
		}
		e = p.lang(append([]rbridge.Sexp{e}, args...)...)
	}
	return e, nil
}

func (p *parser) args() ([]rbridge.Sexp, error) {
	var args []rbridge.Sexp
	p.skipNewlines()
	if p.isPunct(")") {
		p.next()
		return args, nil
	}
	for {
		p.skipNewlines()
		a, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		p.skipNewlines()
		t := p.next()
		if t.kind == tokPunct && t.text == ")" {
			return args, nil
		}
		if t.kind != tokPunct || t.text != "," {
			return nil, p.unexpected(t)
		}
	}
}

func (p *parser) primary() (rbridge.Sexp, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return p.number(t)
	case tokString:
		return p.f.String(t.text), nil
	case tokIdent:
		switch t.text {
		case "function":
			return p.function()
		case "TRUE":
			return p.f.alloc(&object{typ: rbridge.LGLSXP, ints: []int32{1}}), nil
		case "FALSE":
			return p.f.alloc(&object{typ: rbridge.LGLSXP, ints: []int32{0}}), nil
		case "NA":
			return p.f.alloc(&object{typ: rbridge.LGLSXP, ints: []int32{math.MinInt32}}), nil
		case "NULL":
			return p.f.nilValue, nil
		}
		return p.f.Install(t.text), nil
	case tokPunct:
		switch t.text {
		case "{":
			return p.block()
		case "(":
			p.skipNewlines()
			e, err := p.expr()
			if err != nil {
				return 0, err
			}
			p.skipNewlines()
			if err := p.expect(")"); err != nil {
				return 0, err
			}
			return e, nil
		}
	}
	return 0, p.unexpected(t)
}

func (p *parser) number(t token) (rbridge.Sexp, error) {
	if strings.HasSuffix(t.text, "L") {
		n, err := strconv.ParseInt(strings.TrimSuffix(t.text, "L"), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", t.text)
		}
		return p.f.Int(int32(n)), nil
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", t.text)
	}
	return p.f.Real(v), nil
}

// function parses `function(a, b, ...) body` into a call to `function`
// whose second element lists the formals and third is the body.
func (p *parser) function() (rbridge.Sexp, error) {
	if err := p.expect("("); err != nil {
		return 0, err
	}
	var formals []string
	for {
		p.skipNewlines()
		t := p.next()
		if t.kind == tokPunct && t.text == ")" && len(formals) == 0 {
			break
		}
		if t.kind != tokIdent {
			return 0, p.unexpected(t)
		}
		formals = append(formals, t.text)
		p.skipNewlines()
		sep := p.next()
		if sep.kind == tokPunct && sep.text == ")" {
			break
		}
		if sep.kind != tokPunct || sep.text != "," {
			return 0, p.unexpected(sep)
		}
	}
	p.skipNewlines()
	body, err := p.expr()
	if err != nil {
		return 0, err
	}
	params := p.f.alloc(&object{typ: rbridge.LISTSXP, strs: formals})
	return p.lang(p.f.Install("function"), params, body), nil
}

func (p *parser) block() (rbridge.Sexp, error) {
	elems := []rbridge.Sexp{p.f.Install("{")}
	for {
		p.skipNewlines()
		if p.isPunct("}") {
			p.next()
			return p.lang(elems...), nil
		}
		e, err := p.expr()
		if err != nil {
			return 0, err
		}
		elems = append(elems, e)
		if t := p.peek(); !(t.kind == tokNewline || (t.kind == tokPunct && t.text == "}")) {
			return 0, p.unexpected(t)
		}
	}
}
