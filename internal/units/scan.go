package units

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokMul
	tokDiv
	tokPow
	tokLParen
	tokRParen
	tokShift
)

type token struct {
	kind  tokenKind
	text  string
	end   int  // byte offset just past the token
	space bool // whitespace preceded the token
}

// shiftWords introduce an origin; "@" does the same.
var shiftWords = map[string]bool{"since": true, "after": true, "from": true, "ref": true}

type lexer struct {
	src  string
	pos  int
	peek *token
}

func (l *lexer) next() (token, error) {
	if l.peek != nil {
		t := *l.peek
		l.peek = nil
		return t, nil
	}
	return l.lex()
}

func (l *lexer) lookahead() (token, error) {
	if l.peek == nil {
		t, err := l.lex()
		if err != nil {
			return token{}, err
		}
		l.peek = &t
	}
	return *l.peek, nil
}

func (l *lexer) lex() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	space := l.pos > start
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, end: l.pos, space: space}, nil
	}
	begin := l.pos
	emit := func(kind tokenKind, n int) token {
		l.pos += n
		return token{kind: kind, text: l.src[begin:l.pos], end: l.pos, space: space}
	}
	c := l.src[l.pos]
	switch {
	case c == '*' && strings.HasPrefix(l.src[l.pos:], "**"):
		return emit(tokPow, 2), nil
	case c == '*':
		return emit(tokMul, 1), nil
	case c == '/':
		return emit(tokDiv, 1), nil
	case c == '^':
		return emit(tokPow, 1), nil
	case c == '(':
		return emit(tokLParen, 1), nil
	case c == ')':
		return emit(tokRParen, 1), nil
	case c == '@':
		return emit(tokShift, 1), nil
	case c == '.' && !l.digitAt(l.pos+1):
		return emit(tokMul, 1), nil
	case isDigit(c) || c == '.' || ((c == '+' || c == '-') && (l.digitAt(l.pos+1) || (l.byteAt(l.pos+1) == '.' && l.digitAt(l.pos+2)))):
		return emit(tokNumber, l.numberLen()), nil
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if !isNameRune(r) {
		return token{}, syntaxf("unexpected %q at offset %d", r, l.pos)
	}
	n := 0
	for begin+n < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[begin+n:])
		if !isNameRune(r) {
			break
		}
		n += size
	}
	t := emit(tokName, n)
	if shiftWords[strings.ToLower(t.text)] {
		t.kind = tokShift
	}
	return t, nil
}

func (l *lexer) byteAt(i int) byte {
	if i < len(l.src) {
		return l.src[i]
	}
	return 0
}

func (l *lexer) digitAt(i int) bool { return isDigit(l.byteAt(i)) }

// numberLen measures [+-]digits[.digits][e[+-]digits] starting at l.pos.
func (l *lexer) numberLen() int {
	i := l.pos
	if c := l.byteAt(i); c == '+' || c == '-' {
		i++
	}
	for l.digitAt(i) {
		i++
	}
	if l.byteAt(i) == '.' {
		i++
		for l.digitAt(i) {
			i++
		}
	}
	if c := l.byteAt(i); c == 'e' || c == 'E' {
		j := i + 1
		if c := l.byteAt(j); c == '+' || c == '-' {
			j++
		}
		if l.digitAt(j) {
			for l.digitAt(j) {
				j++
			}
			i = j
		}
	}
	return i - l.pos
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameRune(r rune) bool {
	return r == '_' || r == '%' || unicode.IsLetter(r)
}

type parser struct {
	t  *table
	lx *lexer
}

// scan parses spec against the table. The text is NFKC-normalized first so
// superscript exponents ("m²") and the micro sign read as plain text.
func (t *table) scan(spec string) (Unit, error) {
	src := strings.TrimSpace(norm.NFKC.String(spec))
	if src == "" {
		return Unit{}, newError(ErrInvalid, "empty unit specification")
	}
	p := &parser{t: t, lx: &lexer{src: src}}
	u, err := p.product()
	if err != nil {
		return Unit{}, err
	}
	tok, err := p.lx.next()
	if err != nil {
		return Unit{}, err
	}
	switch tok.kind {
	case tokEOF:
		return u, nil
	case tokShift:
		origin := strings.TrimSpace(src[tok.end:])
		if origin == "" {
			return Unit{}, syntaxf("missing origin after %q", tok.text)
		}
		return applyOrigin(u, origin)
	default:
		return Unit{}, syntaxf("unexpected %q", tok.text)
	}
}

func (p *parser) product() (Unit, error) {
	u, err := p.power()
	if err != nil {
		return Unit{}, err
	}
	for {
		tok, err := p.lx.lookahead()
		if err != nil {
			return Unit{}, err
		}
		switch tok.kind {
		case tokMul, tokDiv:
			p.lx.next()
			v, err := p.power()
			if err != nil {
				return Unit{}, err
			}
			if tok.kind == tokMul {
				u = multiply(u, v)
			} else {
				u = divide(u, v)
			}
		case tokNumber, tokName, tokLParen:
			v, err := p.power()
			if err != nil {
				return Unit{}, err
			}
			u = multiply(u, v)
		default:
			return u, nil
		}
	}
}

func (p *parser) power() (Unit, error) {
	u, exponentOK, err := p.basic()
	if err != nil {
		return Unit{}, err
	}
	tok, err := p.lx.lookahead()
	if err != nil {
		return Unit{}, err
	}
	switch {
	case tok.kind == tokPow:
		p.lx.next()
		n, err := p.lx.next()
		if err != nil {
			return Unit{}, err
		}
		e, err := exponent(n)
		if err != nil {
			return Unit{}, err
		}
		return raise(u, e), nil
	case tok.kind == tokNumber && exponentOK && !tok.space:
		// "m2", "s-1": an integer glued to a name is an exponent.
		if e, err := exponent(tok); err == nil {
			p.lx.next()
			return raise(u, e), nil
		}
	}
	return u, nil
}

func exponent(tok token) (int, error) {
	if tok.kind != tokNumber {
		return 0, syntaxf("expected integer exponent, got %q", tok.text)
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil {
		return 0, syntaxf("exponent %q is not an integer", tok.text)
	}
	return n, nil
}

// basic returns the parsed unit and whether an unmarked exponent may follow.
func (p *parser) basic() (Unit, bool, error) {
	tok, err := p.lx.next()
	if err != nil {
		return Unit{}, false, err
	}
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Unit{}, false, syntaxf("bad number %q", tok.text)
		}
		return dimensionless(f), false, nil
	case tokName:
		u, ok := p.t.lookup(tok.text)
		if !ok {
			return Unit{}, false, newError(ErrUnknown, tok.text)
		}
		return u, true, nil
	case tokLParen:
		u, err := p.product()
		if err != nil {
			return Unit{}, false, err
		}
		closing, err := p.lx.next()
		if err != nil {
			return Unit{}, false, err
		}
		if closing.kind != tokRParen {
			return Unit{}, false, syntaxf("missing ')'")
		}
		return u, true, nil
	case tokEOF:
		return Unit{}, false, syntaxf("unexpected end of specification")
	default:
		return Unit{}, false, syntaxf("unexpected %q", tok.text)
	}
}

// applyOrigin handles the text after "since"/"@". Time units take a
// timestamp; any unit takes a plain number expressed in the unit itself.
func applyOrigin(u Unit, text string) (Unit, error) {
	if IsTime(u) && looksLikeTimestamp(text) {
		secs, err := parseTimestamp(text)
		if err != nil {
			return Unit{}, err
		}
		u.Origin += secs
		u.HasOrigin = true
		return u, nil
	}
	x, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Unit{}, syntaxf("bad origin %q", text)
	}
	return shift(u, x), nil
}
