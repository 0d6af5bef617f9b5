package sandbox

import (
	"strconv"
	"strings"
)

// Pos is a 1-based line and column in the source.
type Pos struct {
	Line int
	Col  int
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokNumber
	tokString
	tokOp
	tokNewline
	tokIndent
	tokDedent
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  Pos
}

// operators, longest first so that "**=" wins over "**" and "*".
var operators = []string{
	"**=", "//=", ">>=", "<<=",
	"**", "//", "==", "!=", "<=", ">=", "->", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>", ":=",
	"+", "-", "*", "/", "%", "<", ">", "(", ")", "[", "]", "{", "}", ",", ":", ".", "=", ";", "@", "&", "|", "^", "~",
}

type lexer struct {
	src    string
	off    int
	line   int
	col    int
	depth  int
	indent []int
	toks   []token
	bol    bool
}

// lex tokenizes src. When layout is true newlines and indentation are
// significant, as in script mode; otherwise newlines outside brackets only
// separate statements and indentation is ignored.
func lex(src string, layout bool) ([]token, error) {
	lx := &lexer{src: strings.ReplaceAll(src, "\r\n", "\n"), line: 1, col: 1, indent: []int{0}, bol: true}
	for {
		if lx.bol && lx.depth == 0 {
			if err := lx.lineStart(layout); err != nil {
				return nil, err
			}
			if lx.off >= len(lx.src) {
				break
			}
		}
		if lx.off >= len(lx.src) {
			break
		}
		c := lx.src[lx.off]
		switch {
		case c == '\n':
			if lx.depth == 0 {
				lx.emit(tokNewline, "\n", 0, lx.pos())
				lx.bol = true
			}
			lx.advance(1)
		case c == ' ' || c == '\t':
			lx.advance(1)
		case c == '\\' && lx.peek(1) == '\n':
			lx.advance(2)
		case c == '#':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance(1)
			}
		case isLetter(c):
			start, p := lx.off, lx.pos()
			for lx.off < len(lx.src) && (isLetter(lx.src[lx.off]) || isDigit(lx.src[lx.off])) {
				lx.advance(1)
			}
			lx.emit(tokName, lx.src[start:lx.off], 0, p)
		case isDigit(c) || (c == '.' && isDigit(lx.peek(1))):
			if err := lx.number(); err != nil {
				return nil, err
			}
		case c == '"' || c == '\'':
			if err := lx.str(); err != nil {
				return nil, err
			}
		default:
			if !lx.operator() {
				return nil, syntaxErr(lx.pos(), "unexpected character %q", c)
			}
		}
	}
	if lx.depth > 0 {
		return nil, syntaxErr(lx.pos(), "unclosed bracket")
	}
	if n := len(lx.toks); n > 0 && lx.toks[n-1].kind != tokNewline {
		lx.emit(tokNewline, "\n", 0, lx.pos())
	}
	for len(lx.indent) > 1 {
		lx.indent = lx.indent[:len(lx.indent)-1]
		lx.emit(tokDedent, "", 0, lx.pos())
	}
	lx.emit(tokEOF, "", 0, lx.pos())
	return lx.toks, nil
}

// lineStart consumes indentation, skipping blank and comment-only lines, and
// emits INDENT/DEDENT tokens when layout is significant.
func (lx *lexer) lineStart(layout bool) error {
	for {
		width, start := 0, lx.off
		for lx.off < len(lx.src) && (lx.src[lx.off] == ' ' || lx.src[lx.off] == '\t') {
			if lx.src[lx.off] == '\t' {
				width += 8 - width%8
			} else {
				width++
			}
			lx.advance(1)
		}
		if lx.off >= len(lx.src) {
			return nil
		}
		switch lx.src[lx.off] {
		case '\n':
			lx.advance(1)
			continue
		case '#':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance(1)
			}
			continue
		}
		lx.bol = false
		if !layout {
			return nil
		}
		top := lx.indent[len(lx.indent)-1]
		switch {
		case width > top:
			lx.indent = append(lx.indent, width)
			lx.emit(tokIndent, lx.src[start:lx.off], 0, lx.pos())
		case width < top:
			for width < lx.indent[len(lx.indent)-1] {
				lx.indent = lx.indent[:len(lx.indent)-1]
				lx.emit(tokDedent, "", 0, lx.pos())
			}
			if width != lx.indent[len(lx.indent)-1] {
				return syntaxErr(lx.pos(), "inconsistent dedent")
			}
		}
		return nil
	}
}

func (lx *lexer) number() error {
	start, p := lx.off, lx.pos()
	for lx.off < len(lx.src) && (isDigit(lx.src[lx.off]) || lx.src[lx.off] == '.' || lx.src[lx.off] == '_') {
		lx.advance(1)
	}
	if lx.off < len(lx.src) && (lx.src[lx.off] == 'e' || lx.src[lx.off] == 'E') {
		lx.advance(1)
		if lx.off < len(lx.src) && (lx.src[lx.off] == '+' || lx.src[lx.off] == '-') {
			lx.advance(1)
		}
		for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
			lx.advance(1)
		}
	}
	if lx.off < len(lx.src) && isLetter(lx.src[lx.off]) {
		return syntaxErr(p, "malformed number")
	}
	text := lx.src[start:lx.off]
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return syntaxErr(p, "malformed number %q", text)
	}
	lx.emit(tokNumber, text, v, p)
	return nil
}

func (lx *lexer) str() error {
	p := lx.pos()
	q := lx.src[lx.off]
	delim := string(q)
	if strings.HasPrefix(lx.src[lx.off:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	lx.advance(len(delim))
	start := lx.off
	for {
		if lx.off >= len(lx.src) {
			return syntaxErr(p, "unterminated string")
		}
		if strings.HasPrefix(lx.src[lx.off:], delim) {
			break
		}
		c := lx.src[lx.off]
		if c == '\n' && len(delim) == 1 {
			return syntaxErr(p, "unterminated string")
		}
		if c == '\\' {
			lx.advance(1)
		}
		lx.advance(1)
	}
	text := lx.src[start:lx.off]
	lx.advance(len(delim))
	lx.emit(tokString, text, 0, p)
	return nil
}

func (lx *lexer) operator() bool {
	rest := lx.src[lx.off:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			p := lx.pos()
			switch op {
			case "(", "[", "{":
				lx.depth++
			case ")", "]", "}":
				if lx.depth > 0 {
					lx.depth--
				}
			}
			lx.advance(len(op))
			lx.emit(tokOp, op, 0, p)
			return true
		}
	}
	return false
}

func (lx *lexer) emit(k tokenKind, text string, num float64, p Pos) {
	lx.toks = append(lx.toks, token{kind: k, text: text, num: num, pos: p})
}

func (lx *lexer) pos() Pos { return Pos{Line: lx.line, Col: lx.col} }

func (lx *lexer) peek(n int) byte {
	if lx.off+n < len(lx.src) {
		return lx.src[lx.off+n]
	}
	return 0
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n && lx.off < len(lx.src); i++ {
		if lx.src[lx.off] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.off++
	}
}

func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
