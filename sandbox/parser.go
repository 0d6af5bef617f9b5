package sandbox

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "if": true, "else": true, "elif": true,
	"for": true, "while": true, "def": true, "return": true, "import": true,
	"from": true, "del": true, "lambda": true, "try": true, "except": true,
	"finally": true, "raise": true, "with": true, "class": true, "global": true,
	"nonlocal": true, "yield": true, "await": true, "async": true, "pass": true,
	"break": true, "continue": true, "assert": true, "in": true, "is": true,
	"as": true, "True": true, "False": true, "None": true,
}

// statementKinds names the construct a statement keyword introduces.
var statementKinds = map[string]string{
	"import":   "import",
	"from":     "import",
	"for":      "loop",
	"while":    "loop",
	"if":       "branch statement",
	"elif":     "branch statement",
	"else":     "branch statement",
	"try":      "exception handling",
	"except":   "exception handling",
	"finally":  "exception handling",
	"raise":    "exception handling",
	"with":     "with statement",
	"del":      "deletion",
	"class":    "class definition",
	"global":   "global declaration",
	"nonlocal": "global declaration",
	"lambda":   "lambda",
	"yield":    "generator",
	"await":    "coroutine",
	"async":    "coroutine",
	"pass":     "control flow statement",
	"break":    "control flow statement",
	"continue": "control flow statement",
	"assert":   "assert statement",
}

var assignOps = map[string]string{
	"=": "assignment", ":=": "assignment",
	"+=": "augmented assignment", "-=": "augmented assignment", "*=": "augmented assignment",
	"/=": "augmented assignment", "//=": "augmented assignment", "%=": "augmented assignment",
	"**=": "augmented assignment", "&=": "augmented assignment", "|=": "augmented assignment",
	"^=": "augmented assignment", "<<=": "augmented assignment", ">>=": "augmented assignment",
}

var bitwiseOps = map[string]bool{"&": true, "|": true, "^": true, "~": true, "<<": true, ">>": true, "@": true}

// maxNesting bounds how deeply expressions may nest.
const maxNesting = 100

type parser struct {
	toks  []token
	i     int
	depth int
}

// enter counts one level of nesting at pos; pair it with leave.
func (p *parser) enter(pos Pos) error {
	p.depth++
	if p.depth > maxNesting {
		return syntaxErr(pos, "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isOp(s string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == s
}

func (p *parser) isKw(s string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == s
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.next()
	}
}

func (p *parser) expectOp(s string) error {
	if p.isOp(s) {
		p.next()
		return nil
	}
	return p.unexpected(p.peek(), "expected %q", s)
}

func (p *parser) expectKind(k tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != k {
		return t, p.unexpected(t, "expected %s", what)
	}
	return p.next(), nil
}

// unexpected turns a stray token into the most specific rejection: a
// forbidden construct when the token introduces one, a syntax error otherwise.
func (p *parser) unexpected(t token, format string, args ...interface{}) error {
	switch t.kind {
	case tokOp:
		if kind, ok := assignOps[t.text]; ok {
			return forbidden(t.pos, kind)
		}
		if bitwiseOps[t.text] {
			return forbidden(t.pos, "bitwise operator")
		}
		switch t.text {
		case "{":
			return forbidden(t.pos, "dict or set literal")
		case "[":
			return forbidden(t.pos, "subscript")
		case ";":
			return forbidden(t.pos, "multiple statements")
		case "->":
			return forbidden(t.pos, "annotation")
		}
	case tokName:
		if kind, ok := statementKinds[t.text]; ok {
			if t.text == "for" {
				return forbidden(t.pos, "comprehension")
			}
			return forbidden(t.pos, kind)
		}
		if t.text == "in" || t.text == "is" {
			return forbidden(t.pos, "membership or identity test")
		}
	case tokString:
		return forbidden(t.pos, "string literal")
	case tokIndent:
		return syntaxErr(t.pos, "unexpected indent")
	}
	return syntaxErr(t.pos, format, args...)
}

// statementGuard rejects a statement introduced by a keyword.
func (p *parser) statementGuard() error {
	t := p.peek()
	if t.kind != tokName {
		return nil
	}
	if kind, ok := statementKinds[t.text]; ok {
		return forbidden(t.pos, kind)
	}
	return nil
}

// exprStatement parses an expression used as a statement and rejects what
// follows it if that makes it an assignment.
func (p *parser) exprStatement() (Expr, error) {
	if err := p.statementGuard(); err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokOp {
		if t.text == ":" {
			return nil, forbidden(t.pos, "assignment")
		}
		return nil, p.unexpected(t, "unexpected %q", t.text)
	}
	if t.kind != tokNewline && t.kind != tokEOF {
		return nil, p.unexpected(t, "unexpected %q", t.text)
	}
	return e, nil
}

// parseRule parses legacy rule source: exactly one expression.
func parseRule(toks []token) (Expr, error) {
	p := &parser{toks: toks}
	p.skipNewlines()
	if p.peek().kind == tokEOF {
		return nil, syntaxErr(p.peek().pos, "empty rule")
	}
	if p.isKw("def") {
		return nil, forbidden(p.peek().pos, "function definition")
	}
	if p.isKw("return") {
		return nil, syntaxErr(p.peek().pos, "return outside function")
	}
	e, err := p.exprStatement()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if t := p.peek(); t.kind != tokEOF {
		if err := p.statementGuard(); err != nil {
			return nil, err
		}
		if _, err := p.exprStatement(); err != nil {
			return nil, err
		}
		return nil, forbidden(t.pos, "multiple statements")
	}
	return e, nil
}

// parseScript parses script source: a sequence of function definitions.
func parseScript(toks []token) ([]*FuncDef, error) {
	p := &parser{toks: toks}
	p.skipNewlines()
	p.docstring()
	var defs []*FuncDef
	for p.peek().kind != tokEOF {
		t := p.peek()
		switch {
		case p.isKw("def"):
			fn, err := p.funcDef()
			if err != nil {
				return nil, err
			}
			defs = append(defs, fn)
		case t.kind == tokIndent:
			return nil, syntaxErr(t.pos, "unexpected indent")
		case p.isKw("return"):
			return nil, syntaxErr(t.pos, "return outside function")
		default:
			if _, err := p.exprStatement(); err != nil {
				return nil, err
			}
			return nil, forbidden(t.pos, "top-level statement")
		}
		p.skipNewlines()
	}
	return defs, nil
}

func (p *parser) docstring() {
	if p.peek().kind == tokString && p.peekAt(1).kind == tokNewline {
		p.next()
		p.skipNewlines()
	}
}

func (p *parser) funcDef() (*FuncDef, error) {
	at := p.next().pos
	name, err := p.expectKind(tokName, "function name")
	if err != nil {
		return nil, err
	}
	if keywords[name.text] {
		return nil, syntaxErr(name.pos, "%q is a keyword", name.text)
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.isOp(")") {
		t := p.peek()
		if t.kind == tokOp && (t.text == "*" || t.text == "**") {
			return nil, forbidden(t.pos, "argument unpacking")
		}
		pt, err := p.expectKind(tokName, "parameter name")
		if err != nil {
			return nil, err
		}
		if keywords[pt.text] {
			return nil, syntaxErr(pt.pos, "%q is a keyword", pt.text)
		}
		for _, prev := range params {
			if prev == pt.text {
				return nil, syntaxErr(pt.pos, "duplicate parameter %q", pt.text)
			}
		}
		params = append(params, pt.text)
		switch {
		case p.isOp("="):
			return nil, forbidden(p.peek().pos, "default argument")
		case p.isOp(":"):
			return nil, forbidden(p.peek().pos, "annotation")
		case p.isOp(","):
			p.next()
		case !p.isOp(")"):
			return nil, p.unexpected(p.peek(), "expected ',' or ')'")
		}
	}
	p.next()
	if p.isOp("->") {
		return nil, forbidden(p.peek().pos, "annotation")
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}

	fn := &FuncDef{At: at, Name: name.text, Params: params}
	if p.peek().kind != tokNewline {
		body, err := p.returnStmt()
		if err != nil {
			return nil, err
		}
		fn.Body = body
		return fn, nil
	}
	p.next()
	if _, err := p.expectKind(tokIndent, "indented function body"); err != nil {
		return nil, err
	}
	p.docstring()
	switch {
	case p.isKw("def"):
		return nil, forbidden(p.peek().pos, "nested function")
	case !p.isKw("return"):
		t := p.peek()
		if _, err := p.exprStatement(); err != nil {
			return nil, err
		}
		return nil, syntaxErr(t.pos, "function body must be a single return statement")
	}
	body, err := p.returnStmt()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if t := p.peek(); t.kind != tokDedent {
		if p.isKw("def") {
			return nil, forbidden(t.pos, "nested function")
		}
		if _, err := p.exprStatement(); err != nil {
			return nil, err
		}
		return nil, syntaxErr(t.pos, "statement after return")
	}
	p.next()
	fn.Body = body
	return fn, nil
}

func (p *parser) returnStmt() (Expr, error) {
	at := p.peek().pos
	if !p.isKw("return") {
		if err := p.statementGuard(); err != nil {
			return nil, err
		}
		return nil, syntaxErr(at, "function body must be a single return statement")
	}
	p.next()
	if p.peek().kind == tokNewline {
		return nil, syntaxErr(at, "return needs a value")
	}
	e, err := p.exprStatement()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokNewline {
		p.next()
	}
	return e, nil
}

func (p *parser) expr() (Expr, error) {
	if err := p.enter(p.peek().pos); err != nil {
		return nil, err
	}
	defer p.leave()
	if t := p.peek(); t.kind == tokName {
		switch t.text {
		case "lambda", "yield", "await":
			return nil, forbidden(t.pos, statementKinds[t.text])
		}
	}
	x, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.isKw("if") {
		return x, nil
	}
	at := p.next().pos
	test, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.isKw("else") {
		return nil, p.unexpected(p.peek(), "expected 'else'")
	}
	p.next()
	alt, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &Cond{At: at, Test: test, Then: x, Else: alt}, nil
}

func (p *parser) orExpr() (Expr, error) {
	x, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.isKw("or") {
		at := p.next().pos
		y, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		x = &Logical{At: at, Op: "or", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) andExpr() (Expr, error) {
	x, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.isKw("and") {
		at := p.next().pos
		y, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		x = &Logical{At: at, Op: "and", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) notExpr() (Expr, error) {
	if p.isKw("not") {
		at := p.next().pos
		if err := p.enter(at); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &Unary{At: at, Op: "not", X: x}, nil
	}
	return p.comparison()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) comparison() (Expr, error) {
	x, err := p.arith()
	if err != nil {
		return nil, err
	}
	cmp := &Compare{At: x.Pos(), Operands: []Expr{x}}
	for {
		t := p.peek()
		if t.kind == tokName && (t.text == "in" || t.text == "is" || (t.text == "not" && p.peekAt(1).text == "in")) {
			return nil, forbidden(t.pos, "membership or identity test")
		}
		if t.kind != tokOp || !compareOps[t.text] {
			break
		}
		p.next()
		y, err := p.arith()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, t.text)
		cmp.Operands = append(cmp.Operands, y)
	}
	if len(cmp.Ops) == 0 {
		return x, nil
	}
	return cmp, nil
}

func (p *parser) arith() (Expr, error) {
	x, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		t := p.next()
		y, err := p.term()
		if err != nil {
			return nil, err
		}
		x = &Binary{At: t.pos, Op: t.text, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) term() (Expr, error) {
	x, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		t := p.next()
		y, err := p.factor()
		if err != nil {
			return nil, err
		}
		x = &Binary{At: t.pos, Op: t.text, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) factor() (Expr, error) {
	if p.isOp("-") || p.isOp("+") {
		t := p.next()
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &Unary{At: t.pos, Op: t.text, X: x}, nil
	}
	if p.isOp("~") {
		return nil, forbidden(p.peek().pos, "bitwise operator")
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	x, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		t := p.next()
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		y, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &Binary{At: t.pos, Op: "**", X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) postfix() (Expr, error) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case p.isOp("("):
			callee, ok := x.(*Name)
			if !ok {
				return nil, forbidden(t.pos, "indirect call")
			}
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			x = &Call{At: callee.At, Func: callee.ID, Args: args}
		case p.isOp("."):
			p.next()
			attr, err := p.expectKind(tokName, "attribute name")
			if err != nil {
				return nil, err
			}
			target, ok := x.(*Name)
			if !ok {
				return nil, forbidden(t.pos, "attribute access")
			}
			if p.isOp("(") {
				args, err := p.args()
				if err != nil {
					return nil, err
				}
				x = &BoardMethod{At: t.pos, Target: target, Method: attr.text, Args: args}
			} else {
				x = &BoardAttr{At: t.pos, Target: target, Attr: attr.text}
			}
		case p.isOp("["):
			return nil, forbidden(t.pos, "subscript")
		default:
			return x, nil
		}
	}
}

func (p *parser) args() ([]Expr, error) {
	p.next()
	var out []Expr
	for !p.isOp(")") {
		t := p.peek()
		if t.kind == tokOp && (t.text == "*" || t.text == "**") {
			return nil, forbidden(t.pos, "argument unpacking")
		}
		if t.kind == tokName && p.peekAt(1).kind == tokOp && p.peekAt(1).text == "=" {
			return nil, forbidden(t.pos, "keyword argument")
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.isKw("for") || p.isKw("async") {
			return nil, forbidden(p.peek().pos, "comprehension")
		}
		out = append(out, e)
		if p.isOp(",") {
			p.next()
			continue
		}
		if !p.isOp(")") {
			return nil, p.unexpected(p.peek(), "expected ',' or ')'")
		}
	}
	p.next()
	return out, nil
}

func (p *parser) atom() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &NumberLit{At: t.pos, Value: t.num}, nil
	case tokString:
		return nil, forbidden(t.pos, "string literal")
	case tokName:
		switch t.text {
		case "True", "False":
			p.next()
			return &BoolLit{At: t.pos, Value: t.text == "True"}, nil
		case "None":
			p.next()
			return &Name{At: t.pos, ID: t.text}, nil
		}
		if keywords[t.text] {
			return nil, p.unexpected(t, "unexpected keyword %q", t.text)
		}
		p.next()
		return &Name{At: t.pos, ID: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			p.next()
			if p.isOp(")") {
				return nil, forbidden(t.pos, "tuple")
			}
			e, err := p.expr()
			if err != nil {
				return nil, err
			}
			if p.isKw("for") || p.isKw("async") {
				return nil, forbidden(p.peek().pos, "comprehension")
			}
			if p.isOp(",") {
				return nil, forbidden(p.peek().pos, "tuple")
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.next()
			list := &ListLit{At: t.pos}
			for !p.isOp("]") {
				e, err := p.expr()
				if err != nil {
					return nil, err
				}
				if p.isKw("for") || p.isKw("async") {
					return nil, forbidden(p.peek().pos, "comprehension")
				}
				list.Elems = append(list.Elems, e)
				if p.isOp(",") {
					p.next()
					continue
				}
				if !p.isOp("]") {
					return nil, p.unexpected(p.peek(), "expected ',' or ']'")
				}
			}
			p.next()
			return list, nil
		case "*", "**":
			return nil, forbidden(t.pos, "argument unpacking")
		}
	case tokNewline, tokEOF:
		return nil, syntaxErr(t.pos, "unexpected end of expression")
	}
	return nil, p.unexpected(t, "unexpected %q", t.text)
}
