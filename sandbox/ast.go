package sandbox

// Expr is a node of the restricted expression grammar. The set of node types
// is closed: only the types in this file implement it.
type Expr interface {
	Pos() Pos
	exprNode()
}

type (
	// NumberLit is a numeric literal; integers are represented as floats.
	NumberLit struct {
		At    Pos
		Value float64
	}

	BoolLit struct {
		At    Pos
		Value bool
	}

	// Name is a bare identifier, resolved against the allow-list at compile
	// time.
	Name struct {
		At Pos
		ID string
	}

	ListLit struct {
		At    Pos
		Elems []Expr
	}

	// Unary is -x, +x or not x.
	Unary struct {
		At Pos
		Op string
		X  Expr
	}

	// Binary is an arithmetic operation.
	Binary struct {
		At   Pos
		Op   string
		X, Y Expr
	}

	// Compare is a comparison chain a < b <= c.
	Compare struct {
		At       Pos
		Ops      []string
		Operands []Expr
	}

	// Logical is a short-circuit and/or.
	Logical struct {
		At   Pos
		Op   string
		X, Y Expr
	}

	// Cond is the conditional expression Then if Test else Else.
	Cond struct {
		At               Pos
		Test, Then, Else Expr
	}

	// Call invokes a built-in, capability or script function by name.
	Call struct {
		At   Pos
		Func string
		Args []Expr
	}

	// BoardAttr reads a property of the position accessor.
	BoardAttr struct {
		At     Pos
		Target *Name
		Attr   string
	}

	// BoardMethod calls a method of the position accessor.
	BoardMethod struct {
		At     Pos
		Target *Name
		Method string
		Args   []Expr
	}
)

func (e *NumberLit) Pos() Pos   { return e.At }
func (e *BoolLit) Pos() Pos     { return e.At }
func (e *Name) Pos() Pos        { return e.At }
func (e *ListLit) Pos() Pos     { return e.At }
func (e *Unary) Pos() Pos       { return e.At }
func (e *Binary) Pos() Pos      { return e.At }
func (e *Compare) Pos() Pos     { return e.At }
func (e *Logical) Pos() Pos     { return e.At }
func (e *Cond) Pos() Pos        { return e.At }
func (e *Call) Pos() Pos        { return e.At }
func (e *BoardAttr) Pos() Pos   { return e.At }
func (e *BoardMethod) Pos() Pos { return e.At }

func (*NumberLit) exprNode()   {}
func (*BoolLit) exprNode()     {}
func (*Name) exprNode()        {}
func (*ListLit) exprNode()     {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Compare) exprNode()     {}
func (*Logical) exprNode()     {}
func (*Cond) exprNode()        {}
func (*Call) exprNode()        {}
func (*BoardAttr) exprNode()   {}
func (*BoardMethod) exprNode() {}

// FuncDef is a script-mode function: a parameter list and one returned
// expression.
type FuncDef struct {
	At     Pos
	Name   string
	Params []string
	Body   Expr
}
