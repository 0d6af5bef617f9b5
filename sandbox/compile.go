package sandbox

import (
	"strings"
	"time"

	"github.com/notnil/chess"

	"minimaxing/capability"
	"minimaxing/position"
)

// checkEvery is how many steps pass between wall-clock checks.
const checkEvery = 256

// frame is the per-evaluation state. Programs never hold one.
type frame struct {
	board    *position.Board
	persp    chess.Color
	steps    int
	max      int
	timed    bool
	deadline time.Time
}

func (fr *frame) charge(n int) error {
	before := fr.steps
	fr.steps += n
	if fr.steps > fr.max {
		return ErrBudgetExceeded
	}
	if fr.timed && before/checkEvery != fr.steps/checkEvery && time.Now().After(fr.deadline) {
		return ErrBudgetExceeded
	}
	return nil
}

// evalFn is a compiled expression. env holds the arguments of the enclosing
// script function, or nothing in rule mode.
type evalFn func(fr *frame, env []Value) (Value, error)

type function struct {
	name   string
	params int
	body   evalFn
}

type scope struct {
	mode    Mode
	params  map[string]int
	funcs   map[string]*function
	defined map[string]bool
}

func (sc *scope) boardTarget(n *Name) (evalFn, error) {
	if sc.mode == ModeRule {
		if n.ID != "board" {
			return nil, forbidden(n.At, "attribute access")
		}
		return func(*frame, []Value) (Value, error) { return boardValue, nil }, nil
	}
	i, ok := sc.params[n.ID]
	if !ok {
		return nil, forbidden(n.At, "attribute access")
	}
	return func(_ *frame, env []Value) (Value, error) {
		if env[i].kind != KindBoard {
			return Value{}, runtimeErr("%s is a %s, not the board", n.ID, env[i].kind)
		}
		return env[i], nil
	}, nil
}

func (sc *scope) name(n *Name) (evalFn, error) {
	id := n.ID
	if strings.HasPrefix(id, "__") {
		if id == "__import__" {
			return nil, forbidden(n.At, "import")
		}
		return nil, forbidden(n.At, "dunder name")
	}
	if sc.mode == ModeRule {
		switch id {
		case "board":
			return func(fr *frame, _ []Value) (Value, error) {
				return boardValue, fr.charge(1)
			}, nil
		case "color":
			return func(fr *frame, _ []Value) (Value, error) {
				return colorValue(fr.persp), fr.charge(1)
			}, nil
		}
	} else if i, ok := sc.params[id]; ok {
		return func(fr *frame, env []Value) (Value, error) {
			return env[i], fr.charge(1)
		}, nil
	}
	if v, ok := constants[id]; ok {
		return func(fr *frame, _ []Value) (Value, error) {
			return v, fr.charge(1)
		}, nil
	}
	if _, ok := builtins[id]; ok {
		return nil, forbidden(n.At, "function reference")
	}
	if _, ok := capability.Lookup(id); ok {
		return nil, forbidden(n.At, "function reference")
	}
	if _, ok := sc.funcs[id]; ok {
		return nil, forbidden(n.At, "function reference")
	}
	return nil, unknownName(n.At, id)
}

func (sc *scope) compileAll(es []Expr) ([]evalFn, error) {
	out := make([]evalFn, len(es))
	for i, e := range es {
		fn, err := sc.compile(e)
		if err != nil {
			return nil, err
		}
		out[i] = fn
	}
	return out, nil
}

func evalArgs(fr *frame, env []Value, fns []evalFn) ([]Value, error) {
	args := make([]Value, len(fns))
	for i, fn := range fns {
		v, err := fn(fr, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func arity(at Pos, name string, got, lo, hi int) error {
	if got < lo || (hi >= 0 && got > hi) {
		switch {
		case lo == hi:
			return syntaxErr(at, "%s() takes %d argument(s), got %d", name, lo, got)
		case hi < 0:
			return syntaxErr(at, "%s() takes at least %d argument(s), got %d", name, lo, got)
		}
		return syntaxErr(at, "%s() takes %d to %d arguments, got %d", name, lo, hi, got)
	}
	return nil
}

func (sc *scope) compile(e Expr) (evalFn, error) {
	switch e := e.(type) {
	case *NumberLit:
		v := number(e.Value)
		return func(fr *frame, _ []Value) (Value, error) { return v, fr.charge(1) }, nil

	case *BoolLit:
		v := boolean(e.Value)
		return func(fr *frame, _ []Value) (Value, error) { return v, fr.charge(1) }, nil

	case *Name:
		return sc.name(e)

	case *ListLit:
		elems, err := sc.compileAll(e.Elems)
		if err != nil {
			return nil, err
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			vs, err := evalArgs(fr, env, elems)
			if err != nil {
				return Value{}, err
			}
			return listValue(vs), nil
		}, nil

	case *Unary:
		x, err := sc.compile(e.X)
		if err != nil {
			return nil, err
		}
		op := e.Op
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			v, err := x(fr, env)
			if err != nil {
				return Value{}, err
			}
			if op == "not" {
				return boolean(!v.truthy()), nil
			}
			f, ok := v.numeric()
			if !ok {
				return Value{}, runtimeErr("bad operand type for unary %s: %s", op, v.kind)
			}
			if op == "-" {
				f = -f
			}
			return number(f), nil
		}, nil

	case *Binary:
		x, err := sc.compile(e.X)
		if err != nil {
			return nil, err
		}
		y, err := sc.compile(e.Y)
		if err != nil {
			return nil, err
		}
		op := e.Op
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			a, err := x(fr, env)
			if err != nil {
				return Value{}, err
			}
			b, err := y(fr, env)
			if err != nil {
				return Value{}, err
			}
			return arith(op, a, b)
		}, nil

	case *Compare:
		operands, err := sc.compileAll(e.Operands)
		if err != nil {
			return nil, err
		}
		ops := e.Ops
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			left, err := operands[0](fr, env)
			if err != nil {
				return Value{}, err
			}
			for i, op := range ops {
				right, err := operands[i+1](fr, env)
				if err != nil {
					return Value{}, err
				}
				ok, err := compare(op, left, right)
				if err != nil {
					return Value{}, err
				}
				if !ok {
					return boolean(false), nil
				}
				left = right
			}
			return boolean(true), nil
		}, nil

	case *Logical:
		x, err := sc.compile(e.X)
		if err != nil {
			return nil, err
		}
		y, err := sc.compile(e.Y)
		if err != nil {
			return nil, err
		}
		and := e.Op == "and"
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			v, err := x(fr, env)
			if err != nil {
				return Value{}, err
			}
			if v.truthy() != and {
				return v, nil
			}
			return y(fr, env)
		}, nil

	case *Cond:
		test, err := sc.compile(e.Test)
		if err != nil {
			return nil, err
		}
		then, err := sc.compile(e.Then)
		if err != nil {
			return nil, err
		}
		alt, err := sc.compile(e.Else)
		if err != nil {
			return nil, err
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			v, err := test(fr, env)
			if err != nil {
				return Value{}, err
			}
			if v.truthy() {
				return then(fr, env)
			}
			return alt(fr, env)
		}, nil

	case *Call:
		return sc.call(e)

	case *BoardAttr:
		target, err := sc.boardTarget(e.Target)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Attr, "_") {
			return nil, forbidden(e.At, "private attribute")
		}
		get, ok := boardAttrs[e.Attr]
		if !ok {
			if _, isMethod := boardMethods[e.Attr]; isMethod {
				return nil, forbidden(e.At, "method reference")
			}
			return nil, unknownName(e.At, e.Target.ID+"."+e.Attr)
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			if _, err := target(fr, env); err != nil {
				return Value{}, err
			}
			return get(fr), nil
		}, nil

	case *BoardMethod:
		target, err := sc.boardTarget(e.Target)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Method, "_") {
			return nil, forbidden(e.At, "private attribute")
		}
		m, ok := boardMethods[e.Method]
		if !ok {
			return nil, unknownName(e.At, e.Target.ID+"."+e.Method)
		}
		if err := arity(e.At, e.Method, len(e.Args), m.arity, m.arity); err != nil {
			return nil, err
		}
		args, err := sc.compileAll(e.Args)
		if err != nil {
			return nil, err
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(m.cost); err != nil {
				return Value{}, err
			}
			if _, err := target(fr, env); err != nil {
				return Value{}, err
			}
			vs, err := evalArgs(fr, env, args)
			if err != nil {
				return Value{}, err
			}
			return m.fn(fr, vs)
		}, nil
	}
	return nil, syntaxErr(e.Pos(), "unsupported expression")
}

func (sc *scope) call(e *Call) (evalFn, error) {
	if strings.HasPrefix(e.Func, "__") {
		if e.Func == "__import__" {
			return nil, forbidden(e.At, "import")
		}
		return nil, forbidden(e.At, "dunder name")
	}
	args, err := sc.compileAll(e.Args)
	if err != nil {
		return nil, err
	}

	if fn, ok := sc.funcs[e.Func]; ok {
		if err := arity(e.At, e.Func, len(args), fn.params, fn.params); err != nil {
			return nil, err
		}
		body := fn.body
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			vs, err := evalArgs(fr, env, args)
			if err != nil {
				return Value{}, err
			}
			return body(fr, vs)
		}, nil
	}

	if b, ok := builtins[e.Func]; ok {
		if err := arity(e.At, e.Func, len(args), b.min, b.max); err != nil {
			return nil, err
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(1); err != nil {
				return Value{}, err
			}
			vs, err := evalArgs(fr, env, args)
			if err != nil {
				return Value{}, err
			}
			return b.fn(vs)
		}, nil
	}

	if c, ok := capability.Lookup(e.Func); ok {
		lo, hi := capabilityArity(c)
		if err := arity(e.At, e.Func, len(args), lo, hi); err != nil {
			return nil, err
		}
		return func(fr *frame, env []Value) (Value, error) {
			if err := fr.charge(c.Cost); err != nil {
				return Value{}, err
			}
			vs, err := evalArgs(fr, env, args)
			if err != nil {
				return Value{}, err
			}
			return callCapability(fr, c, vs)
		}, nil
	}

	if sc.defined[e.Func] {
		return nil, errAt(e.At, UnknownName, e.Func, "%q is called before it is defined", e.Func)
	}
	return nil, unknownName(e.At, e.Func)
}

// compileScript turns the parsed definitions into functions and returns the
// entry point.
func compileScript(defs []*FuncDef) (*function, error) {
	sc := &scope{mode: ModeScript, funcs: map[string]*function{}, defined: map[string]bool{}}
	for _, d := range defs {
		if sc.defined[d.Name] {
			return nil, syntaxErr(d.At, "function %q defined twice", d.Name)
		}
		if _, ok := builtins[d.Name]; ok {
			return nil, syntaxErr(d.At, "function %q shadows a built-in", d.Name)
		}
		if _, ok := capability.Lookup(d.Name); ok {
			return nil, syntaxErr(d.At, "function %q shadows a capability", d.Name)
		}
		if _, ok := constants[d.Name]; ok {
			return nil, syntaxErr(d.At, "function %q shadows a constant", d.Name)
		}
		sc.defined[d.Name] = true
	}
	for _, d := range defs {
		sc.params = make(map[string]int, len(d.Params))
		for i, p := range d.Params {
			sc.params[p] = i
		}
		body, err := sc.compile(d.Body)
		if err != nil {
			return nil, err
		}
		sc.funcs[d.Name] = &function{name: d.Name, params: len(d.Params), body: body}
	}
	entry, ok := sc.funcs[EntryPoint]
	if !ok {
		return nil, &CompileError{Reason: MissingEntryPoint, Subject: EntryPoint, Msg: "script must define " + EntryPoint + "(board) or " + EntryPoint + "(board, color)"}
	}
	if entry.params < 1 || entry.params > 2 {
		var at Pos
		for _, d := range defs {
			if d.Name == EntryPoint {
				at = d.At
			}
		}
		return nil, errAt(at, MissingEntryPoint, EntryPoint, "%s must take (board) or (board, color), got %d parameter(s)", EntryPoint, entry.params)
	}
	return entry, nil
}
