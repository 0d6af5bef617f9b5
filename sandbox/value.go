package sandbox

import (
	"math"
	"strconv"

	"github.com/notnil/chess"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindBool
	KindList
	KindBoard
	KindColor
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindBoard:
		return "board"
	case KindColor:
		return "color"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a sandbox value. The board value carries no payload: there is
// exactly one position per evaluation and it lives in the frame.
type Value struct {
	kind  Kind
	num   float64
	color chess.Color
	list  []Value
}

var boardValue = Value{kind: KindBoard}

func number(f float64) Value { return Value{kind: KindNumber, num: f} }

func boolean(b bool) Value {
	if b {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

func colorValue(c chess.Color) Value {
	v := Value{kind: KindColor, color: c}
	if c == chess.White {
		v.num = 1
	}
	return v
}

func listValue(vs []Value) Value { return Value{kind: KindList, list: vs} }

// numeric reports the value as a number. Bools and colors count as 1 or 0
// (WHITE is truthy).
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindNumber, KindBool, KindColor:
		return v.num, true
	}
	return 0, false
}

func (v Value) truthy() bool {
	switch v.kind {
	case KindNumber, KindBool, KindColor:
		return v.num != 0
	case KindList:
		return len(v.list) > 0
	}
	return true
}

func (v Value) equal(w Value) bool {
	if a, ok := v.numeric(); ok {
		b, ok := w.numeric()
		return ok && a == b
	}
	if v.kind != w.kind {
		return false
	}
	if v.kind == KindList {
		if len(v.list) != len(w.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].equal(w.list[i]) {
				return false
			}
		}
	}
	return true
}

func (v Value) asColor() (chess.Color, bool) {
	switch v.kind {
	case KindColor:
		return v.color, true
	case KindBool:
		if v.num != 0 {
			return chess.White, true
		}
		return chess.Black, true
	}
	return chess.NoColor, false
}

func arith(op string, x, y Value) (Value, error) {
	if op == "+" && x.kind == KindList && y.kind == KindList {
		out := make([]Value, 0, len(x.list)+len(y.list))
		out = append(append(out, x.list...), y.list...)
		return listValue(out), nil
	}
	a, ok1 := x.numeric()
	b, ok2 := y.numeric()
	if !ok1 || !ok2 {
		return Value{}, runtimeErr("unsupported operand types for %s: %s and %s", op, x.kind, y.kind)
	}
	switch op {
	case "+":
		return number(a + b), nil
	case "-":
		return number(a - b), nil
	case "*":
		return number(a * b), nil
	case "/":
		if b == 0 {
			return Value{}, runtimeErr("division by zero")
		}
		return number(a / b), nil
	case "//":
		if b == 0 {
			return Value{}, runtimeErr("integer division by zero")
		}
		return number(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return Value{}, runtimeErr("modulo by zero")
		}
		return number(a - b*math.Floor(a/b)), nil
	case "**":
		if a == 0 && b < 0 {
			return Value{}, runtimeErr("zero raised to a negative power")
		}
		return number(math.Pow(a, b)), nil
	}
	return Value{}, runtimeErr("unknown operator %s", op)
}

func compare(op string, x, y Value) (bool, error) {
	switch op {
	case "==":
		return x.equal(y), nil
	case "!=":
		return !x.equal(y), nil
	}
	a, ok1 := x.numeric()
	b, ok2 := y.numeric()
	if !ok1 || !ok2 {
		return false, runtimeErr("%s not supported between %s and %s", op, x.kind, y.kind)
	}
	switch op {
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	}
	return false, runtimeErr("unknown comparison %s", op)
}
