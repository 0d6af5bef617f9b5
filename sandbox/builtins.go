package sandbox

import (
	"math"
	"sort"

	"github.com/notnil/chess"

	"minimaxing/capability"
	"minimaxing/position"
)

type builtin struct {
	min, max int // max < 0 means variadic
	fn       func(args []Value) (Value, error)
}

var builtins = map[string]builtin{
	"len": {1, 1, func(args []Value) (Value, error) {
		if args[0].kind != KindList {
			return Value{}, runtimeErr("len() of a %s", args[0].kind)
		}
		return number(float64(len(args[0].list))), nil
	}},
	"abs": {1, 1, func(args []Value) (Value, error) {
		f, ok := args[0].numeric()
		if !ok {
			return Value{}, runtimeErr("abs() of a %s", args[0].kind)
		}
		return number(math.Abs(f)), nil
	}},
	"min": {1, -1, func(args []Value) (Value, error) { return extremum("min", args, func(a, b float64) bool { return a < b }) }},
	"max": {1, -1, func(args []Value) (Value, error) { return extremum("max", args, func(a, b float64) bool { return a > b }) }},
	"sum": {1, 1, func(args []Value) (Value, error) {
		if args[0].kind != KindList {
			return Value{}, runtimeErr("sum() of a %s", args[0].kind)
		}
		var total float64
		for _, v := range args[0].list {
			f, ok := v.numeric()
			if !ok {
				return Value{}, runtimeErr("sum() over a %s", v.kind)
			}
			total += f
		}
		return number(total), nil
	}},
	"round": {1, 2, func(args []Value) (Value, error) {
		f, ok := args[0].numeric()
		if !ok {
			return Value{}, runtimeErr("round() of a %s", args[0].kind)
		}
		if len(args) == 1 {
			return number(math.RoundToEven(f)), nil
		}
		n, ok := args[1].numeric()
		if !ok || n != math.Trunc(n) {
			return Value{}, runtimeErr("round() digits must be an integer")
		}
		scale := math.Pow(10, n)
		return number(math.RoundToEven(f*scale) / scale), nil
	}},
}

// extremum implements min and max over either one list argument or several
// scalar arguments. Ties keep the first operand.
func extremum(name string, args []Value, better func(a, b float64) bool) (Value, error) {
	items := args
	if len(args) == 1 {
		if args[0].kind != KindList {
			return Value{}, runtimeErr("%s() of a single %s", name, args[0].kind)
		}
		items = args[0].list
	}
	if len(items) == 0 {
		return Value{}, runtimeErr("%s() of an empty list", name)
	}
	best := items[0]
	bf, ok := best.numeric()
	if !ok {
		return Value{}, runtimeErr("%s() over a %s", name, best.kind)
	}
	for _, v := range items[1:] {
		f, ok := v.numeric()
		if !ok {
			return Value{}, runtimeErr("%s() over a %s", name, v.kind)
		}
		if better(f, bf) {
			best, bf = v, f
		}
	}
	return best, nil
}

var constants = map[string]Value{
	"WHITE":  colorValue(chess.White),
	"BLACK":  colorValue(chess.Black),
	"PAWN":   number(1),
	"KNIGHT": number(2),
	"BISHOP": number(3),
	"ROOK":   number(4),
	"QUEEN":  number(5),
	"KING":   number(6),
}

// boardAttrs are the readable properties of the position accessor.
var boardAttrs = map[string]func(fr *frame) Value{
	"turn":             func(fr *frame) Value { return colorValue(fr.board.Turn()) },
	"ply":              func(fr *frame) Value { return number(float64(fr.board.Ply())) },
	"fullmove_number":  func(fr *frame) Value { return number(float64(fr.board.FullmoveNumber())) },
	"halfmove_clock":   func(fr *frame) Value { return number(float64(fr.board.HalfmoveClock())) },
	"legal_move_count": func(fr *frame) Value { return number(float64(len(fr.board.LegalMoves()))) },
}

type boardMethod struct {
	arity int
	cost  int
	fn    func(fr *frame, args []Value) (Value, error)
}

func predicate(cost int, fn func(*position.Board) bool) boardMethod {
	return boardMethod{cost: cost, fn: func(fr *frame, _ []Value) (Value, error) {
		return boolean(fn(fr.board)), nil
	}}
}

var boardMethods = map[string]boardMethod{
	"is_check":      predicate(4, (*position.Board).IsCheck),
	"is_checkmate":  predicate(10, (*position.Board).IsCheckmate),
	"is_stalemate":  predicate(10, (*position.Board).IsStalemate),
	"is_repetition": predicate(1, (*position.Board).IsRepetition),
	"pieces": {arity: 2, cost: 4, fn: func(fr *frame, args []Value) (Value, error) {
		pt, err := pieceArg(args[0])
		if err != nil {
			return Value{}, err
		}
		c, ok := args[1].asColor()
		if !ok {
			return Value{}, runtimeErr("pieces() color must be WHITE or BLACK, got %s", args[1].kind)
		}
		var squares []Value
		for sq, p := range fr.board.Position().Board().SquareMap() {
			if p.Type() == pt && p.Color() == c {
				squares = append(squares, number(float64(sq)))
			}
		}
		sort.Slice(squares, func(i, j int) bool { return squares[i].num < squares[j].num })
		return listValue(squares), nil
	}},
}

func pieceArg(v Value) (chess.PieceType, error) {
	f, ok := v.numeric()
	if !ok || v.kind != KindNumber || f != math.Trunc(f) {
		return chess.NoPieceType, runtimeErr("piece type must be one of PAWN..KING, got %s", v.kind)
	}
	pt, ok := capability.PieceTypeCode(int(f))
	if !ok {
		return chess.NoPieceType, runtimeErr("piece type %v out of range", f)
	}
	return pt, nil
}

func capabilityArity(c capability.Capability) (lo, hi int) {
	switch c.Sig {
	case capability.SideRelative:
		return 1, 2
	case capability.PieceAndSide:
		return 2, 3
	}
	return 1, 1
}

// callCapability applies c to already evaluated arguments. The first
// argument must be the position accessor and an omitted color defaults to the
// evaluation perspective.
func callCapability(fr *frame, c capability.Capability, args []Value) (Value, error) {
	if args[0].kind != KindBoard {
		return Value{}, runtimeErr("%s() expects the board as its first argument, got %s", c.Name, args[0].kind)
	}
	side := fr.persp
	colorAt := 1
	var pt chess.PieceType
	if c.Sig == capability.PieceAndSide {
		var err error
		if pt, err = pieceArg(args[1]); err != nil {
			return Value{}, err
		}
		colorAt = 2
	}
	if len(args) > colorAt {
		var ok bool
		if side, ok = args[colorAt].asColor(); !ok {
			return Value{}, runtimeErr("%s() color must be WHITE or BLACK, got %s", c.Name, args[colorAt].kind)
		}
	}
	switch c.Sig {
	case capability.SideRelative:
		return number(c.Side(fr.board, side)), nil
	case capability.PieceAndSide:
		return number(c.Piece(fr.board, pt, side)), nil
	}
	return number(c.Board(fr.board)), nil
}
