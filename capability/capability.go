// Package capability is the fixed set of pure position metrics user rules
// may call. Every function reads the board and returns a number; none of
// them mutate it or retain it.
package capability

import (
	"sort"

	"github.com/notnil/chess"

	"minimaxing/position"
)

// Signature describes the arguments a capability takes after the board.
type Signature int

const (
	// BoardOnly capabilities take just the board.
	BoardOnly Signature = iota
	// SideRelative capabilities take the board and an optional color, which
	// defaults to the evaluation perspective.
	SideRelative
	// PieceAndSide capabilities take the board, a piece type and an optional
	// color.
	PieceAndSide
)

// Capability is one entry of the library.
type Capability struct {
	Name string
	Sig  Signature
	// Cost is charged against the sandbox step budget per call.
	Cost int

	Board func(*position.Board) float64
	Side  func(*position.Board, chess.Color) float64
	Piece func(*position.Board, chess.PieceType, chess.Color) float64
}

var library = map[string]Capability{}

func register(c Capability) {
	if _, dup := library[c.Name]; dup {
		panic("capability: duplicate " + c.Name)
	}
	library[c.Name] = c
}

func boardOnly(name string, cost int, fn func(*position.Board) float64) {
	register(Capability{Name: name, Sig: BoardOnly, Cost: cost, Board: fn})
}

func side(name string, cost int, fn func(*position.Board, chess.Color) float64) {
	register(Capability{Name: name, Sig: SideRelative, Cost: cost, Side: fn})
}

func init() {
	side("material", 8, Material)
	side("mobility", 40, Mobility)
	register(Capability{Name: "piece_count", Sig: PieceAndSide, Cost: 4, Piece: PieceCount})
	side("king_attackers", 6, KingAttackers)
	side("center_control", 8, CenterControl)
	side("bishop_pair", 4, BishopPair)
	side("passed_pawns", 8, PassedPawns)
	side("isolated_pawns", 6, IsolatedPawns)
	side("doubled_pawns", 6, DoubledPawns)
	side("threatened_material", 30, ThreatenedMaterial)
	side("king_safety", 6, KingSafety)
	side("piece_activity", 6, PieceActivity)
	side("evaluate_side", 80, EvaluateSide)

	boardOnly("is_check", 4, flag((*position.Board).IsCheck))
	boardOnly("is_checkmate", 10, flag((*position.Board).IsCheckmate))
	boardOnly("is_stalemate", 10, flag((*position.Board).IsStalemate))
	boardOnly("is_repetition", 1, flag((*position.Board).IsRepetition))
	boardOnly("repetition_count", 1, func(b *position.Board) float64 { return float64(b.RepetitionCount()) })
	boardOnly("history_length", 1, func(b *position.Board) float64 { return float64(b.Ply()) })
	boardOnly("halfmove_clock", 1, func(b *position.Board) float64 { return float64(b.HalfmoveClock()) })
}

func flag(fn func(*position.Board) bool) func(*position.Board) float64 {
	return func(b *position.Board) float64 {
		if fn(b) {
			return 1
		}
		return 0
	}
}

// Lookup returns the capability registered under name.
func Lookup(name string) (Capability, bool) {
	c, ok := library[name]
	return c, ok
}

// Names lists the library in sorted order.
func Names() []string {
	out := make([]string, 0, len(library))
	for n := range library {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PieceTypeCode maps the numeric piece constants exposed to rules (1 pawn
// through 6 king) onto chess piece types.
func PieceTypeCode(code int) (chess.PieceType, bool) {
	switch code {
	case 1:
		return chess.Pawn, true
	case 2:
		return chess.Knight, true
	case 3:
		return chess.Bishop, true
	case 4:
		return chess.Rook, true
	case 5:
		return chess.Queen, true
	case 6:
		return chess.King, true
	}
	return chess.NoPieceType, false
}
