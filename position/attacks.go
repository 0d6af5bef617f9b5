package position

import "github.com/notnil/chess"

type offset struct{ df, dr int }

var (
	knightOffsets = []offset{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingOffsets   = []offset{{0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}}
	rookDirs      = []offset{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	bishopDirs    = []offset{{1, 1}, {1, -1}, {-1, -1}, {-1, 1}}
)

func squareAt(f, r int) (chess.Square, bool) {
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(f), chess.Rank(r)), true
}

// Attackers returns the squares of pieces of color by that attack sq.
func Attackers(bd *chess.Board, sq chess.Square, by chess.Color) []chess.Square {
	var out []chess.Square
	f, r := int(sq.File()), int(sq.Rank())

	for _, o := range knightOffsets {
		if s, ok := squareAt(f+o.df, r+o.dr); ok {
			if p := bd.Piece(s); p.Color() == by && p.Type() == chess.Knight {
				out = append(out, s)
			}
		}
	}
	for _, o := range kingOffsets {
		if s, ok := squareAt(f+o.df, r+o.dr); ok {
			if p := bd.Piece(s); p.Color() == by && p.Type() == chess.King {
				out = append(out, s)
			}
		}
	}

	// a white pawn attacks upward, so it sits one rank below its target
	pr := r - 1
	if by == chess.Black {
		pr = r + 1
	}
	for _, df := range []int{-1, 1} {
		if s, ok := squareAt(f+df, pr); ok {
			if p := bd.Piece(s); p.Color() == by && p.Type() == chess.Pawn {
				out = append(out, s)
			}
		}
	}

	out = appendSliders(out, bd, f, r, by, rookDirs, chess.Rook)
	out = appendSliders(out, bd, f, r, by, bishopDirs, chess.Bishop)
	return out
}

func appendSliders(out []chess.Square, bd *chess.Board, f, r int, by chess.Color, dirs []offset, kind chess.PieceType) []chess.Square {
	for _, d := range dirs {
		for i := 1; ; i++ {
			s, ok := squareAt(f+d.df*i, r+d.dr*i)
			if !ok {
				break
			}
			p := bd.Piece(s)
			if p == chess.NoPiece {
				continue
			}
			if p.Color() == by && (p.Type() == kind || p.Type() == chess.Queen) {
				out = append(out, s)
			}
			break
		}
	}
	return out
}

// IsAttacked reports whether any piece of color by attacks sq.
func IsAttacked(bd *chess.Board, sq chess.Square, by chess.Color) bool {
	return len(Attackers(bd, sq, by)) > 0
}

// KingSquare locates the king of color c.
func KingSquare(bd *chess.Board, c chess.Color) (chess.Square, bool) {
	for sq := chess.A1; sq <= chess.H8; sq++ {
		if p := bd.Piece(sq); p.Type() == chess.King && p.Color() == c {
			return sq, true
		}
	}
	return chess.NoSquare, false
}
