package capability

import (
	"github.com/notnil/chess"

	"minimaxing/position"
)

// PawnStructure summarises one side's pawns.
type PawnStructure struct {
	Passed   int
	Isolated int
	Doubled  int
}

// Pawns computes passed, isolated and doubled pawn counts for c. A pawn is
// passed when no enemy pawn stands ahead of it on its own or an adjacent
// file.
func Pawns(b *position.Board, c chess.Color) PawnStructure {
	bd := b.Position().Board()
	var files [8]int
	var own, enemy []chess.Square
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := bd.Piece(sq)
		if p.Type() != chess.Pawn {
			continue
		}
		if p.Color() == c {
			own = append(own, sq)
			files[sq.File()]++
		} else {
			enemy = append(enemy, sq)
		}
	}

	var ps PawnStructure
	for _, n := range files {
		if n > 1 {
			ps.Doubled += n - 1
		}
	}
	for _, sq := range own {
		f, r := int(sq.File()), int(sq.Rank())
		if (f == 0 || files[f-1] == 0) && (f == 7 || files[f+1] == 0) {
			ps.Isolated++
		}
		passed := true
		for _, ep := range enemy {
			ef, er := int(ep.File()), int(ep.Rank())
			if abs(ef-f) > 1 {
				continue
			}
			if (c == chess.White && er > r) || (c == chess.Black && er < r) {
				passed = false
				break
			}
		}
		if passed {
			ps.Passed++
		}
	}
	return ps
}

func PassedPawns(b *position.Board, c chess.Color) float64 {
	return float64(Pawns(b, c).Passed)
}

func IsolatedPawns(b *position.Board, c chess.Color) float64 {
	return float64(Pawns(b, c).Isolated)
}

func DoubledPawns(b *position.Board, c chess.Color) float64 {
	return float64(Pawns(b, c).Doubled)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
