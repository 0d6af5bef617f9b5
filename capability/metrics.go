package capability

import (
	"strings"

	"github.com/notnil/chess"

	"minimaxing/position"
)

var pieceValues = map[chess.PieceType]float64{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

var centerSquares = []chess.Square{chess.D4, chess.E4, chess.D5, chess.E5}

// PieceValue in centipawns; kings are worth nothing here since both sides
// always have one.
func PieceValue(pt chess.PieceType) float64 { return pieceValues[pt] }

// Material is c's material minus the opponent's, in centipawns.
func Material(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	var score float64
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := bd.Piece(sq)
		switch p.Color() {
		case c:
			score += pieceValues[p.Type()]
		case c.Other():
			score -= pieceValues[p.Type()]
		}
	}
	return score
}

// Mobility counts the legal moves c would have in this position. For the
// side not to move the turn is handed over with the en passant square cleared.
func Mobility(b *position.Board, c chess.Color) float64 {
	if c == b.Turn() {
		return float64(len(b.LegalMoves()))
	}
	fields := strings.Fields(b.FEN())
	if len(fields) < 4 {
		return 0
	}
	fields[1] = "w"
	if c == chess.Black {
		fields[1] = "b"
	}
	fields[3] = "-"
	opt, err := chess.FEN(strings.Join(fields, " "))
	if err != nil {
		return 0
	}
	return float64(len(chess.NewGame(opt).Position().ValidMoves()))
}

// PieceCount is the number of pieces of type pt and color c.
func PieceCount(b *position.Board, pt chess.PieceType, c chess.Color) float64 {
	bd := b.Position().Board()
	var n float64
	for sq := chess.A1; sq <= chess.H8; sq++ {
		if p := bd.Piece(sq); p.Type() == pt && p.Color() == c {
			n++
		}
	}
	return n
}

// KingAttackers is the number of enemy pieces attacking c's king.
func KingAttackers(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	king, ok := position.KingSquare(bd, c)
	if !ok {
		return 0
	}
	return float64(len(position.Attackers(bd, king, c.Other())))
}

// CenterControl counts c's pieces standing on the four center squares plus
// the center squares c attacks.
func CenterControl(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	var score float64
	for _, sq := range centerSquares {
		if p := bd.Piece(sq); p != chess.NoPiece && p.Color() == c {
			score++
		}
		if position.IsAttacked(bd, sq, c) {
			score++
		}
	}
	return score
}

func BishopPair(b *position.Board, c chess.Color) float64 {
	if PieceCount(b, chess.Bishop, c) >= 2 {
		return 1
	}
	return 0
}

// ThreatenedMaterial is minus the value of c's pieces that are attacked and
// not defended.
func ThreatenedMaterial(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	var score float64
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := bd.Piece(sq)
		if p.Color() != c || p.Type() == chess.King {
			continue
		}
		if position.IsAttacked(bd, sq, c.Other()) && !position.IsAttacked(bd, sq, c) {
			score -= pieceValues[p.Type()]
		}
	}
	return score
}

// KingSafety rewards friendly pieces next to c's king and penalises enemy
// ones.
func KingSafety(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	king, ok := position.KingSquare(bd, c)
	if !ok {
		return 0
	}
	protection, danger := 0.0, 0.0
	kf, kr := int(king.File()), int(king.Rank())
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			if x == 0 && y == 0 {
				continue
			}
			f, r := kf+x, kr+y
			if f < 0 || f > 7 || r < 0 || r > 7 {
				continue
			}
			switch bd.Piece(chess.NewSquare(chess.File(f), chess.Rank(r))).Color() {
			case c:
				protection += 0.2
			case c.Other():
				danger += 0.3
			}
		}
	}
	return protection - danger
}

// PieceActivity rewards c's pieces that have crossed into the enemy half
// and pieces on the central 4x4 block.
func PieceActivity(b *position.Board, c chess.Color) float64 {
	bd := b.Position().Board()
	var score float64
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := bd.Piece(sq)
		if p == chess.NoPiece || p.Type() == chess.King || p.Color() != c {
			continue
		}
		if (c == chess.White && sq.Rank() >= chess.Rank5) || (c == chess.Black && sq.Rank() <= chess.Rank4) {
			score += 0.1
		}
		f, r := int(sq.File()), int(sq.Rank())
		if f >= 2 && f <= 5 && r >= 2 && r <= 5 {
			score += 0.15
		}
	}
	return score
}

// EvaluateSide is a ready-made blend of the other metrics for color c.
func EvaluateSide(b *position.Board, c chess.Color) float64 {
	ps := Pawns(b, c)
	return Material(b, c) +
		10*Mobility(b, c) +
		30*CenterControl(b, c) +
		50*BishopPair(b, c) +
		30*float64(ps.Passed) -
		40*float64(ps.Isolated)
}
