package position

import "github.com/notnil/chess"

// IsCheck reports whether the side to move is in check.
func (b *Board) IsCheck() bool {
	turn := b.Turn()
	bd := b.Position().Board()
	king, ok := KingSquare(bd, turn)
	if !ok {
		return false
	}
	return IsAttacked(bd, king, turn.Other())
}

func (b *Board) IsCheckmate() bool {
	return len(b.LegalMoves()) == 0 && b.IsCheck()
}

func (b *Board) IsStalemate() bool {
	return len(b.LegalMoves()) == 0 && !b.IsCheck()
}

// IsInsufficientMaterial reports whether neither side can possibly mate:
// bare kings, a single minor piece, or only bishops all on one square color.
func (b *Board) IsInsufficientMaterial() bool {
	bd := b.Position().Board()
	var knights, bishops int
	bishopColors := [2]bool{}
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := bd.Piece(sq)
		switch p.Type() {
		case chess.NoPieceType, chess.King:
		case chess.Knight:
			knights++
		case chess.Bishop:
			bishops++
			bishopColors[(int(sq.File())+int(sq.Rank()))%2] = true
		default:
			return false
		}
	}
	switch {
	case knights == 0 && bishops == 0:
		return true
	case knights+bishops == 1:
		return true
	case knights == 0:
		return !(bishopColors[0] && bishopColors[1])
	}
	return false
}

// IsFiftyMoves reports whether a fifty-move draw could be claimed.
func (b *Board) IsFiftyMoves() bool {
	return b.HalfmoveClock() >= 100 && !b.IsCheckmate()
}

// IsSeventyFiveMoves reports the automatic seventy-five-move draw.
func (b *Board) IsSeventyFiveMoves() bool {
	return b.HalfmoveClock() >= 150 && !b.IsCheckmate()
}

// RepetitionCount is how many times the current position has occurred in the
// history, counting itself.
func (b *Board) RepetitionCount() int {
	return b.seen[b.top().key]
}

// IsRepetition reports a threefold repetition of the current position.
func (b *Board) IsRepetition() bool { return b.RepetitionCount() >= 3 }

func (b *Board) IsFivefoldRepetition() bool { return b.RepetitionCount() >= 5 }

// IsGameOver reports the positions that end a game without any claim:
// checkmate, stalemate, insufficient material, the seventy-five-move rule
// and fivefold repetition.
func (b *Board) IsGameOver() bool {
	if len(b.LegalMoves()) == 0 {
		return true
	}
	return b.IsInsufficientMaterial() || b.HalfmoveClock() >= 150 || b.IsFivefoldRepetition()
}

// Result is the PGN result string: "1-0", "0-1", "1/2-1/2", or "*" while the
// game is not over.
func (b *Board) Result() string {
	switch {
	case b.IsCheckmate():
		if b.Turn() == chess.White {
			return "0-1"
		}
		return "1-0"
	case b.IsGameOver():
		return "1/2-1/2"
	}
	return "*"
}
