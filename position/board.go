// Package position adapts github.com/notnil/chess to the push/pop board the
// search engine and match driver work against.
package position

import (
	"sort"
	"strconv"
	"strings"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrIllegalMove is returned by PushUCI when the move is not legal in the
// current position.
var ErrIllegalMove = errors.New("illegal move")

type frame struct {
	pos      *chess.Position
	move     *chess.Move
	fen      string
	key      string
	halfmove int
	fullmove int

	moves []*chess.Move
	ucis  []string
}

// Board is a position plus the move stack that led to it. Push and Pop are
// exact inverses: after Pop the board, its FEN and its repetition table are
// identical to what they were before the matching Push.
type Board struct {
	frames []*frame
	seen   map[string]int
}

// New returns a board at the standard starting position.
func New() *Board {
	return newBoard(chess.NewGame().Position())
}

// FromFEN returns a board whose history starts at fen.
func FromFEN(fen string) (*Board, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, errors.Wrapf(err, "parse fen %q", fen)
	}
	return newBoard(chess.NewGame(opt).Position()), nil
}

func newBoard(pos *chess.Position) *Board {
	b := &Board{seen: make(map[string]int)}
	b.pushFrame(pos, nil)
	return b
}

func (b *Board) pushFrame(pos *chess.Position, m *chess.Move) {
	fen := pos.String()
	f := &frame{pos: pos, move: m, fen: fen}
	fields := strings.Fields(fen)
	if len(fields) >= 6 {
		f.halfmove, _ = strconv.Atoi(fields[4])
		f.fullmove, _ = strconv.Atoi(fields[5])
	}
	f.key = repetitionKey(f, fields)
	b.frames = append(b.frames, f)
	b.seen[f.key]++
}

// repetitionKey identifies a position for repetition purposes: placement,
// side to move, castling rights and the en passant square only when an en
// passant capture is actually available.
func repetitionKey(f *frame, fields []string) string {
	if len(fields) < 4 {
		return f.fen
	}
	ep := "-"
	if fields[3] != "-" {
		for _, m := range f.legal() {
			if m.HasTag(chess.EnPassant) {
				ep = fields[3]
				break
			}
		}
	}
	return fields[0] + " " + fields[1] + " " + fields[2] + " " + ep
}

func (f *frame) legal() []*chess.Move {
	if f.moves != nil {
		return f.moves
	}
	moves := f.pos.ValidMoves()
	ucis := make([]string, len(moves))
	for i, m := range moves {
		ucis[i] = chess.UCINotation{}.Encode(f.pos, m)
	}
	sort.Sort(byUCI{moves: moves, ucis: ucis})
	if moves == nil {
		moves = []*chess.Move{}
	}
	f.moves, f.ucis = moves, ucis
	return moves
}

type byUCI struct {
	moves []*chess.Move
	ucis  []string
}

func (s byUCI) Len() int           { return len(s.moves) }
func (s byUCI) Less(i, j int) bool { return s.ucis[i] < s.ucis[j] }
func (s byUCI) Swap(i, j int) {
	s.moves[i], s.moves[j] = s.moves[j], s.moves[i]
	s.ucis[i], s.ucis[j] = s.ucis[j], s.ucis[i]
}

func (b *Board) top() *frame { return b.frames[len(b.frames)-1] }

// Position returns the current notnil position. Callers must not mutate it.
func (b *Board) Position() *chess.Position { return b.top().pos }

// Turn is the side to move.
func (b *Board) Turn() chess.Color { return b.top().pos.Turn() }

// FEN of the current position.
func (b *Board) FEN() string { return b.top().fen }

// RootFEN is the FEN the history starts from.
func (b *Board) RootFEN() string { return b.frames[0].fen }

// Ply is the number of moves pushed since the root.
func (b *Board) Ply() int { return len(b.frames) - 1 }

// HalfmoveClock is the number of plies since the last capture or pawn move.
func (b *Board) HalfmoveClock() int { return b.top().halfmove }

// FullmoveNumber as recorded in the FEN.
func (b *Board) FullmoveNumber() int { return b.top().fullmove }

// LegalMoves returns the legal moves sorted ascending by UCI encoding. The
// slice is shared; callers must not modify it.
func (b *Board) LegalMoves() []*chess.Move { return b.top().legal() }

// LegalUCIs returns the UCI strings matching LegalMoves index for index.
func (b *Board) LegalUCIs() []string {
	f := b.top()
	f.legal()
	return f.ucis
}

// UCI encodes m relative to the current position.
func (b *Board) UCI(m *chess.Move) string {
	return chess.UCINotation{}.Encode(b.top().pos, m)
}

// SAN encodes m in standard algebraic notation relative to the current position.
func (b *Board) SAN(m *chess.Move) string {
	return chess.AlgebraicNotation{}.Encode(b.top().pos, m)
}

// Push applies m, which must be legal in the current position.
func (b *Board) Push(m *chess.Move) {
	b.pushFrame(b.top().pos.Update(m), m)
}

// PushUCI applies the legal move encoded as s.
func (b *Board) PushUCI(s string) error {
	m := b.FindUCI(s)
	if m == nil {
		return errors.Wrapf(ErrIllegalMove, "%s in %s", s, b.FEN())
	}
	b.Push(m)
	return nil
}

// FindUCI returns the legal move encoded as s, or nil.
func (b *Board) FindUCI(s string) *chess.Move {
	ucis := b.LegalUCIs()
	i := sort.SearchStrings(ucis, s)
	if i < len(ucis) && ucis[i] == s {
		return b.top().moves[i]
	}
	return nil
}

// IsLegal reports whether m is among the legal moves of the current position.
func (b *Board) IsLegal(m *chess.Move) bool {
	if m == nil {
		return false
	}
	return b.FindUCI(b.UCI(m)) != nil
}

// Pop takes back the last pushed move and returns it.
func (b *Board) Pop() *chess.Move {
	if len(b.frames) == 1 {
		panic("position: pop of root position")
	}
	f := b.top()
	b.frames = b.frames[:len(b.frames)-1]
	if b.seen[f.key]--; b.seen[f.key] == 0 {
		delete(b.seen, f.key)
	}
	return f.move
}

// Moves returns the moves pushed since the root, oldest first.
func (b *Board) Moves() []*chess.Move {
	out := make([]*chess.Move, 0, len(b.frames)-1)
	for _, f := range b.frames[1:] {
		out = append(out, f.move)
	}
	return out
}

// MoveUCIs returns the UCI history since the root.
func (b *Board) MoveUCIs() []string {
	out := make([]string, 0, len(b.frames)-1)
	for i := 1; i < len(b.frames); i++ {
		out = append(out, chess.UCINotation{}.Encode(b.frames[i-1].pos, b.frames[i].move))
	}
	return out
}

// LastMoveUCI returns the most recent move or "" at the root.
func (b *Board) LastMoveUCI() string {
	n := len(b.frames)
	if n == 1 {
		return ""
	}
	return chess.UCINotation{}.Encode(b.frames[n-2].pos, b.frames[n-1].move)
}

// Clone returns an independent copy sharing only immutable positions.
func (b *Board) Clone() *Board {
	c := &Board{
		frames: make([]*frame, len(b.frames)),
		seen:   make(map[string]int, len(b.seen)),
	}
	for i, f := range b.frames {
		cp := *f
		c.frames[i] = &cp
	}
	for k, v := range b.seen {
		c.seen[k] = v
	}
	return c
}
