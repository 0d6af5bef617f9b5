// Package game plays one bot against another and records what happened.
package game

import (
	"context"
	"fmt"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"minimaxing/bots"
	"minimaxing/position"
)

// DefaultMaxPlies caps a match that neither side can finish.
const DefaultMaxPlies = 500

// Termination is why a match stopped.
type Termination string

const (
	Checkmate            Termination = "checkmate"
	Stalemate            Termination = "stalemate"
	InsufficientMaterial Termination = "insufficient material"
	FiftyMoveRule        Termination = "fifty-move rule"
	ThreefoldRepetition  Termination = "threefold repetition"
	Draw                 Termination = "draw"
	EngineFailure        Termination = "engine failure"
	PlyLimit             Termination = "ply limit"
)

// Classify names the end of a finished game, checking checkmate first, then
// stalemate, insufficient material, the fifty-move rule and repetition.
func Classify(b *position.Board) Termination {
	switch {
	case b.IsCheckmate():
		return Checkmate
	case b.IsStalemate():
		return Stalemate
	case b.IsInsufficientMaterial():
		return InsufficientMaterial
	case b.IsFiftyMoves():
		return FiftyMoveRule
	case b.IsRepetition():
		return ThreefoldRepetition
	}
	return Draw
}

// Ply is one move of a match with the search data behind it.
type Ply struct {
	Ply  int    `json:"ply"`
	Side string `json:"side"`
	UCI  string `json:"uci"`
	SAN  string `json:"san"`
	// Score is the search score from the mover's point of view, EvalScore the
	// same number from White's.
	Score      float64            `json:"score"`
	EvalScore  float64            `json:"eval"`
	RootScores map[string]float64 `json:"root_scores,omitempty"`
	Nodes      int                `json:"nodes"`
}

type Record struct {
	White       string      `json:"white"`
	Black       string      `json:"black"`
	StartFEN    string      `json:"start_fen"`
	FinalFEN    string      `json:"final_fen"`
	Plies       []Ply       `json:"plies"`
	Result      string      `json:"result"`
	Termination Termination `json:"termination"`
	PGN         string      `json:"pgn"`
}

// InvariantError is raised when a bot proposes a move that is not legal. It
// ends the match and is never retried.
type InvariantError struct {
	Ply  int
	Side string
	Bot  string
	Move string
	FEN  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated: %s (%s) proposed illegal move %s at ply %d in %s", e.Bot, e.Side, e.Move, e.Ply, e.FEN)
}

type Match struct {
	white, black bots.ChessBot
	startFEN     string
	maxPlies     int
	id           string
	log          zerolog.Logger
}

type MatchOption func(*Match)

// WithStartFEN starts the match from fen instead of the initial position.
func WithStartFEN(fen string) MatchOption {
	return func(m *Match) { m.startFEN = fen }
}

// WithMaxPlies stops the match unfinished after n plies. Zero means no cap.
func WithMaxPlies(n int) MatchOption {
	return func(m *Match) { m.maxPlies = n }
}

func WithMatchID(id string) MatchOption {
	return func(m *Match) { m.id = id }
}

func WithMatchLogger(l zerolog.Logger) MatchOption {
	return func(m *Match) { m.log = l }
}

func NewMatch(white, black bots.ChessBot, opts ...MatchOption) *Match {
	m := &Match{
		white:    white,
		black:    black,
		startFEN: position.StartFEN,
		maxPlies: DefaultMaxPlies,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func sideName(c chess.Color) string {
	if c == chess.White {
		return "white"
	}
	return "black"
}

// Play runs the match to the end. The record is returned alongside any error
// so a failed match still shows the plies it got through.
func (m *Match) Play(ctx context.Context) (Record, error) {
	b, err := position.FromFEN(m.startFEN)
	if err != nil {
		return Record{}, err
	}
	log := m.log.With().Str("match", m.id).Logger()
	rec := Record{White: m.white.Name(), Black: m.black.Name(), StartFEN: b.FEN()}
	log.Info().Str("white", rec.White).Str("black", rec.Black).Msg("match started")

	for !b.IsGameOver() {
		if err := ctx.Err(); err != nil {
			return m.finish(rec, b), err
		}
		if m.maxPlies > 0 && len(rec.Plies) >= m.maxPlies {
			rec.Termination = PlyLimit
			break
		}
		bot, side := m.white, b.Turn()
		if side == chess.Black {
			bot = m.black
		}
		res, err := bot.BestMove(ctx, b)
		if err != nil {
			return m.finish(rec, b), errors.Wrapf(err, "%s (%s) at ply %d", bot.Name(), sideName(side), b.Ply())
		}
		if res.BestMove == nil {
			log.Warn().Str("bot", bot.Name()).Int("ply", b.Ply()).Msg("engine returned no move")
			rec.Termination = EngineFailure
			break
		}
		uci := b.UCI(res.BestMove)
		mv := b.FindUCI(uci)
		if mv == nil {
			return m.finish(rec, b), &InvariantError{Ply: b.Ply(), Side: sideName(side), Bot: bot.Name(), Move: uci, FEN: b.FEN()}
		}

		eval := res.Score
		if side == chess.Black {
			eval = -eval
		}
		rec.Plies = append(rec.Plies, Ply{
			Ply:        b.Ply(),
			Side:       sideName(side),
			UCI:        uci,
			SAN:        b.SAN(mv),
			Score:      res.Score,
			EvalScore:  eval,
			RootScores: res.RootScores,
			Nodes:      res.Nodes,
		})
		b.Push(mv)

		if n := len(rec.Plies); n%10 == 0 {
			log.Info().Int("plies", n).Float64("eval", eval).Msg("match progress")
		}
	}

	if rec.Termination == "" {
		rec.Termination = Classify(b)
	}
	rec = m.finish(rec, b)
	log.Info().Str("result", rec.Result).Str("termination", string(rec.Termination)).Int("plies", len(rec.Plies)).Msg("match finished")
	return rec, nil
}

func (m *Match) finish(rec Record, b *position.Board) Record {
	rec.Result = b.Result()
	rec.FinalFEN = b.FEN()
	pgn, err := b.PGN(
		position.TagPair{Key: "White", Value: rec.White},
		position.TagPair{Key: "Black", Value: rec.Black},
		position.TagPair{Key: "Result", Value: rec.Result},
		position.TagPair{Key: "Termination", Value: string(rec.Termination)},
	)
	if err != nil {
		m.log.Error().Err(err).Msg("pgn export failed")
	}
	rec.PGN = pgn
	return rec
}
