package bots

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"minimaxing/position"
	"minimaxing/ruleset"
)

const (
	DefaultRepetitionPenalty = 150.0
	// pollEvery is how many nodes are searched between context checks.
	pollEvery = 256
)

type MinimaxBot struct {
	Depth     int
	Evaluator Scorer
	// RepetitionPenalty is subtracted from any move that lands on a
	// threefold repetition.
	RepetitionPenalty float64

	name string
	log  zerolog.Logger
}

type MinimaxOption func(*MinimaxBot)

func WithRepetitionPenalty(p float64) MinimaxOption {
	return func(m *MinimaxBot) { m.RepetitionPenalty = p }
}

func WithName(name string) MinimaxOption {
	return func(m *MinimaxBot) { m.name = name }
}

func WithSearchLogger(l zerolog.Logger) MinimaxOption {
	return func(m *MinimaxBot) { m.log = l }
}

func NewMinimaxBot(eval Scorer, depth int, opts ...MinimaxOption) *MinimaxBot {
	m := &MinimaxBot{
		Depth:             depth,
		Evaluator:         eval,
		RepetitionPenalty: DefaultRepetitionPenalty,
		log:               zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewRuleSetBot compiles rs fail-soft and searches at rs.SearchDepth.
func NewRuleSetBot(rs ruleset.RuleSet, evalOpts []EvaluatorOption, opts ...MinimaxOption) (*MinimaxBot, error) {
	e, err := NewEvaluator(rs, evalOpts...)
	if err != nil {
		return nil, err
	}
	return NewMinimaxBot(e, rs.SearchDepth, opts...), nil
}

func (m *MinimaxBot) Name() string {
	if m.name != "" {
		return m.name
	}
	return fmt.Sprintf("Minimax Bot (depth %d)", m.Depth)
}

func (m *MinimaxBot) BestMove(ctx context.Context, b *position.Board) (SearchResult, error) {
	return m.Search(ctx, b)
}

// Search runs a fixed-depth negamax with alpha-beta pruning from b. Moves are
// tried in ascending UCI order and a later move replaces the best only when
// strictly better, so the result is a pure function of the position, its
// history and the evaluator. Every root move gets a score.
func (m *MinimaxBot) Search(ctx context.Context, b *position.Board) (SearchResult, error) {
	if m.Depth < 1 || m.Depth > ruleset.MaxSearchDepth {
		return SearchResult{}, errors.Errorf("search depth %d out of range [1, %d]", m.Depth, ruleset.MaxSearchDepth)
	}
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}
	start := time.Now()
	s := &search{ctx: ctx, eval: m.Evaluator, penalty: m.RepetitionPenalty}

	moves := b.LegalMoves()
	res := SearchResult{RootScores: make(map[string]float64, len(moves))}
	best, alpha, beta := math.Inf(-1), math.Inf(-1), math.Inf(1)
	for _, mv := range moves {
		uci := b.UCI(mv)
		score, err := s.child(b, mv, m.Depth-1, alpha, beta)
		if err != nil {
			return SearchResult{}, err
		}
		res.RootScores[uci] = score
		if res.BestMove == nil || score > best {
			best, res.BestMove, res.BestUCI = score, mv, uci
		}
		// No cutoff at the root.
		alpha = math.Max(alpha, score)
	}
	if res.BestMove != nil {
		res.Score = best
	}
	res.Nodes = s.nodes

	m.log.Debug().
		Str("bot", m.Name()).
		Str("fen", b.FEN()).
		Str("best", res.BestUCI).
		Float64("score", res.Score).
		Int("nodes", s.nodes).
		Dur("took", time.Since(start)).
		Msg("search done")
	return res, nil
}

type search struct {
	ctx     context.Context
	eval    Scorer
	penalty float64
	nodes   int
}

// child scores mv for the side making it: the negated value of the position
// after mv, less the penalty when that position is a threefold repetition.
func (s *search) child(b *position.Board, mv *chess.Move, depth int, alpha, beta float64) (float64, error) {
	b.Push(mv)
	defer b.Pop()
	v, err := s.negamax(b, depth, -beta, -alpha)
	if err != nil {
		return 0, err
	}
	score := -v
	if b.IsRepetition() {
		score -= s.penalty
	}
	return score, nil
}

func (s *search) negamax(b *position.Board, depth int, alpha, beta float64) (float64, error) {
	s.nodes++
	if s.nodes%pollEvery == 0 {
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
	}
	if depth == 0 || b.IsGameOver() {
		return s.eval.Evaluate(b, b.Turn()), nil
	}
	best := math.Inf(-1)
	for _, mv := range b.LegalMoves() {
		score, err := s.child(b, mv, depth-1, alpha, beta)
		if err != nil {
			return 0, err
		}
		best = math.Max(best, score)
		alpha = math.Max(alpha, score)
		if alpha >= beta {
			break
		}
	}
	return best, nil
}
