package bots

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"minimaxing/capability"
	"minimaxing/position"
	"minimaxing/ruleset"
	"minimaxing/sandbox"
)

type scorerFunc func(*position.Board, chess.Color) float64

func (f scorerFunc) Evaluate(b *position.Board, c chess.Color) float64 { return f(b, c) }

var materialScorer = scorerFunc(capability.Material)

// lopsided rewards central presence unevenly so that ties are rare.
var lopsided = scorerFunc(func(b *position.Board, c chess.Color) float64 {
	return capability.Material(b, c) + 3*capability.CenterControl(b, c) - capability.KingAttackers(b, c)
})

func boardAfter(t *testing.T, fen string, moves ...string) *position.Board {
	t.Helper()
	b := position.New()
	if fen != "" {
		var err error
		if b, err = position.FromFEN(fen); err != nil {
			t.Fatalf("FromFEN: %v", err)
		}
	}
	for _, m := range moves {
		if err := b.PushUCI(m); err != nil {
			t.Fatalf("push %s: %v", m, err)
		}
	}
	return b
}

func weighted(rules ...ruleset.Rule) ruleset.RuleSet {
	return ruleset.NewWeighted(2, rules...)
}

func TestEvaluatorWeightedSum(t *testing.T) {
	e, err := NewEvaluator(weighted(
		ruleset.Rule{Name: "const", Source: "1", Weight: 2},
		ruleset.Rule{Name: "material", Source: "material(board)", Weight: 0.5},
	))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	b := boardAfter(t, "", "e2e4", "d7d5", "e4d5")
	if got := e.Evaluate(b, chess.White); got != 52 {
		t.Fatalf("white = %v, want 52", got)
	}
	if got := e.Evaluate(b, chess.Black); got != -48 {
		t.Fatalf("black = %v, want -48", got)
	}
	if s := e.Stats(); s.Calls != 2 || s.Suppressed != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestEvaluatorDropsBadRules(t *testing.T) {
	e, err := NewEvaluator(weighted(
		ruleset.Rule{Name: "bad", Source: "import os", Weight: 1},
		ruleset.Rule{Name: "upper", Source: "SECRET", Weight: 1},
		ruleset.Rule{Name: "ok", Source: "1", Weight: 1},
	))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if got := e.Evaluate(position.New(), chess.White); got != 1 {
		t.Fatalf("score = %v", got)
	}
	dropped := e.Dropped()
	if len(dropped) != 2 || dropped[0].Name != "bad" || dropped[1].Index != 1 {
		t.Fatalf("dropped = %+v", dropped)
	}
	if e.Stats().DroppedRules != 2 {
		t.Fatalf("stats = %+v", e.Stats())
	}

	_, err = NewEvaluator(weighted(ruleset.Rule{Name: "bad", Source: "x = 1", Weight: 1}))
	if !errors.Is(err, ErrNoUsableRules) {
		t.Fatalf("all rules bad: %v", err)
	}
}

func TestEvaluatorAbsorbsRuntimeFailures(t *testing.T) {
	e, err := NewEvaluator(weighted(
		ruleset.Rule{Name: "div", Source: "1 / 0", Weight: 1},
		ruleset.Rule{Name: "long", Source: "1 + 1 + 1 + 1", Weight: 1},
		ruleset.Rule{Name: "ok", Source: "2", Weight: 1},
	), WithSandbox(sandbox.WithMaxSteps(4)))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if got := e.Evaluate(position.New(), chess.White); got != 2 {
		t.Fatalf("score = %v, want 2", got)
	}
	s := e.Stats()
	if s.Calls != 1 || s.Suppressed != 1 || s.BudgetExceeded != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestStrictEvaluator(t *testing.T) {
	_, err := NewStrictEvaluator(weighted(
		ruleset.Rule{Name: "bad", Source: "import os", Weight: 1},
		ruleset.Rule{Name: "ok", Source: "1", Weight: 1},
	))
	var ce *sandbox.CompileError
	if !errors.As(err, &ce) || ce.Reason != sandbox.ForbiddenConstruct {
		t.Fatalf("strict compile: %v", err)
	}

	e, err := NewStrictEvaluator(weighted(ruleset.Rule{Name: "div", Source: "1 / 0", Weight: 1}))
	if err != nil {
		t.Fatalf("NewStrictEvaluator: %v", err)
	}
	_, err = e.EvaluateStrict(position.New(), chess.White)
	var re *sandbox.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("EvaluateStrict: %v", err)
	}
}

func TestScriptEvaluator(t *testing.T) {
	_, err := NewEvaluator(ruleset.NewScripted(2, "def score(board):\n    return 1\n"))
	var ce *sandbox.CompileError
	if !errors.As(err, &ce) || ce.Reason != sandbox.MissingEntryPoint {
		t.Fatalf("missing entry point: %v", err)
	}

	e, err := NewEvaluator(ruleset.NewScripted(2, "def evaluate(board, color):\n    return material(board, color) + 1\n"))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	b := boardAfter(t, "", "e2e4", "d7d5", "e4d5")
	if got := e.Evaluate(b, chess.Black); got != -99 {
		t.Fatalf("script = %v, want -99", got)
	}

	e, err = NewEvaluator(ruleset.NewScripted(2, "def evaluate(board):\n    return 1 // 0\n"))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if got := e.Evaluate(b, chess.White); got != 0 || e.Stats().Suppressed != 1 {
		t.Fatalf("failing script = %v, stats %+v", got, e.Stats())
	}
}

func TestDepthOneIsArgmax(t *testing.T) {
	e, err := NewEvaluator(weighted(ruleset.Rule{Name: "material", Source: "material(board)", Weight: 1}))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	b := boardAfter(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1")
	res, err := NewMinimaxBot(e, 1).Search(context.Background(), b)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.BestUCI != "e4d5" || res.Score != 100 {
		t.Fatalf("best = %s %v", res.BestUCI, res.Score)
	}
	if len(res.RootScores) != len(b.LegalMoves()) {
		t.Fatalf("root scores %d, legal moves %d", len(res.RootScores), len(b.LegalMoves()))
	}
	for _, mv := range b.LegalMoves() {
		b.Push(mv)
		want := -e.Evaluate(b, b.Turn())
		b.Pop()
		if got := res.RootScores[b.UCI(mv)]; got != want {
			t.Fatalf("%s scored %v, want %v", b.UCI(mv), got, want)
		}
		if want > res.Score {
			t.Fatalf("%s beats the chosen move", b.UCI(mv))
		}
	}
}

// fullMinimax is negamax without pruning, same move order and tie-break.
func fullMinimax(b *position.Board, s Scorer, depth int) (string, float64) {
	var walk func(depth int) float64
	walk = func(depth int) float64 {
		if depth == 0 || b.IsGameOver() {
			return s.Evaluate(b, b.Turn())
		}
		best := math.Inf(-1)
		for _, mv := range b.LegalMoves() {
			b.Push(mv)
			v := -walk(depth - 1)
			if b.IsRepetition() {
				v -= DefaultRepetitionPenalty
			}
			b.Pop()
			best = math.Max(best, v)
		}
		return best
	}
	bestUCI, best := "", math.Inf(-1)
	for _, mv := range b.LegalMoves() {
		b.Push(mv)
		v := -walk(depth - 1)
		if b.IsRepetition() {
			v -= DefaultRepetitionPenalty
		}
		b.Pop()
		if bestUCI == "" || v > best {
			bestUCI, best = b.UCI(mv), v
		}
	}
	return bestUCI, best
}

func TestAlphaBetaMatchesMinimax(t *testing.T) {
	cases := []struct {
		name  string
		fen   string
		moves []string
		depth int
	}{
		{"start d2", "", nil, 2},
		{"start d3", "", nil, 3},
		{"open game", "", []string{"e2e4", "e7e5", "g1f3", "b8c6"}, 3},
		{"scholar", "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5Q2/PPPP1PPP/RNB1K1NR w KQkq - 2 4", nil, 2},
		{"endgame", "8/5k2/8/3p4/3P4/8/5K2/8 w - - 0 1", nil, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for _, s := range []Scorer{materialScorer, lopsided} {
				b := boardAfter(t, c.fen, c.moves...)
				wantUCI, wantScore := fullMinimax(b, s, c.depth)
				res, err := NewMinimaxBot(s, c.depth).Search(context.Background(), b)
				if err != nil {
					t.Fatalf("Search: %v", err)
				}
				if res.BestUCI != wantUCI || res.Score != wantScore {
					t.Fatalf("alpha-beta %s %v, minimax %s %v", res.BestUCI, res.Score, wantUCI, wantScore)
				}
			}
		})
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	b := boardAfter(t, "", "d2d4", "g8f6")
	first, err := NewMinimaxBot(lopsided, 3).Search(context.Background(), b)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	fen := b.FEN()
	for i := 0; i < 2; i++ {
		again, err := NewMinimaxBot(lopsided, 3).Search(context.Background(), b.Clone())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if again.BestUCI != first.BestUCI || again.Score != first.Score || !reflect.DeepEqual(again.RootScores, first.RootScores) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
	if b.FEN() != fen || b.Ply() != 2 {
		t.Fatalf("search left the board at %s", b.FEN())
	}
}

func TestRepetitionPenalty(t *testing.T) {
	b := boardAfter(t, "", "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1")
	zero := scorerFunc(func(*position.Board, chess.Color) float64 { return 0 })
	res, err := NewMinimaxBot(zero, 1).Search(context.Background(), b)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := res.RootScores["f6g8"]; got != -DefaultRepetitionPenalty {
		t.Fatalf("repeating move scored %v", got)
	}
	if res.BestUCI == "f6g8" || res.Score != 0 {
		t.Fatalf("best = %s %v", res.BestUCI, res.Score)
	}
	res, err = NewMinimaxBot(zero, 1, WithRepetitionPenalty(0)).Search(context.Background(), b)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.RootScores["f6g8"] != 0 {
		t.Fatalf("zero penalty still penalized: %v", res.RootScores["f6g8"])
	}
}

func TestNoLegalMoves(t *testing.T) {
	for _, fen := range []string{
		"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
		"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
	} {
		res, err := NewMinimaxBot(materialScorer, 2).Search(context.Background(), boardAfter(t, fen))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if res.BestMove != nil || len(res.RootScores) != 0 {
			t.Fatalf("%s: got %+v", fen, res)
		}
	}
}

func TestSearchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMinimaxBot(materialScorer, 2).Search(ctx, position.New()); !errors.Is(err, context.Canceled) {
		t.Fatalf("pre-cancelled: %v", err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	cancelling := scorerFunc(func(b *position.Board, c chess.Color) float64 {
		calls++
		if calls == 50 {
			cancel()
		}
		return 0
	})
	b := position.New()
	if _, err := NewMinimaxBot(cancelling, 3).Search(ctx, b); !errors.Is(err, context.Canceled) {
		t.Fatalf("mid-search: %v", err)
	}
	if b.Ply() != 0 || b.FEN() != position.StartFEN {
		t.Fatalf("board not restored: %s", b.FEN())
	}
}

func TestDepthValidation(t *testing.T) {
	for _, d := range []int{0, ruleset.MaxSearchDepth + 1} {
		if _, err := NewMinimaxBot(materialScorer, d).Search(context.Background(), position.New()); err == nil {
			t.Fatalf("depth %d accepted", d)
		}
	}
}

func TestSimpleBots(t *testing.T) {
	res, err := NewNewbornBot().BestMove(context.Background(), position.New())
	if err != nil || res.BestUCI != "a2a3" {
		t.Fatalf("newborn = %+v, %v", res, err)
	}
	a, b := NewRandomBot(7), NewRandomBot(7)
	for i := 0; i < 5; i++ {
		ra, _ := a.BestMove(context.Background(), position.New())
		rb, _ := b.BestMove(context.Background(), position.New())
		if ra.BestUCI != rb.BestUCI || ra.BestMove == nil {
			t.Fatalf("same seed diverged: %s vs %s", ra.BestUCI, rb.BestUCI)
		}
	}
}

func TestRuleSetBot(t *testing.T) {
	rs := ruleset.NewWeighted(2, ruleset.Rule{Name: "material", Source: "material(board)", Weight: 1})
	bot, err := NewRuleSetBot(rs, nil, WithName("mat"))
	if err != nil {
		t.Fatalf("NewRuleSetBot: %v", err)
	}
	if bot.Depth != 2 || bot.Name() != "mat" {
		t.Fatalf("bot = %d %s", bot.Depth, bot.Name())
	}
	if _, err := NewRuleSetBot(ruleset.NewWeighted(2, ruleset.Rule{Name: "x", Source: "import os", Weight: 1}), nil); !errors.Is(err, ErrNoUsableRules) {
		t.Fatalf("got %v", err)
	}
}
