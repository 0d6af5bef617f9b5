package game

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"minimaxing/bots"
	"minimaxing/position"
	"minimaxing/ruleset"
)

func ruleBot(t *testing.T, depth int, rules ...ruleset.Rule) *bots.MinimaxBot {
	t.Helper()
	e, err := bots.NewEvaluator(ruleset.NewWeighted(depth, rules...))
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return bots.NewMinimaxBot(e, depth)
}

var material = ruleset.Rule{Name: "material", Source: "material(board)", Weight: 1}

// replayRootScores checks that every ply scored each legal move once.
func replayRootScores(t *testing.T, rec Record) {
	t.Helper()
	b, err := position.FromFEN(rec.StartFEN)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	for _, p := range rec.Plies {
		legal := b.LegalUCIs()
		if len(p.RootScores) != len(legal) {
			t.Fatalf("ply %d: %d root scores for %d legal moves", p.Ply, len(p.RootScores), len(legal))
		}
		for _, u := range legal {
			if _, ok := p.RootScores[u]; !ok {
				t.Fatalf("ply %d: no score for %s", p.Ply, u)
			}
		}
		if err := b.PushUCI(p.UCI); err != nil {
			t.Fatalf("ply %d: %v", p.Ply, err)
		}
	}
}

func TestMaterialDuel(t *testing.T) {
	play := func() Record {
		rec, err := NewMatch(ruleBot(t, 2, material), ruleBot(t, 2, material), WithMaxPlies(16)).Play(context.Background())
		if err != nil {
			t.Fatalf("Play: %v", err)
		}
		return rec
	}
	rec := play()
	if rec.Termination == "" || rec.Result == "" {
		t.Fatalf("match did not terminate cleanly: %+v", rec)
	}
	if rec.Termination == PlyLimit && (len(rec.Plies) != 16 || rec.Result != "*") {
		t.Fatalf("ply limit with %d plies, result %s", len(rec.Plies), rec.Result)
	}
	replayRootScores(t, rec)
	for _, p := range rec.Plies {
		want := p.Score
		if p.Side == "black" {
			want = -want
		}
		if p.EvalScore != want {
			t.Fatalf("ply %d: eval %v is not White-relative to score %v", p.Ply, p.EvalScore, p.Score)
		}
		if p.RootScores[p.UCI] != p.Score {
			t.Fatalf("ply %d: chosen move scored %v, search said %v", p.Ply, p.RootScores[p.UCI], p.Score)
		}
	}
	if !strings.Contains(rec.PGN, `[White "Minimax Bot (depth 2)"]`) {
		t.Fatalf("PGN missing White tag:\n%s", rec.PGN)
	}

	again := play()
	if again.PGN != rec.PGN || again.FinalFEN != rec.FinalFEN {
		t.Fatalf("same match played twice differs")
	}
}

func TestMaterialDuelToTheEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("plays a full-length game")
	}
	rec, err := NewMatch(ruleBot(t, 2, material), ruleBot(t, 2, material), WithMaxPlies(DefaultMaxPlies)).Play(context.Background())
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	switch {
	case rec.Termination == "" || rec.Result == "":
		t.Fatalf("no termination: %+v", rec)
	case len(rec.Plies) > DefaultMaxPlies:
		t.Fatalf("%d plies past the cap", len(rec.Plies))
	case rec.Termination == PlyLimit && len(rec.Plies) != DefaultMaxPlies:
		t.Fatalf("ply limit after %d plies", len(rec.Plies))
	case rec.Termination != PlyLimit && rec.Result == "*":
		t.Fatalf("%s left the result open", rec.Termination)
	}
	replayRootScores(t, rec)
}

func TestMateInOne(t *testing.T) {
	white := ruleBot(t, 1, ruleset.Rule{Name: "mate", Source: "-1000 if board.is_checkmate() else material(board)", Weight: 1})
	fen := "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4"
	rec, err := NewMatch(white, bots.NewNewbornBot(), WithStartFEN(fen)).Play(context.Background())
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(rec.Plies) != 1 || rec.Plies[0].UCI != "h5f7" {
		t.Fatalf("plies = %+v", rec.Plies)
	}
	if rec.Termination != Checkmate || rec.Result != "1-0" {
		t.Fatalf("got %s %s", rec.Termination, rec.Result)
	}
	if !strings.Contains(rec.PGN, "Qxf7") || !strings.Contains(rec.PGN, `[FEN "`+fen+`"]`) {
		t.Fatalf("PGN:\n%s", rec.PGN)
	}
}

// stuckBot always proposes the move it picked from the initial position.
type stuckBot struct{ uci string }

func (s stuckBot) Name() string { return "stuck" }

func (s stuckBot) BestMove(ctx context.Context, b *position.Board) (bots.SearchResult, error) {
	start := position.New()
	return bots.SearchResult{BestMove: start.FindUCI(s.uci), BestUCI: s.uci}, nil
}

func TestIllegalMoveIsAnInvariantViolation(t *testing.T) {
	rec, err := NewMatch(stuckBot{"g1f3"}, bots.NewNewbornBot()).Play(context.Background())
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want *InvariantError", err)
	}
	if ie.Ply != 2 || ie.Side != "white" || ie.Move != "g1f3" {
		t.Fatalf("error = %+v", ie)
	}
	if len(rec.Plies) != 2 {
		t.Fatalf("record kept %d plies", len(rec.Plies))
	}
}

func TestTerminalStarts(t *testing.T) {
	cases := []struct {
		fen    string
		term   Termination
		result string
	}{
		{"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", Stalemate, "1/2-1/2"},
		{"8/8/8/8/8/8/8/K6k w - - 0 1", InsufficientMaterial, "1/2-1/2"},
		{"4k3/8/8/8/8/8/8/R3K3 w - - 150 100", FiftyMoveRule, "1/2-1/2"},
		{"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", Checkmate, "0-1"},
	}
	for _, c := range cases {
		rec, err := NewMatch(bots.NewNewbornBot(), bots.NewNewbornBot(), WithStartFEN(c.fen)).Play(context.Background())
		if err != nil {
			t.Fatalf("Play(%s): %v", c.fen, err)
		}
		if len(rec.Plies) != 0 || rec.Termination != c.term || rec.Result != c.result {
			t.Fatalf("%s: %d plies, %s, %s", c.fen, len(rec.Plies), rec.Termination, rec.Result)
		}
	}
}

func TestClassifyRepetition(t *testing.T) {
	b := position.New()
	for i := 0; i < 2; i++ {
		for _, m := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
			if err := b.PushUCI(m); err != nil {
				t.Fatalf("push %s: %v", m, err)
			}
		}
	}
	if got := Classify(b); got != ThreefoldRepetition {
		t.Fatalf("Classify = %s", got)
	}
}

func TestPlayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMatch(bots.NewNewbornBot(), bots.NewNewbornBot()).Play(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestRunBatch(t *testing.T) {
	var jobs []Job
	for _, id := range []string{"a", "b", "c"} {
		jobs = append(jobs, Job{ID: id, White: bots.NewNewbornBot(), Black: bots.NewRandomBot(1), Options: []MatchOption{WithMaxPlies(6)}})
	}
	jobs = append(jobs, Job{ID: "bad", White: stuckBot{"g1f3"}, Black: bots.NewNewbornBot()})

	out := RunBatch(context.Background(), jobs, 2)
	if len(out) != 4 {
		t.Fatalf("got %d outcomes", len(out))
	}
	for i, o := range out[:3] {
		if o.ID != jobs[i].ID || o.Err != nil {
			t.Fatalf("outcome %d = %+v", i, o)
		}
		if o.Record.Termination != PlyLimit || len(o.Record.Plies) != 6 {
			t.Fatalf("outcome %s: %s after %d plies", o.ID, o.Record.Termination, len(o.Record.Plies))
		}
		if o.Record.PGN != out[0].Record.PGN {
			t.Fatalf("identical jobs produced different games")
		}
	}
	var ie *InvariantError
	if !errors.As(out[3].Err, &ie) {
		t.Fatalf("bad job: %v", out[3].Err)
	}
}
