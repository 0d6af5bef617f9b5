package sandbox

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"minimaxing/position"
)

func compileErr(t *testing.T, src string, mode Mode) *CompileError {
	t.Helper()
	_, err := Compile(src, mode)
	if err == nil {
		t.Fatalf("Compile(%q) succeeded, want an error", src)
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Compile(%q) error %v is not a *CompileError", src, err)
	}
	return ce
}

func eval(t *testing.T, src string, mode Mode, b *position.Board, c chess.Color) float64 {
	t.Helper()
	p, err := Compile(src, mode)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	v, err := p.Eval(b, c)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func TestImportIsForbidden(t *testing.T) {
	cases := []struct {
		src  string
		mode Mode
	}{
		{"import os", ModeRule},
		{"from os import path", ModeRule},
		{"__import__(1)", ModeRule},
		{"import os\ndef evaluate(board):\n    return 1\n", ModeScript},
	}
	for _, c := range cases {
		ce := compileErr(t, c.src, c.mode)
		if ce.Reason != ForbiddenConstruct || ce.Subject != "import" {
			t.Fatalf("%q: got %v, want ForbiddenConstruct(import)", c.src, ce)
		}
	}
}

func TestUnknownNames(t *testing.T) {
	for _, src := range []string{"FOO", "foo + 1", "open(1)", "PAWNS", "None", "SQUARES", "eval(1)", "board.fen"} {
		ce := compileErr(t, src, ModeRule)
		if ce.Reason != UnknownName {
			t.Fatalf("%q: got %v, want UnknownName", src, ce)
		}
	}
}

func TestForbiddenConstructs(t *testing.T) {
	cases := []struct {
		src  string
		kind string
	}{
		{"x = 1", "assignment"},
		{"x += 1", "augmented assignment"},
		{"(x := 1)", "assignment"},
		{"del x", "deletion"},
		{"for p in board: 1", "loop"},
		{"while True: 1", "loop"},
		{"if True: 1", "branch statement"},
		{"try: 1", "exception handling"},
		{"with board: 1", "with statement"},
		{"lambda: 1", "lambda"},
		{"[p for p in board]", "comprehension"},
		{"sum(p for p in board)", "comprehension"},
		{"global x", "global declaration"},
		{"class A: 1", "class definition"},
		{"yield 1", "generator"},
		{"chess.PAWN", "attribute access"},
		{"color.name", "attribute access"},
		{"board.__class__", "private attribute"},
		{"[1][0]", "subscript"},
		{"'a'", "string literal"},
		{"{1: 2}", "dict or set literal"},
		{"1 & 2", "bitwise operator"},
		{"~1", "bitwise operator"},
		{"1 in [1]", "membership or identity test"},
		{"1 is 1", "membership or identity test"},
		{"material", "function reference"},
		{"def f(b): return 1", "function definition"},
		{"max(*[1])", "argument unpacking"},
		{"max(a=1)", "keyword argument"},
	}
	for _, c := range cases {
		ce := compileErr(t, c.src, ModeRule)
		if ce.Reason != ForbiddenConstruct || ce.Subject != c.kind {
			t.Errorf("%q: got %v, want ForbiddenConstruct(%s)", c.src, ce, c.kind)
		}
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(1", "max(1,", "1 2", "return 1"} {
		ce := compileErr(t, src, ModeRule)
		if ce.Reason != SyntaxError {
			t.Errorf("%q: got %v, want SyntaxError", src, ce)
		}
	}
	ce := compileErr(t, "material(board, WHITE, 1)", ModeRule)
	if ce.Reason != SyntaxError {
		t.Fatalf("wrong arity: got %v", ce)
	}
}

func TestLiteralOne(t *testing.T) {
	if got := eval(t, "1", ModeRule, position.New(), chess.White); got != 1.0 {
		t.Fatalf("1 evaluated to %v", got)
	}
}

func TestExpressions(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"2 ** 3", 8},
		{"-2 ** 2", -4},
		{"2 ** -1", 0.5},
		{"7 // 2", 3},
		{"-7 // 2", -4},
		{"-7 % 3", 2},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"1 < 2 < 3", 1},
		{"3 > 2 > 2", 0},
		{"1 == 1.0", 1},
		{"0 or 5", 5},
		{"2 and 0", 0},
		{"2 and 3", 3},
		{"1 if 0 else 7", 7},
		{"max(1, 5, 3)", 5},
		{"min([4, 2])", 2},
		{"sum([1, 2, 3])", 6},
		{"len([1, 2] + [3])", 3},
		{"abs(-3)", 3},
		{"round(2.5)", 2},
		{"round(1.25, 1)", 1.2},
		{"True + True", 2},
		{"not 0", 1},
		{"1_000 + .5", 1000.5},
	}
	b := position.New()
	for _, c := range cases {
		if got := eval(t, c.src, ModeRule, b, chess.White); got != c.want {
			t.Errorf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestBoardAccessAndCapabilities(t *testing.T) {
	b := position.New()
	cases := []struct {
		src  string
		c    chess.Color
		want float64
	}{
		{"material(board)", chess.White, 0},
		{"mobility(board)", chess.White, 20},
		{"piece_count(board, PAWN, WHITE)", chess.Black, 8},
		{"piece_count(board, QUEEN)", chess.Black, 1},
		{"len(board.pieces(KNIGHT, BLACK))", chess.White, 2},
		{"board.legal_move_count", chess.White, 20},
		{"board.fullmove_number + board.ply", chess.White, 1},
		{"1 if board.turn == WHITE else -1", chess.Black, 1},
		{"1 if color == board.turn else 0", chess.Black, 0},
		{"board.is_check() or is_checkmate(board)", chess.White, 0},
		{"history_length(board)", chess.White, 0},
	}
	for _, c := range cases {
		if got := eval(t, c.src, ModeRule, b, c.c); got != c.want {
			t.Errorf("%q from %v = %v, want %v", c.src, c.c, got, c.want)
		}
	}
}

func TestColorDefaultsToPerspective(t *testing.T) {
	b := position.New()
	for _, m := range []string{"e2e4", "d7d5", "e4d5"} {
		if err := b.PushUCI(m); err != nil {
			t.Fatalf("push %s: %v", m, err)
		}
	}
	if got := eval(t, "material(board)", ModeRule, b, chess.White); got != 100 {
		t.Fatalf("white perspective = %v", got)
	}
	if got := eval(t, "material(board)", ModeRule, b, chess.Black); got != -100 {
		t.Fatalf("black perspective = %v", got)
	}
	if got := eval(t, "material(board, WHITE)", ModeRule, b, chess.Black); got != 100 {
		t.Fatalf("explicit color = %v", got)
	}
}

func TestRuntimeErrors(t *testing.T) {
	for _, src := range []string{"1 / 0", "1 // 0", "len(1)", "material(1)", "[1, 2]", "10 ** 400", "max([])", "piece_count(board, 9)", "[1] < [2]"} {
		p, err := Compile(src, ModeRule)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		_, err = p.Eval(position.New(), chess.White)
		var re *RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("%q: got %v, want a *RuntimeError", src, err)
		}
	}
}

func TestStepBudget(t *testing.T) {
	p, err := Compile("1 + 1 + 1 + 1 + 1 + 1 + 1", ModeRule, WithMaxSteps(10))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Eval(position.New(), chess.White); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("got %v, want ErrBudgetExceeded", err)
	}
	p, err = Compile("1 + 1", ModeRule, WithMaxSteps(10))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if v, err := p.Eval(position.New(), chess.White); err != nil || v != 2 {
		t.Fatalf("small expression = %v, %v", v, err)
	}
}

// doubling builds a script whose helpers call the previous helper twice, so
// evaluate does 2^n work.
func doubling(n int) string {
	var sb strings.Builder
	sb.WriteString("def f0(board):\n    return 1\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "def f%d(board):\n    return f%d(board) + f%d(board)\n", i, i-1, i-1)
	}
	fmt.Fprintf(&sb, "def evaluate(board):\n    return f%d(board)\n", n)
	return sb.String()
}

func TestScriptBudget(t *testing.T) {
	p, err := Compile(doubling(20), ModeScript)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Eval(position.New(), chess.White); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("got %v, want ErrBudgetExceeded", err)
	}

	p, err = Compile(doubling(20), ModeScript, WithMaxSteps(1<<30), WithTimeout(time.Nanosecond))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Eval(position.New(), chess.White); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("timeout: got %v, want ErrBudgetExceeded", err)
	}

	if got := eval(t, doubling(3), ModeScript, position.New(), chess.White); got != 8 {
		t.Fatalf("doubling(3) = %v", got)
	}
}

func TestScripts(t *testing.T) {
	src := `"""Material with a mobility tiebreak."""

def tiebreak(board):
    return mobility(board) / 100

def evaluate(board, color):
    """Score from color's point of view."""
    return material(board, color) + tiebreak(board)
`
	b := position.New()
	if got := eval(t, src, ModeScript, b, chess.White); got != 0.2 {
		t.Fatalf("script = %v", got)
	}

	oneLine := "def evaluate(board): return 3 if board.turn == WHITE else -3\n"
	if got := eval(t, oneLine, ModeScript, b, chess.Black); got != 3 {
		t.Fatalf("one-line script = %v", got)
	}
}

func TestScriptRejections(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		reason Reason
		kind   string
	}{
		{"missing entry", "def score(board):\n    return 1\n", MissingEntryPoint, ""},
		{"empty", "", MissingEntryPoint, ""},
		{"entry arity", "def evaluate(board, color, extra):\n    return 1\n", MissingEntryPoint, ""},
		{"nested def", "def evaluate(board):\n    def g(b):\n        return 1\n    return 1\n", ForbiddenConstruct, "nested function"},
		{"assignment", "def evaluate(board):\n    x = 1\n    return x\n", ForbiddenConstruct, "assignment"},
		{"if statement", "def evaluate(board):\n    if True:\n        return 1\n", ForbiddenConstruct, "branch statement"},
		{"loop", "def evaluate(board):\n    for p in board:\n        return 1\n", ForbiddenConstruct, "loop"},
		{"default arg", "def evaluate(board, color=1):\n    return 1\n", ForbiddenConstruct, "default argument"},
		{"top-level expression", "1 + 1\ndef evaluate(board):\n    return 1\n", ForbiddenConstruct, "top-level statement"},
		{"recursion", "def evaluate(board):\n    return evaluate(board)\n", UnknownName, "evaluate"},
		{"forward call", "def evaluate(board):\n    return g(board)\ndef g(board):\n    return 1\n", UnknownName, "g"},
		{"board global", "def evaluate(b):\n    return material(board)\n", UnknownName, "board"},
		{"after return", "def evaluate(board):\n    return 1\n    return 2\n", SyntaxError, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ce := compileErr(t, c.src, ModeScript)
			if ce.Reason != c.reason {
				t.Fatalf("got %v, want %v", ce, c.reason)
			}
			if c.kind != "" && ce.Subject != c.kind {
				t.Fatalf("subject = %q, want %q", ce.Subject, c.kind)
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	ce := compileErr(t, "def evaluate(board):\n    return foo(board)\n", ModeScript)
	if ce.Reason != UnknownName || ce.Line != 2 || ce.Col != 12 {
		t.Fatalf("got %+v", ce)
	}
}

func TestEvalIsPure(t *testing.T) {
	b := position.New()
	for _, m := range []string{"e2e4", "e7e5", "g1f3"} {
		if err := b.PushUCI(m); err != nil {
			t.Fatalf("push %s: %v", m, err)
		}
	}
	fen, ply := b.FEN(), b.Ply()
	p, err := Compile("material(board) + mobility(board) - threatened_material(board) + board.legal_move_count", ModeRule)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	first, err := p.Eval(b, chess.Black)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	for i := 0; i < 3; i++ {
		v, err := p.Eval(b, chess.Black)
		if err != nil || v != first {
			t.Fatalf("repeat %d = %v, %v; want %v", i, v, err, first)
		}
	}
	if b.FEN() != fen || b.Ply() != ply {
		t.Fatalf("board changed: %s ply %d", b.FEN(), b.Ply())
	}
}

func TestNestingLimit(t *testing.T) {
	const n = 5000
	deep := map[string]string{
		"parens":   strings.Repeat("(", n) + "1" + strings.Repeat(")", n),
		"lists":    strings.Repeat("[", n) + "1" + strings.Repeat("]", n),
		"calls":    strings.Repeat("abs(", n) + "1" + strings.Repeat(")", n),
		"negation": strings.Repeat("- ", n) + "1",
		"not":      strings.Repeat("not ", n) + "1",
		"power":    strings.Repeat("2**", n) + "2",
	}
	for name, src := range deep {
		_, err := Compile(src, ModeRule)
		var ce *CompileError
		if !errors.As(err, &ce) || ce.Reason != SyntaxError || !strings.Contains(ce.Msg, "nested too deeply") {
			t.Fatalf("%s: got %v", name, err)
		}
	}

	v := eval(t, strings.Repeat("(", 40)+"1"+strings.Repeat(")", 40), ModeRule, position.New(), chess.White)
	if v != 1 {
		t.Fatalf("40 parens = %v", v)
	}
	if v := eval(t, strings.Repeat("- ", 40)+"1", ModeRule, position.New(), chess.White); v != 1 {
		t.Fatalf("40 negations = %v", v)
	}
}

func TestSourceLengthLimit(t *testing.T) {
	for _, src := range []string{
		strings.Repeat("1+", MaxSourceLen) + "1",
		strings.Repeat("(", 2000000) + "1" + strings.Repeat(")", 2000000),
	} {
		_, err := Compile(src, ModeRule)
		var ce *CompileError
		if !errors.As(err, &ce) || ce.Reason != SyntaxError || !strings.Contains(ce.Msg, "limit") {
			t.Fatalf("%d bytes: got %v", len(src), err)
		}
	}
	script := "def evaluate(board):\n    return " + strings.Repeat("1+", MaxSourceLen) + "1\n"
	if _, err := Compile(script, ModeScript); err == nil {
		t.Fatalf("oversized script accepted")
	}
}
