// Package sandbox compiles user scoring logic written in a small,
// Python-flavoured expression language and evaluates it against a position
// under a step and wall-clock budget.
//
// Nothing reaches a program except through an explicit table: the position
// accessor, the perspective color, a handful of constants and built-ins, and
// the capability library. Anything else is rejected before it runs.
package sandbox

import (
	"math"
	"time"

	"github.com/notnil/chess"

	"minimaxing/position"
)

// Mode selects the source grammar.
type Mode int

const (
	// ModeRule is a single expression with board and color in scope.
	ModeRule Mode = iota
	// ModeScript is a sequence of function definitions with an entry point.
	ModeScript
)

func (m Mode) String() string {
	if m == ModeScript {
		return "script"
	}
	return "rule"
}

// EntryPoint is the function a script must define.
const EntryPoint = "evaluate"

const (
	DefaultMaxSteps = 20000
	DefaultTimeout  = 50 * time.Millisecond
	// MaxSourceLen caps the size of one rule or script in bytes.
	MaxSourceLen = 64 << 10
)

type options struct {
	maxSteps int
	timeout  time.Duration
}

// Option tunes a compiled program.
type Option func(*options)

// WithMaxSteps caps the steps one evaluation may take.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithTimeout bounds the wall-clock time of one evaluation. Zero disables the
// check.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// Program is compiled source. It is immutable and safe for concurrent use.
type Program struct {
	mode     Mode
	body     evalFn
	params   int
	maxSteps int
	timeout  time.Duration
}

// Compile parses and statically checks src. Rejections are *CompileError.
func Compile(src string, mode Mode, opts ...Option) (*Program, error) {
	o := options{maxSteps: DefaultMaxSteps, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Program{mode: mode, maxSteps: o.maxSteps, timeout: o.timeout}
	if len(src) > MaxSourceLen {
		return nil, syntaxErr(Pos{}, "source is %d bytes, limit is %d", len(src), MaxSourceLen)
	}

	toks, err := lex(src, mode == ModeScript)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeRule:
		e, err := parseRule(toks)
		if err != nil {
			return nil, err
		}
		sc := &scope{mode: ModeRule}
		if p.body, err = sc.compile(e); err != nil {
			return nil, err
		}
	case ModeScript:
		defs, err := parseScript(toks)
		if err != nil {
			return nil, err
		}
		entry, err := compileScript(defs)
		if err != nil {
			return nil, err
		}
		p.body, p.params = entry.body, entry.params
	default:
		return nil, syntaxErr(Pos{}, "unknown mode %d", int(mode))
	}
	return p, nil
}

// Mode reports the grammar the program was compiled with.
func (p *Program) Mode() Mode { return p.mode }

// Eval scores b from perspective's point of view. b is only read.
func (p *Program) Eval(b *position.Board, perspective chess.Color) (float64, error) {
	fr := &frame{board: b, persp: perspective, max: p.maxSteps}
	if p.timeout > 0 {
		fr.timed = true
		fr.deadline = time.Now().Add(p.timeout)
	}
	var env []Value
	if p.mode == ModeScript {
		env = []Value{boardValue}
		if p.params == 2 {
			env = append(env, colorValue(perspective))
		}
	}
	v, err := p.body(fr, env)
	if err != nil {
		return 0, err
	}
	f, ok := v.numeric()
	if !ok {
		return 0, runtimeErr("result is a %s, not a number", v.kind)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, runtimeErr("non-finite result %v", f)
	}
	return f, nil
}
