package bots

import (
	"sync/atomic"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"minimaxing/position"
	"minimaxing/ruleset"
	"minimaxing/sandbox"
)

// ErrNoUsableRules means every rule of a weighted set failed to compile.
var ErrNoUsableRules = errors.New("no usable rules")

// DroppedRule is a rule left out of an evaluator because it did not compile.
type DroppedRule struct {
	Index int
	Name  string
	Err   error
}

type EvaluatorStats struct {
	Calls          int64
	Suppressed     int64
	BudgetExceeded int64
	DroppedRules   int
}

type evaluatorConfig struct {
	sandbox []sandbox.Option
	log     zerolog.Logger
}

type EvaluatorOption func(*evaluatorConfig)

// WithSandbox passes budget options to every compiled program.
func WithSandbox(opts ...sandbox.Option) EvaluatorOption {
	return func(c *evaluatorConfig) { c.sandbox = append(c.sandbox, opts...) }
}

func WithEvaluatorLogger(l zerolog.Logger) EvaluatorOption {
	return func(c *evaluatorConfig) { c.log = l }
}

type weightedRule struct {
	name   string
	weight float64
	prog   *sandbox.Program
}

// Evaluator scores positions with a compiled rule set. Rules and scripts run
// fail-soft: a runtime fault or an exhausted budget contributes 0 and is
// counted. It is safe for concurrent use.
type Evaluator struct {
	kind    ruleset.Kind
	rules   []weightedRule
	script  *sandbox.Program
	dropped []DroppedRule
	log     zerolog.Logger

	calls, suppressed, budget atomic.Int64
}

// NewEvaluator compiles rs. Weighted rules that fail to compile are dropped
// and logged; a script that fails to compile fails construction with its
// *sandbox.CompileError.
func NewEvaluator(rs ruleset.RuleSet, opts ...EvaluatorOption) (*Evaluator, error) {
	return newEvaluator(rs, false, opts)
}

// NewStrictEvaluator is NewEvaluator that refuses to drop any rule.
func NewStrictEvaluator(rs ruleset.RuleSet, opts ...EvaluatorOption) (*Evaluator, error) {
	return newEvaluator(rs, true, opts)
}

func newEvaluator(rs ruleset.RuleSet, strict bool, opts []EvaluatorOption) (*Evaluator, error) {
	cfg := evaluatorConfig{log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{kind: rs.Kind(), log: cfg.log}

	if rs.Kind() == ruleset.Scripted {
		prog, err := sandbox.Compile(rs.Script.Source, sandbox.ModeScript, cfg.sandbox...)
		if err != nil {
			return nil, errors.Wrap(err, "compile script")
		}
		e.script = prog
		return e, nil
	}

	for i, r := range rs.Rules {
		prog, err := sandbox.Compile(r.Source, sandbox.ModeRule, cfg.sandbox...)
		if err != nil {
			if strict {
				return nil, errors.Wrapf(err, "compile rule %d (%s)", i, r.Name)
			}
			e.dropped = append(e.dropped, DroppedRule{Index: i, Name: r.Name, Err: err})
			e.log.Warn().Err(err).Int("index", i).Str("rule", r.Name).Msg("dropping rule")
			continue
		}
		e.rules = append(e.rules, weightedRule{name: r.Name, weight: r.Weight, prog: prog})
	}
	if len(e.rules) == 0 {
		return nil, errors.Wrapf(ErrNoUsableRules, "%d rule(s) rejected", len(e.dropped))
	}
	return e, nil
}

// Evaluate returns the weighted score of b for perspective. Capabilities
// called without a color read perspective's side.
func (e *Evaluator) Evaluate(b *position.Board, perspective chess.Color) float64 {
	e.calls.Add(1)
	if e.script != nil {
		v, err := e.script.Eval(b, perspective)
		if err != nil {
			e.absorb(err, sandbox.EntryPoint)
			return 0
		}
		return v
	}
	var score float64
	for _, r := range e.rules {
		v, err := r.prog.Eval(b, perspective)
		if err != nil {
			e.absorb(err, r.name)
			continue
		}
		score += r.weight * v
	}
	return score
}

// EvaluateStrict is Evaluate that reports the first failure instead of
// absorbing it.
func (e *Evaluator) EvaluateStrict(b *position.Board, perspective chess.Color) (float64, error) {
	e.calls.Add(1)
	if e.script != nil {
		v, err := e.script.Eval(b, perspective)
		return v, errors.Wrap(err, sandbox.EntryPoint)
	}
	var score float64
	for _, r := range e.rules {
		v, err := r.prog.Eval(b, perspective)
		if err != nil {
			return 0, errors.Wrapf(err, "rule %s", r.name)
		}
		score += r.weight * v
	}
	return score, nil
}

func (e *Evaluator) absorb(err error, name string) {
	if errors.Is(err, sandbox.ErrBudgetExceeded) {
		e.budget.Add(1)
	} else {
		e.suppressed.Add(1)
	}
	e.log.Debug().Err(err).Str("rule", name).Msg("rule failed")
}

func (e *Evaluator) Kind() ruleset.Kind { return e.kind }

// Dropped lists the rules that did not compile.
func (e *Evaluator) Dropped() []DroppedRule { return append([]DroppedRule(nil), e.dropped...) }

func (e *Evaluator) Stats() EvaluatorStats {
	return EvaluatorStats{
		Calls:          e.calls.Load(),
		Suppressed:     e.suppressed.Load(),
		BudgetExceeded: e.budget.Load(),
		DroppedRules:   len(e.dropped),
	}
}
