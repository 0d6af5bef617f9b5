// Package ruleset is the data model of a bot's scoring logic: either a list
// of weighted rule expressions or a single script, plus the search depth it
// plays at.
package ruleset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

const (
	DefaultSearchDepth = 3
	MaxSearchDepth     = 8
)

// Kind tells which variant of a RuleSet is populated.
type Kind int

const (
	Weighted Kind = iota + 1
	Scripted
)

func (k Kind) String() string {
	switch k {
	case Weighted:
		return "weighted"
	case Scripted:
		return "script"
	}
	return "invalid"
}

// Rule is one weighted expression.
type Rule struct {
	Name   string  `json:"name"`
	Source string  `json:"code"`
	Weight float64 `json:"weight"`
}

// Script is a full evaluation program with an evaluate entry point.
type Script struct {
	Source string `json:"script"`
}

// RuleSet holds exactly one of Rules or Script.
type RuleSet struct {
	Rules       []Rule
	Script      *Script
	SearchDepth int
}

var (
	ErrEmpty        = errors.New("ruleset: no rules and no script")
	ErrBothVariants = errors.New("ruleset: both rules and script are set")
	ErrBadDepth     = errors.Errorf("ruleset: search depth must be between 1 and %d", MaxSearchDepth)
	ErrBadWeight    = errors.New("ruleset: weight must be a finite number")
)

// NewWeighted builds a weighted rule set.
func NewWeighted(depth int, rules ...Rule) RuleSet {
	return RuleSet{Rules: append([]Rule(nil), rules...), SearchDepth: depth}
}

// NewScripted builds a script rule set.
func NewScripted(depth int, source string) RuleSet {
	return RuleSet{Script: &Script{Source: source}, SearchDepth: depth}
}

func (rs RuleSet) Kind() Kind {
	switch {
	case rs.Script != nil && len(rs.Rules) == 0:
		return Scripted
	case rs.Script == nil && len(rs.Rules) > 0:
		return Weighted
	}
	return 0
}

func (rs RuleSet) Validate() error {
	switch {
	case rs.Script != nil && len(rs.Rules) > 0:
		return ErrBothVariants
	case rs.Script == nil && len(rs.Rules) == 0:
		return ErrEmpty
	case rs.SearchDepth < 1 || rs.SearchDepth > MaxSearchDepth:
		return errors.Wrapf(ErrBadDepth, "got %d", rs.SearchDepth)
	}
	return rs.checkWeights()
}

func (rs RuleSet) checkWeights() error {
	for i, r := range rs.Rules {
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			return errors.Wrapf(ErrBadWeight, "rule %d (%s) has weight %v", i, r.Name, r.Weight)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (rs RuleSet) Clone() RuleSet {
	out := RuleSet{SearchDepth: rs.SearchDepth}
	if rs.Rules != nil {
		out.Rules = append([]Rule(nil), rs.Rules...)
	}
	if rs.Script != nil {
		s := *rs.Script
		out.Script = &s
	}
	return out
}

// WithWeight returns a copy with rule i reweighted.
func (rs RuleSet) WithWeight(i int, w float64) (RuleSet, error) {
	if i < 0 || i >= len(rs.Rules) {
		return RuleSet{}, errors.Errorf("ruleset: no rule at index %d", i)
	}
	out := rs.Clone()
	out.Rules[i].Weight = w
	return out, nil
}

// WithDepth returns a copy searching at depth d.
func (rs RuleSet) WithDepth(d int) RuleSet {
	out := rs.Clone()
	out.SearchDepth = d
	return out
}

// Canonical is the serialization the hash is computed over: sorted keys, no
// insignificant whitespace, no HTML escaping.
func (rs RuleSet) Canonical() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Maps marshal with sorted keys.
	doc := map[string]interface{}{"search_depth": rs.SearchDepth}
	if rs.Script != nil {
		doc["script"] = rs.Script.Source
	}
	if len(rs.Rules) > 0 {
		rules := make([]map[string]interface{}, len(rs.Rules))
		for i, r := range rs.Rules {
			rules[i] = map[string]interface{}{"code": r.Source, "name": r.Name, "weight": weightValue(r.Weight)}
		}
		doc["rules"] = rules
	}
	if err := enc.Encode(doc); err != nil {
		// Only strings, finite numbers and maps of them are encoded.
		panic(err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// weightValue keeps non-finite weights hashable; JSON has no number for them.
func weightValue(w float64) interface{} {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return strconv.FormatFloat(w, 'g', -1, 64)
	}
	return w
}

// Hash is the lowercase hex SHA-256 of Canonical.
func (rs RuleSet) Hash() string {
	sum := sha256.Sum256(rs.Canonical())
	return hex.EncodeToString(sum[:])
}

func (rs RuleSet) MarshalJSON() ([]byte, error) {
	if err := rs.checkWeights(); err != nil {
		return nil, err
	}
	return rs.Canonical(), nil
}

// wire covers every upload shape the service has accepted: "rules",
// "rules_json" (a rule array, or a one-element array holding a script
// entry), and a top-level "script".
type wire struct {
	Rules       []wireRule `json:"rules"`
	RulesJSON   []wireRule `json:"rules_json"`
	Script      *string    `json:"script"`
	SearchDepth *int       `json:"search_depth"`
}

type wireRule struct {
	Name   string   `json:"name"`
	Code   string   `json:"code"`
	Weight *float64 `json:"weight"`
	Script *string  `json:"script"`
}

func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "ruleset: decode")
	}
	out := RuleSet{SearchDepth: DefaultSearchDepth}
	if w.SearchDepth != nil {
		out.SearchDepth = *w.SearchDepth
	}
	if w.Script != nil {
		out.Script = &Script{Source: *w.Script}
	}
	entries := w.Rules
	if len(entries) == 0 {
		entries = w.RulesJSON
	}
	if len(entries) == 1 && entries[0].Script != nil {
		if out.Script != nil {
			return ErrBothVariants
		}
		out.Script = &Script{Source: *entries[0].Script}
		entries = nil
	}
	for i, e := range entries {
		if e.Script != nil {
			return errors.Errorf("ruleset: rule %d mixes a script with rules", i)
		}
		r := Rule{Name: e.Name, Source: e.Code, Weight: 1}
		if e.Weight != nil {
			r.Weight = *e.Weight
		}
		out.Rules = append(out.Rules, r)
	}
	if out.Script != nil && len(out.Rules) > 0 {
		return ErrBothVariants
	}
	*rs = out
	return nil
}
