package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"minimaxing/bots"
	"minimaxing/position"
	"minimaxing/ruleset"
)

// decodeRuleSet reads a rule set in any accepted upload shape and makes sure
// every rule or the script compiles.
func (s *Server) decodeRuleSet(c *gin.Context) (ruleset.RuleSet, []byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return ruleset.RuleSet{}, nil, false
	}
	var rs ruleset.RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		badRequest(c, err)
		return ruleset.RuleSet{}, nil, false
	}
	if err := s.check(rs); err != nil {
		invalid(c, err)
		return ruleset.RuleSet{}, nil, false
	}
	return rs, raw, true
}

func (s *Server) check(rs ruleset.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	_, err := bots.NewStrictEvaluator(rs, s.evalOpts()...)
	return err
}

func (s *Server) CreateRuleSet(c *gin.Context) {
	rs, raw, ok := s.decodeRuleSet(c)
	if !ok {
		return
	}
	var meta struct {
		Name     string `json:"name"`
		ParentID string `json:"parent_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		badRequest(c, err)
		return
	}
	if meta.ParentID != "" {
		if _, err := s.store.GetRuleSet(c.Request.Context(), meta.ParentID); err != nil {
			fail(c, errors.Wrap(err, "parent"))
			return
		}
	}
	rec, err := s.store.CreateRuleSet(c.Request.Context(), meta.Name, rs, meta.ParentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) ListRuleSets(c *gin.Context) {
	recs, err := s.store.ListRuleSets(c.Request.Context(), c.Query("hash"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rulesets": recs, "count": len(recs)})
}

func (s *Server) GetRuleSet(c *gin.Context) {
	rec, err := s.store.GetRuleSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateRuleSet replaces the content of a rule set no match has used yet.
func (s *Server) UpdateRuleSet(c *gin.Context) {
	rs, _, ok := s.decodeRuleSet(c)
	if !ok {
		return
	}
	rec, err := s.store.UpdateRuleSet(c.Request.Context(), c.Param("id"), rs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) DeleteRuleSet(c *gin.Context) {
	if err := s.store.DeleteRuleSet(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type cloneRequest struct {
	Name        string          `json:"name"`
	SearchDepth *int            `json:"search_depth"`
	Weights     map[int]float64 `json:"weights"`
}

// CloneRuleSet stores a copy of a rule set, optionally reweighted or at a
// new depth. The copy records its parent.
func (s *Server) CloneRuleSet(c *gin.Context) {
	var req cloneRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	parent, err := s.store.GetRuleSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	rs := parent.RuleSet.Clone()
	for i, w := range req.Weights {
		if rs, err = rs.WithWeight(i, w); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.SearchDepth != nil {
		rs = rs.WithDepth(*req.SearchDepth)
	}
	if err := rs.Validate(); err != nil {
		invalid(c, err)
		return
	}
	name := req.Name
	if name == "" {
		name = parent.Name + " (clone)"
	}
	rec, err := s.store.CreateRuleSet(c.Request.Context(), name, rs, parent.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// EvalBatch scores each FEN for its side to move. The first failing rule or
// position rejects the whole batch.
func (s *Server) EvalBatch(c *gin.Context) {
	var req struct {
		FENs []string `json:"fens"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.FENs) == 0 {
		badRequest(c, errors.New("fens must not be empty"))
		return
	}
	rec, err := s.store.GetRuleSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	eval, err := bots.NewStrictEvaluator(rec.RuleSet, s.evalOpts()...)
	if err != nil {
		invalid(c, err)
		return
	}
	scores := make([]float64, 0, len(req.FENs))
	for _, fen := range req.FENs {
		b, err := position.FromFEN(fen)
		if err != nil {
			badRequest(c, errors.Wrapf(err, "fen %q", fen))
			return
		}
		v, err := eval.EvaluateStrict(b, b.Turn())
		if err != nil {
			badRequest(c, errors.Wrapf(err, "evaluating %q", fen))
			return
		}
		scores = append(scores, v)
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}
