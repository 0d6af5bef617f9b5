package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"minimaxing/store"
)

type matchRequest struct {
	WhiteID string `json:"white_id" binding:"required"`
	BlackID string `json:"black_id" binding:"required"`
}

// CreateMatch queues a match between two stored rule sets. Both become
// immutable from here on.
func (s *Server) CreateMatch(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := s.store.CreateMatch(c.Request.Context(), req.WhiteID, req.BlackID)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.enqueue(c.Request.Context(), m.ID); err != nil {
		// Still queued in the store; the next Start picks it up.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errors.Wrap(err, "queue").Error(), "match_id": m.ID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"match_id": m.ID, "status": m.Status})
}

func (s *Server) GetMatch(c *gin.Context) {
	m, err := s.store.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) ListMatches(c *gin.Context) {
	ms, err := s.store.ListMatches(c.Request.Context(), store.Status(c.Query("status")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": ms, "count": len(ms)})
}
