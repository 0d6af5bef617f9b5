package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"minimaxing/sandbox"
	"minimaxing/store"
)

// NewRouter builds the HTTP router over s.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)

	rs := router.Group("/rulesets")
	rs.POST("", s.CreateRuleSet)
	rs.GET("", s.ListRuleSets)
	rs.GET("/:id", s.GetRuleSet)
	rs.PATCH("/:id", s.UpdateRuleSet)
	rs.DELETE("/:id", s.DeleteRuleSet)
	rs.POST("/:id/clone", s.CloneRuleSet)
	rs.POST("/:id/eval_batch", s.EvalBatch)

	m := router.Group("/matches")
	m.POST("", s.CreateMatch)
	m.GET("", s.ListMatches)
	m.GET("/:id", s.GetMatch)

	return router
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// fail writes err with the status its kind maps to.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrReferenced):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// invalid rejects a request body, with the position and kind of a compile
// error when there is one.
func invalid(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var ce *sandbox.CompileError
	if errors.As(err, &ce) {
		body["reason"] = ce.Reason.String()
		if ce.Subject != "" {
			body["subject"] = ce.Subject
		}
		if ce.Line > 0 {
			body["line"], body["col"] = ce.Line, ce.Col
		}
	}
	c.JSON(http.StatusBadRequest, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
