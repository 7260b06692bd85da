package httpserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"github.com/playdeck/playdeck/internal/ports"
)

func (s *Server) ratingRoutes(r *gin.Engine) {
	r.POST("/api/ratings", s.authRequired(ports.Player), func(c *gin.Context) {
		// Score carries no binding tag: a zero or missing score must reach
		// the ledger so the caller sees invalid_score, not a binding error.
		var in struct {
			GameID  string `json:"game_id" binding:"required"`
			Score   int    `json:"score"`
			Comment string `json:"comment"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if err := s.ratings.Submit(c.Request.Context(), currentUser(c), in.GameID, in.Score, in.Comment); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/games/:id/ratings", s.authRequired(), func(c *gin.Context) {
		ctx := c.Request.Context()
		list, err := s.ratings.ListByGame(ctx, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		n, avg, err := s.ratings.Aggregate(ctx, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n, "avg": avg, "ratings": list})
	})
}
