package httpserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"github.com/playdeck/playdeck/internal/ports"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) authRoutes(r *gin.Engine) {
	for _, role := range []ports.AccountType{ports.Developer, ports.Player} {
		role := role
		grp := r.Group("/api/" + string(role) + "s")

		grp.POST("/register", func(c *gin.Context) {
			var in credentials
			if err := c.ShouldBindJSON(&in); err != nil {
				s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			a, err := s.accounts.Register(c.Request.Context(), role, in.Username, in.Password)
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"username": a.Username, "role": a.Type})
		})

		grp.POST("/login", func(c *gin.Context) {
			var in credentials
			if err := c.ShouldBindJSON(&in); err != nil {
				s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			token, a, err := s.accounts.Login(c.Request.Context(), role, in.Username, in.Password)
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token, "username": a.Username, "role": a.Type})
		})

		grp.POST("/logout", s.authRequired(role), func(c *gin.Context) {
			s.accounts.Logout(role, currentUser(c))
			c.Status(http.StatusNoContent)
		})

		grp.POST("/heartbeat", s.authRequired(role), func(c *gin.Context) {
			s.accounts.Heartbeat(role, currentUser(c))
			c.Status(http.StatusNoContent)
		})
	}

	r.GET("/api/players", s.authRequired(), func(c *gin.Context) {
		players, err := s.accounts.Players(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, players)
	})
}
