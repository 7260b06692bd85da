package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/playdeck/playdeck/internal/ports"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) roomRoutes(r *gin.Engine) {
	r.GET("/api/rooms", s.authRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, s.registry.List())
	})

	r.POST("/api/rooms", s.authRequired(ports.Player), func(c *gin.Context) {
		var in struct {
			GameID  string `json:"game_id" binding:"required"`
			Version string `json:"version"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rm, err := s.registry.Create(c.Request.Context(), currentUser(c), in.GameID, in.Version)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, rm)
	})

	r.GET("/api/rooms/:id", s.authRequired(), func(c *gin.Context) {
		rm, err := s.registry.Get(c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rm)
	})

	r.POST("/api/rooms/:id/join", s.authRequired(ports.Player), func(c *gin.Context) {
		rm, err := s.registry.Join(c.Param("id"), currentUser(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rm)
	})

	r.POST("/api/rooms/:id/leave", s.authRequired(ports.Player), func(c *gin.Context) {
		rm, err := s.registry.Leave(c.Param("id"), currentUser(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rm)
	})

	r.POST("/api/rooms/:id/start", s.authRequired(ports.Player), func(c *gin.Context) {
		res, err := s.launcher.Start(c.Request.Context(), c.Param("id"), currentUser(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.POST("/api/rooms/:id/close", s.authRequired(ports.Player), func(c *gin.Context) {
		rm, err := s.registry.Close(c.Param("id"), currentUser(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rm)
	})

	r.POST("/api/rooms/:id/heartbeat", s.authRequired(ports.Player), func(c *gin.Context) {
		if err := s.registry.Heartbeat(c.Param("id"), currentUser(c)); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/rooms/:id/watch", s.authRequired(), s.watchRoom)
}

// watchRoom streams room events over a websocket until the client hangs up
// or the room is reaped.
func (s *Server) watchRoom(c *gin.Context) {
	events, cancel, err := s.registry.Watch(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer cancel()

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// drain client frames so pings and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if rm, err := s.registry.Get(c.Param("id")); err == nil {
		_ = conn.WriteJSON(gin.H{"type": "snapshot", "room": rm})
	}
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-done:
			return
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "closed" {
				return
			}
		}
	}
}
