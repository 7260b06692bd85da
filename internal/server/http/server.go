// Package httpserver exposes the platform over a JSON API.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/playdeck/playdeck/internal/accounts"
	"github.com/playdeck/playdeck/internal/catalog"
	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/ports"
	"github.com/playdeck/playdeck/internal/ratings"
	"github.com/playdeck/playdeck/internal/rooms"
)

type Server struct {
	catalog  *catalog.Service
	accounts *accounts.Service
	tracker  *plays.Tracker
	ratings  *ratings.Ledger
	registry *rooms.Registry
	launcher *rooms.Launcher

	metrics *metrics
	httpSrv *http.Server
}

func New(cat *catalog.Service, acc *accounts.Service, tracker *plays.Tracker, led *ratings.Ledger, reg *rooms.Registry, launch *rooms.Launcher) *Server {
	return &Server{
		catalog:  cat,
		accounts: acc,
		tracker:  tracker,
		ratings:  led,
		registry: reg,
		launcher: launch,
		metrics:  newMetrics(),
	}
}

// Routes builds the gin engine with all endpoints mounted.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.ginReqID(), s.ginLogger(), s.ginCORS(), s.metrics.middleware())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", s.metrics.handler())

	s.authRoutes(r)
	s.gameRoutes(r)
	s.roomRoutes(r)
	s.ratingRoutes(r)
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Routes()}
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("http server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutCtx)
}

// ginReqID injects/propagates an X-Request-ID for traceability.
func (s *Server) ginReqID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.Request.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("reqid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func (s *Server) ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		st := c.Writer.Status()
		lvl := slog.LevelInfo
		if st >= 500 {
			lvl = slog.LevelError
		} else if st >= 400 {
			lvl = slog.LevelWarn
		}
		rid, _ := c.Get("reqid")
		slog.Log(c, lvl, "http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", st,
			"bytes", c.Writer.Size(),
			"remote", c.ClientIP(),
			"user", c.GetString("user"),
			"reqid", rid,
			"dur_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) ginCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authRequired verifies the bearer token and stashes the identity on the
// context. Pass role constants to restrict the endpoint to those roles.
func (s *Server) authRequired(roles ...ports.AccountType) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.respondError(c, http.StatusUnauthorized, "not_authorized", "missing bearer token")
			c.Abort()
			return
		}
		claims, err := s.accounts.Verify(strings.TrimSpace(token))
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, "not_authorized", "invalid token")
			c.Abort()
			return
		}
		if len(roles) > 0 {
			allowed := false
			for _, r := range roles {
				if claims.Role == r {
					allowed = true
					break
				}
			}
			if !allowed {
				s.respondError(c, http.StatusForbidden, "not_authorized", fmt.Sprintf("requires %v role", roles))
				c.Abort()
				return
			}
		}
		c.Set("user", claims.Username)
		c.Set("role", string(claims.Role))
		c.Next()
	}
}

func currentUser(c *gin.Context) string            { return c.GetString("user") }
func currentRole(c *gin.Context) ports.AccountType { return ports.AccountType(c.GetString("role")) }

// respondError sends a unified JSON error body.
func (s *Server) respondError(c *gin.Context, status int, code, message string) {
	type errBody struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	}
	rid, _ := c.Get("reqid")
	c.JSON(status, errBody{Code: code, Message: message, RequestID: fmt.Sprint(rid)})
}

// fail translates a service error into an HTTP response using its kind.
func (s *Server) fail(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case fault.GameNotFound, fault.VersionNotFound, fault.RoomNotFound, fault.AccountNotFound:
		status = http.StatusNotFound
	case fault.NotOwner, fault.NotAuthorized:
		status = http.StatusForbidden
	case fault.GameExists, fault.AccountExists, fault.DuplicateVersion, fault.AlreadyJoined,
		fault.GameNotPlayable, fault.RoomFull, fault.RoomClosed, fault.RoomNotWaiting,
		fault.InsufficientPlayers, fault.NotEligible:
		status = http.StatusConflict
	case fault.InvalidScore, fault.UploadFailed:
		status = http.StatusBadRequest
	case fault.InvalidCredentials:
		status = http.StatusUnauthorized
	case fault.LaunchFailed:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err, "path", c.Request.URL.Path)
		s.respondError(c, status, string(fault.Internal), "internal error")
		return
	}
	s.respondError(c, status, string(kind), err.Error())
}
