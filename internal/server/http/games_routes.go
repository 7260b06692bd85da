package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"github.com/playdeck/playdeck/internal/catalog"
	"github.com/playdeck/playdeck/internal/ports"
)

// maxPackageBytes caps uploaded zip packages.
const maxPackageBytes = 64 << 20

type gameView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Developer   string    `json:"developer"`
	Description string    `json:"description"`
	Listed      bool      `json:"listed"`
	Latest      string    `json:"latest_version,omitempty"`
	Ratings     int64     `json:"rating_count"`
	AvgScore    float64   `json:"rating_avg"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type versionView struct {
	Label      string         `json:"label"`
	Notes      string         `json:"notes,omitempty"`
	Manifest   ports.Manifest `json:"manifest"`
	UploadedAt time.Time      `json:"uploaded_at"`
}

func (s *Server) gameRoutes(r *gin.Engine) {
	r.GET("/api/games", s.authRequired(), func(c *gin.Context) {
		includeDelisted := c.Query("all") == "true" && currentRole(c) == ports.Developer
		games, err := s.catalog.List(c.Request.Context(), includeDelisted)
		if err != nil {
			s.fail(c, err)
			return
		}
		out := make([]gameView, 0, len(games))
		for _, g := range games {
			out = append(out, s.gameView(c, g))
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/games", s.authRequired(ports.Developer), func(c *gin.Context) {
		pkg, ok := s.readPackage(c)
		if !ok {
			return
		}
		g, v, err := s.catalog.CreateGame(c.Request.Context(), currentUser(c), catalog.UploadInput{
			Name:        c.PostForm("name"),
			Description: c.PostForm("description"),
			Label:       c.PostForm("label"),
			Notes:       c.PostForm("notes"),
			Archive:     pkg,
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"game": s.gameView(c, g), "version": toVersionView(v)})
	})

	r.GET("/api/games/:id", s.authRequired(), func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := s.catalog.Game(ctx, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		versions, err := s.catalog.Versions(ctx, g.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		vs := make([]versionView, 0, len(versions))
		for _, v := range versions {
			vs = append(vs, toVersionView(v))
		}
		c.JSON(http.StatusOK, gin.H{"game": s.gameView(c, g), "versions": vs})
	})

	r.GET("/api/games/:id/plays", s.authRequired(ports.Player), func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := s.catalog.Game(ctx, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		n, err := s.tracker.Stats(ctx, currentUser(c), g.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"game_id": g.ID, "plays": n, "has_started": n > 0})
	})

	r.POST("/api/games/:id/versions", s.authRequired(ports.Developer), func(c *gin.Context) {
		pkg, ok := s.readPackage(c)
		if !ok {
			return
		}
		v, err := s.catalog.AddVersion(c.Request.Context(), currentUser(c), c.Param("id"),
			c.PostForm("label"), c.PostForm("notes"), pkg)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, toVersionView(v))
	})

	r.DELETE("/api/games/:id", s.authRequired(ports.Developer), func(c *gin.Context) {
		if err := s.catalog.Delist(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/games/:id/download", s.authRequired(), func(c *gin.Context) {
		raw, v, err := s.catalog.Download(c.Request.Context(), c.Param("id"), c.Query("version"))
		if err != nil {
			s.fail(c, err)
			return
		}
		name := fmt.Sprintf("%s-%s.zip", c.Param("id"), v.Label)
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "application/zip", raw)
	})

	r.GET("/api/games/:id/integrity", s.authRequired(), func(c *gin.Context) {
		hashes, v, err := s.catalog.Integrity(c.Request.Context(), c.Param("id"), c.Query("version"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": v.Label, "algorithm": "sha256", "files": hashes})
	})
}

// readPackage pulls the uploaded zip out of a multipart form.
func (s *Server) readPackage(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("package")
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "bad_request", "multipart field 'package' is required")
		return nil, false
	}
	if fh.Size > maxPackageBytes {
		s.respondError(c, http.StatusRequestEntityTooLarge, "bad_request", "package exceeds size limit")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxPackageBytes+1))
	if err != nil || len(raw) > maxPackageBytes {
		s.respondError(c, http.StatusBadRequest, "bad_request", "could not read package")
		return nil, false
	}
	return raw, true
}

func (s *Server) gameView(c *gin.Context, g *ports.Game) gameView {
	view := gameView{
		ID:          g.ID,
		Name:        g.Name,
		Developer:   g.Developer,
		Description: g.Description,
		Listed:      g.Listed,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if v, err := s.catalog.Resolve(c.Request.Context(), g.ID, ""); err == nil {
		view.Latest = v.Label
	}
	if n, avg, err := s.ratings.Aggregate(c.Request.Context(), g.ID); err == nil {
		view.Ratings = n
		view.AvgScore = avg
	}
	return view
}

func toVersionView(v *ports.Version) versionView {
	return versionView{Label: v.Label, Notes: v.Notes, Manifest: v.Manifest, UploadedAt: v.UploadedAt}
}
