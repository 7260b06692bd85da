// Package catalog implements the game catalog: games with append-only version
// histories, upload validation, delisting and version resolution.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
)

type Service struct {
	repo  ports.CatalogRepository
	blobs *archive.Store

	// serializes mutations per game id; reads go straight to the repo
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo ports.CatalogRepository, blobs *archive.Store) *Service {
	return &Service{repo: repo, blobs: blobs, locks: make(map[string]*sync.Mutex)}
}

func (s *Service) lock(gameID string) func() {
	s.mu.Lock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// UploadInput carries a new game or version upload.
type UploadInput struct {
	Name        string
	Description string
	Label       string
	Notes       string
	Archive     []byte
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"), "-")
	if slug == "" {
		return "game"
	}
	return slug
}

func blobKey(gameID, label string) string {
	return fmt.Sprintf("games/%s/%s.zip", gameID, label)
}

// CreateGame validates the package, stores its blob and creates the game with
// its first version.
func (s *Service) CreateGame(ctx context.Context, developer string, in UploadInput) (*ports.Game, *ports.Version, error) {
	m, err := archive.Inspect(in.Archive)
	if err != nil {
		return nil, nil, fault.Wrap(fault.UploadFailed, in.Name, err.Error(), err)
	}
	if strings.TrimSpace(in.Label) == "" {
		return nil, nil, fault.New(fault.UploadFailed, in.Name, "version label is required")
	}
	id := slugify(in.Name)
	unlock := s.lock(id)
	defer unlock()

	if _, err := s.repo.GetGame(ctx, id); err == nil {
		return nil, nil, fault.New(fault.GameExists, id, "a game with this name already exists")
	} else if !fault.IsKind(err, fault.GameNotFound) {
		return nil, nil, err
	}
	key := blobKey(id, in.Label)
	if err := s.blobs.Put(ctx, key, in.Archive); err != nil {
		return nil, nil, fault.Wrap(fault.UploadFailed, id, "store package", err)
	}
	now := time.Now()
	g := &ports.Game{
		ID:          id,
		Name:        in.Name,
		Developer:   developer,
		Description: in.Description,
		Listed:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateGame(ctx, g); err != nil {
		return nil, nil, err
	}
	v := &ports.Version{
		GameID:     id,
		Label:      in.Label,
		BlobKey:    key,
		Manifest:   m,
		Notes:      in.Notes,
		UploadedAt: now,
	}
	if err := s.repo.AddVersion(ctx, v); err != nil {
		return nil, nil, err
	}
	return g, v, nil
}

// AddVersion appends a new version to an existing game. Only the owning
// developer may upload; labels are unique per game.
func (s *Service) AddVersion(ctx context.Context, developer, gameID, label, notes string, pkg []byte) (*ports.Version, error) {
	unlock := s.lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Developer != developer {
		return nil, fault.New(fault.NotOwner, gameID, "only the owning developer may upload versions")
	}
	m, err := archive.Inspect(pkg)
	if err != nil {
		return nil, fault.Wrap(fault.UploadFailed, gameID, err.Error(), err)
	}
	if strings.TrimSpace(label) == "" {
		return nil, fault.New(fault.UploadFailed, gameID, "version label is required")
	}
	if _, err := s.repo.GetVersion(ctx, gameID, label); err == nil {
		return nil, fault.Newf(fault.DuplicateVersion, gameID, "version %q already exists", label)
	} else if !fault.IsKind(err, fault.VersionNotFound) {
		return nil, err
	}
	key := blobKey(gameID, label)
	if err := s.blobs.Put(ctx, key, pkg); err != nil {
		return nil, fault.Wrap(fault.UploadFailed, gameID, "store package", err)
	}
	v := &ports.Version{
		GameID:     gameID,
		Label:      label,
		BlobKey:    key,
		Manifest:   m,
		Notes:      notes,
		UploadedAt: time.Now(),
	}
	if err := s.repo.AddVersion(ctx, v); err != nil {
		return nil, err
	}
	g.UpdatedAt = v.UploadedAt
	if err := s.repo.SaveGame(ctx, g); err != nil {
		return nil, err
	}
	return v, nil
}

// Delist hides a game from listings. Idempotent; the version history and any
// bound rooms keep working.
func (s *Service) Delist(ctx context.Context, developer, gameID string) error {
	unlock := s.lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Developer != developer {
		return fault.New(fault.NotOwner, gameID, "only the owning developer may delist")
	}
	if !g.Listed {
		return nil
	}
	g.Listed = false
	g.UpdatedAt = time.Now()
	return s.repo.SaveGame(ctx, g)
}

// Game looks a game up by id, ignoring delisting. Used by rooms and
// downloads already bound to a version.
func (s *Service) Game(ctx context.Context, id string) (*ports.Game, error) {
	return s.repo.GetGame(ctx, id)
}

// List returns games for the public listing; delisted games only appear when
// includeDelisted is set.
func (s *Service) List(ctx context.Context, includeDelisted bool) ([]*ports.Game, error) {
	return s.repo.ListGames(ctx, includeDelisted)
}

func (s *Service) Versions(ctx context.Context, gameID string) ([]*ports.Version, error) {
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, gameID)
}

// Resolve maps (game id, optional label) to a concrete version record. An
// empty label resolves to the most recently appended version, not the
// semantically highest label. Pure read, no side effects.
func (s *Service) Resolve(ctx context.Context, gameID, label string) (*ports.Version, error) {
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	if label == "" {
		return s.repo.LatestVersion(ctx, gameID)
	}
	return s.repo.GetVersion(ctx, gameID, label)
}

// Download fetches a version's package bytes. Works for delisted games so
// existing installations keep working.
func (s *Service) Download(ctx context.Context, gameID, label string) ([]byte, *ports.Version, error) {
	v, err := s.Resolve(ctx, gameID, label)
	if err != nil {
		return nil, nil, err
	}
	raw, err := s.blobs.Fetch(ctx, v.BlobKey)
	if err != nil {
		return nil, nil, fault.Wrap(fault.UploadFailed, gameID, "package blob missing", err)
	}
	return raw, v, nil
}

// Integrity returns the per-file SHA-256 listing for a version's package.
func (s *Service) Integrity(ctx context.Context, gameID, label string) (map[string]string, *ports.Version, error) {
	v, err := s.Resolve(ctx, gameID, label)
	if err != nil {
		return nil, nil, err
	}
	hashes, err := s.blobs.Integrity(ctx, v.BlobKey)
	if err != nil {
		return nil, nil, fault.Wrap(fault.UploadFailed, gameID, "package blob unreadable", err)
	}
	return hashes, v, nil
}
