// Package catalog provides GORM-based persistence for games and versions.
package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.CatalogRepository = (*Repo)(nil)

func (r *Repo) CreateGame(ctx context.Context, g *ports.Game) error {
	return r.db.WithContext(ctx).Create(fromGameDTO(g)).Error
}

func (r *Repo) SaveGame(ctx context.Context, g *ports.Game) error {
	return r.db.WithContext(ctx).Save(fromGameDTO(g)).Error
}

func (r *Repo) GetGame(ctx context.Context, id string) (*ports.Game, error) {
	var g Game
	if err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.New(fault.GameNotFound, id, "game does not exist")
		}
		return nil, err
	}
	return toGameDTO(&g), nil
}

func (r *Repo) ListGames(ctx context.Context, includeDelisted bool) ([]*ports.Game, error) {
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if !includeDelisted {
		q = q.Where("listed = ?", true)
	}
	var rows []*Game
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ports.Game, 0, len(rows))
	for _, g := range rows {
		out = append(out, toGameDTO(g))
	}
	return out, nil
}

func (r *Repo) AddVersion(ctx context.Context, v *ports.Version) error {
	row := fromVersionDTO(v)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	v.Seq = row.Seq
	return nil
}

func (r *Repo) GetVersion(ctx context.Context, gameID, label string) (*ports.Version, error) {
	var v Version
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND label = ?", gameID, label).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.Newf(fault.VersionNotFound, gameID, "version %q does not exist", label)
		}
		return nil, err
	}
	return toVersionDTO(&v), nil
}

// LatestVersion returns the last appended version for a game, by insert
// order. Labels are never compared.
func (r *Repo) LatestVersion(ctx context.Context, gameID string) (*ports.Version, error) {
	var v Version
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("seq DESC").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.New(fault.VersionNotFound, gameID, "game has no versions")
		}
		return nil, err
	}
	return toVersionDTO(&v), nil
}

func (r *Repo) ListVersions(ctx context.Context, gameID string) ([]*ports.Version, error) {
	var rows []*Version
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Version, 0, len(rows))
	for _, v := range rows {
		out = append(out, toVersionDTO(v))
	}
	return out, nil
}
