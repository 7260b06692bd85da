// Package plays provides GORM-based persistence for play records.
package plays

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/playdeck/playdeck/internal/ports"
)

type PlayRecord struct {
	Player    string `gorm:"primaryKey;size:64"`
	GameID    string `gorm:"primaryKey;size:64"`
	Plays     int
	FirstPlay time.Time
}

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&PlayRecord{}) }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.PlayRepository = (*Repo)(nil)

// MarkStarted upserts the (player, game) record, incrementing the play count.
// The upsert makes concurrent marks for the same pair linearizable at the
// database; the count only ever grows.
func (r *Repo) MarkStarted(ctx context.Context, player, gameID string, at time.Time) error {
	return markStarted(r.db.WithContext(ctx), player, gameID, at)
}

// MarkStartedAll upserts a whole roster inside one transaction so a failure
// partway grants eligibility to nobody.
func (r *Repo) MarkStartedAll(ctx context.Context, players []string, gameID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range players {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("empty player id in roster")
			}
			if err := markStarted(tx, p, gameID, at); err != nil {
				return err
			}
		}
		return nil
	})
}

func markStarted(db *gorm.DB, player, gameID string, at time.Time) error {
	rec := PlayRecord{Player: player, GameID: gameID, Plays: 1, FirstPlay: at}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player"}, {Name: "game_id"}},
		DoUpdates: clause.Assignments(map[string]any{"plays": gorm.Expr("plays + 1")}),
	}).Create(&rec).Error
}

func (r *Repo) Get(ctx context.Context, player, gameID string) (*ports.PlayRecord, error) {
	var rec PlayRecord
	err := r.db.WithContext(ctx).
		Where("player = ? AND game_id = ?", player, gameID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ports.PlayRecord{
		Player:    rec.Player,
		GameID:    rec.GameID,
		Plays:     rec.Plays,
		FirstPlay: rec.FirstPlay,
	}, nil
}
