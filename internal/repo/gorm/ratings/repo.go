// Package ratings provides GORM-based persistence for game ratings.
package ratings

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/playdeck/playdeck/internal/ports"
)

type Rating struct {
	Player  string `gorm:"primaryKey;size:64"`
	GameID  string `gorm:"primaryKey;size:64"`
	Score   int
	Comment string
	RatedAt time.Time
}

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&Rating{}) }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.RatingRepository = (*Repo)(nil)

// Upsert stores the rating, overwriting any earlier one by the same player
// for the same game.
func (r *Repo) Upsert(ctx context.Context, in *ports.Rating) error {
	row := Rating{
		Player:  in.Player,
		GameID:  in.GameID,
		Score:   in.Score,
		Comment: in.Comment,
		RatedAt: in.RatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (r *Repo) ListByGame(ctx context.Context, gameID string) ([]*ports.Rating, error) {
	var rows []*Rating
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("rated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Rating, 0, len(rows))
	for _, row := range rows {
		out = append(out, &ports.Rating{
			Player:  row.Player,
			GameID:  row.GameID,
			Score:   row.Score,
			Comment: row.Comment,
			RatedAt: row.RatedAt,
		})
	}
	return out, nil
}

// Aggregate computes count and mean on read; the ledger is not a hot path.
func (r *Repo) Aggregate(ctx context.Context, gameID string) (int64, float64, error) {
	var agg struct {
		Count int64
		Mean  float64
	}
	err := r.db.WithContext(ctx).
		Model(&Rating{}).
		Select("COUNT(*) AS count, COALESCE(AVG(score), 0) AS mean").
		Where("game_id = ?", gameID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Count, agg.Mean, nil
}
