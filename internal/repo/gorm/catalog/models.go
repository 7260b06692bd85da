package catalog

import (
	"time"

	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/ports"
)

// Game row. Delisting flips Listed; rows are never deleted.
type Game struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128"`
	Developer   string `gorm:"size:64;index"`
	Description string
	Listed      bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Version row. Seq is the autoincrement insert order; "latest version" means
// highest Seq for a game, never a semantic comparison of labels.
type Version struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	GameID      string `gorm:"size:64;uniqueIndex:uq_game_label"`
	Label       string `gorm:"size:64;uniqueIndex:uq_game_label"`
	BlobKey     string `gorm:"size:255"`
	Entry       string `gorm:"size:255"`
	ServerEntry string `gorm:"size:255"`
	MinPlayers  int
	MaxPlayers  int
	Notes       string
	CreatedAt   time.Time
}

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&Game{}, &Version{}) }

func toGameDTO(g *Game) *ports.Game {
	return &ports.Game{
		ID:          g.ID,
		Name:        g.Name,
		Developer:   g.Developer,
		Description: g.Description,
		Listed:      g.Listed,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func fromGameDTO(g *ports.Game) *Game {
	return &Game{
		ID:          g.ID,
		Name:        g.Name,
		Developer:   g.Developer,
		Description: g.Description,
		Listed:      g.Listed,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toVersionDTO(v *Version) *ports.Version {
	return &ports.Version{
		Seq:     v.Seq,
		GameID:  v.GameID,
		Label:   v.Label,
		BlobKey: v.BlobKey,
		Manifest: ports.Manifest{
			Entry:       v.Entry,
			ServerEntry: v.ServerEntry,
			MinPlayers:  v.MinPlayers,
			MaxPlayers:  v.MaxPlayers,
		},
		Notes:      v.Notes,
		UploadedAt: v.CreatedAt,
	}
}

func fromVersionDTO(v *ports.Version) *Version {
	return &Version{
		Seq:         v.Seq,
		GameID:      v.GameID,
		Label:       v.Label,
		BlobKey:     v.BlobKey,
		Entry:       v.Manifest.Entry,
		ServerEntry: v.Manifest.ServerEntry,
		MinPlayers:  v.Manifest.MinPlayers,
		MaxPlayers:  v.Manifest.MaxPlayers,
		Notes:       v.Notes,
		CreatedAt:   v.UploadedAt,
	}
}
