// Package ports holds the domain DTOs and the repository interfaces the
// services are built against. Implementations live under internal/repo.
package ports

import (
	"context"
	"time"
)

// Game is a catalog entry owned by one developer. Versions are append-only;
// delisting hides the game from listings but never deletes it.
type Game struct {
	ID          string // slug, stable and unique
	Name        string
	Developer   string
	Description string
	Listed      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Manifest is the per-version metadata the core reads. Validated once at
// version ingestion; launch never re-parses user JSON.
type Manifest struct {
	Entry       string `json:"entry"`
	ServerEntry string `json:"server_entry,omitempty"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
}

// Version is an immutable, labeled release of a game's content.
// Seq is the append order; "latest" means highest Seq, not highest label.
type Version struct {
	Seq        uint
	GameID     string
	Label      string
	BlobKey    string
	Manifest   Manifest
	Notes      string
	UploadedAt time.Time
}

// PlayRecord tracks per (player, game) launch participation. Plays only ever
// grows; eligibility is Plays > 0.
type PlayRecord struct {
	Player    string
	GameID    string
	Plays     int
	FirstPlay time.Time
}

// Rating is one player's score for a game. One row per (player, game);
// resubmission overwrites.
type Rating struct {
	Player  string
	GameID  string
	Score   int
	Comment string
	RatedAt time.Time
}

// AccountType distinguishes the two directories of the original system.
type AccountType string

const (
	Developer AccountType = "developer"
	Player    AccountType = "player"
)

// Account is an authenticated identity. The core only performs authorization
// (ownership, roster membership) against it.
type Account struct {
	ID           uint
	Type         AccountType
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CatalogRepository persists games and their version history.
type CatalogRepository interface {
	CreateGame(ctx context.Context, g *Game) error
	SaveGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context, includeDelisted bool) ([]*Game, error)

	AddVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, gameID, label string) (*Version, error)
	// LatestVersion returns the most recently appended version (by Seq).
	LatestVersion(ctx context.Context, gameID string) (*Version, error)
	ListVersions(ctx context.Context, gameID string) ([]*Version, error)
}

// AccountsRepository persists developer and player accounts.
type AccountsRepository interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, typ AccountType, username string) (*Account, error)
	List(ctx context.Context, typ AccountType) ([]*Account, error)
}

// PlayRepository persists play records. MarkStarted must be an atomic upsert
// per (player, game); it never decrements.
type PlayRepository interface {
	MarkStarted(ctx context.Context, player, gameID string, at time.Time) error
	// MarkStartedAll upserts the whole roster in one transaction; a failure
	// on any member leaves no record behind.
	MarkStartedAll(ctx context.Context, players []string, gameID string, at time.Time) error
	Get(ctx context.Context, player, gameID string) (*PlayRecord, error)
}

// RatingRepository persists ratings with last-write-wins upsert semantics.
type RatingRepository interface {
	Upsert(ctx context.Context, r *Rating) error
	ListByGame(ctx context.Context, gameID string) ([]*Rating, error)
	Aggregate(ctx context.Context, gameID string) (count int64, mean float64, err error)
}
