// Package ratings implements the rating ledger. Submissions are gated by the
// play-eligibility tracker; one rating per (player, game) with last-write-wins.
package ratings

import (
	"context"
	"time"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/ports"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Ledger struct {
	repo    ports.RatingRepository
	catalog ports.CatalogRepository
	tracker *plays.Tracker
}

func NewLedger(repo ports.RatingRepository, catalog ports.CatalogRepository, tracker *plays.Tracker) *Ledger {
	return &Ledger{repo: repo, catalog: catalog, tracker: tracker}
}

// Submit records a rating. A second submission by the same player for the
// same game overwrites the first. Eligibility survives delisting, so a
// delisted game can still be rated by players who launched it.
func (l *Ledger) Submit(ctx context.Context, player, gameID string, score int, comment string) error {
	if score < MinScore || score > MaxScore {
		return fault.Newf(fault.InvalidScore, gameID, "score must be between %d and %d", MinScore, MaxScore)
	}
	if _, err := l.catalog.GetGame(ctx, gameID); err != nil {
		return err
	}
	ok, err := l.tracker.IsEligible(ctx, player, gameID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.New(fault.NotEligible, gameID, "player must launch the game before rating it")
	}
	return l.repo.Upsert(ctx, &ports.Rating{
		Player:  player,
		GameID:  gameID,
		Score:   score,
		Comment: comment,
		RatedAt: time.Now(),
	})
}

// ListByGame returns all ratings for a game, newest first.
func (l *Ledger) ListByGame(ctx context.Context, gameID string) ([]*ports.Rating, error) {
	return l.repo.ListByGame(ctx, gameID)
}

// Aggregate computes the rating count and mean on read.
func (l *Ledger) Aggregate(ctx context.Context, gameID string) (int64, float64, error) {
	return l.repo.Aggregate(ctx, gameID)
}
