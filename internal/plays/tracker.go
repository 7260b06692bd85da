// Package plays tracks which players have launched which games. The flag is
// monotonic: once a player has started a game, nothing clears it, including
// delisting. It is the sole capability check for rating eligibility.
package plays

import (
	"context"
	"time"

	"github.com/playdeck/playdeck/internal/ports"
)

type Tracker struct {
	repo ports.PlayRepository
}

func NewTracker(repo ports.PlayRepository) *Tracker { return &Tracker{repo: repo} }

// MarkStarted records a successful launch for one player.
func (t *Tracker) MarkStarted(ctx context.Context, player, gameID string) error {
	return t.repo.MarkStarted(ctx, player, gameID, time.Now())
}

// MarkStartedAll records a successful launch for every player in a roster.
// Called by the session launcher on the start transition; the whole roster
// lands or none of it does, so an aborted launch grants no eligibility.
func (t *Tracker) MarkStartedAll(ctx context.Context, players []string, gameID string) error {
	return t.repo.MarkStartedAll(ctx, players, gameID, time.Now())
}

// IsEligible reports whether the player has ever reached a start transition
// for the game.
func (t *Tracker) IsEligible(ctx context.Context, player, gameID string) (bool, error) {
	rec, err := t.repo.Get(ctx, player, gameID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Plays > 0, nil
}

// Stats returns the play count for a (player, game) pair; zero when the pair
// has never launched together.
func (t *Tracker) Stats(ctx context.Context, player, gameID string) (int, error) {
	rec, err := t.repo.Get(ctx, player, gameID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Plays, nil
}
