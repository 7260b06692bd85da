package ratings

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/ports"
	repocatalog "github.com/playdeck/playdeck/internal/repo/gorm/catalog"
	repoplays "github.com/playdeck/playdeck/internal/repo/gorm/plays"
	reporatings "github.com/playdeck/playdeck/internal/repo/gorm/ratings"
)

func newLedger(t *testing.T) (*Ledger, *plays.Tracker) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, m := range []func(*gorm.DB) error{
		repocatalog.AutoMigrate, repoplays.AutoMigrate, reporatings.AutoMigrate,
	} {
		if err := m(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	cat := repocatalog.NewRepo(db)
	now := time.Now()
	if err := cat.CreateGame(context.Background(), &ports.Game{
		ID: "dice-duel", Name: "Dice Duel", Developer: "dev1", Listed: true,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed game: %v", err)
	}
	tracker := plays.NewTracker(repoplays.NewRepo(db))
	return NewLedger(reporatings.NewRepo(db), cat, tracker), tracker
}

func TestSubmitRequiresEligibility(t *testing.T) {
	ctx := context.Background()
	l, tr := newLedger(t)

	err := l.Submit(ctx, "carol", "dice-duel", 4, "fun")
	if !fault.IsKind(err, fault.NotEligible) {
		t.Fatalf("expected NotEligible, got %v", err)
	}

	if err := tr.MarkStarted(ctx, "carol", "dice-duel"); err != nil {
		t.Fatal(err)
	}
	if err := l.Submit(ctx, "carol", "dice-duel", 4, "fun"); err != nil {
		t.Fatalf("submit after start: %v", err)
	}
}

func TestSubmitScoreBounds(t *testing.T) {
	ctx := context.Background()
	l, tr := newLedger(t)
	if err := tr.MarkStarted(ctx, "carol", "dice-duel"); err != nil {
		t.Fatal(err)
	}
	for _, score := range []int{0, 6, -1} {
		if err := l.Submit(ctx, "carol", "dice-duel", score, ""); !fault.IsKind(err, fault.InvalidScore) {
			t.Errorf("score %d: expected InvalidScore, got %v", score, err)
		}
	}
}

func TestSubmitUnknownGame(t *testing.T) {
	l, _ := newLedger(t)
	err := l.Submit(context.Background(), "carol", "nope", 3, "")
	if !fault.IsKind(err, fault.GameNotFound) {
		t.Fatalf("expected GameNotFound, got %v", err)
	}
}

func TestResubmissionOverwrites(t *testing.T) {
	ctx := context.Background()
	l, tr := newLedger(t)
	if err := tr.MarkStarted(ctx, "carol", "dice-duel"); err != nil {
		t.Fatal(err)
	}
	if err := l.Submit(ctx, "carol", "dice-duel", 2, "meh"); err != nil {
		t.Fatal(err)
	}
	if err := l.Submit(ctx, "carol", "dice-duel", 5, "grew on me"); err != nil {
		t.Fatal(err)
	}
	count, mean, err := l.Aggregate(ctx, "dice-duel")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (overwrite, not duplicate)", count)
	}
	if math.Abs(mean-5) > 1e-9 {
		t.Fatalf("mean = %v, want 5", mean)
	}
	rs, err := l.ListByGame(ctx, "dice-duel")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Comment != "grew on me" {
		t.Fatalf("ratings = %+v", rs)
	}
}

func TestAggregateMean(t *testing.T) {
	ctx := context.Background()
	l, tr := newLedger(t)
	for i, p := range []string{"a", "b", "c"} {
		if err := tr.MarkStarted(ctx, p, "dice-duel"); err != nil {
			t.Fatal(err)
		}
		if err := l.Submit(ctx, p, "dice-duel", i+2, ""); err != nil {
			t.Fatal(err)
		}
	}
	count, mean, err := l.Aggregate(ctx, "dice-duel")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 || math.Abs(mean-3) > 1e-9 {
		t.Fatalf("aggregate = (%d, %v), want (3, 3)", count, mean)
	}
}
