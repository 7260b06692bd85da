package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/fault"
	repocatalog "github.com/playdeck/playdeck/internal/repo/gorm/catalog"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repocatalog.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	blobs, err := archive.Open(context.Background(), "", t.TempDir())
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })
	return NewService(repocatalog.NewRepo(db), blobs)
}

func pkg(t *testing.T, manifest string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"manifest.json": manifest,
		"main.py":       "print('hi')",
		"server.py":     "print('srv')",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const duelManifest = `{"entry":"main.py","server_entry":"server.py","min_players":2,"max_players":2}`

func TestCreateGameAndResolve(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	g, v, err := s.CreateGame(ctx, "dev1", UploadInput{
		Name: "Dice Duel", Description: "a duel", Label: "v1", Archive: pkg(t, duelManifest),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID != "dice-duel" {
		t.Fatalf("slug = %q", g.ID)
	}
	if v.Manifest.MinPlayers != 2 || v.Manifest.Entry != "main.py" {
		t.Fatalf("manifest = %+v", v.Manifest)
	}

	got, err := s.Resolve(ctx, "dice-duel", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Label != "v1" {
		t.Fatalf("resolved label = %q", got.Label)
	}
	if _, err := s.Resolve(ctx, "dice-duel", "v9"); !fault.IsKind(err, fault.VersionNotFound) {
		t.Fatalf("expected VersionNotFound, got %v", err)
	}
	if _, err := s.Resolve(ctx, "no-such-game", ""); !fault.IsKind(err, fault.GameNotFound) {
		t.Fatalf("expected GameNotFound, got %v", err)
	}
}

func TestDuplicateVersionRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, _, err := s.CreateGame(ctx, "dev1", UploadInput{Name: "dice-duel", Label: "v1", Archive: pkg(t, duelManifest)}); err != nil {
		t.Fatal(err)
	}
	_, err := s.AddVersion(ctx, "dev1", "dice-duel", "v1", "", pkg(t, duelManifest))
	if !fault.IsKind(err, fault.DuplicateVersion) {
		t.Fatalf("expected DuplicateVersion, got %v", err)
	}
}

func TestAddVersionOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, _, err := s.CreateGame(ctx, "dev1", UploadInput{Name: "g", Label: "1.0", Archive: pkg(t, duelManifest)}); err != nil {
		t.Fatal(err)
	}
	_, err := s.AddVersion(ctx, "dev2", "g", "1.1", "", pkg(t, duelManifest))
	if !fault.IsKind(err, fault.NotOwner) {
		t.Fatalf("expected NotOwner, got %v", err)
	}
}

// Latest means last appended; a lexicographically smaller label uploaded later
// still wins.
func TestLatestIsLastAppended(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, _, err := s.CreateGame(ctx, "dev1", UploadInput{Name: "g", Label: "2.0", Archive: pkg(t, duelManifest)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddVersion(ctx, "dev1", "g", "1.5-hotfix", "", pkg(t, duelManifest)); err != nil {
		t.Fatal(err)
	}
	v, err := s.Resolve(ctx, "g", "")
	if err != nil {
		t.Fatal(err)
	}
	if v.Label != "1.5-hotfix" {
		t.Fatalf("latest = %q, want last appended", v.Label)
	}
}

func TestDelistIdempotentAndHidesFromListing(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, _, err := s.CreateGame(ctx, "dev1", UploadInput{Name: "g", Label: "1", Archive: pkg(t, duelManifest)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delist(ctx, "dev1", "g"); err != nil {
		t.Fatalf("delist: %v", err)
	}
	if err := s.Delist(ctx, "dev1", "g"); err != nil {
		t.Fatalf("second delist should be a no-op, got %v", err)
	}
	listed, err := s.List(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 0 {
		t.Fatalf("delisted game still listed: %v", listed)
	}
	// direct lookup and downloads keep working
	if _, err := s.Game(ctx, "g"); err != nil {
		t.Fatalf("direct lookup after delist: %v", err)
	}
	if _, _, err := s.Download(ctx, "g", ""); err != nil {
		t.Fatalf("download after delist: %v", err)
	}
}

func TestDelistRequiresOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, _, err := s.CreateGame(ctx, "dev1", UploadInput{Name: "g", Label: "1", Archive: pkg(t, duelManifest)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delist(ctx, "dev2", "g"); !fault.IsKind(err, fault.NotOwner) {
		t.Fatalf("expected NotOwner, got %v", err)
	}
}

func TestUploadRejectsBadManifest(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, _, err := s.CreateGame(ctx, "dev1", UploadInput{
		Name: "g", Label: "1",
		Archive: pkg(t, `{"entry":"missing.py","min_players":1,"max_players":2}`),
	})
	if !fault.IsKind(err, fault.UploadFailed) {
		t.Fatalf("expected UploadFailed, got %v", err)
	}
}
