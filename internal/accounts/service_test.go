package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
	repoaccounts "github.com/playdeck/playdeck/internal/repo/gorm/accounts"
)

func newTestService(t *testing.T, onlineTTL time.Duration) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repoaccounts.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(repoaccounts.NewRepo(db), NewTokenManager("test-secret", time.Hour), onlineTTL)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, time.Minute)

	if _, err := s.Register(ctx, ports.Player, "alice", "hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.Register(ctx, ports.Player, "alice", "other"); !fault.IsKind(err, fault.AccountExists) {
		t.Fatalf("expected AccountExists, got %v", err)
	}
	// same username in the other directory is a different account
	if _, err := s.Register(ctx, ports.Developer, "alice", "hunter2"); err != nil {
		t.Fatalf("register developer: %v", err)
	}

	token, a, err := s.Login(ctx, ports.Player, "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if a.Type != ports.Player {
		t.Fatalf("account type = %v", a.Type)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Username != "alice" || claims.Role != ports.Player {
		t.Fatalf("claims = %+v", claims)
	}

	if _, _, err := s.Login(ctx, ports.Player, "alice", "wrong"); !fault.IsKind(err, fault.InvalidCredentials) {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
	if _, _, err := s.Login(ctx, ports.Player, "nobody", "x"); !fault.IsKind(err, fault.InvalidCredentials) {
		t.Fatalf("unknown user must look like bad credentials, got %v", err)
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	s := newTestService(t, time.Minute)
	other := NewTokenManager("different-secret", time.Hour)
	forged, err := other.Sign("mallory", ports.Player)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Verify(forged); !fault.IsKind(err, fault.NotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 30*time.Millisecond)

	if _, err := s.Register(ctx, ports.Player, "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(ctx, ports.Player, "bob", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Login(ctx, ports.Player, "alice", "pw"); err != nil {
		t.Fatal(err)
	}

	players, err := s.Players(ctx)
	if err != nil {
		t.Fatal(err)
	}
	online := map[string]bool{}
	for _, p := range players {
		online[p.Username] = p.Online
	}
	if !online["alice"] || online["bob"] {
		t.Fatalf("presence = %v", online)
	}

	// presence decays without heartbeats
	time.Sleep(40 * time.Millisecond)
	if s.Online(ports.Player, "alice") {
		t.Fatal("alice still online after window elapsed")
	}
	s.Heartbeat(ports.Player, "alice")
	if !s.Online(ports.Player, "alice") {
		t.Fatal("heartbeat did not refresh presence")
	}
	s.Logout(ports.Player, "alice")
	if s.Online(ports.Player, "alice") {
		t.Fatal("alice online after logout")
	}
}
