// Package accounts handles registration, login, and online presence for the
// two account directories (developers and players).
package accounts

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
)

// Service owns accounts and their sessions. Presence is in-memory: a user is
// online while their heartbeats keep arriving within the online window.
type Service struct {
	repo   ports.AccountsRepository
	tokens *TokenManager

	mu        sync.Mutex
	lastSeen  map[string]time.Time // keyed by type:username
	onlineTTL time.Duration
}

func NewService(repo ports.AccountsRepository, tokens *TokenManager, onlineTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		tokens:    tokens,
		lastSeen:  make(map[string]time.Time),
		onlineTTL: onlineTTL,
	}
}

func presenceKey(typ ports.AccountType, username string) string {
	return string(typ) + ":" + username
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, typ ports.AccountType, username, password string) (*ports.Account, error) {
	if username == "" || password == "" {
		return nil, fault.New(fault.InvalidCredentials, username, "username and password are required")
	}
	if existing, err := s.repo.Get(ctx, typ, username); err == nil && existing != nil {
		return nil, fault.Newf(fault.AccountExists, username, "%s %q already exists", typ, username)
	} else if err != nil && !fault.IsKind(err, fault.AccountNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, username, "hash password", err)
	}
	a := &ports.Account{Type: typ, Username: username, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login verifies credentials and issues a token. The caller is immediately
// considered online.
func (s *Service) Login(ctx context.Context, typ ports.AccountType, username, password string) (string, *ports.Account, error) {
	a, err := s.repo.Get(ctx, typ, username)
	if err != nil {
		if fault.IsKind(err, fault.AccountNotFound) {
			return "", nil, fault.New(fault.InvalidCredentials, username, "wrong username or password")
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return "", nil, fault.New(fault.InvalidCredentials, username, "wrong username or password")
	}
	token, err := s.tokens.Sign(username, typ)
	if err != nil {
		return "", nil, fault.Wrap(fault.Internal, username, "sign token", err)
	}
	s.mu.Lock()
	s.lastSeen[presenceKey(typ, username)] = time.Now()
	s.mu.Unlock()
	return token, a, nil
}

// Verify checks a bearer token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// Heartbeat refreshes presence.
func (s *Service) Heartbeat(typ ports.AccountType, username string) {
	s.mu.Lock()
	s.lastSeen[presenceKey(typ, username)] = time.Now()
	s.mu.Unlock()
}

// Logout drops presence. The token itself expires on its own.
func (s *Service) Logout(typ ports.AccountType, username string) {
	s.mu.Lock()
	delete(s.lastSeen, presenceKey(typ, username))
	s.mu.Unlock()
}

// Online reports whether the user heartbeated within the online window.
func (s *Service) Online(typ ports.AccountType, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSeen[presenceKey(typ, username)]
	return ok && time.Since(last) <= s.onlineTTL
}

// PlayerPresence pairs a player with their online flag.
type PlayerPresence struct {
	Username string    `json:"username"`
	Online   bool      `json:"online"`
	JoinedAt time.Time `json:"joined_at"`
}

// Players lists all player accounts with presence.
func (s *Service) Players(ctx context.Context) ([]PlayerPresence, error) {
	all, err := s.repo.List(ctx, ports.Player)
	if err != nil {
		return nil, err
	}
	out := make([]PlayerPresence, 0, len(all))
	for _, a := range all {
		out = append(out, PlayerPresence{
			Username: a.Username,
			Online:   s.Online(ports.Player, a.Username),
			JoinedAt: a.CreatedAt,
		})
	}
	return out, nil
}
