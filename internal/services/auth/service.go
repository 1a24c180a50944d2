package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
	"github.com/pr-poehali-dev/dice-chess-website/internal/pkg/validate"
)

type SessionStore interface {
	Create(ctx context.Context, token string, playerID int64, expiresAt time.Time) error
	FindActiveByToken(ctx context.Context, token string) (pgrepo.SessionRecord, error)
	Delete(ctx context.Context, token string) error
}

type PlayerStore interface {
	Create(ctx context.Context, email, username, passwordHash string, startTokens, startRating int) (pgrepo.PlayerRecord, error)
	FindByEmail(ctx context.Context, email string) (pgrepo.PlayerRecord, error)
	TouchLastActive(ctx context.Context, playerID int64) error
}

type Service struct {
	sessions   SessionStore
	players    PlayerStore
	sessionTTL time.Duration
	now        func() time.Time
}

func NewService(sessions SessionStore, players PlayerStore, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	return &Service{
		sessions:   sessions,
		players:    players,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	if s.sessions == nil || s.players == nil {
		return AuthResult{}, fmt.Errorf("auth dependencies are not configured")
	}

	email, ok := validate.Email(in.Email)
	if !ok {
		return AuthResult{}, fmt.Errorf("invalid email: %w", ErrValidation)
	}
	if !validate.Password(in.Password) {
		return AuthResult{}, fmt.Errorf("password too short: %w", ErrValidation)
	}
	username, ok := validate.Username(in.Username)
	if !ok {
		return AuthResult{}, fmt.Errorf("invalid username: %w", ErrValidation)
	}

	passwordHash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	player, err := s.players.Create(ctx, email, username, passwordHash, StartTokens, StartRating)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrEmailTaken):
			return AuthResult{}, ErrEmailTaken
		case errors.Is(err, pgrepo.ErrUsernameTaken):
			return AuthResult{}, ErrUsernameTaken
		default:
			return AuthResult{}, fmt.Errorf("create player: %w", err)
		}
	}

	return s.mintSession(ctx, player)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	if s.sessions == nil || s.players == nil {
		return AuthResult{}, fmt.Errorf("auth dependencies are not configured")
	}

	email, ok := validate.Email(in.Email)
	if !ok || in.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password are required: %w", ErrValidation)
	}

	player, err := s.players.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPlayerNotFound) {
			return AuthResult{}, ErrUnauthorized
		}
		return AuthResult{}, fmt.Errorf("find player by email: %w", err)
	}

	if !CheckPassword(player.PasswordHash, in.Password) {
		return AuthResult{}, ErrUnauthorized
	}

	if err := s.players.TouchLastActive(ctx, player.ID); err != nil {
		return AuthResult{}, fmt.Errorf("touch last active: %w", err)
	}

	return s.mintSession(ctx, player)
}

// Authenticate resolves a bearer token to a player id. An absent, unknown or
// expired token is ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	if s.sessions == nil {
		return 0, fmt.Errorf("session store is nil")
	}
	if strings.TrimSpace(token) == "" {
		return 0, ErrUnauthorized
	}

	session, err := s.sessions.FindActiveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgrepo.ErrSessionNotFound) {
			return 0, ErrUnauthorized
		}
		return 0, fmt.Errorf("find session: %w", err)
	}

	return session.PlayerID, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if s.sessions == nil {
		return fmt.Errorf("session store is nil")
	}
	if strings.TrimSpace(token) == "" {
		return ErrValidation
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Service) mintSession(ctx context.Context, player pgrepo.PlayerRecord) (AuthResult, error) {
	token, err := NewSessionToken()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate session token: %w", err)
	}

	expiresAt := s.now().UTC().Add(s.sessionTTL)
	if err := s.sessions.Create(ctx, token, player.ID, expiresAt); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}

	return AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		PlayerID:  player.ID,
		Username:  player.Username,
		Email:     player.Email,
	}, nil
}
