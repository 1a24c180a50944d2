package profiles

import (
	"context"
	"errors"
	"fmt"
	"math"

	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
	"github.com/pr-poehali-dev/dice-chess-website/internal/pkg/validate"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrPlayerNotFound = errors.New("player not found")
	ErrUsernameTaken  = errors.New("username already taken")
)

type PlayerStore interface {
	FindByID(ctx context.Context, playerID int64) (pgrepo.PlayerRecord, error)
	UpdateUsername(ctx context.Context, playerID int64, username string) error
	Rank(ctx context.Context, rating int) (int, error)
}

type Service struct {
	players PlayerStore
}

// View is the read model of a player profile. WinRate and Rank are derived at
// read time and never stored.
type View struct {
	ID            int64
	Username      string
	Email         string
	Rating        int
	Rank          int
	TotalGames    int
	Wins          int
	Losses        int
	Draws         int
	WinRate       float64
	Tokens        int
	BestWinStreak int
	CurrentStreak int
	TokensWon     int
	TokensLost    int
}

func NewService(players PlayerStore) *Service {
	return &Service{players: players}
}

func (s *Service) Get(ctx context.Context, playerID int64) (View, error) {
	if s.players == nil {
		return View{}, fmt.Errorf("player store is nil")
	}
	if playerID <= 0 {
		return View{}, ErrValidation
	}

	player, err := s.players.FindByID(ctx, playerID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPlayerNotFound) {
			return View{}, ErrPlayerNotFound
		}
		return View{}, fmt.Errorf("find player: %w", err)
	}

	rank, err := s.players.Rank(ctx, player.Rating)
	if err != nil {
		return View{}, fmt.Errorf("compute rank: %w", err)
	}

	return View{
		ID:            player.ID,
		Username:      player.Username,
		Email:         player.Email,
		Rating:        player.Rating,
		Rank:          rank,
		TotalGames:    player.TotalGames,
		Wins:          player.Wins,
		Losses:        player.Losses,
		Draws:         player.Draws,
		WinRate:       winRate(player.Wins, player.TotalGames),
		Tokens:        player.Tokens,
		BestWinStreak: player.BestWinStreak,
		CurrentStreak: player.CurrentStreak,
		TokensWon:     player.TokensWon,
		TokensLost:    player.TokensLost,
	}, nil
}

func (s *Service) UpdateUsername(ctx context.Context, playerID int64, newName string) (string, error) {
	if s.players == nil {
		return "", fmt.Errorf("player store is nil")
	}
	if playerID <= 0 {
		return "", ErrValidation
	}

	username, ok := validate.Username(newName)
	if !ok {
		return "", ErrValidation
	}

	if err := s.players.UpdateUsername(ctx, playerID, username); err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrUsernameTaken):
			return "", ErrUsernameTaken
		case errors.Is(err, pgrepo.ErrPlayerNotFound):
			return "", ErrPlayerNotFound
		default:
			return "", fmt.Errorf("update username: %w", err)
		}
	}

	return username, nil
}

// winRate is the win percentage rounded to one decimal. Zero games is zero,
// never a division fault.
func winRate(wins, totalGames int) float64 {
	if totalGames <= 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(totalGames)*1000) / 10
}
