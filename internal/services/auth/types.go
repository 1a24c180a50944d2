package auth

import (
	"errors"
	"time"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour

	// Every new player starts with a welcome balance and the base rating.
	StartTokens = 350
	StartRating = 1000
)

type RegisterInput struct {
	Email    string
	Password string
	Username string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	PlayerID  int64
	Username  string
	Email     string
}
