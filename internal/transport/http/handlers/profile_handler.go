package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/auth"
	profilesvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/profiles"
	"github.com/pr-poehali-dev/dice-chess-website/internal/transport/http/dto"
	httperrors "github.com/pr-poehali-dev/dice-chess-website/internal/transport/http/errors"
)

type ProfileHandler struct {
	service *profilesvc.Service
}

func NewProfileHandler(service *profilesvc.Service) *ProfileHandler {
	return &ProfileHandler{service: service}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "PROFILE_SERVICE_UNAVAILABLE", "profile service is unavailable")
		return
	}

	view, err := h.service.Get(r.Context(), identity.PlayerID)
	if err != nil {
		handleProfileError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ProfileResponse{
		ID:            view.ID,
		Username:      view.Username,
		Email:         view.Email,
		Rating:        view.Rating,
		Rank:          view.Rank,
		TotalGames:    view.TotalGames,
		Wins:          view.Wins,
		Losses:        view.Losses,
		Draws:         view.Draws,
		WinRate:       view.WinRate,
		Tokens:        view.Tokens,
		BestWinStreak: view.BestWinStreak,
		CurrentStreak: view.CurrentStreak,
		TokensWon:     view.TokensWon,
		TokensLost:    view.TokensLost,
	})
}

func (h *ProfileHandler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "PROFILE_SERVICE_UNAVAILABLE", "profile service is unavailable")
		return
	}

	var req dto.UpdateUsernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	username, err := h.service.UpdateUsername(r.Context(), identity.PlayerID, req.Username)
	if err != nil {
		handleProfileError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UpdateUsernameResponse{
		OK:       true,
		Username: username,
	})
}

func handleProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profilesvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "username must be 3-50 characters")
	case errors.Is(err, profilesvc.ErrUsernameTaken):
		writeConflict(w, "USERNAME_TAKEN", "username is already taken")
	case errors.Is(err, profilesvc.ErrPlayerNotFound):
		writeNotFound(w, "PLAYER_NOT_FOUND", "player not found")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
