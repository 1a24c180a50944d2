package dto

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	PlayerID int64  `json:"playerId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LogoutResponse struct {
	OK bool `json:"ok"`
}
