package dto

type ProfileResponse struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Rating        int     `json:"rating"`
	Rank          int     `json:"rank"`
	TotalGames    int     `json:"totalGames"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	WinRate       float64 `json:"winRate"`
	Tokens        int     `json:"tokens"`
	BestWinStreak int     `json:"bestWinStreak"`
	CurrentStreak int     `json:"currentStreak"`
	TokensWon     int     `json:"tokensWon"`
	TokensLost    int     `json:"tokensLost"`
}

type UpdateUsernameRequest struct {
	Username string `json:"username"`
}

type UpdateUsernameResponse struct {
	OK       bool   `json:"success"`
	Username string `json:"username"`
}
