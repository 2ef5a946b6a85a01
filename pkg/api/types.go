package api

// Public JSON types returned by the API. Field names follow what the
// React client reads, which is why their casing is not uniform.

// LoginUser is the user object embedded in a login response
type LoginUser struct {
	UserID   int64  `json:"userid"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// LoginResponse is the payload for POST /api/auth/login
type LoginResponse struct {
	Success bool       `json:"success"`
	User    *LoginUser `json:"user,omitempty"`
}

// ChallengeView is one entry of GET /api/challenges
type ChallengeView struct {
	ChallengeID int64  `json:"challengeID"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int64  `json:"points"`
	Difficulty  int64  `json:"difficulty"`
}

// ProfileView is one entry of GET /api/profile
type ProfileView struct {
	UserID    int64   `json:"userID"`
	Username  string  `json:"username"`
	Score     int64   `json:"score"`
	LastLogin *string `json:"lastLogin"` // null until the first login
}

// SolveResponse is the payload for POST /api/challenges/{id}
type SolveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// APIError is the standard error payload
type APIError struct {
	Error string `json:"error"`
}
