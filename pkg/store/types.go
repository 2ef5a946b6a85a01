package store

import (
	"fmt"
	"strconv"
)

// Challenge is a challenge row
type Challenge struct {
	ID          int64  `yaml:"id"`
	Category    string `yaml:"category"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Points      int64  `yaml:"points"`
	Difficulty  int64  `yaml:"difficulty"`
}

// User is a user row
type User struct {
	ID        int64
	Username  string
	Score     int64
	LastLogin string // RFC3339, empty when the user never logged in
}

// ChallengeFromRow converts a row selected with the challenges column names
func ChallengeFromRow(row Row) Challenge {
	return Challenge{
		ID:          Int(row["challengeID"]),
		Category:    String(row["category"]),
		Title:       String(row["title"]),
		Description: String(row["description"]),
		Points:      Int(row["points"]),
		Difficulty:  Int(row["difficulty"]),
	}
}

// UserFromRow converts a row selected with the users column names
func UserFromRow(row Row) User {
	return User{
		ID:        Int(row["userID"]),
		Username:  String(row["username"]),
		Score:     Int(row["score"]),
		LastLogin: String(row["lastLogin"]),
	}
}

// Int coerces a column value to int64; NULL and unparsable values become 0
func Int(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	default:
		return 0
	}
}

// String coerces a column value to string; NULL becomes ""
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
