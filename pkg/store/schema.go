package store

import (
	"context"
	"fmt"
)

// schema creates the tables the API reads and writes. The solves primary key
// makes the solved-set idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		userID    INTEGER PRIMARY KEY AUTOINCREMENT,
		username  TEXT NOT NULL UNIQUE,
		score     INTEGER NOT NULL DEFAULT 0,
		lastLogin TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		challengeID INTEGER PRIMARY KEY,
		category    TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		points      INTEGER NOT NULL DEFAULT 0,
		difficulty  INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS solves (
		userID      INTEGER NOT NULL REFERENCES users(userID),
		challengeID INTEGER NOT NULL REFERENCES challenges(challengeID),
		solvedAt    TEXT NOT NULL,
		PRIMARY KEY (userID, challengeID)
	)`,
	// Points are awarded in the same statement that records a first solve
	`CREATE TRIGGER IF NOT EXISTS award_points AFTER INSERT ON solves
	BEGIN
		UPDATE users
		SET score = score + (SELECT points FROM challenges WHERE challengeID = NEW.challengeID)
		WHERE userID = NEW.userID;
	END`,
}

// Migrate creates any missing tables
func (s *SQLStore) Migrate(ctx context.Context) error {
	for i, statement := range schema {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
