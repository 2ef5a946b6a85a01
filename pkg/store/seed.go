package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the layout of a challenge seed file
type seedFile struct {
	Challenges []Challenge `yaml:"challenges"`
}

// LoadChallenges reads challenges from a YAML seed file
func LoadChallenges(path string) ([]Challenge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, c := range file.Challenges {
		if c.ID <= 0 {
			return nil, fmt.Errorf("challenge %d: id must be positive", i+1)
		}
		if c.Title == "" {
			return nil, fmt.Errorf("challenge %d: title is required", c.ID)
		}
	}

	return file.Challenges, nil
}

// SeedChallenges inserts or updates each challenge and returns how many were written
func SeedChallenges(ctx context.Context, s Store, challenges []Challenge) (int, error) {
	const upsert = `INSERT INTO challenges (challengeID, category, title, description, points, difficulty)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (challengeID) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			description = excluded.description,
			points = excluded.points,
			difficulty = excluded.difficulty
		RETURNING challengeID`

	written := 0
	for _, c := range challenges {
		rows, err := s.Query(ctx, upsert, c.ID, c.Category, c.Title, c.Description, c.Points, c.Difficulty)
		if err != nil {
			return written, fmt.Errorf("failed to seed challenge %d: %w", c.ID, err)
		}
		written += len(rows)
	}
	return written, nil
}
