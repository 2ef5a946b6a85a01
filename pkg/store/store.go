package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/niels/ctf-server/pkg/config"
	"github.com/niels/ctf-server/pkg/logging"
	"github.com/niels/ctf-server/pkg/retry"

	// Registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

// Row maps column names to values. NULL columns hold nil and text columns
// are always strings, never []byte.
type Row map[string]any

// Store is the relational query collaborator used by the API handlers.
// Implementations must be safe for concurrent use.
type Store interface {
	// Query runs a parameterized statement and returns every result row.
	// Statements that produce no result set return an empty slice.
	Query(ctx context.Context, statement string, args ...any) ([]Row, error)
	// Close releases the underlying connections
	Close() error
}

// SQLStore implements Store on a database/sql connection pool
type SQLStore struct {
	db *sql.DB
}

// Open creates the connection pool described by cfg and waits until the
// database answers a ping, retrying transient failures per cfg.Retry
func Open(ctx context.Context, cfg *config.Config) (*SQLStore, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	opts := retry.FromConfig(cfg)
	opts.Logger = func(format string, args ...interface{}) {
		logging.Warn(fmt.Sprintf(format, args...))
	}
	if err := retry.Do(ctx, db.PingContext, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing pool
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Query implements Store
func (s *SQLStore) Query(ctx context.Context, statement string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the pool for migrations and tests
func (s *SQLStore) DB() *sql.DB {
	return s.db
}
