package store

import (
	"context"
	"sync"
)

// QueryCall records one call made to a MockStore
type QueryCall struct {
	Statement string
	Args      []any
}

// MockStore is a Store for tests. QueryFunc decides the result of each call;
// when it is nil every query returns no rows.
type MockStore struct {
	QueryFunc func(ctx context.Context, statement string, args ...any) ([]Row, error)
	CloseErr  error

	mu    sync.Mutex
	calls []QueryCall
}

// NewMockStore creates a MockStore answering every query with rows
func NewMockStore(rows []Row, err error) *MockStore {
	return &MockStore{
		QueryFunc: func(ctx context.Context, statement string, args ...any) ([]Row, error) {
			return rows, err
		},
	}
}

// Query implements the Store interface
func (m *MockStore) Query(ctx context.Context, statement string, args ...any) ([]Row, error) {
	m.mu.Lock()
	m.calls = append(m.calls, QueryCall{Statement: statement, Args: args})
	m.mu.Unlock()

	if m.QueryFunc == nil {
		return []Row{}, nil
	}
	return m.QueryFunc(ctx, statement, args...)
}

// Close implements the Store interface
func (m *MockStore) Close() error {
	return m.CloseErr
}

// Calls returns the queries seen so far
func (m *MockStore) Calls() []QueryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueryCall(nil), m.calls...)
}
