package logic

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoopsml/shotpredict/internal/auth"
	"github.com/hoopsml/shotpredict/internal/models"
)

func init() {
	auth.Cost = 4
}

type MockPgPool struct {
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	ExecCalls    []string
}

func (m *MockPgPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *MockPgPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.QueryRowFunc != nil {
		return m.QueryRowFunc(ctx, sql, args...)
	}
	return &MockRow{}
}

func (m *MockPgPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.ExecCalls = append(m.ExecCalls, sql)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

// MockRow assigns Values to the scan destinations in order, or returns Err.
type MockRow struct {
	Values []any
	Err    error
}

func (m *MockRow) Scan(dest ...any) error {
	if m.Err != nil {
		return m.Err
	}
	for i := range dest {
		if i < len(m.Values) {
			assign(dest[i], m.Values[i])
		}
	}
	return nil
}

func assign(dest interface{}, val interface{}) {
	v := reflect.ValueOf(dest).Elem()
	v.Set(reflect.ValueOf(val))
}

// MemUserStore is an in-memory UserStore.
type MemUserStore struct {
	Users     map[string]*models.User
	CreateErr error
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{Users: make(map[string]*models.User)}
}

func (m *MemUserStore) CreateUser(ctx context.Context, username, hashedPassword string, disabled bool) (*models.User, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, ok := m.Users[username]; ok {
		return nil, ErrUserExists
	}
	u := &models.User{ID: int64(len(m.Users) + 1), Username: username, HashedPassword: hashedPassword, Disabled: disabled}
	m.Users[username] = u
	return u, nil
}

func (m *MemUserStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	u, ok := m.Users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}
