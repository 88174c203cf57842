package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MockClickHouseConn records every batch the pool prepares.
type MockClickHouseConn struct {
	mu      sync.Mutex
	Batches []*MockBatch

	PrepareErr error
	SendErr    error
	AppendErr  error

	Queries []string
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	b := &MockBatch{sendErr: m.SendErr, appendErr: m.AppendErr}
	m.mu.Lock()
	m.Batches = append(m.Batches, b)
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()
	return b, nil
}

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	return nil
}

// SentRows counts rows across all successfully sent batches.
func (m *MockClickHouseConn) SentRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Batches {
		if b.IsSent() {
			n += b.Rows()
		}
	}
	return n
}

func (m *MockClickHouseConn) BatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Batches)
}

type MockBatch struct {
	mu        sync.Mutex
	rows      [][]interface{}
	sent      bool
	aborted   bool
	sendErr   error
	appendErr error
}

func (m *MockBatch) IsSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *MockBatch) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockBatch) Append(v ...interface{}) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) AppendStruct(v interface{}) error {
	return errors.New("not supported")
}

func (m *MockBatch) Column(int) driver.BatchColumn {
	return nil
}

func (m *MockBatch) Send() error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = true
	return nil
}

func (m *MockBatch) Flush() error {
	return nil
}

func (m *MockBatch) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	return nil
}
