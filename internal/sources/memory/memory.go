// Package memory provides in-process row sources for tests and embedding.
package memory

import (
	"context"
	"sync"

	"savingsrate/internal/core"
)

// Source serves a fixed table, or a fixed error.
type Source struct {
	mu    sync.Mutex
	table core.Table
	err   error
	calls int
}

func New(columns []string, rows ...core.Row) *Source {
	return &Source{table: core.Table{Columns: columns, Rows: rows}}
}

// FromTable wraps an already built table.
func FromTable(t core.Table) *Source {
	return &Source{table: t}
}

// Failing returns a source whose every read fails with err.
func Failing(err error) *Source {
	return &Source{err: err}
}

func (s *Source) Table(ctx context.Context) (core.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return core.Table{}, err
	}
	if s.err != nil {
		return core.Table{}, s.err
	}
	rows := make([]core.Row, len(s.table.Rows))
	for i, r := range s.table.Rows {
		cp := make(core.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		rows[i] = cp
	}
	return core.Table{Columns: append([]string(nil), s.table.Columns...), Rows: rows}, nil
}

// Set replaces the served table.
func (s *Source) Set(t core.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table, s.err = t, nil
}

// Calls reports how many times Table was called.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
