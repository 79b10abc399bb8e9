// Package graphdb executes Cypher and hands back rows in record-key order.
package graphdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/normalize"
)

// Executor runs a Cypher query and returns its rows. Values are plain
// JSON-compatible Go values; failures are execution-stage *failure.Error.
type Executor interface {
	Run(ctx context.Context, cypher string) ([]normalize.Row, error)
}

// Unconfigured is the executor used when no graph database is set up.
var Unconfigured Executor = unconfigured{}

type unconfigured struct{}

func (unconfigured) Run(context.Context, string) ([]normalize.Row, error) {
	return nil, failure.Execution(fmt.Errorf("graphdb: no graph database configured: %w", failure.ErrUnconfigured))
}

// StaticExecutor returns fixed rows and records the queries it saw.
type StaticExecutor struct {
	Rows []normalize.Row
	Err  error

	mu      sync.Mutex
	queries []string
}

func (s *StaticExecutor) Run(ctx context.Context, cypher string) ([]normalize.Row, error) {
	s.mu.Lock()
	s.queries = append(s.queries, cypher)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, failure.Execution(err)
	}
	if s.Err != nil {
		return nil, failure.Execution(s.Err)
	}
	return s.Rows, nil
}

// Queries returns the queries run so far.
func (s *StaticExecutor) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}
