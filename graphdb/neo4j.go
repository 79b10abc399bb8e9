package graphdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/normalize"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

// Configured reports whether every credential is present.
func (c Config) Configured() bool {
	return c.URI != "" && c.Username != "" && c.Password != ""
}

// Neo4j executes queries on a Neo4j server.
type Neo4j struct {
	driver neo4j.DriverWithContext
	db     string
}

// NewNeo4j creates a driver. No connection is made until the first query
// or Ping.
func NewNeo4j(cfg Config) (*Neo4j, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("graphdb: NEO4J_URI, NEO4J_USERNAME and NEO4J_PASSWORD are required: %w", failure.ErrUnconfigured)
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphdb: creating driver: %w: %w", err, failure.ErrInvalidInput)
	}
	return &Neo4j{driver: driver, db: cfg.Database}, nil
}

// Run executes cypher in read-routing mode.
func (n *Neo4j) Run(ctx context.Context, cypher string) ([]normalize.Row, error) {
	start := time.Now()
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if n.db != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(n.db))
	}

	res, err := neo4j.ExecuteQuery(ctx, n.driver, cypher, nil, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, failure.Execution(classify(err))
	}

	rows := make([]normalize.Row, len(res.Records))
	for i, rec := range res.Records {
		rows[i] = Record(rec.Keys, rec.Values)
	}
	slog.Debug("graphdb: query complete",
		"rows", len(rows), "elapsed", time.Since(start).Round(time.Millisecond))
	return rows, nil
}

// Ping verifies connectivity.
func (n *Neo4j) Ping(ctx context.Context) error {
	if err := n.driver.VerifyConnectivity(ctx); err != nil {
		return failure.Execution(classify(err))
	}
	return nil
}

// Close releases the driver.
func (n *Neo4j) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

// classify attaches the failure kind for a driver error.
func classify(err error) error {
	var dbErr *neo4j.Neo4jError
	if errors.As(err, &dbErr) {
		switch {
		case strings.Contains(dbErr.Code, ".Security."):
			return fmt.Errorf("neo4j: %w: %w", err, failure.ErrUnauthorized)
		case strings.Contains(dbErr.Code, ".Statement."), strings.Contains(dbErr.Code, ".Schema."):
			return fmt.Errorf("neo4j: %w: %w", err, failure.ErrInvalidInput)
		case strings.Contains(dbErr.Code, "TransientError"), strings.Contains(dbErr.Code, "DatabaseError"):
			return fmt.Errorf("neo4j: %w: %w", err, failure.ErrUnavailable)
		}
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("neo4j: %w: %w", err, failure.ErrUnavailable)
	}
	return fmt.Errorf("neo4j: %w", err)
}
