// Package pg provides the Postgres side of the dual-store conversation
// record: typed inserts and queries over agents, episodes and messages,
// plus the graph outbox used for reconciliation.
package pg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client wraps a pgx connection pool.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewClient connects to Postgres and verifies the connection.
func NewClient(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("postgres connection established")
	return &Client{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.logger.Info("closing postgres connection")
	c.pool.Close()
}

// Pool returns the underlying pool for ad-hoc queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// InitSchema creates all tables if they do not exist.
func (c *Client) InitSchema(ctx context.Context) error {
	c.logger.Info("initializing postgres schema")
	for _, stmt := range schemaStatements {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	c.logger.Info("schema initialization complete")
	return nil
}

// WipeData deletes all rows while preserving schema. Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")

	// Order matters: children before parents.
	tables := []string{
		"graph_outbox",
		"schema_migration_log",
		"schema_proposal",
		"schema_object",
		"behavior_metric",
		"behavior_event",
		"lesson",
		"reflection",
		"message",
		"episode",
		"agent",
	}

	for _, table := range tables {
		if _, err := c.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
