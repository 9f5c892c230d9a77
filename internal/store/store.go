// Package store is the Postgres persistence layer. Each repository owns one
// family of tables from scripts/schema.sql; all queries are context-bound and
// tenant-scoped.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Store bundles every repository over one connection pool.
type Store struct {
	db *sql.DB

	Idempotency *IdempotencyRepo
	Flows       *FlowRepo
	Clearing    *ClearingRepo
	Queue       *QueueRepo
	Resiliency  *ResiliencyRepo
	UETR        *UETRRepo
	APIKeys     *APIKeyRepo
}

// Open connects to Postgres and wires the repositories.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger := log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	s := &Store{db: db}
	s.Idempotency = &IdempotencyRepo{db: db}
	s.Flows = &FlowRepo{db: db}
	s.Clearing = &ClearingRepo{db: db, logger: logger}
	s.Queue = &QueueRepo{db: db}
	s.Resiliency = &ResiliencyRepo{db: db}
	s.UETR = &UETRRepo{db: db}
	s.APIKeys = &APIKeyRepo{db: db}
	return s, nil
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }
