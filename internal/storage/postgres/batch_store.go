// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// BatchStoreConfig controls the Postgres connection pool used for batches.
type BatchStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// BatchStore persists batch documents in a JSONB column. Each row carries the
// batch id as a unique key plus the commit timestamp for sorting; the batch
// itself is stored as one document, so an insert is a single atomic write.
//
// Expected schema:
//
//	CREATE TABLE batches (
//	    id BIGSERIAL PRIMARY KEY,
//	    batch_id TEXT NOT NULL UNIQUE,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    document JSONB NOT NULL
//	);
type BatchStore struct {
	pool  dbPool
	table string
}

// NewBatchStore creates a Postgres-backed BatchStore using the provided config.
func NewBatchStore(ctx context.Context, cfg BatchStoreConfig) (*BatchStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "batches"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &BatchStore{pool: pool, table: table}, nil
}

// NewBatchStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewBatchStoreWithPool(pool dbPool, table string) (*BatchStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "batches"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &BatchStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *BatchStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies store connectivity.
func (s *BatchStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("batch store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InsertBatch commits a finished batch as one row.
func (s *BatchStore) InsertBatch(ctx context.Context, batch scraper.Batch) error {
	if batch.BatchID == "" {
		return fmt.Errorf("batch id is required")
	}
	doc, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (batch_id, created_at, document) VALUES ($1, $2, $3)`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, batch.BatchID, batch.CreatedAt, doc); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ListBatches returns all batches, newest first. Creation-time ties are
// broken by insertion order.
func (s *BatchStore) ListBatches(ctx context.Context) ([]scraper.Batch, error) {
	query := fmt.Sprintf(
		`SELECT document FROM %s ORDER BY created_at DESC, id DESC`,
		s.table,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []scraper.Batch
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		var b scraper.Batch
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("unmarshal batch document: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}
	return out, nil
}

// GetLatest returns the most recently created batch.
func (s *BatchStore) GetLatest(ctx context.Context) (scraper.Batch, error) {
	query := fmt.Sprintf(
		`SELECT document FROM %s ORDER BY created_at DESC, id DESC LIMIT 1`,
		s.table,
	)
	return s.queryOne(ctx, query)
}

// GetByID returns the batch with the given batch id.
func (s *BatchStore) GetByID(ctx context.Context, batchID string) (scraper.Batch, error) {
	query := fmt.Sprintf(
		`SELECT document FROM %s WHERE batch_id = $1`,
		s.table,
	)
	return s.queryOne(ctx, query, batchID)
}

// GetPatterns returns only the record slice of the given batch.
func (s *BatchStore) GetPatterns(ctx context.Context, batchID string) ([]scraper.ArchitectureRecord, error) {
	query := fmt.Sprintf(
		`SELECT document->'architectures' FROM %s WHERE batch_id = $1`,
		s.table,
	)
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, batchID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scraper.ErrBatchNotFound
		}
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	var records []scraper.ArchitectureRecord
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, fmt.Errorf("unmarshal patterns: %w", err)
	}
	return records, nil
}

func (s *BatchStore) queryOne(ctx context.Context, query string, args ...any) (scraper.Batch, error) {
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Batch{}, scraper.ErrBatchNotFound
		}
		return scraper.Batch{}, fmt.Errorf("query batch: %w", err)
	}
	var b scraper.Batch
	if err := json.Unmarshal(doc, &b); err != nil {
		return scraper.Batch{}, fmt.Errorf("unmarshal batch document: %w", err)
	}
	return b, nil
}
