// Package postgres stores modules in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/store/sqlutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS modules (
	id                  TEXT PRIMARY KEY,
	module_no           TEXT NOT NULL UNIQUE,
	yard                TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	rflo_date           TEXT NOT NULL DEFAULT '',
	shipment_no         TEXT NOT NULL DEFAULT '',
	rflo_date_status    TEXT NOT NULL DEFAULT 'Pending',
	yard_report         TEXT NOT NULL DEFAULT '',
	island_report       TEXT NOT NULL DEFAULT '',
	signed_report       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_by          TEXT NOT NULL DEFAULT '',
	is_anomaly          BOOLEAN NOT NULL DEFAULT FALSE,
	anomaly_explanation TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
)`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a RecordStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Batcher     = (*Store)(nil)
)

// Connect opens a pool with the configured limits, pings it and ensures the
// modules table exists.
func Connect(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the modules table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetAll(ctx context.Context) ([]core.Module, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+sqlutil.SelectColumns+" FROM modules ORDER BY module_no")
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var out []core.Module
	for rows.Next() {
		var m core.Module
		if err := rows.Scan(sqlutil.ScanArgs(&m)...); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return out, nil
}

func (s *Store) GetByKey(ctx context.Context, moduleNo string) (core.Module, bool, error) {
	m, err := get(ctx, s.pool, strings.TrimSpace(moduleNo))
	if errors.Is(err, core.ErrNotFound) {
		return core.Module{}, false, nil
	}
	if err != nil {
		return core.Module{}, false, err
	}
	return m, true, nil
}

func (s *Store) Create(ctx context.Context, m core.Module) (core.Module, error) {
	return create(ctx, s.pool, m)
}

func (s *Store) Update(ctx context.Context, key string, p core.Patch) (core.Module, error) {
	return update(ctx, s.pool, strings.TrimSpace(key), p)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return remove(ctx, s.pool, strings.TrimSpace(key))
}

// Batch runs ops in one transaction.
func (s *Store) Batch(ctx context.Context, ops []core.WriteOp) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i, op := range ops {
		var err error
		switch op.Kind {
		case core.OpCreate:
			_, err = create(ctx, tx, op.Module)
		case core.OpUpdate:
			_, err = update(ctx, tx, strings.TrimSpace(op.Key), op.Patch)
		case core.OpDelete:
			err = remove(ctx, tx, strings.TrimSpace(op.Key))
		default:
			err = fmt.Errorf("unknown op kind %q", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("batch op %d (%s %s): %w", i, op.Kind, op.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func get(ctx context.Context, q querier, key string) (core.Module, error) {
	var m core.Module
	err := q.QueryRow(ctx, "SELECT "+sqlutil.SelectColumns+" FROM modules WHERE module_no = $1", key).
		Scan(sqlutil.ScanArgs(&m)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Module{}, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Module{}, fmt.Errorf("get %s: %w", key, err)
	}
	return m, nil
}

func create(ctx context.Context, q querier, m core.Module) (core.Module, error) {
	m.ModuleNo = strings.TrimSpace(m.ModuleNo)
	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := "INSERT INTO modules (" + sqlutil.InsertColumns + ") VALUES (" + sqlutil.InsertValues(sqlutil.Dollar) + ")"
	if _, err := q.Exec(ctx, query, sqlutil.InsertArgs(m)...); err != nil {
		return core.Module{}, fmt.Errorf("create %s: %w", m.ModuleNo, mapError(err))
	}
	return m, nil
}

func update(ctx context.Context, q querier, key string, p core.Patch) (core.Module, error) {
	query, args, ok := sqlutil.UpdateStatement(p, sqlutil.Dollar, time.Now().UTC(), key)
	if !ok {
		return get(ctx, q, key)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return core.Module{}, fmt.Errorf("update %s: %w", key, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.Module{}, fmt.Errorf("update %s: %w", key, core.ErrNotFound)
	}

	newKey := key
	if k := p.Key(); k != "" {
		newKey = k
	}
	return get(ctx, q, newKey)
}

func remove(ctx context.Context, q querier, key string) error {
	tag, err := q.Exec(ctx, "DELETE FROM modules WHERE module_no = $1", key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	return nil
}

// mapError turns a unique violation into core.ErrDuplicateKey.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return core.ErrDuplicateKey
	}
	return err
}
