// Package sqlite stores modules in a single-file SQLite database using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/store/sqlutil"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

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
	signed_report       BOOLEAN NOT NULL DEFAULT 0,
	updated_by          TEXT NOT NULL DEFAULT '',
	is_anomaly          BOOLEAN NOT NULL DEFAULT 0,
	anomaly_explanation TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
)`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a RecordStore backed by SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Batcher     = (*Store)(nil)
)

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "moduletrack.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetAll(ctx context.Context) ([]core.Module, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sqlutil.SelectColumns+" FROM modules ORDER BY module_no")
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	m, err := get(ctx, s.db, strings.TrimSpace(moduleNo))
	if errors.Is(err, core.ErrNotFound) {
		return core.Module{}, false, nil
	}
	if err != nil {
		return core.Module{}, false, err
	}
	return m, true, nil
}

func (s *Store) Create(ctx context.Context, m core.Module) (core.Module, error) {
	return create(ctx, s.db, m)
}

func (s *Store) Update(ctx context.Context, key string, p core.Patch) (core.Module, error) {
	return update(ctx, s.db, strings.TrimSpace(key), p)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return remove(ctx, s.db, strings.TrimSpace(key))
}

// Batch runs ops in one transaction.
func (s *Store) Batch(ctx context.Context, ops []core.WriteOp) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func get(ctx context.Context, q execer, key string) (core.Module, error) {
	var m core.Module
	err := q.QueryRowContext(ctx, "SELECT "+sqlutil.SelectColumns+" FROM modules WHERE module_no = ?", key).
		Scan(sqlutil.ScanArgs(&m)...)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Module{}, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Module{}, fmt.Errorf("get %s: %w", key, err)
	}
	return m, nil
}

func create(ctx context.Context, q execer, m core.Module) (core.Module, error) {
	m.ModuleNo = strings.TrimSpace(m.ModuleNo)
	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := "INSERT INTO modules (" + sqlutil.InsertColumns + ") VALUES (" + sqlutil.InsertValues(sqlutil.Question) + ")"
	if _, err := q.ExecContext(ctx, query, sqlutil.InsertArgs(m)...); err != nil {
		return core.Module{}, fmt.Errorf("create %s: %w", m.ModuleNo, mapError(err))
	}
	return m, nil
}

func update(ctx context.Context, q execer, key string, p core.Patch) (core.Module, error) {
	query, args, ok := sqlutil.UpdateStatement(p, sqlutil.Question, time.Now().UTC(), key)
	if !ok {
		return get(ctx, q, key)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return core.Module{}, fmt.Errorf("update %s: %w", key, mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Module{}, fmt.Errorf("update %s: %w", key, core.ErrNotFound)
	}

	newKey := key
	if k := p.Key(); k != "" {
		newKey = k
	}
	return get(ctx, q, newKey)
}

func remove(ctx context.Context, q execer, key string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM modules WHERE module_no = ?", key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	return nil
}

// mapError turns a unique constraint failure into core.ErrDuplicateKey.
func mapError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return core.ErrDuplicateKey
	}
	return err
}
