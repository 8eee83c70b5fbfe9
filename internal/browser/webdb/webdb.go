// Package webdb provides the Web SQL databases behind EXECUTE_SQL: one sqlite
// database per (origin, name) pair.
package webdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

const driverName = "sqlite"

type dbKey struct {
	origin string
	name   string
}

// Registry opens databases lazily and keeps them for the life of the session.
type Registry struct {
	logger *zap.Logger
	dir    string

	mu  sync.Mutex
	dbs map[dbKey]*sql.DB
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDirectory stores databases as files under dir instead of in memory.
func WithDirectory(dir string) Option {
	return func(r *Registry) { r.dir = dir }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		dbs:    make(map[dbKey]*sql.DB),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("webdb")
	return r
}

// Open returns the database called name for origin, creating it on first use.
func (r *Registry) Open(ctx context.Context, origin, name string) (*sql.DB, error) {
	if name == "" {
		return nil, errcode.New(errcode.SqlDatabase, "database name must not be empty")
	}
	key := dbKey{origin: origin, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[key]; ok {
		return db, nil
	}

	dsn, err := r.dsn(key)
	if err != nil {
		return nil, errcode.Wrap(errcode.SqlDatabase, err, "")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errcode.Wrap(errcode.SqlDatabase, err, "opening database %s: %v", name, err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errcode.Wrap(errcode.SqlDatabase, err, "opening database %s: %v", name, err)
	}
	r.dbs[key] = db
	r.logger.Debug("Opened database.", zap.String("origin", origin), zap.String("name", name))
	return db, nil
}

func (r *Registry) dsn(key dbKey) (string, error) {
	if r.dir == "" {
		return ":memory:", nil
	}
	dir := filepath.Join(r.dir, url.PathEscape(key.origin))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	return filepath.Join(dir, url.PathEscape(key.name)+".db"), nil
}

// Exec runs one statement and reports it as a Web SQL result set:
// {insertId, rowsAffected, rows}. insertId is null for statements that do
// not insert.
func (r *Registry) Exec(ctx context.Context, origin, name, query string, args []any) (any, error) {
	db, err := r.Open(ctx, origin, name)
	if err != nil {
		return nil, err
	}
	params, err := bindArgs(args)
	if err != nil {
		return nil, err
	}

	if returnsRows(query) {
		rows, err := db.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, sqlError(err)
		}
		defer rows.Close()
		records, err := scanRows(rows)
		if err != nil {
			return nil, sqlError(err)
		}
		return map[string]any{
			"insertId":     nil,
			"rowsAffected": 0,
			"rows":         records,
		}, nil
	}

	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, sqlError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, sqlError(err)
	}
	var insertID any
	if isInsert(query) {
		if id, err := res.LastInsertId(); err == nil {
			insertID = id
		}
	}
	return map[string]any{
		"insertId":     insertID,
		"rowsAffected": affected,
		"rows":         []map[string]any{},
	}, nil
}

// Close closes every open database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for key, db := range r.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.dbs, key)
	}
	return firstErr
}

func sqlError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errcode.Wrap(errcode.SqlDatabase, err, "")
}

func firstKeyword(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimLeft(fields[0], "("))
}

func returnsRows(query string) bool {
	switch firstKeyword(query) {
	case "SELECT", "PRAGMA", "WITH", "VALUES", "EXPLAIN":
		return true
	}
	return strings.Contains(strings.ToUpper(query), " RETURNING ")
}

func isInsert(query string) bool {
	kw := firstKeyword(query)
	return kw == "INSERT" || kw == "REPLACE"
}

// bindArgs converts decoded wire values into sqlite parameters. Whole
// numbers bind as integers.
func bindArgs(args []any) ([]any, error) {
	params := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil, string, int64:
			params[i] = v
		case float64:
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				params[i] = int64(v)
			} else {
				params[i] = v
			}
		case bool:
			if v {
				params[i] = int64(1)
			} else {
				params[i] = int64(0)
			}
		default:
			return nil, errcode.New(errcode.SqlDatabase, "unsupported SQL argument %d of type %T", i, a)
		}
	}
	return params, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	records := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			record[col] = columnValue(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func columnValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return v
}
