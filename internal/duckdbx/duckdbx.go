// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package duckdbx runs SQL over exported Parquet files with an embedded
// DuckDB.
package duckdbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

// Config holds DuckDB settings.
type Config struct {
	// MemoryLimitMB caps DuckDB memory; zero leaves the DuckDB default.
	MemoryLimitMB int64 `mapstructure:"memory_limit_mb"`
	// Threads is the DuckDB worker thread count; zero uses GOMAXPROCS.
	Threads int `mapstructure:"threads"`
	// TempDir is where DuckDB spills; empty uses its default.
	TempDir string `mapstructure:"temp_dir"`
	// Path is an on-disk database; empty opens a throwaway one.
	Path string `mapstructure:"path"`
}

// DB is a DuckDB instance restricted to local files. Extension autoloading
// is disabled, so remote paths fail instead of downloading httpfs.
type DB struct {
	db      *sql.DB
	path    string
	cleanup bool
}

// Open creates the database and applies cfg on every new connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	path, cleanup := cfg.Path, false
	if path == "" {
		dir, err := os.MkdirTemp("", "bsoncolumns-duckdb-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir for duckdb: %w", err)
		}
		path, cleanup = filepath.Join(dir, "local.ddb"), true
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		stmts := []string{
			"SET autoinstall_known_extensions = false;",
			"SET autoload_known_extensions = false;",
			fmt.Sprintf("PRAGMA threads=%d;", threads),
		}
		if cfg.MemoryLimitMB > 0 {
			stmts = append(stmts, fmt.Sprintf("SET memory_limit='%dMB';", cfg.MemoryLimitMB))
		}
		if cfg.TempDir != "" {
			stmts = append(stmts, fmt.Sprintf("SET temp_directory='%s';", escapeSingle(cfg.TempDir)))
		}
		for _, s := range stmts {
			if _, err := execer.ExecContext(context.Background(), s, nil); err != nil {
				return fmt.Errorf("duckdb setup %q: %w", s, err)
			}
		}
		return nil
	})
	if err != nil {
		if cleanup {
			_ = os.RemoveAll(filepath.Dir(path))
		}
		return nil, fmt.Errorf("create duckdb connector: %w", err)
	}

	logctx.FromContext(ctx).Debug("Opened duckdb",
		slog.String("path", path),
		slog.Int("threads", threads),
		slog.Int64("memoryLimitMB", cfg.MemoryLimitMB))

	return &DB{db: sql.OpenDB(connector), path: path, cleanup: cleanup}, nil
}

// Path is the database file.
func (d *DB) Path() string {
	return d.path
}

// AttachParquet creates a view named view over one or more Parquet files.
func (d *DB) AttachParquet(ctx context.Context, view string, paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("view %s: no parquet files", view)
	}
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + escapeSingle(p) + "'"
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet([%s])",
		quoteIdent(view), strings.Join(quoted, ", "))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create view %s: %w", view, err)
	}
	return nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Query runs q and collects every row.
func (d *DB) Query(ctx context.Context, q string, args ...any) (*Result, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return res, nil
}

// Conn returns a dedicated connection and its release function.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, func(), error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

// Close closes the database and removes a throwaway database file.
func (d *DB) Close() error {
	err := d.db.Close()
	if d.cleanup {
		_ = os.RemoveAll(filepath.Dir(d.path))
	}
	return err
}

func escapeSingle(s string) string { return strings.ReplaceAll(s, `'`, `''`) }
func quoteIdent(s string) string   { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
