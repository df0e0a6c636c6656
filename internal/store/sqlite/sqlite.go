/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sqlite is the reference implementation of the store
// interfaces, backed by modernc.org/sqlite. The storage engine is a
// pluggable concern; this is the one concrete implementation this
// module ships.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB and implements every store interface.
type DB struct {
	conn *sql.DB
	log  *slog.Logger
}

// Open opens (creating if necessary) a sqlite database at path, applying
// options as a DSN query string, and runs pending migrations.
func Open(ctx context.Context, log *slog.Logger, path, options string) (*DB, error) {
	dsn := path
	if options != "" {
		dsn = fmt.Sprintf("%s?%s", path, options)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// a single writer connection avoids SQLITE_BUSY under WAL with
	// multiple goroutines issuing writes concurrently.
	conn.SetMaxOpenConns(1)

	if err := runMigrations(ctx, log, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, log: log}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
