// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package postgres implements catalog.Index directly against the catalog database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poiesic/filedrop/catalog"
	"github.com/poiesic/filedrop/core"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var sqlOpen = sql.Open

// Index queries the files table of the catalog database.
type Index struct {
	db *sql.DB
}

var _ catalog.Index = (*Index)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// Open connects to dsn through the pgx stdlib driver, instrumented with
// OpenTelemetry, and verifies the connection.
func Open(ctx context.Context, dsn string) (*Index, error) {
	if dsn == "" {
		return nil, fmt.Errorf("catalog dsn is required")
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return New(db), nil
}

// Close closes the database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// Check returns the oldest record with the given digest, narrowed to scopeID when set.
func (i *Index) Check(ctx context.Context, digest, scopeID string) (*core.DuplicateCheck, error) {
	if digest == "" {
		return nil, catalog.ErrDigestRequired
	}

	const q = `
		SELECT id, display_name, size_bytes, created_at, COALESCE(scope_id, '')
		FROM files
		WHERE content_digest = $1 AND ($2 = '' OR scope_id = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	var rec core.ExistingRecord
	err := i.db.QueryRowContext(ctx, q, digest, scopeID).Scan(
		&rec.ID,
		&rec.DisplayName,
		&rec.SizeBytes,
		&rec.CreatedAt,
		&rec.ScopeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.NotDuplicate(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	return &core.DuplicateCheck{IsDuplicate: true, Existing: &rec}, nil
}
