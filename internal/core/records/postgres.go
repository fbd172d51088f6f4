// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

const (
	qryPostgresCreate = "CREATE TABLE IF NOT EXISTS %s (seq BIGSERIAL, id TEXT PRIMARY KEY, revision TEXT NOT NULL, doc JSONB NOT NULL)"
	qryPostgresSelect = "SELECT revision, doc FROM %s WHERE %s ORDER BY seq"
	qryPostgresInsert = "INSERT INTO %s (id, revision, doc) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING"
	qryPostgresUpdate = "UPDATE %s SET revision = $2, doc = $3 WHERE id = $1 AND revision = $4"
	qryPostgresDelete = "DELETE FROM %s WHERE id = $1 AND revision = $2"
	qryPostgresExists = "SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)"
)

// PostgresStore keeps each collection in a table of (id, revision, doc JSONB).
type PostgresStore struct {
	pool   *pgxpool.Pool
	tables map[string]string
}

// NewPostgresStore connects a pool to url. Collections missing from tables
// use their own name.
func NewPostgresStore(ctx context.Context, url string, tables map[string]string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{pool: pool, tables: tables}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) table(collection string) string {
	name := collection
	if t, ok := s.tables[collection]; ok && t != "" {
		name = t
	}
	return pgx.Identifier{name}.Sanitize()
}

// EnsureTables creates any missing collection table.
func (s *PostgresStore) EnsureTables(ctx context.Context, collections ...string) error {
	for _, collection := range collections {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(qryPostgresCreate, s.table(collection))); err != nil {
			return fmt.Errorf("failed to create table for %s: %w", collection, err)
		}
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, sel Selector) ([]Document, error) {
	tr := newTranslator(postgresDialect{})
	where, err := tr.where("doc", sel)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(qryPostgresSelect, s.table(collection), where), tr.args...)
	if err != nil {
		return nil, model.NewCollaboratorError("record-store", "query", err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var revision string
		var raw []byte
		if err = rows.Scan(&revision, &raw); err != nil {
			return nil, model.NewCollaboratorError("record-store", "query", err)
		}
		doc, err := decode(raw, revision)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, model.NewCollaboratorError("record-store", "query", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := validate(doc); err != nil {
		return "", err
	}
	body, err := doc.body()
	if err != nil {
		return "", err
	}
	id, prev := doc.ID(), doc.Revision()
	rev := NextRevision(prev)
	table := s.table(collection)

	var affected int64
	if prev == "" {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(qryPostgresInsert, table), id, rev, string(body))
		if err != nil {
			return "", model.NewCollaboratorError("record-store", "upsert", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(qryPostgresUpdate, table), id, rev, string(body), prev)
		if err != nil {
			return "", model.NewCollaboratorError("record-store", "upsert", err)
		}
		affected = tag.RowsAffected()
	}
	if affected == 0 {
		return "", conflict(collection, id)
	}
	return rev, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, id string, revision string) error {
	table := s.table(collection)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(qryPostgresDelete, table), id, revision)
	if err != nil {
		return model.NewCollaboratorError("record-store", "delete", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf(qryPostgresExists, table), id).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.NewCollaboratorError("record-store", "delete", err)
	}
	if !exists {
		return missing(collection, id)
	}
	return conflict(collection, id)
}
