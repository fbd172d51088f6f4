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
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	qryBigQuerySelect = "SELECT id, revision, TO_JSON_STRING(doc) AS doc FROM `%s` WHERE %s"
	qryBigQueryInsert = "INSERT INTO `%s` (id, revision, doc) SELECT @id, @rev, PARSE_JSON(@doc) FROM UNNEST([1]) WHERE NOT EXISTS (SELECT 1 FROM `%s` WHERE id = @id)"
	qryBigQueryUpdate = "UPDATE `%s` SET revision = @rev, doc = PARSE_JSON(@doc) WHERE id = @id AND revision = @prev"
	qryBigQueryDelete = "DELETE FROM `%s` WHERE id = @id AND revision = @prev"
	qryBigQueryCount  = "SELECT COUNT(*) AS n FROM `%s` WHERE id = @id"
)

// bigQueryRow is the table layout shared by every collection.
type bigQueryRow struct {
	ID       string `bigquery:"id"`
	Revision string `bigquery:"revision"`
	Doc      string `bigquery:"doc"`
}

// BigQueryStore keeps each collection in a table of (id, revision, doc JSON).
// Writes are DML statements predicated on the previous revision, so a write
// against a stale revision affects no rows and is reported as ErrConflict.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
	tables  map[string]string
}

// NewBigQueryStore creates a store over dataset, mapping collection names to
// table names. Collections missing from tables use their own name.
func NewBigQueryStore(client *bigquery.Client, dataset string, tables map[string]string) *BigQueryStore {
	return &BigQueryStore{client: client, dataset: dataset, tables: tables}
}

func (s *BigQueryStore) table(collection string) string {
	name := collection
	if t, ok := s.tables[collection]; ok && t != "" {
		name = t
	}
	return fmt.Sprintf("%s.%s.%s", s.client.Project(), s.dataset, name)
}

// EnsureTables creates any missing collection table.
func (s *BigQueryStore) EnsureTables(ctx context.Context, collections ...string) error {
	schema := bigquery.Schema{
		{Name: "id", Type: bigquery.StringFieldType, Required: true},
		{Name: "revision", Type: bigquery.StringFieldType, Required: true},
		{Name: "doc", Type: bigquery.JSONFieldType},
	}
	for _, collection := range collections {
		name := collection
		if t, ok := s.tables[collection]; ok && t != "" {
			name = t
		}
		err := s.client.Dataset(s.dataset).Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		var apiErr *googleapi.Error
		if err != nil && !(errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict) {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	return nil
}

func (s *BigQueryStore) Query(ctx context.Context, collection string, sel Selector) ([]Document, error) {
	tr := newTranslator(bigQueryDialect{})
	where, err := tr.where("doc", sel)
	if err != nil {
		return nil, err
	}
	q := s.client.Query(fmt.Sprintf(qryBigQuerySelect, s.table(collection), where))
	q.Parameters = positional(tr.args)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, model.NewCollaboratorError("record-store", "query", err)
	}
	out := make([]Document, 0)
	for {
		var row bigQueryRow
		err = it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, model.NewCollaboratorError("record-store", "query", err)
		}
		doc, err := decode([]byte(row.Doc), row.Revision)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, row.ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *BigQueryStore) Upsert(ctx context.Context, collection string, doc Document) (string, error) {
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

	params := []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "rev", Value: rev},
		{Name: "doc", Value: string(body)},
	}
	var sql string
	if prev == "" {
		sql = fmt.Sprintf(qryBigQueryInsert, table, table)
	} else {
		sql = fmt.Sprintf(qryBigQueryUpdate, table)
		params = append(params, bigquery.QueryParameter{Name: "prev", Value: prev})
	}

	affected, err := s.exec(ctx, sql, params)
	if err != nil {
		return "", s.classify(collection, id, "upsert", err)
	}
	if affected == 0 {
		return "", conflict(collection, id)
	}
	return rev, nil
}

func (s *BigQueryStore) Delete(ctx context.Context, collection string, id string, revision string) error {
	table := s.table(collection)
	params := []bigquery.QueryParameter{{Name: "id", Value: id}, {Name: "prev", Value: revision}}
	affected, err := s.exec(ctx, fmt.Sprintf(qryBigQueryDelete, table), params)
	if err != nil {
		return s.classify(collection, id, "delete", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing deleted: either the document is gone or the revision is stale.
	q := s.client.Query(fmt.Sprintf(qryBigQueryCount, table))
	q.Parameters = params[:1]
	it, err := q.Read(ctx)
	if err != nil {
		return model.NewCollaboratorError("record-store", "delete", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err = it.Next(&row); err != nil {
		return model.NewCollaboratorError("record-store", "delete", err)
	}
	if row.N == 0 {
		return missing(collection, id)
	}
	return conflict(collection, id)
}

// exec runs a DML statement and returns the number of affected rows.
func (s *BigQueryStore) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err = status.Err(); err != nil {
		return 0, err
	}
	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0, fmt.Errorf("job %s returned no query statistics", job.ID())
	}
	return stats.NumDMLAffectedRows, nil
}

// classify maps concurrent DML aborts to ErrConflict and everything else to
// a collaborator error.
func (s *BigQueryStore) classify(collection, id, op string, err error) error {
	if strings.Contains(err.Error(), "Could not serialize access") {
		return conflict(collection, id)
	}
	return model.NewCollaboratorError("record-store", op, err)
}

func positional(args []any) []bigquery.QueryParameter {
	out := make([]bigquery.QueryParameter, len(args))
	for i, a := range args {
		out[i] = bigquery.QueryParameter{Name: fmt.Sprintf("p%d", i), Value: a}
	}
	return out
}
