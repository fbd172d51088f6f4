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

// Package records is the document store behind the media index, frame and
// transcript records. Documents are JSON objects identified by their "uuid"
// field and versioned by a "_rev" field that the store assigns on every write.
//
// Logic Flow:
//  1. Callers convert their typed records to a Document (ToDocument).
//  2. Upsert without a revision inserts; with a revision it replaces the
//     stored document only if the stored revision still matches. Any mismatch
//     is ErrConflict, which gives callers optimistic concurrency.
//  3. Query filters a collection with a Selector, which each backend either
//     evaluates in process (MemoryStore) or translates to SQL (BigQueryStore,
//     PostgresStore).
//  4. Delete removes a document at a given revision.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

const (
	// IDField holds a document's identifier.
	IDField = model.FieldID
	// RevisionField holds a document's revision. It is owned by the store.
	RevisionField = "_rev"
)

// ErrConflict and ErrNotFound are the model sentinels, re-exported so store
// callers need only this package.
var (
	ErrConflict = model.ErrConflict
	ErrNotFound = model.ErrNotFound
)

// Store is a collection oriented document store with per-document revisions.
type Store interface {
	// Query returns the documents of a collection matching the selector.
	Query(ctx context.Context, collection string, sel Selector) ([]Document, error)
	// Upsert inserts or replaces a document and returns its new revision.
	Upsert(ctx context.Context, collection string, doc Document) (string, error)
	// Delete removes a document if its stored revision equals revision.
	Delete(ctx context.Context, collection string, id string, revision string) error
}

// Document is a JSON object.
type Document map[string]any

// ID returns the document identifier or "".
func (d Document) ID() string {
	s, _ := d[IDField].(string)
	return s
}

// Revision returns the document revision or "".
func (d Document) Revision() string {
	s, _ := d[RevisionField].(string)
	return s
}

// Lookup resolves a dotted path such as "analysing.frames".
func (d Document) Lookup(path string) (any, bool) {
	var current any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return t, true
	}
	return nil, false
}

// body returns the JSON of the document without its revision, which backends
// keep in a column of its own.
func (d Document) body() ([]byte, error) {
	stripped := make(map[string]any, len(d))
	for k, v := range d {
		if k != RevisionField {
			stripped[k] = v
		}
	}
	return json.Marshal(stripped)
}

func clone(d Document) (Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	out := Document{}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func decode(raw []byte, revision string) (Document, error) {
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out[RevisionField] = revision
	return out, nil
}

// ToDocument converts a JSON tagged struct into a Document.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := Document{}
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromDocument converts a Document back into a JSON tagged struct.
func FromDocument(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// NextRevision returns the revision that follows prev. Revisions have the
// form "<sequence>-<random hex>"; an empty prev starts the sequence at 1.
func NextRevision(prev string) string {
	seq := 0
	if head, _, ok := strings.Cut(prev, "-"); ok {
		seq, _ = strconv.Atoi(head)
	}
	return fmt.Sprintf("%d-%s", seq+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func validate(doc Document) error {
	if doc.ID() == "" {
		return model.Validation(fmt.Sprintf("document has no %q field", IDField))
	}
	return nil
}

func conflict(collection, id string) error {
	return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
}

func missing(collection, id string) error {
	return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}
