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

// Package services contains the business logic of the media analyser that
// sits between the workflows and the record store: typed record access
// (Catalog), removal of a previous run's artifacts (CleanupCoordinator),
// progress flag updates under optimistic concurrency (ProgressTracker), the
// cross-modal search (SearchService, Group) and the read side used by the
// HTTP and CLI surfaces (MediaService).
package services

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
)

// Catalog is typed access to the index, frames and transcripts collections.
type Catalog struct {
	Store records.Store
}

// NewCatalog wraps a record store.
func NewCatalog(store records.Store) *Catalog {
	return &Catalog{Store: store}
}

func query[T any](ctx context.Context, store records.Store, collection string, sel records.Selector) ([]*T, error) {
	docs, err := store.Query(ctx, collection, sel)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		v := new(T)
		if err = records.FromDocument(doc, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record %s: %w", collection, doc.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func save(ctx context.Context, store records.Store, collection string, v any) (string, error) {
	doc, err := records.ToDocument(v)
	if err != nil {
		return "", err
	}
	return store.Upsert(ctx, collection, doc)
}

// IndexByName returns the index record for a media name, or an ErrNotFound
// error when the name has never been analysed.
func (c *Catalog) IndexByName(ctx context.Context, name string) (*model.MediaIndex, error) {
	found, err := query[model.MediaIndex](ctx, c.Store, model.CollectionIndex, records.Eq(model.FieldName, name))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no index record named '%s': %w", name, model.ErrNotFound)
	}
	return found[0], nil
}

// IndexByID returns the index record with the given id.
func (c *Catalog) IndexByID(ctx context.Context, id string) (*model.MediaIndex, error) {
	found, err := query[model.MediaIndex](ctx, c.Store, model.CollectionIndex, records.Eq(model.FieldID, id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no index record with id '%s': %w", id, model.ErrNotFound)
	}
	return found[0], nil
}

// IndexesByIDs returns the index records for the ids, keyed by id. Ids with
// no record are absent from the map.
func (c *Catalog) IndexesByIDs(ctx context.Context, ids []string) (map[string]*model.MediaIndex, error) {
	out := make(map[string]*model.MediaIndex, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sels := make([]records.Selector, 0, len(ids))
	for _, id := range ids {
		sels = append(sels, records.Eq(model.FieldID, id))
	}
	found, err := query[model.MediaIndex](ctx, c.Store, model.CollectionIndex, records.Or(sels...))
	if err != nil {
		return nil, err
	}
	for _, idx := range found {
		out[idx.ID] = idx
	}
	return out, nil
}

// AllIndexes returns every index record.
func (c *Catalog) AllIndexes(ctx context.Context) ([]*model.MediaIndex, error) {
	return query[model.MediaIndex](ctx, c.Store, model.CollectionIndex, records.All())
}

// SaveIndex upserts the record and stores the new revision on it.
func (c *Catalog) SaveIndex(ctx context.Context, index *model.MediaIndex) error {
	rev, err := save(ctx, c.Store, model.CollectionIndex, index)
	if err != nil {
		return err
	}
	index.Revision = rev
	return nil
}

// FramesByParent returns the frames of one media object.
func (c *Catalog) FramesByParent(ctx context.Context, parent string) ([]*model.Frame, error) {
	return query[model.Frame](ctx, c.Store, model.CollectionFrames, records.Eq(model.FieldParent, parent))
}

// FramesByLabels returns every frame with at least one classification whose
// label equals one of the labels.
func (c *Catalog) FramesByLabels(ctx context.Context, labels []string) ([]*model.Frame, error) {
	sels := make([]records.Selector, 0, len(labels))
	for _, l := range labels {
		sels = append(sels, records.Eq(model.FieldLabel, l))
	}
	return query[model.Frame](ctx, c.Store, model.CollectionFrames,
		records.ElemMatch(model.FieldClassification, records.Or(sels...)))
}

// SaveFrame upserts a frame record.
func (c *Catalog) SaveFrame(ctx context.Context, frame *model.Frame) error {
	rev, err := save(ctx, c.Store, model.CollectionFrames, frame)
	if err != nil {
		return err
	}
	frame.Revision = rev
	return nil
}

// DeleteFrame removes a frame record at its current revision.
func (c *Catalog) DeleteFrame(ctx context.Context, frame *model.Frame) error {
	return c.Store.Delete(ctx, model.CollectionFrames, frame.ID, frame.Revision)
}

// TranscriptsByParent returns the transcripts of one media object.
func (c *Catalog) TranscriptsByParent(ctx context.Context, parent string) ([]*model.Transcript, error) {
	return query[model.Transcript](ctx, c.Store, model.CollectionTranscripts, records.Eq(model.FieldParent, parent))
}

// AllTranscripts returns every transcript record.
func (c *Catalog) AllTranscripts(ctx context.Context) ([]*model.Transcript, error) {
	return query[model.Transcript](ctx, c.Store, model.CollectionTranscripts, records.Exists(model.FieldID))
}

// SaveTranscript upserts a transcript record.
func (c *Catalog) SaveTranscript(ctx context.Context, transcript *model.Transcript) error {
	rev, err := save(ctx, c.Store, model.CollectionTranscripts, transcript)
	if err != nil {
		return err
	}
	transcript.Revision = rev
	return nil
}

// DeleteTranscript removes a transcript record at its current revision.
func (c *Catalog) DeleteTranscript(ctx context.Context, transcript *model.Transcript) error {
	return c.Store.Delete(ctx, model.CollectionTranscripts, transcript.ID, transcript.Revision)
}
