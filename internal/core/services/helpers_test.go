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

package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/require"
)

// scriptedStore wraps a store and lets a test inject failures.
type scriptedStore struct {
	records.Store
	mu sync.Mutex
	// conflicts is the number of upcoming index upserts to reject.
	conflicts int
	upserts   int
	// deleteErr, when set, replaces the result of every delete.
	deleteErr error
}

func (s *scriptedStore) Upsert(ctx context.Context, collection string, doc records.Document) (string, error) {
	s.mu.Lock()
	s.upserts++
	if collection == model.CollectionIndex && s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return "", records.ErrConflict
	}
	s.mu.Unlock()
	return s.Store.Upsert(ctx, collection, doc)
}

func (s *scriptedStore) Delete(ctx context.Context, collection string, id string, revision string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, collection, id, revision)
}

// failingDeletes fails DeleteMany with err while it is set.
type failingDeletes struct {
	*test.MemoryObjectStore
	err error
}

func (f *failingDeletes) DeleteMany(ctx context.Context, keys []string) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryObjectStore.DeleteMany(ctx, keys)
}

type fixture struct {
	store     *records.MemoryStore
	catalog   *services.Catalog
	media     *test.MemoryObjectStore
	keyframes *test.MemoryObjectStore
}

func newFixture() *fixture {
	store := records.NewMemoryStore()
	return &fixture{
		store:     store,
		catalog:   services.NewCatalog(store),
		media:     test.NewMemoryObjectStore(),
		keyframes: test.NewMemoryObjectStore(),
	}
}

func (f *fixture) index(t *testing.T, name string) *model.MediaIndex {
	idx := model.NewMediaIndex(name)
	require.NoError(t, f.catalog.SaveIndex(context.Background(), idx))
	return idx
}

func (f *fixture) frame(t *testing.T, parent string, labels ...string) *model.Frame {
	classes := make([]*model.Classification, 0, len(labels))
	for _, l := range labels {
		classes = append(classes, &model.Classification{Label: l, Score: 0.7})
	}
	frame := model.NewFrame(parent, 2.5, classes)
	require.NoError(t, f.catalog.SaveFrame(context.Background(), frame))
	require.NoError(t, f.keyframes.Put(context.Background(), frame.ObjectName(), []byte("jpeg"), map[string]string{"parent": parent}))
	return frame
}

func (f *fixture) transcript(t *testing.T, parent string, chunks ...string) *model.Transcript {
	body := &model.TranscriptBody{}
	for i, c := range chunks {
		body.Full += c
		body.Chunks = append(body.Chunks, &model.Chunk{Text: c, Start: float64(i), End: float64(i) + 1})
	}
	transcript := model.NewTranscript(parent, body)
	require.NoError(t, f.catalog.SaveTranscript(context.Background(), transcript))
	return transcript
}
