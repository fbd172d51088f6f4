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

package records_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameDoc(t *testing.T, parent string, labels ...string) records.Document {
	classes := make([]*model.Classification, 0)
	for _, l := range labels {
		classes = append(classes, &model.Classification{Label: l, Score: 0.5})
	}
	doc, err := records.ToDocument(model.NewFrame(parent, 1, classes))
	require.NoError(t, err)
	return doc
}

func TestMemoryStoreRevisions(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()

	index := model.NewMediaIndex("clip.mp4")
	doc, err := records.ToDocument(index)
	require.NoError(t, err)

	rev, err := store.Upsert(ctx, model.CollectionIndex, doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rev, "1-"))

	// A second insert of the same id is a conflict.
	_, err = store.Upsert(ctx, model.CollectionIndex, doc)
	assert.ErrorIs(t, err, records.ErrConflict)

	found, err := store.Query(ctx, model.CollectionIndex, records.Eq(model.FieldName, "clip.mp4"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rev, found[0].Revision())

	var loaded model.MediaIndex
	require.NoError(t, records.FromDocument(found[0], &loaded))
	assert.Equal(t, index.ID, loaded.ID)
	assert.True(t, loaded.Progress.Frames)

	loaded.Progress.Resolve(model.ModalityFrames)
	update, err := records.ToDocument(&loaded)
	require.NoError(t, err)
	rev2, err := store.Upsert(ctx, model.CollectionIndex, update)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rev2, "2-"))

	// Writing again from the stale copy must not overwrite the new revision.
	_, err = store.Upsert(ctx, model.CollectionIndex, update)
	assert.ErrorIs(t, err, records.ErrConflict)

	assert.ErrorIs(t, store.Delete(ctx, model.CollectionIndex, index.ID, rev), records.ErrConflict)
	assert.NoError(t, store.Delete(ctx, model.CollectionIndex, index.ID, rev2))
	assert.ErrorIs(t, store.Delete(ctx, model.CollectionIndex, index.ID, rev2), records.ErrNotFound)
	assert.Equal(t, 0, store.Len(model.CollectionIndex))
}

func TestMemoryStoreRequiresID(t *testing.T) {
	_, err := records.NewMemoryStore().Upsert(context.Background(), model.CollectionFrames, records.Document{"parent": "p"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMemoryStoreSelectors(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()

	cat := frameDoc(t, "p1", "cat", "sofa")
	fish := frameDoc(t, "p1", "fish")
	dog := frameDoc(t, "p2", "dog")
	bare := frameDoc(t, "p2")
	for _, d := range []records.Document{cat, fish, dog, bare} {
		_, err := store.Upsert(ctx, model.CollectionFrames, d)
		require.NoError(t, err)
	}

	byLabel := records.ElemMatch(model.FieldClassification, records.Or(
		records.Eq(model.FieldLabel, "cat"),
		records.Eq(model.FieldLabel, "dog"),
	))
	found, err := store.Query(ctx, model.CollectionFrames, byLabel)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, cat.ID(), found[0].ID())
	assert.Equal(t, dog.ID(), found[1].ID())

	found, err = store.Query(ctx, model.CollectionFrames, records.Eq(model.FieldParent, "p2"))
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = store.Query(ctx, model.CollectionFrames, records.Exists(model.FieldID))
	require.NoError(t, err)
	assert.Len(t, found, 4)

	found, err = store.Query(ctx, model.CollectionFrames, records.Or())
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.Query(ctx, model.CollectionFrames, records.Eq("missing.path", "x"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryStoreNestedPaths(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	index := model.NewMediaIndex("a.mp4")
	doc, err := records.ToDocument(index)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, model.CollectionIndex, doc)
	require.NoError(t, err)

	found, err := store.Query(ctx, model.CollectionIndex, records.Eq("analysing.frames", true))
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = store.Query(ctx, model.CollectionIndex, records.Eq("analysing.text", true))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	doc := frameDoc(t, "p1", "cat")
	_, err := store.Upsert(ctx, model.CollectionFrames, doc)
	require.NoError(t, err)

	found, err := store.Query(ctx, model.CollectionFrames, records.All())
	require.NoError(t, err)
	found[0][model.FieldParent] = "changed"

	again, err := store.Query(ctx, model.CollectionFrames, records.All())
	require.NoError(t, err)
	assert.Equal(t, "p1", again[0][model.FieldParent])
}

func TestMemoryStoreWriteCeiling(t *testing.T) {
	ctx := context.Background()
	clock := test.NewFakeClock(time.Date(2024, 10, 11, 0, 0, 0, 0, time.UTC))
	store := records.NewMemoryStore(records.WithWriteCeiling(2, 1, clock))

	_, err := store.Upsert(ctx, model.CollectionFrames, frameDoc(t, "p"))
	require.NoError(t, err)

	_, err = store.Upsert(ctx, model.CollectionFrames, frameDoc(t, "p"))
	assert.ErrorIs(t, err, model.ErrRateLimited)
	var collab *model.CollaboratorError
	assert.ErrorAs(t, err, &collab)

	clock.Advance(500 * time.Millisecond)
	_, err = store.Upsert(ctx, model.CollectionFrames, frameDoc(t, "p"))
	assert.NoError(t, err)
}

func TestNextRevision(t *testing.T) {
	first := records.NextRevision("")
	assert.True(t, strings.HasPrefix(first, "1-"))
	assert.True(t, strings.HasPrefix(records.NextRevision(first), "2-"))
	assert.NotEqual(t, first, records.NextRevision(""))
}
