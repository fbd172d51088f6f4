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
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupRemovesOnlyTheParentsArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	old := f.index(t, "old.mp4")
	other := f.index(t, "other.mp4")
	f.frame(t, old.ID, "cat")
	f.frame(t, old.ID, "dog")
	f.transcript(t, old.ID, "hello")
	keep := f.frame(t, other.ID, "fish")
	f.transcript(t, other.ID, "bye")

	coordinator := services.NewCleanupCoordinator(f.catalog, f.keyframes, nil)
	require.NoError(t, coordinator.Cleanup(ctx, old.ID))

	frames, err := f.catalog.FramesByParent(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, frames)
	transcripts, err := f.catalog.TranscriptsByParent(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, transcripts)

	assert.Equal(t, []string{keep.ObjectName()}, f.keyframes.Keys())
	remaining, err := f.catalog.TranscriptsByParent(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestCleanupWithNothingToDo(t *testing.T) {
	f := newFixture()
	coordinator := services.NewCleanupCoordinator(f.catalog, f.keyframes, nil)
	assert.NoError(t, coordinator.Cleanup(context.Background(), "never-analysed"))
}

func TestCleanupTreatsMissingRecordsAsDeleted(t *testing.T) {
	f := newFixture()
	idx := f.index(t, "a.mp4")
	f.frame(t, idx.ID, "cat")
	f.transcript(t, idx.ID, "x")

	store := &scriptedStore{Store: f.store, deleteErr: model.NotFound("gone")}
	coordinator := services.NewCleanupCoordinator(services.NewCatalog(store), f.keyframes, nil)
	assert.NoError(t, coordinator.Cleanup(context.Background(), idx.ID))
}

func TestCleanupJoinsFailures(t *testing.T) {
	f := newFixture()
	idx := f.index(t, "a.mp4")
	f.frame(t, idx.ID, "cat")
	f.transcript(t, idx.ID, "x")

	boom := errors.New("store unavailable")
	store := &scriptedStore{Store: f.store, deleteErr: boom}
	coordinator := services.NewCleanupCoordinator(services.NewCatalog(store), f.keyframes, nil)

	err := coordinator.Cleanup(context.Background(), idx.ID)
	assert.ErrorIs(t, err, boom)
	// Blobs go first; the surviving records still name them for the retry.
	assert.Empty(t, f.keyframes.Keys())
}

func TestCleanupKeepsFrameRecordsWhenBlobDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")
	f.frame(t, idx.ID, "cat")
	f.frame(t, idx.ID, "dog")
	f.transcript(t, idx.ID, "x")

	keyframes := &failingDeletes{MemoryObjectStore: f.keyframes, err: errors.New("bucket unavailable")}
	coordinator := services.NewCleanupCoordinator(f.catalog, keyframes, nil)

	err := coordinator.Cleanup(ctx, idx.ID)
	var collaboratorErr *model.CollaboratorError
	require.ErrorAs(t, err, &collaboratorErr)
	assert.Len(t, f.keyframes.Keys(), 2)
	assert.Equal(t, 2, f.store.Len(model.CollectionFrames))
	assert.Equal(t, 1, f.store.Len(model.CollectionTranscripts))

	keyframes.err = nil
	require.NoError(t, coordinator.Cleanup(ctx, idx.ID))
	assert.Empty(t, f.keyframes.Keys())
	assert.Equal(t, 0, f.store.Len(model.CollectionFrames))
	assert.Equal(t, 0, f.store.Len(model.CollectionTranscripts))
}

// TestCleanupIsThrottled checks that deletes beyond the first wait for the
// clock, and that transcripts are only deleted once every frame is gone.
func TestCleanupIsThrottled(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")
	for i := 0; i < 3; i++ {
		f.frame(t, idx.ID, "cat")
	}
	f.transcript(t, idx.ID, "x")

	clock := test.NewFakeClock(time.Date(2024, 10, 11, 0, 0, 0, 0, time.UTC))
	coordinator := services.NewCleanupCoordinator(f.catalog, f.keyframes, schedule.NewThrottle(time.Second, clock))

	done := make(chan error, 1)
	go func() { done <- coordinator.Cleanup(ctx, idx.ID) }()

	require.Eventually(t, func() bool { return f.store.Len(model.CollectionFrames) == 2 && clock.Waiters() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.store.Len(model.CollectionTranscripts))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.store.Len(model.CollectionFrames) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.store.Len(model.CollectionTranscripts))

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, 0, f.store.Len(model.CollectionFrames))
	assert.Equal(t, 0, f.store.Len(model.CollectionTranscripts))
}
