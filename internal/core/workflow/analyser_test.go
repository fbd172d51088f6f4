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

package workflow_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyserEndToEnd(t *testing.T) {
	h := newHarness(t).build()

	ack, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	assert.Equal(t, "Beginning analysis for 'pets.mp4'", ack.Message)
	assert.NotEmpty(t, ack.ID)

	outcome := await(t, ack)
	require.NoError(t, outcome.Err())
	assert.Equal(t, 3, outcome.Frames)
	assert.Equal(t, 2, outcome.Chunks)

	media := &services.MediaService{Catalog: h.catalog, Media: h.media, Keyframes: h.keyframes}
	progress, err := media.CheckProgress(ctx, mediaName)
	require.NoError(t, err)
	assert.Equal(t, model.Progress{}, *progress)

	frames, err := h.catalog.FramesByParent(ctx, ack.ID)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	keys := h.keyframes.(*test.MemoryObjectStore).Keys()
	for _, f := range frames {
		assert.Contains(t, keys, f.ObjectName())
	}
	assert.Len(t, keys, 3)

	search := &services.SearchService{Catalog: h.catalog}
	results, err := search.Search(ctx, "cat")
	require.NoError(t, err)
	require.Contains(t, results, ack.ID)
	assert.Equal(t, mediaName, results[ack.ID].Name)
	assert.Len(t, results[ack.ID].Frames, 1)

	results, err = search.Search(ctx, "quick brown fox")
	require.NoError(t, err)
	require.Contains(t, results, ack.ID)
	require.Len(t, results[ack.ID].Transcript, 1)
	assert.Equal(t, "the quick brown fox ", results[ack.ID].Transcript[0].Text)
}

func TestAnalyserRetriggerReusesIdentityAndReplacesArtifacts(t *testing.T) {
	h := newHarness(t).build()

	first, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, first).Err())
	firstFrames, err := h.catalog.FramesByParent(ctx, first.ID)
	require.NoError(t, err)

	h.source.Images = []string{"dog", "fish"}
	second, err := h.analyser.CleanupAndReanalyze(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, second).Err())

	assert.Equal(t, first.ID, second.ID)

	indexes, err := h.catalog.AllIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, indexes, 1)

	frames, err := h.catalog.FramesByParent(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	keys := h.keyframes.(*test.MemoryObjectStore).Keys()
	assert.Len(t, keys, 2)
	for _, f := range firstFrames {
		assert.NotContains(t, keys, f.ObjectName())
	}

	transcripts, err := h.catalog.TranscriptsByParent(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, transcripts, 1)
}

func TestAnalyserUnknownMedia(t *testing.T) {
	h := newHarness(t).build()

	ack, err := h.analyser.Trigger(ctx, "missing.mp4")
	assert.Nil(t, ack)
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "missing.mp4")

	indexes, err := h.catalog.AllIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, indexes)
}

func TestAnalyserEmptyName(t *testing.T) {
	h := newHarness(t).build()
	_, err := h.analyser.Trigger(ctx, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAnalyserRejectsConcurrentRunForSameName(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	labels := test.LabelClassifier(map[string][]string{"cat": {"cat"}})
	h.classifier = test.ClassifierFunc(func(ctx context.Context, image []byte) ([]*model.Classification, error) {
		<-release
		return labels(ctx, image)
	})
	h.build()

	ack, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)

	progress, err := (&services.MediaService{Catalog: h.catalog}).CheckProgress(ctx, mediaName)
	require.NoError(t, err)
	assert.True(t, progress.Active())

	_, err = h.analyser.Trigger(ctx, mediaName)
	assert.ErrorIs(t, err, model.ErrInProgress)

	close(release)
	require.NoError(t, await(t, ack).Err())

	again, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, again).Err())
}

func TestAnalyserPipelineFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.transcoder.Err = errors.New("exit status 1")
	h.build()

	ack, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	outcome := await(t, ack)

	assert.NoError(t, outcome.FramesErr)
	assert.Error(t, outcome.AudioErr)
	assert.Equal(t, 3, outcome.Frames)

	index, err := h.catalog.IndexByName(ctx, mediaName)
	require.NoError(t, err)
	assert.False(t, index.Progress.Active())

	transcripts, err := h.catalog.TranscriptsByParent(ctx, ack.ID)
	require.NoError(t, err)
	assert.Empty(t, transcripts)

	for _, path := range h.transcoder.Paths() {
		_, statErr := os.Stat(path)
		assert.ErrorIs(t, statErr, os.ErrNotExist, path)
	}
}

func TestAnalyserClassifierFailuresDegradeFrames(t *testing.T) {
	h := newHarness(t)
	h.classifier = test.LabelClassifier(map[string][]string{"cat": {"cat"}}, "dog", "fish")
	h.build()

	ack, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, ack).Err())

	frames, err := h.catalog.FramesByParent(ctx, ack.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestAnalyserCleanupFailureResetsFlags(t *testing.T) {
	h := newHarness(t)
	keyframes := &flakyDeletes{MemoryObjectStore: test.NewMemoryObjectStore()}
	h.keyframes = keyframes
	h.build()

	ack, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, ack).Err())

	// Leave the record marked as analysing, as a crashed run would.
	index, err := h.catalog.IndexByName(ctx, mediaName)
	require.NoError(t, err)
	index.Restart()
	require.NoError(t, h.catalog.SaveIndex(ctx, index))

	keyframes.fail = true
	again, err := h.analyser.Trigger(ctx, mediaName)
	assert.Nil(t, again)
	require.Error(t, err)
	var collaboratorErr *model.CollaboratorError
	assert.ErrorAs(t, err, &collaboratorErr)

	index, err = h.catalog.IndexByName(ctx, mediaName)
	require.NoError(t, err)
	assert.False(t, index.Progress.Active())

	// The frame records still point at the blobs the failed cleanup left.
	frames, err := h.catalog.FramesByParent(ctx, index.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
	assert.Len(t, keyframes.Keys(), 3)

	keyframes.fail = false
	retry, err := h.analyser.Trigger(ctx, mediaName)
	require.NoError(t, err)
	require.NoError(t, await(t, retry).Err())

	frames, err = h.catalog.FramesByParent(ctx, retry.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
	assert.Len(t, keyframes.Keys(), len(frames))
}

func TestAnalyserWait(t *testing.T) {
	h := newHarness(t).build()

	ack, err := h.analyser.Trigger(context.Background(), mediaName)
	require.NoError(t, err)
	h.analyser.Wait()

	select {
	case outcome := <-ack.Done:
		require.NotNil(t, outcome)
		assert.NoError(t, outcome.Err())
	default:
		t.Fatal("Wait returned before the outcome was delivered")
	}
}
