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

	"github.com/cenkalti/backoff/v4"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracker(catalog *services.Catalog, retries int) *services.ProgressTracker {
	p := services.NewProgressTracker(catalog, retries)
	p.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return p
}

func TestResolveFlipsOneFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")

	require.NoError(t, tracker(f.catalog, 3).Resolve(ctx, idx.ID, model.ModalityFrames))

	stored, err := f.catalog.IndexByID(ctx, idx.ID)
	require.NoError(t, err)
	assert.False(t, stored.Progress.Frames)
	assert.True(t, stored.Progress.Audio)
}

func TestResolveRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")
	store := &scriptedStore{Store: f.store, conflicts: 2}

	require.NoError(t, tracker(services.NewCatalog(store), 3).Resolve(ctx, idx.ID, model.ModalityAudio))

	stored, err := f.catalog.IndexByID(ctx, idx.ID)
	require.NoError(t, err)
	assert.False(t, stored.Progress.Audio)
	assert.Equal(t, 3, store.upserts)
}

func TestResolveGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture()
	idx := f.index(t, "a.mp4")
	store := &scriptedStore{Store: f.store, conflicts: 10}

	err := tracker(services.NewCatalog(store), 2).Resolve(context.Background(), idx.ID, model.ModalityAudio)

	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, 3, store.upserts)
}

func TestResolveUnknownRecordIsPermanent(t *testing.T) {
	f := newFixture()
	store := &scriptedStore{Store: f.store}

	err := tracker(services.NewCatalog(store), 5).Resolve(context.Background(), "missing", model.ModalityFrames)

	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 0, store.upserts)
}

// TestConcurrentResolveKeepsBothFlags races both pipelines' updates against
// the same record; neither may overwrite the other's flag.
func TestConcurrentResolveKeepsBothFlags(t *testing.T) {
	ctx := context.Background()
	for run := 0; run < 20; run++ {
		f := newFixture()
		idx := f.index(t, "a.mp4")
		p := tracker(f.catalog, 50)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, m := range []model.Modality{model.ModalityFrames, model.ModalityAudio} {
			wg.Add(1)
			go func(i int, m model.Modality) {
				defer wg.Done()
				errs[i] = p.Resolve(ctx, idx.ID, m)
			}(i, m)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		stored, err := f.catalog.IndexByID(ctx, idx.ID)
		require.NoError(t, err)
		assert.False(t, stored.Progress.Active())
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")

	require.NoError(t, tracker(f.catalog, 3).Reset(ctx, idx.ID))

	stored, err := f.catalog.IndexByID(ctx, idx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Progress{}, stored.Progress)
}
