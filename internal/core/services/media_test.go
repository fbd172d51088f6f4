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
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct{}

func (fakeSigner) SignedURL(_ context.Context, bucket string, key string, method string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed/%s/%s?method=%s&ttl=%d", bucket, key, method, int(ttl.Seconds())), nil
}

func (f *fixture) mediaService() *services.MediaService {
	return &services.MediaService{
		Catalog:         f.catalog,
		Media:           f.media,
		Keyframes:       f.keyframes,
		Signer:          fakeSigner{},
		KeyframesBucket: "keyframes",
	}
}

func TestCheckProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.index(t, "a.mp4")

	progress, err := f.mediaService().CheckProgress(ctx, "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, model.Progress{Frames: true, Audio: true}, *progress)

	_, err = f.mediaService().CheckProgress(ctx, "unknown.mp4")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFetchKeyframeBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")
	frame := f.frame(t, idx.ID, "cat")

	blob, err := f.mediaService().FetchKeyframeBlob(ctx, frame.ID)
	require.NoError(t, err)
	defer blob.Close()
	data, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = f.mediaService().FetchKeyframeBlob(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestKeyframeURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	idx := f.index(t, "a.mp4")
	frame := f.frame(t, idx.ID, "cat")

	url, err := f.mediaService().KeyframeURL(ctx, frame.ID, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed/keyframes/"+frame.ID+".jpg?method=GET&ttl=900", url)

	_, err = f.mediaService().KeyframeURL(ctx, "missing", time.Minute)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		require.NoError(t, f.media.Put(ctx, name, []byte(name), nil))
	}
	done := f.index(t, "a.mp4")
	done.Progress = model.Progress{}
	require.NoError(t, f.catalog.SaveIndex(ctx, done))
	f.transcript(t, done.ID, "hello")
	running := f.index(t, "b.mp4")

	list, err := f.mediaService().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "a.mp4", list[0].Key)
	assert.Equal(t, done.ID, list[0].ID)
	assert.True(t, list[0].Indexed)
	assert.True(t, list[0].Transcribed)
	assert.False(t, list[0].Analysing)

	assert.Equal(t, running.ID, list[1].ID)
	assert.True(t, list[1].Indexed)
	assert.False(t, list[1].Transcribed)
	assert.True(t, list[1].Analysing)

	assert.False(t, list[2].Indexed)
	assert.Empty(t, list[2].ID)
	assert.Equal(t, int64(5), list[2].Size)
}
