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
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTags(t *testing.T) {
	assert.Equal(t, []string{"cat", "dog", "cat dog"}, services.BuildTags("Cat  DOG"))
	assert.Equal(t, []string{"cat"}, services.BuildTags("cat"))
	assert.Equal(t, []string{"the", "cat", "the cat the"}, services.BuildTags("the cat the"))
	assert.Empty(t, services.BuildTags("   "))
}

func TestMatchChunk(t *testing.T) {
	tags := services.BuildTags("quick brown fox")

	// Two of the three words appear, and the phrase itself does too.
	assert.True(t, services.MatchChunk("the quick brown fox jumps", "quick brown fox", tags))
	// Words out of order still hit more than one tag.
	assert.True(t, services.MatchChunk("a fox, brown and lazy", "quick brown fox", tags))
	// A single incidental word is not enough.
	assert.False(t, services.MatchChunk("the fox slept", "quick brown fox", tags))
	// Case is ignored.
	assert.True(t, services.MatchChunk("THE QUICK BROWN FOX", "quick brown fox", tags))

	single := services.BuildTags("cat")
	assert.True(t, services.MatchChunk("a cat sat", "cat", single))
	assert.False(t, services.MatchChunk("a dog sat", "cat", single))
}

func TestGroupFrames(t *testing.T) {
	cat := model.NewFrame("parent-a", 1, []*model.Classification{{Label: "cat", Score: 0.9}})
	fish := model.NewFrame("parent-b", 2, []*model.Classification{{Label: "fish", Score: 0.9}})
	bare := model.NewFrame("parent-c", 3, nil)

	results := services.Group("cat dog", []*model.Frame{cat, fish, bare}, nil)

	require.Len(t, results, 1)
	group := results["parent-a"]
	require.NotNil(t, group)
	assert.Equal(t, []*model.Frame{cat}, group.Frames)
	assert.Empty(t, group.Transcript)
}

func TestGroupTranscripts(t *testing.T) {
	transcript := model.NewTranscript("parent-a", &model.TranscriptBody{
		Full: "the quick brown fox jumps over the lazy dog",
		Chunks: []*model.Chunk{
			{Text: "the quick brown fox jumps", Start: 61.5, End: 63},
			{Text: "over the lazy dog", Start: 3725, End: 3727.25},
		},
	})
	unrelated := model.NewTranscript("parent-b", &model.TranscriptBody{
		Chunks: []*model.Chunk{{Text: "nothing to see here", Start: 0, End: 1}},
	})

	results := services.Group("Quick Brown Fox", nil, []*model.Transcript{transcript, unrelated})

	require.Len(t, results, 1)
	group := results["parent-a"]
	require.NotNil(t, group)
	require.Len(t, group.Transcript, 1)
	match := group.Transcript[0]
	assert.Equal(t, "the quick brown fox jumps", match.Text)
	assert.Equal(t, model.Duration{Minutes: 1, Seconds: 1, Offset: 61.5}, match.Start)
	assert.Equal(t, model.Duration{Minutes: 1, Seconds: 3, Offset: 63}, match.End)
}

func TestGroupPreservesOrder(t *testing.T) {
	first := model.NewFrame("p", 1, []*model.Classification{{Label: "cat"}})
	second := model.NewFrame("p", 2, []*model.Classification{{Label: "cat"}})

	results := services.Group("cat", []*model.Frame{first, second}, nil)

	require.Len(t, results["p"].Frames, 2)
	assert.Equal(t, first.ID, results["p"].Frames[0].ID)
	assert.Equal(t, second.ID, results["p"].Frames[1].ID)
}
